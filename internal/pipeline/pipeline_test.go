package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	assetmocks "github.com/vidsnap/vidsnap/internal/assets/mocks"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/media"
	"github.com/vidsnap/vidsnap/internal/media/avirec"
	reelmocks "github.com/vidsnap/vidsnap/internal/repositories/reel/mocks"
	storagemocks "github.com/vidsnap/vidsnap/internal/storage/mocks"
	ttsmocks "github.com/vidsnap/vidsnap/internal/tts/mocks"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/mock/gomock"
)

// Small frame geometry and frame rate keep the render loop cheap; the
// timing math is identical at any scale.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Render.Width = 64
	cfg.Render.Height = 112
	cfg.Render.FPS = 2
	cfg.Render.SecondsPerSlide = 3
	cfg.Render.MaxImages = 50
	cfg.Render.MinBlobBytes = 1000
	cfg.Render.JPEGQuality = 60
	return cfg
}

type fixture struct {
	svc    *Service
	loader *assetmocks.MockLoader
	synth  *ttsmocks.MockSynthesizer
	store  *storagemocks.MockStore
	repo   *reelmocks.MockRepository
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		loader: assetmocks.NewMockLoader(ctrl),
		synth:  ttsmocks.NewMockSynthesizer(ctrl),
		store:  storagemocks.NewMockStore(ctrl),
		repo:   reelmocks.NewMockRepository(ctrl),
		clock:  clockwork.NewFakeClock(),
	}
	f.svc = New(Opts{
		Config:      testConfig(),
		Logger:      logger.New(logger.Opts{}),
		Loader:      f.loader,
		Synthesizer: f.synth,
		NewRecorder: func() media.Recorder { return avirec.New() },
		Store:       f.store,
		Repo:        f.repo,
		Clock:       f.clock,
	})
	return f
}

// autoAdvance keeps releasing the render loop's frame sleeps until the
// returned cancel runs.
func (f *fixture) autoAdvance(t *testing.T, step time.Duration) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			f.clock.Advance(step)
		}
	}()
	return cancel
}

func testAssets(n int) []domain.ImageAsset {
	out := make([]domain.ImageAsset, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, 32, 56))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = uint8(40 * i)
			img.Pix[p+3] = 255
		}
		out[i] = domain.ImageAsset{
			Bitmap:    img,
			Width:     32,
			Height:    56,
			Thumbnail: string(rune('a' + i)),
		}
	}
	return out
}

func imageBytes(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func validRequest(images int) CreateRequest {
	return CreateRequest{
		UserID:    "user-1",
		UserName:  "User One",
		UserImage: "http://avatar",
		Title:     "My Trip",
		Narration: "we went to the mountains and it was great",
		Images:    imageBytes(images),
	}
}

func TestCreateReelHappyPath(t *testing.T) {
	f := newFixture(t)
	req := validRequest(4)

	var progress []int
	req.Progress = func(p int) { progress = append(progress, p) }

	track := &domain.NarrationTrack{
		Samples:    make([]int16, 800),
		SampleRate: 100,
		Channels:   2,
	}
	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(4), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), req.Narration).Return(track, nil)

	f.store.EXPECT().GenerateUploadURL(gomock.Any()).Return("http://store/up", nil)
	f.store.EXPECT().
		Upload(gomock.Any(), "http://store/up", "video/avi", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, data []byte) (string, error) {
			if len(data) < 1000 {
				t.Errorf("uploaded blob is only %d bytes", len(data))
			}
			return "st-1", nil
		})
	f.store.EXPECT().ResolveURL(gomock.Any(), "st-1").Return("http://store/files/st-1", nil)

	var created domain.Reel
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.Reel) error {
			created = r
			return nil
		})
	f.repo.EXPECT().MarkReady(gomock.Any(), gomock.Any(), "st-1", "http://store/files/st-1", 12).Return(nil)

	stop := f.autoAdvance(t, 500*time.Millisecond)
	defer stop()

	reel, err := f.svc.CreateReel(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateReel: %v", err)
	}

	// Four slides at three seconds each.
	if reel.Duration != 12 {
		t.Errorf("Duration = %d, want 12", reel.Duration)
	}
	if reel.Status != domain.ReelStatusReady {
		t.Errorf("Status = %q, want ready", reel.Status)
	}
	if reel.AuthorID != "user-1" || reel.VideoURL != "http://store/files/st-1" {
		t.Errorf("unexpected reel %+v", reel)
	}
	if reel.ID == "" {
		t.Error("reel id not generated")
	}
	if created.ID != reel.ID {
		t.Errorf("persisted id %q differs from returned id %q", created.ID, reel.ID)
	}
	// The row goes in as processing and is only promoted after upload.
	if created.Status != domain.ReelStatusProcessing {
		t.Errorf("inserted status = %q, want processing", created.Status)
	}

	// Thumbnails preserve submission order.
	want := []string{"a", "b", "c", "d"}
	if len(reel.Thumbnails) != len(want) {
		t.Fatalf("thumbnails = %v", reel.Thumbnails)
	}
	for i := range want {
		if reel.Thumbnails[i] != want[i] {
			t.Errorf("thumbnail %d = %q, want %q", i, reel.Thumbnails[i], want[i])
		}
	}

	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
}

func TestCreateReelPacesAgainstClock(t *testing.T) {
	f := newFixture(t)
	req := validRequest(1)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().GenerateUploadURL(gomock.Any()).Return("u", nil)
	f.store.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("s", nil)
	f.store.EXPECT().ResolveURL(gomock.Any(), "s").Return("v", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkReady(gomock.Any(), gomock.Any(), "s", "v", 3).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateReel(context.Background(), req)
		done <- err
	}()

	// One slide at 2 fps is six frames; each one must wait out its slot.
	const frames = 6
	step := 500 * time.Millisecond
	for i := 0; i < frames; i++ {
		if i == frames-1 {
			select {
			case err := <-done:
				t.Fatalf("pipeline finished before the last frame slot (err=%v)", err)
			default:
			}
		}
		if err := f.clock.BlockUntilContext(context.Background(), 1); err != nil {
			t.Fatalf("BlockUntil: %v", err)
		}
		f.clock.Advance(step)
	}

	if err := <-done; err != nil {
		t.Fatalf("CreateReel: %v", err)
	}
	if elapsed := time.Duration(frames) * step; elapsed != 3*time.Second {
		t.Fatalf("render spanned %v of fake time, want 3s", elapsed)
	}
}

func TestCreateReelRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"no images", func(r *CreateRequest) { r.Images = nil }},
		{"too many images", func(r *CreateRequest) { r.Images = imageBytes(51) }},
		{"blank title", func(r *CreateRequest) { r.Title = " " }},
		{"blank narration", func(r *CreateRequest) { r.Narration = "\t\n" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No loader/synth/store/repo expectations: a rejected request
			// starts no work at all.
			f := newFixture(t)
			req := validRequest(2)
			tt.mutate(&req)

			_, err := f.svc.CreateReel(context.Background(), req)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateReelRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	req := validRequest(2)
	req.UserID = ""

	_, err := f.svc.CreateReel(context.Background(), req)
	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestCreateReelSilentWhenSynthesisDegrades(t *testing.T) {
	f := newFixture(t)
	req := validRequest(2)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(2), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().GenerateUploadURL(gomock.Any()).Return("u", nil)
	f.store.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("s", nil)
	f.store.EXPECT().ResolveURL(gomock.Any(), "s").Return("v", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkReady(gomock.Any(), gomock.Any(), "s", "v", 6).Return(nil)

	stop := f.autoAdvance(t, 500*time.Millisecond)
	defer stop()

	reel, err := f.svc.CreateReel(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateReel: %v", err)
	}
	if reel.Status != domain.ReelStatusReady {
		t.Errorf("Status = %q, want ready", reel.Status)
	}
}

func TestCreateReelFailsWhenDecodeFails(t *testing.T) {
	f := newFixture(t)
	req := validRequest(2)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).
		Return(nil, errors.Wrap(errors.ErrDecodeFailed, "image 1"))
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	_, err := f.svc.CreateReel(context.Background(), req)
	if !errors.Is(err, errors.ErrDecodeFailed) {
		t.Errorf("error = %v, want ErrDecodeFailed", err)
	}
}

// tinyRecorder stands in for a broken capture environment that finalizes
// into a near-empty blob.
type tinyRecorder struct{}

func (tinyRecorder) Supports(media.Format) bool      { return true }
func (tinyRecorder) Start(media.RecordingSpec) error { return nil }
func (tinyRecorder) CaptureFrame(*image.RGBA) error  { return nil }
func (tinyRecorder) Abort()                          {}
func (tinyRecorder) Stop(context.Context) (*domain.EncodedBlob, error) {
	return &domain.EncodedBlob{Data: make([]byte, 12), MIMEType: "video/webm"}, nil
}

func TestCreateReelRefusesUndersizedOutput(t *testing.T) {
	f := newFixture(t)
	f.svc.newRecorder = func() media.Recorder { return tinyRecorder{} }
	req := validRequest(1)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkFailed(gomock.Any(), gomock.Any()).Return(nil)
	// No store expectations: an undersized blob never leaves the process.

	stop := f.autoAdvance(t, 500*time.Millisecond)
	defer stop()

	_, err := f.svc.CreateReel(context.Background(), req)
	if !errors.Is(err, errors.ErrOutputTooSmall) {
		t.Fatalf("error = %v, want ErrOutputTooSmall", err)
	}
	if errors.ClassOf(err) != errors.ClassEnvironment {
		t.Errorf("class = %v, want environment", errors.ClassOf(err))
	}
}

func TestCreateReelSingleFlightPerUser(t *testing.T) {
	f := newFixture(t)
	req := validRequest(1)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkFailed(gomock.Any(), gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateReel(ctx, req)
		done <- err
	}()

	// Wait until the first render parks in its frame sleep, which means
	// the user's slot is held.
	if err := f.clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("BlockUntil: %v", err)
	}

	_, err := f.svc.CreateReel(context.Background(), validRequest(1))
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("concurrent render error = %v, want ErrInvalidInput", err)
	}

	// Unblock and cancel the first render.
	cancel()
	stop := f.autoAdvance(t, 500*time.Millisecond)
	defer stop()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("first render error = %v, want context.Canceled", err)
	}

	// The slot is free again.
	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().GenerateUploadURL(gomock.Any()).Return("u", nil)
	f.store.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("s", nil)
	f.store.EXPECT().ResolveURL(gomock.Any(), "s").Return("v", nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkReady(gomock.Any(), gomock.Any(), "s", "v", 3).Return(nil)

	if _, err := f.svc.CreateReel(context.Background(), validRequest(1)); err != nil {
		t.Fatalf("render after release: %v", err)
	}
}

func TestCreateReelWrapsInsertFailure(t *testing.T) {
	f := newFixture(t)
	req := validRequest(1)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	// Insert fails before any frame is rendered; no stores touched.
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	_, err := f.svc.CreateReel(context.Background(), req)
	if !errors.Is(err, errors.ErrUploadFailed) {
		t.Fatalf("error = %v, want ErrUploadFailed", err)
	}
	if errors.ClassOf(err) != errors.ClassTransient {
		t.Errorf("class = %v, want transient", errors.ClassOf(err))
	}
}

func TestCreateReelMarksFailedOnUploadFailure(t *testing.T) {
	f := newFixture(t)
	req := validRequest(1)

	f.loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(testAssets(1), nil)
	f.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.store.EXPECT().GenerateUploadURL(gomock.Any()).
		Return("", errors.Wrap(errors.ErrUploadFailed, "status 503"))
	f.repo.EXPECT().MarkFailed(gomock.Any(), gomock.Any()).Return(nil)

	stop := f.autoAdvance(t, 500*time.Millisecond)
	defer stop()

	_, err := f.svc.CreateReel(context.Background(), req)
	if !errors.Is(err, errors.ErrUploadFailed) {
		t.Fatalf("error = %v, want ErrUploadFailed", err)
	}
}
