// Package pipeline drives one reel-creation session from raw user input to
// a persisted reel: decode assets and synthesize narration concurrently,
// render frames into the recorder at wall-clock speed, validate the
// finalized blob and only then upload and persist.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/vidsnap/vidsnap/internal/assets"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/media"
	"github.com/vidsnap/vidsnap/internal/render"
	reelrepo "github.com/vidsnap/vidsnap/internal/repositories/reel"
	"github.com/vidsnap/vidsnap/internal/storage"
	"github.com/vidsnap/vidsnap/internal/tts"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/formatter"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

// Session states. A failed or cancelled session is never resumed; the user
// re-triggers the whole flow.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
)

// RecorderFactory builds a fresh recorder per session; recorder state is
// exclusively owned by one in-flight render.
type RecorderFactory func() media.Recorder

type ProgressFunc func(percent int)

type CreateRequest struct {
	UserID    string
	UserName  string
	UserImage string
	Title     string
	Narration string
	Images    [][]byte
	Progress  ProgressFunc // optional
}

type Opts struct {
	fx.In

	Config      *config.Config
	Logger      logger.Logger
	Loader      assets.Loader
	Synthesizer tts.Synthesizer
	NewRecorder RecorderFactory
	Store       storage.Store
	Repo        reelrepo.Repository
	Clock       clockwork.Clock
}

type Service struct {
	cfg         *config.Config
	logger      logger.Logger
	loader      assets.Loader
	synthesizer tts.Synthesizer
	newRecorder RecorderFactory
	store       storage.Store
	repo        reelrepo.Repository
	clock       clockwork.Clock

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(opts Opts) *Service {
	return &Service{
		cfg:         opts.Config,
		logger:      opts.Logger.WithComponent("ReelPipeline"),
		loader:      opts.Loader,
		synthesizer: opts.Synthesizer,
		newRecorder: opts.NewRecorder,
		store:       opts.Store,
		repo:        opts.Repo,
		clock:       opts.Clock,
		inFlight:    make(map[string]struct{}),
	}
}

// CreateReel runs the whole pipeline for one request. Only one render per
// user may be in flight; concurrent attempts are refused up front.
func (s *Service) CreateReel(ctx context.Context, req CreateRequest) (*domain.Reel, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if !s.acquire(req.UserID) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "another render is already in progress")
	}
	defer s.release(req.UserID)

	sess := &session{svc: s, req: req, status: StatusIdle}
	return sess.run(ctx)
}

// validate refuses bad submissions before any decode or synthesis work
// starts.
func (s *Service) validate(req CreateRequest) error {
	if len(req.Images) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "at least one image is required")
	}
	if len(req.Images) > s.cfg.Render.MaxImages {
		return errors.Wrap(errors.ErrInvalidInput,
			fmt.Sprintf("too many images (max %d)", s.cfg.Render.MaxImages))
	}
	if strings.TrimSpace(req.Title) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "title is required")
	}
	if strings.TrimSpace(req.Narration) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "narration text is required")
	}
	if req.UserID == "" {
		return errors.Wrap(errors.ErrUnauthorized, "missing user identity")
	}
	return nil
}

func (s *Service) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

// session is the exclusive state of one in-flight render.
type session struct {
	svc    *Service
	req    CreateRequest
	status Status
}

func (se *session) run(ctx context.Context) (*domain.Reel, error) {
	s := se.svc

	draft := &domain.ReelDraft{
		Title:     se.req.Title,
		Narration: se.req.Narration,
	}
	defer draft.Release()

	// Asset decode and narration synthesis are independent; run them
	// concurrently. Narration failure is already degraded to nil inside
	// the synthesizer.
	var track *domain.NarrationTrack
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loaded, err := s.loader.Load(gctx, se.req.Images)
		if err != nil {
			return err
		}
		draft.Assets = loaded
		return nil
	})
	g.Go(func() error {
		t, err := s.synthesizer.Synthesize(gctx, se.req.Narration)
		if err != nil {
			return err
		}
		track = t
		return nil
	})
	if err := g.Wait(); err != nil {
		se.status = StatusFailed
		return nil, err
	}

	if track == nil {
		s.logger.Warn("Narration unavailable, rendering silent reel")
	}

	plan, err := render.NewPlan(draft, render.PlanOpts{
		Width:           s.cfg.Render.Width,
		Height:          s.cfg.Render.Height,
		FPS:             s.cfg.Render.FPS,
		SecondsPerSlide: s.cfg.Render.SecondsPerSlide,
		MaxImages:       s.cfg.Render.MaxImages,
	})
	if err != nil {
		se.status = StatusFailed
		return nil, err
	}

	compositor, err := render.NewCompositor(plan, draft.Assets)
	if err != nil {
		se.status = StatusFailed
		return nil, err
	}

	// The reel row exists for the whole render, visible as "processing";
	// the id is generated here so a retried insert stays idempotent.
	reel := se.newReel(draft, plan)
	if err := s.repo.Create(ctx, *reel); err != nil {
		se.status = StatusFailed
		return nil, errors.Wrap(errors.ErrUploadFailed, "persist reel metadata")
	}

	blob, err := se.record(ctx, plan, compositor, track)
	if err != nil {
		se.fail(reel.ID)
		return nil, err
	}

	// Hard gate: an undersized blob means the encoder produced no real
	// frames. Never upload it.
	if blob.ByteSize() < s.cfg.Render.MinBlobBytes {
		se.fail(reel.ID)
		s.logger.Error("Encoded blob failed size validation",
			"size", blob.ByteSize(), "min", s.cfg.Render.MinBlobBytes)
		return nil, errors.Wrap(errors.ErrOutputTooSmall,
			fmt.Sprintf("recording produced %d bytes", blob.ByteSize()))
	}

	if err := se.finalize(ctx, reel, blob); err != nil {
		se.fail(reel.ID)
		return nil, err
	}

	se.status = StatusFinalized
	s.logger.Info("Reel created",
		"reel_id", reel.ID,
		"slides", plan.SlideCount,
		"duration", formatter.FormatSeconds(plan.DurationSeconds()),
		"size", formatter.FormatBytes(int64(blob.ByteSize())),
		"silent", track == nil,
	)
	return reel, nil
}

// record drives the frame loop against the wall clock. Frame f+1 is never
// rendered before f's scheduled deadline has passed; the recorder captures
// audio and video on a shared timeline, so pacing is what keeps the output
// duration honest.
func (se *session) record(ctx context.Context, plan *render.Plan, compositor *render.Compositor, track *domain.NarrationTrack) (*domain.EncodedBlob, error) {
	s := se.svc
	rec := s.newRecorder()

	format, ok := media.SelectFormat(rec, media.DefaultPreferences())
	if !ok {
		s.logger.Warn("No preferred format supported, using recorder default")
	}

	spec := media.RecordingSpec{
		Format:      format,
		Width:       plan.Width,
		Height:      plan.Height,
		FPS:         plan.FPS,
		JPEGQuality: s.cfg.Render.JPEGQuality,
		Narration:   track,
	}
	if err := rec.Start(spec); err != nil {
		return nil, err
	}
	se.status = StatusRecording

	total := plan.TotalFrames()
	frameDuration := time.Second / time.Duration(plan.FPS)
	renderStart := s.clock.Now()

	for f := 0; f < total; f++ {
		if err := ctx.Err(); err != nil {
			rec.Abort()
			return nil, err
		}

		frame := compositor.Draw(f)
		if err := rec.CaptureFrame(frame); err != nil {
			rec.Abort()
			return nil, err
		}

		se.reportProgress(f+1, total)

		// Sleep to the absolute deadline of the next frame rather than a
		// relative tick, so slow draws never accumulate lag.
		target := renderStart.Add(time.Duration(f+1) * frameDuration)
		if wait := target.Sub(s.clock.Now()); wait > 0 {
			s.clock.Sleep(wait)
		}
	}

	se.status = StatusStopping
	blob, err := rec.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (se *session) reportProgress(done, total int) {
	if se.req.Progress == nil {
		return
	}
	se.req.Progress(int(math.Round(100 * float64(done) / float64(total))))
}

// newReel builds the processing-state row inserted before the render
// starts; the janitor reclaims it if the process dies mid-flight.
func (se *session) newReel(draft *domain.ReelDraft, plan *render.Plan) *domain.Reel {
	thumbnails := make([]string, len(draft.Assets))
	for i, a := range draft.Assets {
		thumbnails[i] = a.Thumbnail
	}

	return &domain.Reel{
		ID:          uuid.New().String(),
		Title:       draft.Title,
		Narration:   draft.Narration,
		AuthorID:    se.req.UserID,
		AuthorName:  se.req.UserName,
		AuthorImage: se.req.UserImage,
		Thumbnails:  thumbnails,
		Status:      domain.ReelStatusProcessing,
		Duration:    plan.DurationSeconds(),
		LikedBy:     []string{},
	}
}

// finalize uploads the validated blob and promotes the reel to ready.
func (se *session) finalize(ctx context.Context, reel *domain.Reel, blob *domain.EncodedBlob) error {
	s := se.svc

	if err := ctx.Err(); err != nil {
		return err
	}

	uploadURL, err := s.store.GenerateUploadURL(ctx)
	if err != nil {
		return err
	}
	storageID, err := s.store.Upload(ctx, uploadURL, blob.MIMEType, blob.Data)
	if err != nil {
		return err
	}
	videoURL, err := s.store.ResolveURL(ctx, storageID)
	if err != nil {
		return err
	}

	if err := s.repo.MarkReady(ctx, reel.ID, storageID, videoURL, reel.Duration); err != nil {
		return errors.Wrap(errors.ErrUploadFailed, "promote reel to ready")
	}
	reel.StorageID = storageID
	reel.VideoURL = videoURL
	reel.Status = domain.ReelStatusReady
	return nil
}

// fail moves the session and, best effort, the persisted row into the
// failed state. Runs on a fresh context: the session's own context may
// already be the reason for the failure.
func (se *session) fail(reelID string) {
	se.status = StatusFailed

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := se.svc.repo.MarkFailed(ctx, reelID); err != nil {
		se.svc.logger.Warn("Failed to mark reel as failed", "reel_id", reelID, "error", err)
	}
}
