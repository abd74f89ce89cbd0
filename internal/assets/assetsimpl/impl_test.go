package assetsimpl

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
)

func newLoader() *LoaderImpl {
	return New(Opts{Logger: logger.New(logger.Opts{})})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadPreservesSourceOrder(t *testing.T) {
	// Distinct widths identify each source after the concurrent decode.
	widths := []int{10, 20, 30, 40, 50}
	sources := make([][]byte, len(widths))
	for i, w := range widths {
		sources[i] = pngBytes(t, w, 16)
	}

	loaded, err := newLoader().Load(context.Background(), sources)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(widths) {
		t.Fatalf("loaded %d assets, want %d", len(loaded), len(widths))
	}
	for i, a := range loaded {
		if a.Width != widths[i] {
			t.Errorf("asset %d width = %d, want %d", i, a.Width, widths[i])
		}
		if a.Height != 16 {
			t.Errorf("asset %d height = %d, want 16", i, a.Height)
		}
		if a.ByteSize != len(sources[i]) {
			t.Errorf("asset %d byte size = %d, want %d", i, a.ByteSize, len(sources[i]))
		}
		if !strings.HasPrefix(a.Thumbnail, "data:image/jpeg;base64,") {
			t.Errorf("asset %d thumbnail %q is not a jpeg data URL", i, a.Thumbnail)
		}
	}
}

func TestLoadIsAtomicOnDecodeFailure(t *testing.T) {
	sources := [][]byte{
		pngBytes(t, 10, 10),
		[]byte("definitely not an image"),
		pngBytes(t, 10, 10),
	}

	loaded, err := newLoader().Load(context.Background(), sources)
	if !errors.Is(err, errors.ErrDecodeFailed) {
		t.Fatalf("error = %v, want ErrDecodeFailed", err)
	}
	if loaded != nil {
		t.Errorf("got partial result %v, want nil", loaded)
	}
}

func TestLoadRejectsEmptyInput(t *testing.T) {
	_, err := newLoader().Load(context.Background(), nil)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func decodeDataURL(t *testing.T, s string) []byte {
	t.Helper()
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(s, prefix) {
		t.Fatalf("not a jpeg data URL: %q", s[:min(len(s), 40)])
	}
	raw, err := base64.StdEncoding.DecodeString(s[len(prefix):])
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	return raw
}

func TestThumbnailFitsBounds(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"tall portrait", 1080, 1920},
		{"wide landscape", 1920, 400},
		{"already small", 120, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := newLoader().Load(context.Background(), [][]byte{pngBytes(t, tt.w, tt.h)})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			// Decode the data URL back and check the shrunken bounds.
			thumb := loaded[0].Thumbnail
			raw := decodeDataURL(t, thumb)
			img, _, err := image.Decode(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("decode thumbnail: %v", err)
			}
			b := img.Bounds()
			if b.Dx() > 200 || b.Dy() > 356 {
				t.Errorf("thumbnail is %dx%d, exceeds 200x356", b.Dx(), b.Dy())
			}
			if tt.w <= 200 && tt.h <= 356 && (b.Dx() != tt.w || b.Dy() != tt.h) {
				t.Errorf("small image was resized to %dx%d", b.Dx(), b.Dy())
			}
		})
	}
}
