package assetsimpl

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/jpeg"
	"sync"

	_ "image/gif"
	_ "image/png"

	"github.com/panjf2000/ants/v2"
	"github.com/vidsnap/vidsnap/internal/assets"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/fx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	thumbMaxW    = 200
	thumbMaxH    = 356
	thumbQuality = 60

	poolSize = 4
)

type Opts struct {
	fx.In

	Logger logger.Logger
}

type LoaderImpl struct {
	logger logger.Logger
}

func New(opts Opts) *LoaderImpl {
	return &LoaderImpl{
		logger: opts.Logger.WithComponent("AssetLoader"),
	}
}

var _ assets.Loader = (*LoaderImpl)(nil)

// Load decodes every source concurrently, then shrinks thumbnails on a
// worker pool. Decode failures abort the whole load; thumbnail failures
// only leave that asset's preview empty.
func (l *LoaderImpl) Load(ctx context.Context, sources [][]byte) ([]domain.ImageAsset, error) {
	if len(sources) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no image sources")
	}

	out := make([]domain.ImageAsset, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, format, err := image.Decode(bytes.NewReader(src))
			if err != nil {
				return errors.Wrap(errors.ErrDecodeFailed, "decode image")
			}
			b := img.Bounds()
			out[i] = domain.ImageAsset{
				Bitmap:   img,
				Width:    b.Dx(),
				Height:   b.Dy(),
				ByteSize: len(src),
			}
			l.logger.Debug("Decoded image", "index", i, "format", format, "width", b.Dx(), "height", b.Dy())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.shrinkThumbnails(out)
	return out, nil
}

func (l *LoaderImpl) shrinkThumbnails(assets []domain.ImageAsset) {
	var wg sync.WaitGroup
	pool, _ := ants.NewPool(poolSize, ants.WithPreAlloc(true))
	defer pool.Release()

	for i := range assets {
		wg.Add(1)
		idx := i

		err := pool.Submit(func() {
			defer wg.Done()
			thumb, err := thumbnailDataURL(assets[idx].Bitmap)
			if err != nil {
				l.logger.Warn("Failed to shrink thumbnail", "index", idx, "error", err)
				return
			}
			assets[idx].Thumbnail = thumb
		})
		if err != nil {
			wg.Done()
			l.logger.Error("Failed to submit thumbnail job", "index", idx, "error", err)
		}
	}

	wg.Wait()
}

// thumbnailDataURL shrinks the bitmap to fit inside thumbMaxW x thumbMaxH
// preserving aspect ratio and returns a JPEG data URL.
func thumbnailDataURL(img image.Image) (string, error) {
	b := img.Bounds()
	scale := minf(float64(thumbMaxW)/float64(b.Dx()), float64(thumbMaxH)/float64(b.Dy()))
	if scale > 1 {
		scale = 1
	}
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
