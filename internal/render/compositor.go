package render

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	titleFontSize   = 52
	captionFontSize = 36
	captionLineStep = 44

	titleBaseline   = 320 // px above the bottom edge
	captionBaseline = 220
	dotBaseline     = 100
	dotSpacing      = 24
)

// Compositor renders fully composed frames for a plan. It owns a single
// raster surface that is redrawn in place for every frame, so no stale
// pixels survive between frames and no per-frame allocation happens.
type Compositor struct {
	plan   *Plan
	assets []domain.ImageAsset
	frame  *image.RGBA

	titleFace   font.Face
	captionFace font.Face
}

func NewCompositor(plan *Plan, assets []domain.ImageAsset) (*Compositor, error) {
	if len(assets) != plan.SlideCount {
		return nil, errors.Wrap(errors.ErrInvalidInput, "asset count does not match plan")
	}

	titleFace, err := loadFace(gobold.TTF, titleFontSize)
	if err != nil {
		return nil, err
	}
	captionFace, err := loadFace(goregular.TTF, captionFontSize)
	if err != nil {
		return nil, err
	}

	return &Compositor{
		plan:        plan,
		assets:      assets,
		frame:       image.NewRGBA(image.Rect(0, 0, plan.Width, plan.Height)),
		titleFace:   titleFace,
		captionFace: captionFace,
	}, nil
}

func loadFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, errors.Wrap(err, "parse font")
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build font face")
	}
	return face, nil
}

// Draw composes frame f onto the shared surface and returns it. The caller
// must capture the surface before requesting the next frame.
func (c *Compositor) Draw(f int) *image.RGBA {
	st := c.plan.StateAt(f)
	w := float64(c.plan.Width)
	h := float64(c.plan.Height)

	dc := gg.NewContextForRGBA(c.frame)

	// Background fill, so nothing bleeds through from the previous frame.
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	c.drawSlideImage(dc, st, w, h)
	c.drawGradient(dc, w, h)
	c.drawTitle(dc, w, h)
	c.drawCaption(dc, st, w, h)
	c.drawDots(dc, st, w, h)

	if st.FadeAlpha > 0 {
		dc.SetRGBA(0, 0, 0, st.FadeAlpha)
		dc.DrawRectangle(0, 0, w, h)
		dc.Fill()
	}

	return c.frame
}

// drawSlideImage places the slide's bitmap with the Ken Burns pan/zoom,
// scaled to cover the frame so no letterboxing can appear.
func (c *Compositor) drawSlideImage(dc *gg.Context, st FrameState, w, h float64) {
	bmp := c.assets[st.SlideIndex].Bitmap
	b := bmp.Bounds()
	imgW := float64(b.Dx())
	imgH := float64(b.Dy())
	if imgW == 0 || imgH == 0 {
		return
	}

	imgAspect := imgW / imgH
	canvasAspect := w / h

	var drawW, drawH float64
	if imgAspect > canvasAspect {
		drawH = h * st.Scale
		drawW = drawH * imgAspect
	} else {
		drawW = w * st.Scale
		drawH = drawW / imgAspect
	}

	dx := (w-drawW)/2 + st.OffsetX
	dy := (h-drawH)/2 + st.OffsetY

	dc.Push()
	dc.Translate(dx, dy)
	dc.Scale(drawW/imgW, drawH/imgH)
	dc.DrawImage(bmp, 0, 0)
	dc.Pop()
}

// drawGradient lays the fixed bottom readability gradient over the image,
// independent of image content.
func (c *Compositor) drawGradient(dc *gg.Context, w, h float64) {
	grad := gg.NewLinearGradient(0, h*0.55, 0, h)
	grad.AddColorStop(0, color.RGBA{0, 0, 0, 0})
	grad.AddColorStop(0.4, color.RGBA{0, 0, 0, 153})
	grad.AddColorStop(1, color.RGBA{0, 0, 0, 217})
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()
}

func (c *Compositor) drawTitle(dc *gg.Context, w, h float64) {
	dc.SetFontFace(c.titleFace)
	x := w / 2
	y := h - titleBaseline
	dc.SetRGBA(0, 0, 0, 0.7)
	dc.DrawStringAnchored(c.plan.Title, x+2, y+2, 0.5, 0.5)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(c.plan.Title, x, y, 0.5, 0.5)
}

func (c *Compositor) drawCaption(dc *gg.Context, st FrameState, w, h float64) {
	if len(st.VisibleWords) == 0 {
		return
	}
	dc.SetFontFace(c.captionFace)

	maxWidth := w - 100
	lines := WrapWords(st.VisibleWords, maxWidth, func(s string) float64 {
		lw, _ := dc.MeasureString(s)
		return lw
	})

	y := h - captionBaseline
	x := w / 2
	for _, line := range lines {
		dc.SetRGBA(0, 0, 0, 0.7)
		dc.DrawStringAnchored(line, x+2, y+2, 0.5, 0.5)
		dc.SetRGBA(1, 1, 1, 0.95)
		dc.DrawStringAnchored(line, x, y, 0.5, 0.5)
		y += captionLineStep
	}
}

// drawDots renders the slide-position indicator, current slide larger and
// brighter.
func (c *Compositor) drawDots(dc *gg.Context, st FrameState, w, h float64) {
	y := h - dotBaseline
	n := c.plan.SlideCount
	for i := 0; i < n; i++ {
		x := w/2 + (float64(i)-float64(n-1)/2)*dotSpacing
		r := 5.0
		if i == st.SlideIndex {
			r = 7.0
			dc.SetRGB(1, 1, 1)
		} else {
			dc.SetRGBA(1, 1, 1, 0.4)
		}
		dc.DrawCircle(x, y, r)
		dc.Fill()
	}
}
