package render

import "math"

// Ken Burns and transition constants. The pan direction alternates by
// slide parity; the fade covers 0.3s at each slide boundary.
const (
	MaxZoomGrowth   = 0.08
	PanXPixels      = 30.0
	PanYPixels      = 20.0
	FadeSeconds     = 0.3
	MaxCaptionLines = 3
)

// FrameState is the full animation state of one output frame. It is a pure
// function of the plan and the frame index, which is what makes the
// compositor deterministic and testable without rasterizing anything.
type FrameState struct {
	SlideIndex   int
	FrameInSlide int
	Progress     float64 // in [0,1)

	Scale   float64
	OffsetX float64
	OffsetY float64

	VisibleWords []string
	FadeAlpha    float64 // 0 = no overlay, 1 = fully black
}

// StateAt computes the animation state for frame f in [0, TotalFrames).
func (p *Plan) StateAt(f int) FrameState {
	perSlide := p.FramesPerSlide()

	slide := f / perSlide
	// The last frame(s) clamp to the final slide rather than running off
	// the end of the asset list.
	if slide > p.SlideCount-1 {
		slide = p.SlideCount - 1
	}
	frameInSlide := f % perSlide
	progress := float64(frameInSlide) / float64(perSlide)

	dir := 1.0
	if slide%2 != 0 {
		dir = -1.0
	}

	s := FrameState{
		SlideIndex:   slide,
		FrameInSlide: frameInSlide,
		Progress:     progress,
		Scale:        1 + progress*MaxZoomGrowth,
		OffsetX:      progress * PanXPixels * dir,
		OffsetY:      progress * PanYPixels,
		VisibleWords: p.visibleWords(slide, progress),
		FadeAlpha:    p.fadeAlpha(frameInSlide),
	}
	return s
}

// visibleWords returns the slice of narration words revealed so far within
// the slide. The count grows linearly with progress and never exceeds the
// slide's word allotment.
func (p *Plan) visibleWords(slide int, progress float64) []string {
	start := slide * p.WordsPerSlide
	if start >= len(p.Words) {
		return nil
	}
	reveal := int(math.Floor(progress*float64(p.WordsPerSlide))) + 1
	if reveal > p.WordsPerSlide {
		reveal = p.WordsPerSlide
	}
	end := start + reveal
	if end > len(p.Words) {
		end = len(p.Words)
	}
	return p.Words[start:end]
}

// fadeAlpha is the opacity of the black transition overlay at the slide's
// entry and exit edges.
func (p *Plan) fadeAlpha(frameInSlide int) float64 {
	fadeFrames := FadeSeconds * float64(p.FPS)
	fis := float64(frameInSlide)

	if fis < fadeFrames {
		return 1 - fis/fadeFrames
	}
	if fis > float64(p.FramesPerSlide())-fadeFrames {
		remaining := float64(p.FramesPerSlide()) - fis
		return 1 - remaining/fadeFrames
	}
	return 0
}
