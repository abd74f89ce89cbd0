package render

import (
	"strings"

	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/pkg/errors"
)

// Plan is the immutable timing contract of one render, computed once from
// the draft before the first frame is drawn.
type Plan struct {
	Width           int
	Height          int
	FPS             int
	SecondsPerSlide int
	SlideCount      int

	Title         string
	Words         []string
	WordsPerSlide int
}

type PlanOpts struct {
	Width           int
	Height          int
	FPS             int
	SecondsPerSlide int
	MaxImages       int
}

// NewPlan validates the draft and derives the timing plan. The pipeline
// must refuse to start when this returns an error: a render with zero
// slides or an empty title/narration never produces frames.
func NewPlan(draft *domain.ReelDraft, opts PlanOpts) (*Plan, error) {
	if len(draft.Assets) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "at least one image is required")
	}
	if opts.MaxImages > 0 && len(draft.Assets) > opts.MaxImages {
		return nil, errors.Wrap(errors.ErrInvalidInput, "too many images")
	}
	if strings.TrimSpace(draft.Title) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "title is required")
	}
	words := strings.Fields(draft.Narration)
	if len(words) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "narration text is required")
	}

	slides := len(draft.Assets)
	wordsPerSlide := (len(words) + slides - 1) / slides

	return &Plan{
		Width:           opts.Width,
		Height:          opts.Height,
		FPS:             opts.FPS,
		SecondsPerSlide: opts.SecondsPerSlide,
		SlideCount:      slides,
		Title:           draft.Title,
		Words:           words,
		WordsPerSlide:   wordsPerSlide,
	}, nil
}

// FramesPerSlide is the number of frames one slide occupies.
func (p *Plan) FramesPerSlide() int {
	return p.SecondsPerSlide * p.FPS
}

// TotalFrames is slideCount * secondsPerSlide * fps, always > 0 for a
// valid plan.
func (p *Plan) TotalFrames() int {
	return p.SlideCount * p.FramesPerSlide()
}

// DurationSeconds is the length of the finished video.
func (p *Plan) DurationSeconds() int {
	return p.SlideCount * p.SecondsPerSlide
}
