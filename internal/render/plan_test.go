package render

import (
	"strings"
	"testing"

	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/pkg/errors"
)

func testOpts() PlanOpts {
	return PlanOpts{
		Width:           1080,
		Height:          1920,
		FPS:             30,
		SecondsPerSlide: 3,
		MaxImages:       50,
	}
}

func draftWith(images int, title, narration string) *domain.ReelDraft {
	return &domain.ReelDraft{
		Title:     title,
		Narration: narration,
		Assets:    make([]domain.ImageAsset, images),
	}
}

func TestNewPlanTiming(t *testing.T) {
	tests := []struct {
		name         string
		images       int
		words        int
		wantPerSlide int
		wantFrames   int
		wantDuration int
	}{
		{"three slides twelve words", 3, 12, 4, 270, 9},
		{"four slides nine words", 4, 9, 3, 360, 12},
		{"single slide", 1, 5, 5, 90, 3},
		{"more slides than words", 7, 3, 1, 630, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			narration := strings.TrimSpace(strings.Repeat("word ", tt.words))
			plan, err := NewPlan(draftWith(tt.images, "Title", narration), testOpts())
			if err != nil {
				t.Fatalf("NewPlan: %v", err)
			}
			if plan.WordsPerSlide != tt.wantPerSlide {
				t.Errorf("WordsPerSlide = %d, want %d", plan.WordsPerSlide, tt.wantPerSlide)
			}
			if plan.TotalFrames() != tt.wantFrames {
				t.Errorf("TotalFrames = %d, want %d", plan.TotalFrames(), tt.wantFrames)
			}
			if plan.DurationSeconds() != tt.wantDuration {
				t.Errorf("DurationSeconds = %d, want %d", plan.DurationSeconds(), tt.wantDuration)
			}
		})
	}
}

func TestNewPlanRejectsInvalidDrafts(t *testing.T) {
	tests := []struct {
		name  string
		draft *domain.ReelDraft
	}{
		{"no images", draftWith(0, "Title", "some words")},
		{"too many images", draftWith(51, "Title", "some words")},
		{"blank title", draftWith(2, "   ", "some words")},
		{"blank narration", draftWith(2, "Title", "  \n\t ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.draft, testOpts())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestPlanWordAllotment(t *testing.T) {
	// Twelve words over three slides land four per slide, in input order.
	narration := "a b c d e f g h i j k l"
	plan, err := NewPlan(draftWith(3, "Title", narration), testOpts())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	perSlide := plan.FramesPerSlide()
	for slide := 0; slide < plan.SlideCount; slide++ {
		// Last frame of the slide shows the full allotment.
		state := plan.StateAt(slide*perSlide + perSlide - 1)
		want := plan.Words[slide*4 : slide*4+4]
		if len(state.VisibleWords) != len(want) {
			t.Fatalf("slide %d: %d visible words, want %d", slide, len(state.VisibleWords), len(want))
		}
		for i := range want {
			if state.VisibleWords[i] != want[i] {
				t.Errorf("slide %d word %d = %q, want %q", slide, i, state.VisibleWords[i], want[i])
			}
		}
	}
}
