package tts

import (
	"context"

	"github.com/vidsnap/vidsnap/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=tts.go -destination=mocks/mock.go -package=mocks

// Synthesizer obtains a narration audio track for the given text.
//
// Unavailability is not an error: network failures, non-success statuses
// and undecodable payloads all yield (nil, nil) so the pipeline degrades
// to a silent video without special-casing. A non-nil error signals
// caller misuse only (empty text).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*domain.NarrationTrack, error)
}
