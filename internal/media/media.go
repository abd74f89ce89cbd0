package media

import (
	"context"
	"image"
	"strings"

	"github.com/vidsnap/vidsnap/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=media.go -destination=mocks/mock.go -package=mocks

// Format is one candidate container/codec combination offered during
// capability negotiation.
type Format struct {
	MIME       string // container type, may carry a codecs parameter
	VideoCodec string
	AudioCodec string // empty for video-only
}

// CleanMIME strips codec parameters from the MIME value; the storage layer
// only understands the base container type.
func (f Format) CleanMIME() string {
	base, _, _ := strings.Cut(f.MIME, ";")
	return strings.TrimSpace(base)
}

// RecordingSpec fixes the parameters of one capture session.
type RecordingSpec struct {
	Format      Format
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
	// Narration is mixed into the output with t=0 aligned to the first
	// captured frame. Nil produces a silent video.
	Narration *domain.NarrationTrack
}

// Recorder converts a sequence of drawn frames plus optional narration
// into one finalized media blob.
//
// Capture is pull-based: the caller draws a frame, then calls CaptureFrame
// exactly once for it, in strictly increasing order. Stop is the awaitable
// finalize signal; the encoded blob does not exist before Stop returns.
type Recorder interface {
	Supports(f Format) bool
	Start(spec RecordingSpec) error
	CaptureFrame(frame *image.RGBA) error
	Stop(ctx context.Context) (*domain.EncodedBlob, error)
	// Abort discards the session and any accumulated data. Safe to call in
	// any state.
	Abort()
}

// SelectFormat returns the first preferred format the recorder supports.
// A false result means the caller should start with the recorder's default
// (zero) format, mirroring how browser recorders fall back to an
// unspecified container.
func SelectFormat(r Recorder, prefs []Format) (Format, bool) {
	for _, f := range prefs {
		if r.Supports(f) {
			return f, true
		}
	}
	return Format{}, false
}

// DefaultPreferences is the ordered negotiation list: modern combinations
// first, then the natively supported AVI variants.
func DefaultPreferences() []Format {
	return []Format{
		{MIME: "video/webm;codecs=vp9,opus", VideoCodec: "vp9", AudioCodec: "opus"},
		{MIME: "video/webm;codecs=vp8,opus", VideoCodec: "vp8", AudioCodec: "opus"},
		{MIME: "video/webm;codecs=vp9", VideoCodec: "vp9"},
		{MIME: "video/webm;codecs=vp8", VideoCodec: "vp8"},
		{MIME: "video/avi;codecs=mjpeg,pcm", VideoCodec: "mjpeg", AudioCodec: "pcm"},
		{MIME: "video/avi;codecs=mjpeg", VideoCodec: "mjpeg"},
		{MIME: "video/mp4"},
	}
}
