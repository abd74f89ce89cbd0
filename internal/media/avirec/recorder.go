// Package avirec is the native capture backend: an in-process recorder
// producing an AVI container with an MJPEG video stream and an optional
// interleaved PCM narration stream.
package avirec

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"

	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/media"
	"github.com/vidsnap/vidsnap/pkg/errors"
)

const defaultJPEGQuality = 85

type state int

const (
	stateIdle state = iota
	stateRecording
	stateStopped
)

// Recorder accumulates one encoded chunk per captured frame and assembles
// the container when Stop is called. Audio is sliced per frame at capture
// time, so a frame and its narration samples always share a timeline
// position regardless of how fast the caller drives the loop.
type Recorder struct {
	mu    sync.Mutex
	state state
	spec  media.RecordingSpec

	frames   [][]byte // JPEG per captured frame
	audio    [][]byte // PCM bytes per captured frame, nil entry when exhausted
	maxFrame int
	maxAudio int
}

func New() *Recorder {
	return &Recorder{}
}

var _ media.Recorder = (*Recorder)(nil)

// Supports reports whether the format can be produced natively. The zero
// Format acts as "recorder default" and is always supported.
func (r *Recorder) Supports(f media.Format) bool {
	if f == (media.Format{}) {
		return true
	}
	if f.CleanMIME() != "video/avi" {
		return false
	}
	if f.VideoCodec != "mjpeg" {
		return false
	}
	return f.AudioCodec == "" || f.AudioCodec == "pcm"
}

func (r *Recorder) Start(spec media.RecordingSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateRecording {
		return errors.Wrap(errors.ErrEncoderFailed, "recorder already started")
	}
	if spec.Width <= 0 || spec.Height <= 0 || spec.FPS <= 0 {
		return errors.Wrap(errors.ErrEncoderFailed, "invalid recording dimensions")
	}
	if !r.Supports(spec.Format) {
		return errors.Wrap(errors.ErrEncoderFailed, "unsupported format "+spec.Format.MIME)
	}
	if spec.JPEGQuality <= 0 {
		spec.JPEGQuality = defaultJPEGQuality
	}

	r.spec = spec
	r.frames = nil
	r.audio = nil
	r.maxFrame = 0
	r.maxAudio = 0
	r.state = stateRecording
	return nil
}

func (r *Recorder) CaptureFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRecording {
		return errors.Wrap(errors.ErrEncoderFailed, "capture outside recording state")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: r.spec.JPEGQuality}); err != nil {
		return errors.Wrap(errors.ErrEncoderFailed, "encode frame")
	}
	n := len(r.frames)
	r.frames = append(r.frames, buf.Bytes())
	if buf.Len() > r.maxFrame {
		r.maxFrame = buf.Len()
	}

	var slice []byte
	if r.hasAudio() {
		slice = r.audioSliceFor(n)
	}
	r.audio = append(r.audio, slice)
	if len(slice) > r.maxAudio {
		r.maxAudio = len(slice)
	}
	return nil
}

// audioSliceFor returns the little-endian PCM bytes belonging to frame n.
// Sample boundaries are computed from absolute frame indices, so rounding
// never accumulates drift across the render.
func (r *Recorder) audioSliceFor(n int) []byte {
	track := r.spec.Narration
	if track == nil || track.SampleRate <= 0 || track.Channels <= 0 {
		return nil
	}
	start := int(int64(n) * int64(track.SampleRate) / int64(r.spec.FPS))
	end := int(int64(n+1) * int64(track.SampleRate) / int64(r.spec.FPS))

	totalFrames := len(track.Samples) / track.Channels
	if start >= totalFrames {
		return nil
	}
	if end > totalFrames {
		end = totalFrames
	}

	samples := track.Samples[start*track.Channels : end*track.Channels]
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// Stop finalizes the container from the accumulated chunks. Calling Stop
// before any frame was captured yields a header-only blob that fails the
// pipeline's minimum-size validation, which is the intended signal for a
// malfunctioning capture environment.
func (r *Recorder) Stop(ctx context.Context) (*domain.EncodedBlob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRecording {
		return nil, errors.Wrap(errors.ErrEncoderFailed, "stop outside recording state")
	}
	if err := ctx.Err(); err != nil {
		r.reset()
		return nil, err
	}

	data, err := r.assemble()
	r.reset()
	if err != nil {
		return nil, err
	}

	mime := r.spec.Format.CleanMIME()
	if mime == "" {
		mime = "video/avi"
	}
	return &domain.EncodedBlob{Data: data, MIMEType: mime}, nil
}

func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Recorder) reset() {
	r.state = stateStopped
	r.frames = nil
	r.audio = nil
	r.maxFrame = 0
	r.maxAudio = 0
}

func (r *Recorder) hasAudio() bool {
	if r.spec.Format.AudioCodec != "pcm" && r.spec.Format != (media.Format{}) {
		return false
	}
	return r.spec.Narration != nil && len(r.spec.Narration.Samples) > 0
}
