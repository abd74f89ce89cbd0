package domain

import (
	"image"
	"time"
)

// ImageAsset is one decoded slide image. Insertion order in the draft is
// slide order.
type ImageAsset struct {
	Bitmap    image.Image
	Width     int
	Height    int
	ByteSize  int
	Thumbnail string // data-URL JPEG preview, may be empty if shrinking failed
}

// ReelDraft is the ephemeral state of one creation session. It exists from
// the moment the user adds an image until the submit succeeds or fails;
// nothing of it survives a failed render.
type ReelDraft struct {
	Title     string
	Narration string
	Assets    []ImageAsset
}

// Release drops the decoded bitmaps so the backing memory can be reclaimed
// as soon as the session ends.
func (d *ReelDraft) Release() {
	for i := range d.Assets {
		d.Assets[i].Bitmap = nil
	}
	d.Assets = nil
}

// NarrationTrack is a decoded, seekable PCM audio buffer. Present only when
// synthesis succeeded; a nil track means a silent reel.
type NarrationTrack struct {
	Samples    []int16 // interleaved, Channels-wide
	SampleRate int
	Channels   int
}

// Duration of the decoded audio.
func (t *NarrationTrack) Duration() time.Duration {
	if t == nil || t.SampleRate == 0 || t.Channels == 0 {
		return 0
	}
	frames := len(t.Samples) / t.Channels
	return time.Duration(frames) * time.Second / time.Duration(t.SampleRate)
}

// EncodedBlob is the finalized media artifact produced by the recorder.
type EncodedBlob struct {
	Data     []byte
	MIMEType string // container base type, codec parameters already stripped
}

func (b *EncodedBlob) ByteSize() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}
