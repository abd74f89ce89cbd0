package avirec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/vidsnap/vidsnap/pkg/errors"
)

// binaryWriter accumulates the first write error so the RIFF assembly does
// not need an error check after every field.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) fourCC(s string) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write([]byte(s))
}

func (bw *binaryWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) bytes(data []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(data)
}

func pad(n int) uint32 {
	if n%2 != 0 {
		n++
	}
	return uint32(n)
}

const (
	avihSize = 56
	strhSize = 56
	strfVid  = 40 // BITMAPINFOHEADER
	strfAud  = 16 // WAVEFORMATEX without cbSize (plain PCM)

	strlVideoList = 4 + (8 + strhSize) + (8 + strfVid) // "strl" + strh + strf
	strlAudioList = 4 + (8 + strhSize) + (8 + strfAud)

	aviHasIndex = 0x10
	idxKeyframe = 0x10
)

// assemble builds the complete RIFF/AVI byte stream from the accumulated
// chunks. Called exactly once, under the recorder lock, at Stop time.
func (r *Recorder) assemble() ([]byte, error) {
	withAudio := r.hasAudio()

	streams := uint32(1)
	hdrlContent := uint32(4 + (8 + avihSize) + (8 + strlVideoList))
	if withAudio {
		streams = 2
		hdrlContent += 8 + strlAudioList
	}

	var moviContent uint32 = 4 // "movi"
	var numChunks uint32
	var audioBytes int
	for i, f := range r.frames {
		moviContent += 8 + pad(len(f))
		numChunks++
		if withAudio && len(r.audio[i]) > 0 {
			moviContent += 8 + pad(len(r.audio[i]))
			numChunks++
			audioBytes += len(r.audio[i])
		}
	}
	idx1Content := numChunks * 16

	fileSize := 4 + (8 + hdrlContent) + (8 + moviContent) + (8 + idx1Content)

	out := new(bytes.Buffer)
	out.Grow(int(fileSize) + 8)
	bw := &binaryWriter{w: out}

	bw.fourCC("RIFF")
	bw.u32(fileSize)
	bw.fourCC("AVI ")

	r.writeHeaders(bw, streams, hdrlContent, withAudio, audioBytes)
	r.writeMovi(bw, moviContent, withAudio)
	r.writeIndex(bw, idx1Content, withAudio)

	if bw.err != nil {
		return nil, errors.Wrap(errors.ErrEncoderFailed, "assemble container")
	}
	return out.Bytes(), nil
}

func (r *Recorder) writeHeaders(bw *binaryWriter, streams, hdrlContent uint32, withAudio bool, audioBytes int) {
	w := uint32(r.spec.Width)
	h := uint32(r.spec.Height)
	fps := uint32(r.spec.FPS)
	frames := uint32(len(r.frames))

	bytesPerSec := uint32(r.maxFrame) * fps
	if withAudio {
		bytesPerSec += uint32(r.spec.Narration.SampleRate * r.spec.Narration.Channels * 2)
	}

	bw.fourCC("LIST")
	bw.u32(hdrlContent)
	bw.fourCC("hdrl")

	bw.fourCC("avih")
	bw.u32(avihSize)
	bw.u32(1_000_000 / fps) // microseconds per frame
	bw.u32(bytesPerSec)
	bw.u32(0) // padding granularity
	bw.u32(aviHasIndex)
	bw.u32(frames)
	bw.u32(0) // initial frames
	bw.u32(streams)
	bw.u32(uint32(r.maxFrame))
	bw.u32(w)
	bw.u32(h)
	bw.u32(0) // reserved x4
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)

	// Video stream.
	bw.fourCC("LIST")
	bw.u32(strlVideoList)
	bw.fourCC("strl")

	bw.fourCC("strh")
	bw.u32(strhSize)
	bw.fourCC("vids")
	bw.fourCC("MJPG")
	bw.u32(0) // flags
	bw.u16(0) // priority
	bw.u16(0) // language
	bw.u32(0) // initial frames
	bw.u32(1) // scale
	bw.u32(fps)
	bw.u32(0) // start
	bw.u32(frames)
	bw.u32(uint32(r.maxFrame))
	bw.u32(0) // quality
	bw.u32(0) // sample size
	bw.u16(0) // rect
	bw.u16(0)
	bw.u16(uint16(w))
	bw.u16(uint16(h))

	bw.fourCC("strf")
	bw.u32(strfVid)
	bw.u32(strfVid) // biSize
	bw.u32(w)
	bw.u32(h)
	bw.u16(1)  // planes
	bw.u16(24) // bpp
	bw.fourCC("MJPG")
	bw.u32(w * h * 3)
	bw.u32(0) // x pels/m
	bw.u32(0) // y pels/m
	bw.u32(0) // clr used
	bw.u32(0) // clr important

	if !withAudio {
		return
	}

	track := r.spec.Narration
	blockAlign := uint32(track.Channels * 2)
	sampleFrames := uint32(audioBytes) / blockAlign

	// Audio stream.
	bw.fourCC("LIST")
	bw.u32(strlAudioList)
	bw.fourCC("strl")

	bw.fourCC("strh")
	bw.u32(strhSize)
	bw.fourCC("auds")
	bw.u32(0) // handler
	bw.u32(0) // flags
	bw.u16(0) // priority
	bw.u16(0) // language
	bw.u32(0) // initial frames
	bw.u32(1) // scale
	bw.u32(uint32(track.SampleRate))
	bw.u32(0) // start
	bw.u32(sampleFrames)
	bw.u32(uint32(r.maxAudio))
	bw.u32(0) // quality
	bw.u32(blockAlign)
	bw.u16(0) // rect
	bw.u16(0)
	bw.u16(0)
	bw.u16(0)

	bw.fourCC("strf")
	bw.u32(strfAud)
	bw.u16(1) // PCM
	bw.u16(uint16(track.Channels))
	bw.u32(uint32(track.SampleRate))
	bw.u32(uint32(track.SampleRate) * blockAlign)
	bw.u16(uint16(blockAlign))
	bw.u16(16) // bits per sample
}

func (r *Recorder) writeMovi(bw *binaryWriter, moviContent uint32, withAudio bool) {
	bw.fourCC("LIST")
	bw.u32(moviContent)
	bw.fourCC("movi")

	padByte := []byte{0}
	writeChunk := func(id string, data []byte) {
		bw.fourCC(id)
		bw.u32(uint32(len(data)))
		bw.bytes(data)
		if len(data)%2 != 0 {
			bw.bytes(padByte)
		}
	}

	for i, f := range r.frames {
		writeChunk("00dc", f)
		if withAudio && len(r.audio[i]) > 0 {
			writeChunk("01wb", r.audio[i])
		}
	}
}

func (r *Recorder) writeIndex(bw *binaryWriter, idx1Content uint32, withAudio bool) {
	bw.fourCC("idx1")
	bw.u32(idx1Content)

	offset := uint32(4) // from the start of the movi list
	entry := func(id string, flags uint32, size int) {
		bw.fourCC(id)
		bw.u32(flags)
		bw.u32(offset)
		bw.u32(uint32(size))
		offset += 8 + pad(size)
	}

	for i, f := range r.frames {
		entry("00dc", idxKeyframe, len(f))
		if withAudio && len(r.audio[i]) > 0 {
			entry("01wb", 0, len(r.audio[i]))
		}
	}
}
