package ttsimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/tts"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/fx"
)

// go-mp3 always emits 16-bit stereo PCM.
const decodedChannels = 2

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type SynthImpl struct {
	url    string
	client *http.Client
	logger logger.Logger
}

func New(opts Opts) *SynthImpl {
	return &SynthImpl{
		url: opts.Config.TTS.URL,
		client: &http.Client{
			Timeout: time.Duration(opts.Config.TTS.TimeoutSeconds) * time.Second,
		},
		logger: opts.Logger.WithComponent("TTS"),
	}
}

var _ tts.Synthesizer = (*SynthImpl)(nil)

type request struct {
	Text string `json:"text"`
}

// Synthesize POSTs the narration text to the external endpoint and decodes
// the returned MP3 bytes into a PCM track. Every external failure degrades
// to (nil, nil).
func (s *SynthImpl) Synthesize(ctx context.Context, text string) (*domain.NarrationTrack, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "narration text is empty")
	}
	if s.url == "" {
		s.logger.Warn("TTS endpoint not configured, producing silent reel")
		return nil, nil
	}

	track, err := s.fetch(ctx, text)
	if err != nil {
		s.logger.Warn("Narration unavailable, producing silent reel", "error", err)
		return nil, nil
	}

	s.logger.Info("Narration synthesized",
		"sample_rate", track.SampleRate,
		"duration", track.Duration().Round(time.Millisecond).String(),
	)
	return track, nil
}

func (s *SynthImpl) fetch(ctx context.Context, text string) (*domain.NarrationTrack, error) {
	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSynthesisUnavailable, fmt.Sprintf("request narration: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, errors.Wrap(errors.ErrSynthesisUnavailable, fmt.Sprintf("endpoint returned status %d", resp.StatusCode))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSynthesisUnavailable, fmt.Sprintf("read narration audio: %v", err))
	}

	track, err := decode(audio)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSynthesisUnavailable, fmt.Sprintf("decode narration audio: %v", err))
	}
	return track, nil
}

// decode turns encoded MP3 bytes into an interleaved 16-bit PCM buffer.
func decode(data []byte) (*domain.NarrationTrack, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, errors.New("decoded audio is empty")
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}

	return &domain.NarrationTrack{
		Samples:    samples,
		SampleRate: dec.SampleRate(),
		Channels:   decodedChannels,
	}, nil
}
