package ttsimpl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
)

func newSynth(url string) *SynthImpl {
	cfg := &config.Config{}
	cfg.TTS.URL = url
	cfg.TTS.TimeoutSeconds = 5
	return New(Opts{Config: cfg, Logger: logger.New(logger.Opts{})})
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s := newSynth("http://unused.invalid")
	_, err := s.Synthesize(context.Background(), "   ")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestSynthesizeDegradesToSilent(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "undecodable payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("this is not mp3 audio"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			track, err := newSynth(srv.URL).Synthesize(context.Background(), "hello world")
			if err != nil {
				t.Fatalf("Synthesize: %v, want nil error on degraded path", err)
			}
			if track != nil {
				t.Errorf("track = %+v, want nil", track)
			}
		})
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newSynth(srv.URL).fetch(context.Background(), "hello")
	if !errors.Is(err, errors.ErrSynthesisUnavailable) {
		t.Errorf("error = %v, want ErrSynthesisUnavailable", err)
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("error = %v, want the response status in the message", err)
	}
}

func TestFetchAcceptsAnySuccessStatus(t *testing.T) {
	// 202 with an undecodable body must get past the status gate and fail
	// at the decode step instead.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("this is not mp3 audio"))
	}))
	defer srv.Close()

	_, err := newSynth(srv.URL).fetch(context.Background(), "hello")
	if !errors.Is(err, errors.ErrSynthesisUnavailable) {
		t.Fatalf("error = %v, want ErrSynthesisUnavailable", err)
	}
	if !strings.Contains(err.Error(), "decode narration audio") {
		t.Errorf("error = %v, want a decode failure, not a status rejection", err)
	}
}

func TestSynthesizeWithoutEndpoint(t *testing.T) {
	track, err := newSynth("").Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if track != nil {
		t.Errorf("track = %+v, want nil", track)
	}
}

func TestSynthesizeUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	track, err := newSynth(srv.URL).Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if track != nil {
		t.Errorf("track = %+v, want nil", track)
	}
}

func TestSynthesizeSendsNarrationText(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newSynth(srv.URL).Synthesize(context.Background(), "narrate this"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got.Text != "narrate this" {
		t.Errorf("request text = %q, want %q", got.Text, "narrate this")
	}
}
