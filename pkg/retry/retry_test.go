package retry

import (
	"context"
	"testing"
	"time"

	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/logger"
)

func fastConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.1,
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), logger.New(logger.Opts{}), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.Wrap(errors.ErrUploadFailed, "push blob")
		}
		return nil
	}, fastConfig())
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("operation ran %d times, want 3", calls)
	}
}

func TestDoStopsOnNonRecoverableFailure(t *testing.T) {
	for _, sentinel := range []error{errors.ErrInvalidInput, errors.ErrOutputTooSmall} {
		calls := 0
		err := Do(context.Background(), logger.New(logger.Opts{}), "doomed", func() error {
			calls++
			return sentinel
		}, fastConfig())
		if !errors.Is(err, sentinel) {
			t.Errorf("Do() = %v, want %v", err, sentinel)
		}
		if calls != 1 {
			t.Errorf("operation ran %d times, want 1", calls)
		}
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), logger.New(logger.Opts{}), "down", func() error {
		calls++
		return errors.New("connection reset")
	}, fastConfig())
	if err == nil {
		t.Fatal("Do() = nil, want error")
	}
	if calls != 4 {
		t.Errorf("operation ran %d times, want 4", calls)
	}
}
