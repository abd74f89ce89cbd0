// Package janitor sweeps the reel table on a schedule: renders that died
// mid-flight leave processing rows behind, and failed rows are only kept
// long enough to be useful for diagnosis.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	reelrepo "github.com/vidsnap/vidsnap/internal/repositories/reel"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"github.com/vidsnap/vidsnap/pkg/retry"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
	Repo   reelrepo.Repository
}

type Janitor struct {
	cfg    *config.Config
	logger logger.Logger
	repo   reelrepo.Repository
}

func New(opts Opts) *Janitor {
	return &Janitor{
		cfg:    opts.Config,
		logger: opts.Logger.WithComponent("Janitor"),
		repo:   opts.Repo,
	}
}

// Schedule starts the periodic sweep and shuts it down when ctx ends.
func (j *Janitor) Schedule(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			taskCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			j.sweep(taskCtx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule janitor sweep: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		j.logger.Info("Stopping janitor scheduler")
		if err := scheduler.Shutdown(); err != nil {
			j.logger.Error("Failed to shut down scheduler", "error", err)
		}
	}()

	return nil
}

func (j *Janitor) sweep(ctx context.Context) {
	stale := time.Duration(j.cfg.Janitor.StaleProcessingMinutes) * time.Minute
	retention := time.Duration(j.cfg.Janitor.FailedRetentionHours) * time.Hour

	var marked int64
	err := retry.Do(ctx, j.logger, "mark stale reels failed", func() error {
		var err error
		marked, err = j.repo.MarkStaleFailed(ctx, stale)
		return err
	}, retry.DefaultConfig())
	if err != nil {
		j.logger.Error("Failed to mark stale reels", "error", err)
	} else if marked > 0 {
		j.logger.Info("Marked stale processing reels as failed", "count", marked)
	}

	var removed int64
	err = retry.Do(ctx, j.logger, "cleanup failed reels", func() error {
		var err error
		removed, err = j.repo.CleanupOldRecords(ctx, retention)
		return err
	}, retry.DefaultConfig())
	if err != nil {
		j.logger.Error("Failed to clean up old reels", "error", err)
	} else if removed > 0 {
		j.logger.Info("Removed old failed reels", "count", removed)
	}
}
