package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/vidsnap/vidsnap/internal/api"
	"github.com/vidsnap/vidsnap/internal/assets"
	"github.com/vidsnap/vidsnap/internal/assets/assetsimpl"
	"github.com/vidsnap/vidsnap/internal/janitor"
	"github.com/vidsnap/vidsnap/internal/media"
	"github.com/vidsnap/vidsnap/internal/media/avirec"
	_ "github.com/vidsnap/vidsnap/internal/migrations"
	"github.com/vidsnap/vidsnap/internal/pipeline"
	repositories "github.com/vidsnap/vidsnap/internal/repositories/fx"
	"github.com/vidsnap/vidsnap/internal/storage"
	"github.com/vidsnap/vidsnap/internal/storage/storageimpl"
	"github.com/vidsnap/vidsnap/internal/tts"
	"github.com/vidsnap/vidsnap/internal/tts/ttsimpl"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"github.com/vidsnap/vidsnap/pkg/pgx"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
	),
	fx.Provide(
		fx.Annotate(
			assetsimpl.New,
			fx.As(new(assets.Loader)),
		),
		fx.Annotate(
			ttsimpl.New,
			fx.As(new(tts.Synthesizer)),
		),
		fx.Annotate(
			storageimpl.New,
			fx.As(new(storage.Store)),
		),
	),
	fx.Provide(
		func() pipeline.RecorderFactory {
			return func() media.Recorder { return avirec.New() }
		},
		func() clockwork.Clock { return clockwork.NewRealClock() },
		pipeline.New,
		janitor.New,
	),
	repositories.Module,
	fx.Invoke(migrate),
	fx.Invoke(api.New),
	fx.Invoke(run),
)

// migrate applies the goose migrations registered by internal/migrations.
func migrate(cfg *config.Config, log logger.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Up(db, "internal/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Migrations applied")
	return nil
}

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config, j *janitor.Janitor) {
	appCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.App.SentryUrl != "" {
				if err := sentry.Init(sentry.ClientOptions{
					Dsn:         cfg.App.SentryUrl,
					Environment: cfg.App.Env,
				}); err != nil {
					log.Error("Failed to initialize sentry", "error", err)
				}
			}

			if err := j.Schedule(appCtx); err != nil {
				log.Error("Failed to start janitor", "error", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
