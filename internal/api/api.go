package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vidsnap/vidsnap/internal/pipeline"
	"github.com/vidsnap/vidsnap/internal/ratelimit"
	reelrepo "github.com/vidsnap/vidsnap/internal/repositories/reel"
	"github.com/vidsnap/vidsnap/internal/storage"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	LC       fx.Lifecycle
	Config   *config.Config
	Logger   logger.Logger
	Pipeline *pipeline.Service
	Repo     reelrepo.Repository
	Store    storage.Store
}

type Server struct {
	cfg      *config.Config
	logger   logger.Logger
	pipeline *pipeline.Service
	repo     reelrepo.Repository
	store    storage.Store
	limiter  ratelimit.Limiter
}

// New builds the HTTP server and ties it to the application lifecycle.
func New(opts Opts) *Server {
	s := &Server{
		cfg:      opts.Config,
		logger:   opts.Logger.WithComponent("API"),
		pipeline: opts.Pipeline,
		repo:     opts.Repo,
		store:    opts.Store,
		limiter:  ratelimit.NewInMemoryLimiter(1, time.Minute, 2),
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Config.App.Port),
		Handler: s.routes(),
	}

	opts.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Info("Starting HTTP server", "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.logger.Error("Server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/reels", s.handleCreateReel)
	mux.HandleFunc("GET /api/reels", s.handleListReels)
	mux.HandleFunc("POST /api/reels/{id}/like", s.handleToggleLike)
	mux.HandleFunc("POST /api/reels/{id}/view", s.handleIncrementView)
	mux.HandleFunc("DELETE /api/reels/{id}", s.handleRemoveReel)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}
