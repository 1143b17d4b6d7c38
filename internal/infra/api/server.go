package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/infra/metrics"
	"telegram-channel-paywall/internal/usecase"
)

// Sweeper runs one sweep inline.
type Sweeper interface {
	RunOnce(ctx context.Context, trigger string) (usecase.SweepReport, error)
}

// Enqueuer pushes a sweep trigger for the queue worker.
type Enqueuer interface {
	Push(ctx context.Context, payload string) error
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Payouts usecase.PayoutUseCase
	Stats   usecase.StatsUseCase
	Sweeper Sweeper
	// Queue is optional; without it POST /api/v1/sweep runs inline.
	Queue  Enqueuer
	Checks map[string]HealthCheck
}

// Server is the admin HTTP API: payouts, manual sweeps, platform stats,
// health and Prometheus metrics.
type Server struct {
	deps Deps
	auth *AuthManager
	log  *zerolog.Logger
	now  func() time.Time

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

func NewServer(deps Deps, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{deps: deps, auth: auth, log: &l, now: time.Now}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAdmin(s.auth, s.log), Timeout(30*time.Second))

		r.Get("/payouts", s.handleListPayouts)
		r.Post("/payouts/{id}/status", s.handleProcessPayout)
		r.Post("/sweep", s.handleSweep)
		r.Get("/stats", s.handleStats)
		r.Post("/report", s.handleReport)
	})
	return r
}

// Start listens on port until Shutdown.
func (s *Server) Start(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.srv = srv
	s.mu.Unlock()

	s.log.Info().Int("port", port).Msg("admin API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener; a later Start returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
