package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aigoflow/mmss-service/internal/dashboard"
	"github.com/aigoflow/mmss-service/internal/handlers"
	"github.com/aigoflow/mmss-service/internal/repository"
	"github.com/aigoflow/mmss-service/internal/services"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpAddr   string
	tasks      *services.TaskService
	planner    *services.PlannerService
	health     *services.HealthService
	monitoring *services.MonitoringService
	repo       repository.Repository
}

func NewServer(httpAddr string, tasks *services.TaskService, planner *services.PlannerService, health *services.HealthService, monitoring *services.MonitoringService) *Server {
	return &Server{
		httpAddr:   httpAddr,
		tasks:      tasks,
		planner:    planner,
		health:     health,
		monitoring: monitoring,
		repo:       tasks.GetRepository(),
	}
}

// Handler builds the full router
func (s *Server) Handler() http.Handler {
	return handlers.NewRouter(
		dashboard.NewHandler(),
		handlers.NewTaskHandler(s.tasks),
		handlers.NewLLMHandler(s.planner),
		handlers.NewRuleHandler(s.tasks.Rules()),
		handlers.NewSystemHandler(s.health, s.monitoring, s.repo),
	)
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", s.httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
