package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/specialistvlad/taskgrid/internal/executor"
)

type statusResponse struct {
	Tasks []executor.TaskState `json:"tasks"`
}

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler serves a snapshot of every task's state in the current run.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	exec := a.running.Load()
	if exec == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "no run in progress"})
		return
	}
	render.JSON(w, r, statusResponse{Tasks: exec.Snapshot()})
}

// StatusRouter returns the status server's routes.
func (a *App) StatusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", a.healthHandler)
	r.Get("/status", a.statusHandler)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	return r
}

// startStatusServer binds the port and serves in the background. A bind
// failure is returned so the run does not start without the requested server.
func (a *App) startStatusServer(port int) error {
	a.logger.Debug("Configuring status server.")
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}

	a.httpServer = &http.Server{
		Handler:           a.StatusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/status", addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeStatusServer() error {
	if a.httpServer == nil {
		a.logger.Debug("Status server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down status server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	a.logger.Debug("Status server shut down gracefully.")
	return nil
}
