package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/plan"
)

// WorkflowStatus is the /status representation of one workflow.
type WorkflowStatus struct {
	Name        string               `json:"name"`
	Finished    bool                 `json:"finished"`
	ExecutionID string               `json:"execution_id,omitempty"`
	Succeeded   *bool                `json:"succeeded,omitempty"`
	Counts      map[string]int       `json:"counts"`
	Waves       [][]plan.RunSnapshot `json:"waves"`
}

// healthHandler reports liveness.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(a.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, _ *http.Request) {
	plans := a.Plans()
	out := make([]WorkflowStatus, 0, len(plans))
	for _, p := range plans {
		out = append(out, a.workflowStatus(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) workflowStatusHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	for _, p := range a.Plans() {
		if p.Name == name {
			writeJSON(w, http.StatusOK, a.workflowStatus(p))
			return
		}
	}
	http.Error(w, fmt.Sprintf("workflow %q not found", name), http.StatusNotFound)
}

func (a *App) workflowStatus(p *plan.ExecutionPlan) WorkflowStatus {
	snap := p.Snapshot()
	st := WorkflowStatus{
		Name:   p.Name,
		Counts: make(map[string]int, len(plan.Statuses)),
		Waves:  snap.Waves,
	}
	for status, n := range p.Counts() {
		st.Counts[status.String()] = n
	}
	if res, ok := a.Result(p.Name); ok {
		st.Finished = true
		st.ExecutionID = res.ExecutionID
		succeeded := res.Succeeded
		st.Succeeded = &succeeded
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Router returns the HTTP surface: /health, /status, /status/{workflow} and
// /metrics.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", a.healthHandler)
	r.Get("/status", a.statusHandler)
	r.Get("/status/{workflow}", a.workflowStatusHandler)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	return r
}

// healthCheckServer initializes and runs the health check HTTP server. It
// returns the bound address, or "" when the server is disabled.
func (a *App) healthCheckServer() (string, error) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring health check server.")
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return "", nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.HealthcheckPort))
	if err != nil {
		return "", fmt.Errorf("failed to start health check server: %w", err)
	}

	a.httpServer = &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s/health", ln.Addr()))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}

func (a *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Closing health check server...")

	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
