package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RunReporter exposes the outcome of the most recent pipeline run.
type RunReporter interface {
	LastReport() (pipeline.Report, bool)
}

// Pipeline is what the daemon serves status for.
type Pipeline interface {
	ReadinessChecker
	RunReporter
}

// Server exposes health, readiness, run status and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /runs/last and /metrics routes.
func NewServer(addr string, p Pipeline, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(p))
	mux.HandleFunc("GET /runs/last", handleLastRun(p))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type skipView struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type runView struct {
	RunID      string     `json:"run_id"`
	Started    time.Time  `json:"started"`
	Duration   string     `json:"duration"`
	Discovered int        `json:"discovered"`
	Fetched    int        `json:"fetched"`
	Extracted  int        `json:"extracted"`
	Written    int        `json:"written"`
	Skipped    []skipView `json:"skipped"`
}

func handleLastRun(reporter RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, ok := reporter.LastReport()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "no runs yet"})
			return
		}

		view := runView{
			RunID:      report.RunID,
			Started:    report.Started.UTC(),
			Duration:   report.Duration.String(),
			Discovered: report.Discovered,
			Fetched:    report.Fetched,
			Extracted:  report.Extracted,
			Written:    report.Written,
			Skipped:    make([]skipView, 0, len(report.Skipped)),
		}
		for _, s := range report.Skipped {
			view.Skipped = append(view.Skipped, skipView{File: s.File, Error: s.Err.Error()})
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
