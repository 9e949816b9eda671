package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
	"github.com/JakeFAU/quake-catalog-crawler/internal/config"
	"github.com/JakeFAU/quake-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// SnapshotService returns the newest catalog events.
type SnapshotService interface {
	Latest(ctx context.Context, limit int) ([]quake.Record, error)
}

// BackfillRunner starts one backfill run under the given ID.
type BackfillRunner interface {
	Backfill(ctx context.Context, runID string) (backfill.Report, error)
}

// Deps are the collaborators of a Server. Runner and Runs are optional; without
// them the backfill routes answer 503.
type Deps struct {
	Snapshot SnapshotService
	Runner   BackfillRunner
	Runs     backfill.RunStore
	IDs      quake.IDGenerator
	Clock    quake.Clock
	// SourceURL is reported by the service info route at /.
	SourceURL string
}

// Server wires HTTP handlers to the snapshot and backfill services.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.APIConfig
	logger *zap.Logger

	// runCtx outlives requests; backfills triggered over HTTP stop when Close cancels it.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	activeRun string
	closed    bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.APIConfig, logger *zap.Logger) (*Server, error) {
	if deps.Snapshot == nil {
		return nil, errors.New("snapshot service is required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, errors.New("clock and id generator are required")
	}
	if (deps.Runner == nil) != (deps.Runs == nil) {
		return nil, errors.New("backfill runner and run store must be set together")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:      deps,
		cfg:       cfg,
		logger:    logger.Named("api"),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/", s.info)
	r.Get("/health", s.healthz)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
		}
		r.Route("/earthquakes", func(r chi.Router) {
			r.Get("/latest", s.latest)
			r.Get("/test", s.probe)
		})
		r.Route("/backfill/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels any backfill started over HTTP and waits for it to record its
// report, or for ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	// startRun checks closed under runMu, so no Add follows the Wait below.
	s.runMu.Lock()
	s.closed = true
	s.cancelRun()
	s.runMu.Unlock()
	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for backfill run: %w", ctx.Err())
	}
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "quake-catalog-crawler",
		"source":  sourceName,
		"url":     s.deps.SourceURL,
		"endpoints": []string{
			"/api/v1/earthquakes/latest?limit=N",
			"/api/v1/earthquakes/test",
			"/api/v1/backfill/runs",
			"/healthz",
			"/readyz",
			"/metrics",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.runCtx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timed out"}`)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
