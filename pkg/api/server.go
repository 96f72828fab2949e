package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"guard_model/pkg/metrics"
	"guard_model/pkg/obs"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxConcurrent  int
	CORSOrigin     string
}

// DefaultConfig returns sensible defaults. Simulations for large cities run
// for minutes, so the write and request timeouts are generous.
func DefaultConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:           addr,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   11 * time.Minute,
		RequestTimeout: 10 * time.Minute,
		MaxConcurrent:  runtime.NumCPU(),
		CORSOrigin:     "",
	}
}

// NewServer creates an HTTP server with all routes and middleware. A nil
// collector disables request metrics and the /metrics route.
func NewServer(cfg ServerConfig, handlers *Handlers, m *metrics.Collector) *http.Server {
	mux := http.NewServeMux()

	// Concurrency limiter.
	sem := make(chan struct{}, cfg.MaxConcurrent)

	route := func(pattern, path string, h http.HandlerFunc) {
		mux.Handle(pattern, m.Middleware(path, withMiddleware(h, sem, cfg)))
	}
	route("POST /api/v1/simulate", "/api/v1/simulate", handlers.HandleSimulate)
	route("GET /api/v1/target", "/api/v1/target", handlers.HandleTarget)
	route("GET /api/v1/health", "/api/v1/health", handlers.HandleHealth)
	route("GET /api/v1/stats", "/api/v1/stats", handlers.HandleStats)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// ListenAndServe starts the server and blocks until shutdown signal.
func ListenAndServe(srv *http.Server) error {
	// Graceful shutdown on SIGTERM/SIGINT.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("Received %s, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// withMiddleware wraps a handler with logging, recovery, security headers,
// request ids and concurrency limiting.
func withMiddleware(handler http.HandlerFunc, sem chan struct{}, cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Security headers.
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")

		// CORS.
		if cfg.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		}

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 64 {
			reqID = obs.NewRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)

		// Concurrency limiter.
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		default:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "")
			return
		}

		// Recovery.
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("req_id=%s panic: %v", reqID, rec)
				writeError(w, http.StatusInternalServerError, "internal_error", "")
			}
		}()

		// Request timeout.
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(obs.WithRequestID(r.Context(), reqID), timeout)
		defer cancel()

		start := time.Now()
		handler(w, r.WithContext(ctx))
		log.Printf("req_id=%s %s %s %s", reqID, r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	}
}
