// internal/server/server.go

// Package server exposes the auditor over HTTP. POST /run-test starts a
// synchronous audit, GET /results replays the last published report,
// GET /status answers liveness checks and GET /metrics serves the
// Prometheus registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
)

// compressionLevel is valid for both gzip (0-9) and brotli (0-11).
const compressionLevel = 5

// Server hosts the audit HTTP API.
type Server struct {
	cfg        config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	handlers   *Handlers
	httpServer *http.Server
}

// New assembles the router and its middleware around the auditor. The
// metrics registry may be nil; the scrape endpoint then serves the
// process-global one.
func New(cfg config.Config, auditor Auditor, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if auditor == nil {
		return nil, errors.New("server requires an auditor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		metrics:  m,
		handlers: NewHandlers(logger, auditor, cfg.Audit.DefaultURL),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.routes(),
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if t := s.cfg.Server.RequestTimeout; t > 0 {
		r.Use(middleware.Timeout(t))
	}
	r.Use(corsMiddleware(s.cfg.Server.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Use(compressResponses())
		s.handlers.RegisterRoutes(r)
	})

	// promhttp negotiates its own gzip, so the scrape endpoint stays
	// outside the compression group.
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Handler returns the assembled route tree.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP listener until ctx is cancelled, then drains
// in-flight requests within the configured shutdown window.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening.", zap.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP API...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}

// compressResponses negotiates Accept-Encoding for the JSON routes.
// Brotli is registered on top of the stock gzip/deflate encoders and is
// preferred when the client accepts it.
func compressResponses() func(http.Handler) http.Handler {
	c := middleware.NewCompressor(compressionLevel, "application/json")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c.Handler
}

// corsMiddleware answers preflight requests and stamps the allow headers
// on every response. An empty list or a "*" entry allows any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one structured line per API request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("Request served.",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
