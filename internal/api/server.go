package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/goeschip/internal/auth"
	"github.com/star/goeschip/internal/cache"
	"github.com/star/goeschip/internal/health"
	"github.com/star/goeschip/internal/metrics"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool

	// Satellite is the preset used by fixedgrid endpoints when the request
	// names none.
	Satellite string
	// DefaultBuffer and MaxBuffer bound the chip buffer query parameter.
	DefaultBuffer int
	MaxBuffer     int
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. Scene bundles are listed from
// sceneFS and loaded through scenes.
func NewServer(cfg Config, sceneFS fs.FS, scenes *cache.SceneCache, logger *slog.Logger) *Server {
	if cfg.DefaultBuffer <= 0 {
		cfg.DefaultBuffer = 50
	}
	if cfg.MaxBuffer < cfg.DefaultBuffer {
		cfg.MaxBuffer = cfg.DefaultBuffer
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(health.DirReadable(sceneFS)))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/satellites", satellitesHandler)
	mux.HandleFunc("GET /api/v1/fixedgrid/scan-angles", scanAnglesHandler(cfg.Satellite))
	mux.HandleFunc("GET /api/v1/fixedgrid/geodetic", geodeticHandler(cfg.Satellite))
	mux.HandleFunc("GET /api/v1/scenes", scenesHandler(logger, sceneFS))
	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(scenes))
	mux.HandleFunc("GET /api/v1/chips/{scene...}", chipHandler(logger, scenes, cfg.DefaultBuffer, cfg.MaxBuffer))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}
