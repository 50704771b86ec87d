// Package admin serves the operator HTTP surface: scheduler control, manual phase triggers,
// room status, health checks, metrics and the HLS output directory.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roomplane/internal/admin/handlers"
	"roomplane/internal/admin/middleware"
)

// Options configures the admin server.
type Options struct {
	Addr     string
	AdminKey string
	// HLSDir is served read-only under /hls/. Empty disables static serving.
	HLSDir string
	// Requests per second across all admin routes; zero disables throttling.
	RateLimit float64
	RateBurst int
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Server is the HTTP server for the admin API.
type Server struct {
	httpServer *http.Server
}

// New creates a new admin server.
func New(opts Options, ctrl handlers.Controller, db handlers.Pinger) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:        opts.Addr,
			Handler:     NewHandler(opts, ctrl, db),
			ReadTimeout: 10 * time.Second,
			// Manual build and start triggers run to completion before responding.
			WriteTimeout: 3 * time.Minute,
		},
	}
}

// NewHandler builds the route table.
func NewHandler(opts Options, ctrl handlers.Controller, db handlers.Pinger) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := handlers.New(ctrl, db, opts.Logger)
	guard := func(f http.HandlerFunc) http.Handler {
		return middleware.RateLimit(opts.RateLimit, opts.RateBurst)(middleware.RequireAdminKey(opts.AdminKey)(f))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	if opts.HLSDir != "" {
		mux.Handle("GET /hls/", http.StripPrefix("/hls/", hlsHeaders(http.FileServer(http.Dir(opts.HLSDir)))))
	}

	mux.Handle("GET /admin/scheduler", guard(h.GetScheduler))
	mux.Handle("POST /admin/scheduler/enable", guard(h.EnableScheduler))
	mux.Handle("POST /admin/scheduler/disable", guard(h.DisableScheduler))

	mux.Handle("GET /admin/rooms/status", guard(h.RoomsStatus))
	mux.Handle("POST /admin/rooms/{id}/schedule", guard(h.ScheduleRoom))
	mux.Handle("POST /admin/rooms/{id}/build", guard(h.BuildPlaylist))
	mux.Handle("POST /admin/rooms/{id}/start", guard(h.StartStream))
	mux.Handle("POST /admin/rooms/{id}/notify", guard(h.Notify))
	mux.Handle("POST /admin/rooms/{id}/cleanup", guard(h.Cleanup))
	mux.Handle("POST /admin/rooms/{id}/launch", guard(h.Launch))

	return middleware.RequestLog(opts.Logger)(mux)
}

// hlsHeaders stops players and proxies from caching the live manifest.
func hlsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if strings.HasSuffix(r.URL.Path, ".m3u8") {
			w.Header().Set("Cache-Control", "no-cache")
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
