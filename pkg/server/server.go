// Package server assembles the HTTP surface: the translation endpoint, the
// admin API, health, stats, metrics, and the embedded admin UI.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmrelay/llmrelay/pkg/admin"
	"github.com/llmrelay/llmrelay/pkg/cache"
	"github.com/llmrelay/llmrelay/pkg/config"
	"github.com/llmrelay/llmrelay/pkg/dispatch"
	"github.com/llmrelay/llmrelay/pkg/proxy"
)

//go:embed web
var webAssets embed.FS

// Server is the assembled HTTP server.
type Server struct {
	store   *config.Store
	proxy   *proxy.Proxy
	cache   *cache.ResponseCache
	queue   *dispatch.Queue
	admin   *admin.Handler
	started time.Time

	httpServer *http.Server
}

// New wires the routes.
func New(store *config.Store, p *proxy.Proxy, adminHandler *admin.Handler,
	respCache *cache.ResponseCache, queue *dispatch.Queue) *Server {

	s := &Server{
		store:   store,
		proxy:   p,
		cache:   respCache,
		queue:   queue,
		admin:   adminHandler,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/v1/messages", s.limitBody(p.HandleMessages))

	r.Get("/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/login", adminHandler.Login)
	r.Get("/api/config", adminHandler.RequireSession(adminHandler.GetConfig))
	r.Post("/api/config", adminHandler.RequireSession(adminHandler.UpdateConfig))
	r.Post("/api/test-connection", adminHandler.RequireSession(adminHandler.TestConnection))
	r.Post("/api/generate-key", adminHandler.RequireSession(adminHandler.GenerateKey))
	r.Post("/api/change-password", adminHandler.RequireSession(adminHandler.ChangePassword))

	static, _ := fs.Sub(webAssets, "web")
	r.Handle("/*", http.FileServer(http.FS(static)))

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// limitBody enforces the configured request body cap. The limit is read per
// request so admin changes take effect without a restart.
func (s *Server) limitBody(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings := s.store.Get()
		r.Body = http.MaxBytesReader(w, r.Body, settings.MaxBodyBytes)
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"uptime":    int64(time.Since(s.started).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requests": s.proxy.Stats().Snapshot(),
		"cache":    s.cache.Stats(),
		"queue": map[string]int64{
			"waiting":  s.queue.Waiting(),
			"inFlight": s.queue.InFlight(),
		},
	})
}

// ListenAndServe binds the configured port and serves until ctx is
// cancelled, then drains connections gracefully. A bind failure is returned
// so the process can exit non-zero.
func (s *Server) ListenAndServe(ctx context.Context) error {
	settings := s.store.Get()
	addr := fmt.Sprintf(":%d", settings.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	slog.Info("Gateway listening", "addr", addr, "model", settings.DefaultModel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("Shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
