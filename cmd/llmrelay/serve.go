package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/llmrelay/llmrelay/pkg/admin"
	"github.com/llmrelay/llmrelay/pkg/cache"
	"github.com/llmrelay/llmrelay/pkg/config"
	"github.com/llmrelay/llmrelay/pkg/dispatch"
	"github.com/llmrelay/llmrelay/pkg/proxy"
	"github.com/llmrelay/llmrelay/pkg/server"
	"github.com/llmrelay/llmrelay/pkg/session"
)

// ServeCmd starts the gateway.
type ServeCmd struct {
	Settings  string `help:"Path to the persisted settings document." default:".llmrelay/settings.json" type:"path"`
	Bootstrap string `help:"Optional YAML bootstrap config applied below the settings document." type:"path"`
	Port      int    `help:"Override the configured listen port."`
	Watch     bool   `help:"Reload the settings document when it changes on disk." default:"true" negatable:""`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	store, err := config.Open(c.Settings, c.Bootstrap)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}

	if c.Port != 0 {
		if _, err := store.Update(func(s *config.Settings) error {
			s.Port = c.Port
			return nil
		}); err != nil {
			return fmt.Errorf("failed to apply port override: %w", err)
		}
	}

	if c.Watch {
		go func() {
			if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Settings watch error", "error", err)
			}
		}()
	}

	respCache := cache.New(cache.DefaultSize, cache.DefaultTTL)
	queue := dispatch.New(dispatch.DefaultConcurrency, dispatch.DefaultInterval)
	stats := proxy.NewStats()
	go stats.LogPeriodically(ctx)

	p := proxy.New(store, respCache, queue, stats)
	sessions := session.NewStore(session.DefaultTTL)
	adminHandler := admin.NewHandler(store, sessions, func(r *http.Request) interface{} {
		return p.Probe(r.Context())
	})

	srv := server.New(store, p, adminHandler, respCache, queue)

	settings := store.Get()
	fmt.Printf("\nllmrelay ready on port %d\n", settings.Port)
	fmt.Printf("   Translation:  POST http://localhost:%d/v1/messages\n", settings.Port)
	fmt.Printf("   Admin UI:     http://localhost:%d/\n", settings.Port)
	fmt.Printf("   Health:       http://localhost:%d/health\n", settings.Port)
	fmt.Printf("   Metrics:      http://localhost:%d/metrics\n", settings.Port)
	if !settings.SecretHashed() {
		fmt.Println("\n   First boot: log in with the bootstrap admin password to set a real one.")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.ListenAndServe(ctx)
}
