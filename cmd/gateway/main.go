package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitepulse/insight-gateway/internal/cache"
	"github.com/sitepulse/insight-gateway/internal/ga4"
	"github.com/sitepulse/insight-gateway/internal/relay"
	"github.com/sitepulse/insight-gateway/internal/snapshot"
	"github.com/sitepulse/insight-gateway/internal/store"
	"github.com/sitepulse/insight-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	// Model backends
	backends := map[string]relay.Completer{}
	if cfg.anthropicAPIKey != "" {
		backends["anthropic"] = relay.NewAnthropicClient(cfg.anthropicAPIKey, cfg.anthropicURL, cfg.anthropicModel, cfg.maxTokens, cfg.temperature, cfg.llmPoolSize)
	}
	if cfg.openaiAPIKey != "" {
		backends["openai"] = relay.NewOpenAIClient(cfg.openaiAPIKey, cfg.openaiURL, cfg.openaiModel, cfg.maxTokens, cfg.temperature)
	}
	if len(backends) == 0 {
		slog.Warn("no model backend configured; analyze requests will fail")
	}
	rel := relay.New(relay.NewBackendRouter(backends, cfg.analysisEngine))

	builder := &snapshot.Builder{
		GA4:              ga4.NewClient("", cfg.ga4PoolSize),
		FallbackIndustry: cfg.fallbackIndustry,
	}

	var st *store.Store
	if cfg.databaseURL != "" {
		var err error
		st, err = store.Open(cfg.databaseURL)
		if err != nil {
			slog.Error("open history store", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		slog.Info("analysis history enabled")
	}

	var resultCache *cache.ResultCache
	if cfg.redisURL != "" {
		opt, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			slog.Error("parse redis url", "error", err)
			os.Exit(1)
		}
		resultCache = cache.New(redis.NewClient(opt), cfg.cacheTTL)
		slog.Info("result cache enabled", "ttl", cfg.cacheTTL)
	}

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Relay:         rel,
		MaxConcurrent: cfg.maxConcurrentStreams,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:        cfg,
		relay:      rel,
		builder:    builder,
		store:      st,
		cache:      resultCache,
		wsHandler:  wsHandler,
		configured: len(backends) > 0,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "engines", len(backends))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
