package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eliaslindqvist/salescoach/internal/auth"
	"github.com/eliaslindqvist/salescoach/internal/coach"
	"github.com/eliaslindqvist/salescoach/internal/completion"
	"github.com/eliaslindqvist/salescoach/internal/config"
	"github.com/eliaslindqvist/salescoach/internal/gateway"
	"github.com/eliaslindqvist/salescoach/internal/httpapi"
	"github.com/eliaslindqvist/salescoach/internal/observability"
	"github.com/eliaslindqvist/salescoach/internal/session"
	"github.com/eliaslindqvist/salescoach/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessionStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer sessionStore.Close()

	provider, err := completion.NewProvider(completion.Config{
		Mode:            cfg.CompletionProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
	})
	if err != nil {
		log.Fatalf("completion provider init failed: %v", err)
	}
	log.Printf("completion provider: %s", provider.Name())

	engine := coach.NewEngine(provider, coach.EngineConfig{
		TriggerTable:    cfg.TriggerTable,
		SilenceGap:      cfg.SilenceAlertGap,
		AnalysisTimeout: cfg.AnalysisTimeout,
	}, metrics)

	sessions := session.NewManager(session.ManagerConfig{
		CompactionThreshold: cfg.CompactionThreshold,
		IdleTimeout:         cfg.SessionIdleTimeout,
		SummarizeTimeout:    cfg.SummarizeTimeout,
	}, engine)
	engine.BindSessions(sessions)

	guard := auth.NewGuard(cfg.AuthSharedSecret, cfg.AuthIDPURL)
	limiter := auth.NewLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)

	gw := gateway.New(sessions, engine, guard, limiter, sessionStore, metrics)

	api := httpapi.New(cfg, gw, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)
	limiter.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
