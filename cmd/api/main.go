package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-call-gateway/internal/assistants"
	"ai-call-gateway/internal/audit"
	"ai-call-gateway/internal/auth"
	"ai-call-gateway/internal/calls"
	"ai-call-gateway/internal/config"
	"ai-call-gateway/internal/reporting"
	"ai-call-gateway/internal/session"
	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/internal/webhooks"
	"ai-call-gateway/pkg/logger"
	"ai-call-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := session.NewPostgresStore(db)
	events := audit.NewService(audit.NewPostgresRepo(db))

	provider := telephony.NewTelnyxProvider(telephony.TelnyxConfig{
		APIKey:       cfg.Telnyx.APIKey,
		ConnectionID: cfg.Telnyx.ConnectionID,
		FromNumber:   cfg.Telnyx.FromNumber,
		WebhookURL:   cfg.Telnyx.WebhookURL,
		BaseURL:      cfg.Telnyx.BaseURL,
	}, nil)

	limiter := calls.NewRedisLimiter(rdb, cfg.Calls.MaxActiveInitiations, cfg.Calls.InitiationTTL)
	callsSvc := calls.NewService(store, provider, events, limiter)
	assistantsSvc := assistants.NewService(provider, assistants.NewRedisCache(rdb), cfg.Calls.AssistantCacheTTL)
	reportsSvc := reporting.NewService(reporting.NewStoreRepository(store))

	var verifier webhooks.Verifier
	if cfg.Telnyx.WebhookPublicKey != "" {
		verifier, err = webhooks.NewTelnyxVerifier(cfg.Telnyx.WebhookPublicKey)
		if err != nil {
			log.Error("webhook verifier init failed", "err", err)
			os.Exit(1)
		}
	}
	dispatcher := webhooks.NewDispatcher(store, events, verifier,
		webhooks.VerifyPolicy(cfg.Telnyx.WebhookVerifyPolicy))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	deps := appDeps{
		auth:       authManager,
		calls:      callsSvc,
		assistants: assistantsSvc,
		reports:    reportsSvc,
		dispatcher: dispatcher,
		db:         db,
		rdb:        rdb,
		provider:   provider,
	}
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
