package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	ratelimit "github.com/diagnosis/staybook/internal/http/middleware"
	"github.com/diagnosis/staybook/pkg/cache"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	mw "github.com/diagnosis/staybook/pkg/middleware"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/services/accounts/internal/handlers"
	"github.com/diagnosis/staybook/services/accounts/internal/recaptcha"
	"github.com/diagnosis/staybook/services/accounts/internal/repository"
	"github.com/diagnosis/staybook/services/accounts/internal/service"
)

func main() {
	if err := run(); err != nil {
		logger.Error("Accounts service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "accounts")
	if err != nil {
		return err
	}
	defer eventBus.Drain()

	store := cache.NewStore(rdb, "accounts")
	accountRepo := repository.NewAccountRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)

	captcha := recaptcha.New(cfg.Recaptcha, &http.Client{Timeout: 5 * time.Second})
	if cfg.Recaptcha.Secret == "" {
		logger.Warn("RECAPTCHA_SECRET not set; captcha verification is disabled")
	}

	authSvc := service.NewAuthService(accountRepo, tokenRepo, captcha, eventBus, cfg.Auth, time.Now)
	profileSvc := service.NewProfileService(accountRepo, storage.NewLocalStore(cfg.Storage.PhotoDir), store, cfg.Auth.PhotoPendingTTL)
	adminSvc := service.NewAdminService(accountRepo)

	limiter := ratelimit.NewRateLimiter(store, ratelimit.RateLimitConfig{
		Requests: cfg.Auth.RateLimitRequests,
		Window:   cfg.Auth.RateLimitWindow,
		Scope:    "credentials",
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("accounts"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.CORS(cfg.Server.AppBaseURL))
	r.Use(mw.Health(map[string]mw.HealthCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"nats":     eventBus.Ping,
	}))
	handlers.New(authSvc, profileSvc, adminSvc).Mount(r, cfg.Auth.JWTSecret, limiter.Middleware())

	jobs := cron.New()
	if _, err := jobs.AddFunc("@hourly", func() {
		n, err := authSvc.PurgeExpiredTokens(ctx)
		if err != nil {
			logger.Error("Token purge failed", "error", err)
			return
		}
		logger.Info("Purged expired recovery tokens", "count", n)
	}); err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	srv := &http.Server{
		Addr:         cfg.Server.Addr("8081"),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting accounts service", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down accounts service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
