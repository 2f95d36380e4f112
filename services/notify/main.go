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
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/mailer"
	mw "github.com/diagnosis/staybook/pkg/middleware"
	"github.com/diagnosis/staybook/services/notify/internal/notifier"
)

func main() {
	if err := run(); err != nil {
		logger.Error("Notify service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		return err
	}
	defer eventBus.Drain()

	n, err := notifier.New(mailer.New(cfg.Email), notifier.Config{
		Hotel:      cfg.Email.FromName,
		AppBaseURL: cfg.Server.AppBaseURL,
		PhotoDir:   cfg.Storage.PhotoDir,
		Location:   cfg.Booking.Location(),
	})
	if err != nil {
		return err
	}
	if err := n.Subscribe(eventBus); err != nil {
		return err
	}
	logger.Info("Notify service subscribed", "queue", notifier.QueueGroup)

	// Only health is served; all work arrives over NATS.
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Recoverer)
	r.Use(mw.Health(map[string]mw.HealthCheck{"nats": eventBus.Ping}))
	r.Use(mw.Logging)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	srv := &http.Server{
		Addr:        cfg.Server.Addr("8086"),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting notify service", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
