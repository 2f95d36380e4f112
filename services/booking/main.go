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

	"github.com/diagnosis/staybook/pkg/cache"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	mw "github.com/diagnosis/staybook/pkg/middleware"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/services/booking/internal/handlers"
	"github.com/diagnosis/staybook/services/booking/internal/paypal"
	"github.com/diagnosis/staybook/services/booking/internal/qrpay"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
	"github.com/diagnosis/staybook/services/booking/internal/service"
)

func main() {
	if err := run(); err != nil {
		logger.Error("Booking service stopped", "error", err)
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

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "booking")
	if err != nil {
		return err
	}
	defer eventBus.Drain()

	// Repositories
	roomTypeRepo := repository.NewRoomTypeRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	reconciliationRepo := repository.NewReconciliationRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)

	// Collaborators
	photos := storage.NewLocalStore(cfg.Storage.PhotoDir)
	provider := paypal.New(cfg.PayPal, &http.Client{Timeout: cfg.PayPal.Timeout})
	qr := qrpay.NewGenerator(cfg.QR, cache.NewStore(rdb, "booking"), time.Now)

	// Services
	availability := service.NewAvailabilityService(reservationRepo, roomRepo, roomTypeRepo)
	reports := service.NewReportService(paymentRepo, cfg, time.Now)
	h := handlers.New(handlers.Services{
		Catalog:      service.NewCatalogService(roomTypeRepo, roomRepo, photos, cfg, time.Now),
		Availability: availability,
		Reservations: service.NewReservationService(reservationRepo, roomTypeRepo, availability, eventBus, cfg, time.Now),
		Payments: service.NewPaymentService(paymentRepo, reservationRepo, roomTypeRepo, reconciliationRepo,
			provider, qr, eventBus, cfg, time.Now),
		Refunds: service.NewRefundService(paymentRepo, reservationRepo, reconciliationRepo, provider, eventBus, cfg, time.Now),
		Reviews: service.NewReviewService(reviewRepo, reservationRepo),
		Reports: reports,
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("booking"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.CORS(cfg.Server.AppBaseURL))
	r.Use(mw.Health(map[string]mw.HealthCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"nats":     eventBus.Ping,
	}))
	r.Use(mw.IdempotencyMiddleware(cache.NewStore(rdb, "booking")))
	h.Mount(r, cfg.Auth.JWTSecret, cfg.Storage.PhotoDir)

	// Just after midnight hotel time, yesterday's check-outs are final.
	jobs := cron.New(cron.WithLocation(cfg.Booking.Location()))
	if _, err := jobs.AddFunc("10 0 * * *", func() { reports.LogCompletedStays(ctx) }); err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	srv := &http.Server{
		Addr:         cfg.Server.Addr("8082"),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting booking service", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down booking service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
