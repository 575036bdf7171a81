package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dedicated/internal/app"
	"dedicated/internal/config"
	"dedicated/internal/events"
	"dedicated/internal/handler"
	"dedicated/internal/payment"
	"dedicated/internal/realtime"
	internalRedis "dedicated/internal/redis"
	"dedicated/internal/repository/postgres"
	"dedicated/internal/service"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := app.NewLogger(cfg.Log)
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret is required")
	}

	if cfg.Server.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
			nrApp = nil
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Wire dependencies.
	server, background, publisher := wireServer(runCtx, db, redisClient, nrApp, cfg, log)

	var wg sync.WaitGroup
	for _, run := range background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(runCtx)
		}(run)
	}

	// Start server in goroutine.
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	stop()
	wg.Wait()

	if err := publisher.Close(); err != nil {
		log.WithError(err).Warn("failed to close event publisher")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server, the
// background loops to run alongside it and the event publisher to close on
// shutdown.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
	log *logrus.Logger,
) (*http.Server, []func(context.Context), events.Publisher) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	store := postgres.NewStore(db)
	transactor := postgres.NewTransactor(db)
	userRepo := postgres.NewUserRepository(db)
	categoryRepo := postgres.NewVehicleCategoryRepository(db)
	locationRepo := postgres.NewLocationRepository(db)
	promotionRepo := postgres.NewPromotionRepository(db)
	fareRepo := postgres.NewFareRepository(db)

	// Payment gateway and event publisher fall back to no-ops when unconfigured.
	var gateway payment.Gateway = payment.NoopGateway{}
	if cfg.Payment.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.Timeout)
	} else {
		log.Warn("payment.stripe_secret_key not set, payment holds are disabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Brokers != "" {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PublishTimeout)
	}

	rules := service.BookingRules{
		MinDurationHours: cfg.Booking.MinDurationHours,
		MaxDurationHours: cfg.Booking.MaxDurationHours,
		MinLat:           cfg.Booking.MinLat,
		MaxLat:           cfg.Booking.MaxLat,
		MinLng:           cfg.Booking.MinLng,
		MaxLng:           cfg.Booking.MaxLng,
		Currency:         cfg.Payment.Currency,
		Cancellation: service.CancellationPolicy{
			FullRefundHours: cfg.Booking.FullRefundHours,
			HalfChargeHours: cfg.Booking.HalfChargeHours,
		},
	}

	// Initialize services.
	users := service.NewCachedUserDirectory(userRepo, cacheStore, log)
	invoices := service.NewInvoiceService(store.Bookings, store.Invoices, cfg.Booking.TaxRate, cfg.Payment.Currency)
	ledger := service.NewLedgerService(transactor, store, fareRepo, cfg.Payment.Currency, cfg.Ledger.DefaultCommission, log)
	bookings := service.NewBookingService(service.BookingServiceDeps{
		Transactor:     transactor,
		Bookings:       store.Bookings,
		Categories:     categoryRepo,
		Users:          users,
		Promotions:     promotionRepo,
		Gateway:        gateway,
		Allocator:      service.NewDriverAllocator(transactor),
		Invoices:       invoices,
		Ledger:         ledger,
		Locations:      locationStore,
		Publisher:      publisher,
		PublishTimeout: cfg.Kafka.PublishTimeout,
		Rules:          rules,
		Log:            log,
	})
	locations := service.NewLocationService(store.Bookings, locationRepo, locationStore, rules, log)

	hub := realtime.NewHub(locations, log)
	background := []func(context.Context){hub.Run}

	if cfg.Scheduler.Enabled {
		scheduler := service.NewAutoCompleteScheduler(
			store.Bookings, bookings, lockStore, nrApp,
			cfg.Scheduler.Interval, cfg.Scheduler.ExpireGrace, log,
		)
		background = append(background, scheduler.Run)
	}

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		BookingHandler:  handler.NewBookingHandler(bookings, locations),
		WalletHandler:   handler.NewWalletHandler(ledger),
		RealtimeHandler: handler.NewRealtimeHandler(hub, log),
		DB:              db,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
		Log:             log,
		JWTSecret:       cfg.Auth.JWTSecret,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}, background, publisher
}
