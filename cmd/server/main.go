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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/tutorly/service-learning/internal/adapter"
	"github.com/tutorly/service-learning/internal/application"
	"github.com/tutorly/service-learning/internal/config"
	learningEvents "github.com/tutorly/service-learning/internal/events"
	"github.com/tutorly/service-learning/internal/handler"
	"github.com/tutorly/service-learning/internal/jobs"
	"github.com/tutorly/service-learning/internal/metrics"
	"github.com/tutorly/service-learning/internal/repository"
	"github.com/tutorly/service-learning/internal/saga"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/authz"
	"github.com/tutorly/service-learning/pkg/clock"
	"github.com/tutorly/service-learning/pkg/database"
	"github.com/tutorly/service-learning/pkg/health"
	"github.com/tutorly/service-learning/pkg/kafka"
	"github.com/tutorly/service-learning/pkg/lock"
	"github.com/tutorly/service-learning/pkg/logger"
	"github.com/tutorly/service-learning/pkg/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewNamed(cfg.AppEnv, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+cfg.ServiceName,
		zap.String("port", cfg.Port),
		zap.Float64("platform_fee_percent", cfg.Booking.PlatformFeePercent),
	)

	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	db, err := database.Connect(dbConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(repository.AllModels()...); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), cfg.MigrationsDir, zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)
	authorizer := authz.MustNew()
	m := metrics.New(cfg.ServiceName)
	clk := clock.RealClock{}

	// Payout and booking-creation serialization. Redis is required once more than one replica runs.
	var locker lock.Locker
	if cfg.RedisConfig.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			zapLogger.Fatal("failed to connect to redis", zap.Error(err))
		}
		cancel()
		locker = lock.NewRedisLocker(redisClient, cfg.Booking.LockTTL)
		zapLogger.Info("using redis locker", zap.String("addr", cfg.RedisConfig.Addr))
	} else {
		locker = lock.NewLocalLocker()
		zapLogger.Warn("redis disabled, using in-process locker (single instance only)")
	}

	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()
	notifier := adapter.NewKafkaNotifier(kafkaProducer, cfg.ServiceName,
		cfg.Notifier.Timeout, cfg.Notifier.MaxInFlight, zapLogger)
	defer notifier.Close()

	// Mock providers for development; production swaps in real adapters behind the same interfaces.
	gateway := adapter.NewMockGateway(cfg.Gateway.Latency, zapLogger)
	meetings := adapter.NewMockMeetingProvider(cfg.Meeting.BaseURL, zapLogger)

	uow := repository.NewUnitOfWork(db)

	catalogService := application.NewCatalogService(uow, authorizer, clk, cfg.Booking.Currency, zapLogger)
	sessionService := application.NewSessionService(uow, authorizer, meetings, notifier, m, clk,
		cfg.Meeting.Timeout, zapLogger)
	paymentService := application.NewPaymentService(uow, authorizer, gateway, sessionService, notifier, m, clk,
		cfg.Gateway.Timeout, zapLogger)
	bookingService := application.NewBookingService(uow, authorizer, locker, paymentService, notifier, m, clk,
		application.BookingPolicy{
			PlatformFeePercent: cfg.Booking.PlatformFeePercent,
			LockWait:           cfg.Booking.LockWait,
			PaymentTTL:         cfg.Booking.PaymentTTL,
		}, zapLogger)
	disputeService := application.NewDisputeService(uow, authorizer, paymentService, notifier, clk, zapLogger)
	walletService := application.NewWalletService(uow, authorizer, locker, notifier, m, clk,
		cfg.Booking.Currency, cfg.Booking.LockWait, zapLogger)

	checkoutSaga := saga.NewCheckoutSaga(paymentService, zapLogger)

	// Gateway settlement consumer
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + cfg.ServiceName
	settlementConsumer := learningEvents.NewGatewaySettlementConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		paymentService,
		m,
		zapLogger,
	)
	defer settlementConsumer.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go func() {
		zapLogger.Info("starting gateway settlement consumer")
		if err := settlementConsumer.Start(bgCtx); err != nil {
			if bgCtx.Err() == nil {
				zapLogger.Error("gateway settlement consumer failed", zap.Error(err))
			}
		}
	}()

	expirationJob := jobs.NewBookingExpirationJob(bookingService,
		cfg.Booking.ExpiryInterval, cfg.Booking.PendingTTL, cfg.Booking.ExpiryBatch, zapLogger)
	expirationJob.Start(bgCtx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler(db, cfg.ServiceName).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apiV1 := router.Group("/api/v1")
	handler.NewCatalogHandler(catalogService).RegisterRoutes(apiV1, jwtManager)
	handler.NewBookingHandler(bookingService, sessionService, paymentService).RegisterRoutes(apiV1, jwtManager)
	handler.NewPaymentHandler(paymentService, checkoutSaga).RegisterRoutes(apiV1, jwtManager)
	handler.NewSessionHandler(sessionService).RegisterRoutes(apiV1, jwtManager)
	handler.NewDisputeHandler(disputeService).RegisterRoutes(apiV1, jwtManager)
	handler.NewPayoutHandler(walletService).RegisterRoutes(apiV1, jwtManager)
	handler.NewAdminHandler(paymentService, sessionService, disputeService, walletService).RegisterRoutes(apiV1, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + cfg.ServiceName + "...")

	bgCancel()
	expirationJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(cfg.ServiceName + " stopped")
}
