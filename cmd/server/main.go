package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tankerflow/booking-engine/internal/application"
	"github.com/tankerflow/booking-engine/internal/auth"
	"github.com/tankerflow/booking-engine/internal/config"
	"github.com/tankerflow/booking-engine/internal/events"
	"github.com/tankerflow/booking-engine/internal/handler"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store/remote"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *zap.Logger
	if cfg.AppEnv == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting booking-engine",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
	)

	// Connect to database. TranslateError maps driver unique-violation
	// errors onto gorm.ErrDuplicatedKey, which the remote adapters rely on.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(remote.AllModels()...); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, 15*time.Minute)

	// Initialize change-event publisher and the subscription manager fed
	// from the same topic
	publisher := events.NewChangePublisher(cfg.KafkaBrokers, cfg.ChangeTopic, log)
	defer func() { _ = publisher.Close() }()

	feed := realtime.NewKafkaFeed(cfg.KafkaBrokers, cfg.ChangeTopic, "booking-engine", log)
	manager := realtime.NewManager(feed, log)
	defer manager.Close()

	// Initialize storage adapters
	resolver := remote.NewIdentityResolver(db)
	bookings := remote.NewBookings(db, resolver, publisher, manager)
	vehicles := remote.NewVehicles(db, resolver, publisher, manager)
	accounts := remote.NewBankAccounts(db, resolver, publisher, manager)

	// Initialize application services
	lifecycle := application.NewBookingLifecycle(bookings, log)
	payments := application.NewPaymentCoordinator(bookings, log)
	fleetService := application.NewFleetService(vehicles, accounts, log)

	// Initialize HTTP handlers
	bookingHandler := handler.NewBookingHandler(lifecycle, payments)
	fleetHandler := handler.NewFleetHandler(fleetService)

	// Setup Gin router
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Register routes
	bookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	fleetHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down booking-engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("booking-engine stopped")
}
