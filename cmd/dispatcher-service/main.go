package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jetpredict-notifier/internal/dispatcher/config"
	delivery "jetpredict-notifier/internal/dispatcher/delivery/http"
	"jetpredict-notifier/internal/dispatcher/repository"
	"jetpredict-notifier/internal/dispatcher/service"
	"jetpredict-notifier/pkg/logger"
	"jetpredict-notifier/pkg/postgres"
	"jetpredict-notifier/pkg/push"
	"jetpredict-notifier/pkg/redis"
	"jetpredict-notifier/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the prediction-alert dispatcher service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Dispatcher Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize push gateway
	pushTimeout := time.Duration(0)
	if cfg.Push.Timeout != "" {
		pushTimeout, err = time.ParseDuration(cfg.Push.Timeout)
		if err != nil {
			appLogger.Fatal("Invalid push timeout", logger.ErrorField(err))
		}
	}
	pushNotifier, err := push.NewClient(push.Config{
		Endpoint:  cfg.Push.Endpoint,
		ServerKey: cfg.Push.ServerKey,
		Timeout:   pushTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize push gateway", logger.ErrorField(err))
	}

	// Initialize Telegram notifier (optional fallback channel)
	var telegramNotifier telegram.Notifier
	if cfg.Telegram.BotToken != "" {
		telegramNotifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	markerTTL := 10 * time.Minute
	if cfg.Dispatcher.MarkerTTL != "" {
		markerTTL, err = time.ParseDuration(cfg.Dispatcher.MarkerTTL)
		if err != nil {
			appLogger.Fatal("Invalid marker TTL", logger.ErrorField(err))
		}
	}
	predictionRepo := repository.NewPredictionRepository(db.DB, appLogger)
	userRepo := repository.NewUserRepository(db.DB)
	runRepo := repository.NewDispatchRunRepository(db.DB)
	markerRepo := repository.NewAlertMarkerRepository(redisClient, markerTTL)

	// Initialize services
	dispatcherSvc, err := service.NewDispatcherService(cfg, appLogger, predictionRepo, userRepo, markerRepo, runRepo, pushNotifier, telegramNotifier)
	if err != nil {
		appLogger.Fatal("Failed to initialize dispatcher service", logger.ErrorField(err))
	}
	runHistorySvc := service.NewRunHistoryService(runRepo, appLogger)

	// Start the dispatch loop
	if err := dispatcherSvc.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start dispatcher", logger.ErrorField(err))
	}

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Initialize handlers and routes
	apiV1 := e.Group("/api/v1")

	runHandler := delivery.NewRunHandler(runHistorySvc, appLogger)
	runsGroup := apiV1.Group("/runs")
	runHandler.RegisterRoutes(runsGroup)

	dispatchHandler := delivery.NewDispatchHandler(dispatcherSvc, appLogger)
	dispatchGroup := apiV1.Group("/dispatch")
	dispatchHandler.RegisterRoutes(dispatchGroup)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	dispatcherSvc.Stop()

	// Gracefully shutdown the server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "dispatcher-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-dispatcher.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing dispatcher-service CLI: %s\n", err)
		os.Exit(1)
	}
}
