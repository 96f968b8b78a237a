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

	"distribution-service/config"
	"distribution-service/internal/api"
	"distribution-service/internal/broker"
	"distribution-service/internal/courier"
	"distribution-service/internal/pos"
	"distribution-service/internal/redisclient"
	"distribution-service/internal/service"
	"distribution-service/internal/store"
	"distribution-service/internal/util"
	"distribution-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting distribution service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)

	courierClient := courier.NewClient(cfg.Courier.BaseURL, cfg.Courier.APIKey, cfg.Business.ExternalCallTimeout)
	posClient := pos.NewClient(cfg.POS.BaseURL, cfg.POS.APIKey, cfg.POS.RateLimitPerMin, cfg.Business.ExternalCallTimeout)

	services := api.Services{
		Catalog:  service.NewCatalogService(db),
		Ledger:   service.NewLedgerService(db, eventPublisher),
		Requests: service.NewRequestService(db, eventPublisher),
		Orders: service.NewOrderService(db, courierClient, redisClient, eventPublisher, service.OrderConfig{
			ExternalCallTimeout: cfg.Business.ExternalCallTimeout,
			BookingLockTTL:      cfg.Business.BookingLockTTL,
		}),
		Imports:  service.NewImportService(db, posClient, eventPublisher, cfg.POS.ExcludedProducts),
		Rewards:  service.NewRewardService(db),
		Balances: service.NewBalanceCache(db, redisClient),
	}

	ctx := context.Background()
	if err := services.Balances.Rebuild(ctx); err != nil {
		logger.Warn("Failed to rebuild balance projection", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	projectionConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory, cfg.Kafka.ProjectionGroup)
	projector := worker.NewBalanceProjector(projectionConsumer, services.Balances, redisClient)
	go func() {
		if err := projector.Start(workerCtx); err != nil {
			logger.Error("Balance projector error", zap.Error(err))
		}
	}()

	posSync := worker.NewPOSSyncWorker(services.Imports, cfg.POS.SellerAccounts, cfg.POS.SyncInterval)
	go func() {
		if err := posSync.Start(workerCtx); err != nil {
			logger.Error("POS sync worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := projector.Stop(); err != nil {
		logger.Warn("Failed to stop balance projector", zap.Error(err))
	}

	logger.Info("Server exited")
}
