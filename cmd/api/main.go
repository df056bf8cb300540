package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kmassidik/movegh/internal/app"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/kafka"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/common/redis"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/ops"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/payout"
	"github.com/kmassidik/movegh/internal/settlement"
	"github.com/kmassidik/movegh/pkg/outbox"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("api")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("movegh-api")
	defer log.Sync()

	// Connect to database
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(schemaCtx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	schemaCancel()

	// Connect to Redis
	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Kafka producer
	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	log.Info("Checking Kafka connection...")
	kafkaCtx, kafkaCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := producer.Ping(kafkaCtx); err != nil {
		log.Fatalf("Failed to connect to Kafka: %v", err)
	}
	kafkaCancel()
	log.Info("Kafka is healthy")

	services, err := app.Build(cfg, database, redisClient, log)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}
	log.Infof("Payments mode=%s provider=%s providers=%v", cfg.Payments.Mode, cfg.Payments.Provider, services.Providers.Names())

	mux := http.NewServeMux()
	opsAuth := middleware.OpsKeyAuth(cfg.Ops.APIKeyHash)

	payment.NewHandler(services.Payments, cfg.Payments.Currency, log).RegisterRoutes(mux, cfg.JWT.Secret)
	payout.NewHandler(services.Payouts, log).RegisterRoutes(mux, cfg.JWT.Secret)
	ledger.NewHandler(services.Ledger).RegisterRoutes(mux, opsAuth)
	ops.NewHandler(services.Ops, log).RegisterRoutes(mux, opsAuth)

	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(log)(handler)

	// Background workers
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	publisher := outbox.NewPublisher(services.Outbox, producer, log, cfg.Ops.OutboxInterval)
	go publisher.Start(workerCtx)
	log.Info("Outbox publisher started")

	go services.Ledger.RunAuditor(workerCtx, cfg.Ops.InvariantCheckInterval)
	log.Infof("Ledger invariant auditor started (every %s)", cfg.Ops.InvariantCheckInterval)

	reportSource := kafka.NewConsumer(cfg.Kafka, settlement.TopicSettlementReports, log)
	defer reportSource.Close()
	go settlement.NewReportConsumer(reportSource, services.Settlement, log).Run(workerCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Payments API starting on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancelWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully")
}
