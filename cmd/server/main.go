package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"airpay/internal/api"
	"airpay/internal/blockchain/evm"
	"airpay/internal/bot"
	"airpay/internal/config"
	"airpay/internal/notify"
	"airpay/internal/service"
	"airpay/internal/store/db"
	"airpay/internal/worker"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting AirPay service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.String("admin_wallet", cfg.Chain.AdminWallet),
		zap.String("store_backend", cfg.Store.Backend))

	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	defer startupCancel()

	// Connect to the chain; no reachable provider is fatal
	client, err := evm.NewClient(startupCtx, &cfg.Chain, logger)
	if err != nil {
		logger.Fatal("No RPC provider reachable", zap.Error(err))
	}
	defer client.Close()

	// Open record store
	stores, err := db.Open(startupCtx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.Error(err))
	}
	defer stores.Close()

	// Notification sinks
	telegram, err := notify.NewTelegram(cfg.Bot.APIURL, cfg.Bot.Token)
	if err != nil {
		logger.Fatal("Failed to create Telegram client", zap.Error(err))
	}
	logger.Info("Telegram bot authorized", zap.String("username", telegram.Username()))
	notifiers := notify.Multi{telegram}

	if cfg.Broker.URL != "" {
		broker, err := notify.NewAMQP(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logger.Fatal("Failed to connect to notification broker", zap.Error(err))
		}
		defer broker.Close()
		notifiers = append(notifiers, broker)
		logger.Info("Publishing notifications to broker", zap.String("exchange", cfg.Broker.Exchange))
	}
	if os.Getenv("ENV") != "production" {
		notifiers = append(notifiers, notify.NewLog(logger))
	}

	// Initialize services
	forwarder := evm.NewForwarder(client, cfg.Deposit.SweepReserveGas, logger)
	workerManager := worker.NewWorkerManager(cfg, client, forwarder, stores.Transactions, notifiers, logger)
	depositService := service.NewDepositService(workerManager, stores.Transactions, notifiers, logger)
	bulkService := service.NewBulkService(stores.Accounts, client, forwarder, notifiers, logger)
	feeService := service.NewFeeService(client, logger)
	dispatcher := bot.NewDispatcher(depositService, bulkService, notifiers, logger)

	logger.Info("Services initialized")

	// Initialize API handlers
	apiHandler := api.NewHandler(cfg, dispatcher, telegram, stores.Transactions, workerManager.Registry(), feeService, logger)
	router := api.SetupRouter(apiHandler, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start workers
	workerManager.Start()
	logger.Info("Workers started")

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.String("rpc_endpoint", client.Endpoint()),
		zap.String("chain_id", client.ChainID().String()),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	timeout := cfg.Server.ShutdownTimeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Stop accepting updates, then let in-flight ones finish
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}
	if !apiHandler.Wait(timeout) {
		logger.Error("Gave up waiting for chat updates", zap.Duration("timeout", timeout))
	}

	// Sweeps already confirmed get the same budget to settle
	if err := workerManager.Shutdown(timeout); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
