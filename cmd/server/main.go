package main

import (
	"context"
	"duo-chat/auth"
	"duo-chat/infrastructure/grpc/server"
	httpserver "duo-chat/infrastructure/http/server"
	"duo-chat/infrastructure/socket"
	"duo-chat/internal"
	"duo-chat/repositories"
	"duo-chat/runtime"
	"duo-chat/runtime/workers"
	"duo-chat/services"
	"duo-chat/storage"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle and centralizes error reporting.
// Deferred cleanups (database, index) always run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Stores & Services
	messageRepository, err := repositories.NewMessageRepository(db, logger)
	if err != nil {
		return exitRuntime, err
	}
	// Runs before the database is closed.
	defer func() { _ = messageRepository.Close() }()

	files, err := storage.NewFileStore(config.UploadDir, config.MaxUploadBytes(), logger)
	if err != nil {
		return exitRuntime, err
	}
	messageIndex := repositories.NewMessageIndex(blugeWriter, logger)
	registry := runtime.NewRegistry(logger)
	router := runtime.NewRouter(registry, logger)
	chatService := services.NewChatService(messageRepository, files, messageIndex, registry, router, logger)
	verifier := auth.NewTokenVerifier(config.JWTSecret)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)

	// 5. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, files, runtime.Intervals{
		Metric:           config.MetricInterval,
		Janitor:          config.JanitorInterval,
		PartialUploadTTL: config.PartialUploadTTL,
	})
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP & websocket
	socketHandler := socket.NewHandler(ctx, chatService, verifier, config.ConnectionBufferSize, config.Origins(), logger)
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           httpserver.NewServer(chatService, files, verifier, socketHandler.ServeHTTP, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	healthServer := server.NewHealthServer(logger)
	go func() {
		if err := healthServer.Serve(listener); err != nil {
			errChan <- err
		}
	}()
	healthServer.SetServing(true)

	// 8. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		logger.Error("Server failure, shutting down", "error", runErr)
	}

	// 9. Graceful Shutdown
	// Websocket clients are closed by ctx, in-flight requests get ShutdownTimeout to finish.
	logger.Info("Shutting down gracefully...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	healthServer.SetServing(false)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not stop cleanly", "error", err)
	}
	healthServer.Stop(shutdownCtx)
	orchestrator.Stop()

	if runErr != nil {
		return exitRuntime, runErr
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// RecordMapper renders conversations and messages in the debug inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	record := repositories.DescribeRecord(key, val)
	row.Type = record.Type
	row.Detail = record.Detail
	return row
}
