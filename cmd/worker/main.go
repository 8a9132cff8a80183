package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"query-broker/internal/config"
	"query-broker/internal/domain"
	grpc_infra "query-broker/internal/infra/grpc"
	http_infra "query-broker/internal/infra/http"
	"query-broker/internal/infra/redis"
	shell_infra "query-broker/internal/infra/shell"
	"query-broker/internal/tracing"
	"query-broker/internal/worker"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Init logger, config, etc.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "go-worker-" + uuid.New().String()[:8]
	}
	log.Printf("Starting worker node %s (%s executor)", workerID, cfg.Executor)

	tracerShutdown, err := tracing.InitTracer(tracing.WorkerService, workerID, os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Setup graceful shutdown
	setupGracefulShutdown(cancel)

	// 4. Init the pub/sub bus
	rdb := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	topics := redis.NewTopics(cfg.TopicPrefix)
	bus := redis.NewBus(rdb, topics, workerID, logger)
	if err := bus.Ping(rootCtx); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	log.Printf("Connected to Redis at %s.", cfg.RedisAddr)

	// 5. Instantiate the executor
	var executor domain.TaskExecutor
	switch cfg.Executor {
	case "http":
		executor = http_infra.NewHttpTaskExecutor(cfg.HttpEndpoint, cfg.ExecTimeout, logger)
	case "shell":
		executor = shell_infra.NewShellTaskExecutor(cfg.ShellCommand, cfg.ExecTimeout, logger)
	default:
		log.Fatalf("Unknown executor %q", cfg.Executor)
	}

	sender := grpc_infra.NewCallbackClient(logger)
	defer sender.Close()

	registry := worker.NewRegistry(bus, topics, workerID, cfg.Language, logger)
	defer func() {
		deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer deregCancel()
		if err := registry.Deregister(deregCtx); err != nil {
			logger.Error("failed to deregister worker", "error", err)
		}
	}()

	workerServer := worker.NewServer(bus, topics, registry, executor, sender, worker.Options{
		WorkerID:      workerID,
		ExecutorName:  cfg.Executor,
		SimulateDelay: cfg.SimulateDelay,
	}, logger)

	// 6. Optional metrics endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("metrics server failed: %v", err)
			}
		}()
	}

	// 7. Process tasks until shutdown
	if err := workerServer.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
	}
	log.Println("Shutting down worker node gracefully...")

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Println("Worker node shut down.")
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}
