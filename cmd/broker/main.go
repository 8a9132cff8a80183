package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "query-broker/internal/api/http"
	"query-broker/internal/broker"
	"query-broker/internal/config"
	"query-broker/internal/domain"
	"query-broker/internal/infra/etcd"
	"query-broker/internal/infra/file"
	grpc_infra "query-broker/internal/infra/grpc"
	"query-broker/internal/infra/redis"
	"query-broker/internal/master"
	"query-broker/internal/scheduler"
	"query-broker/internal/tracing"
	"query-broker/internal/usecase"

	"github.com/gin-gonic/gin"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// eventSource is the name the broker publishes its event-stream messages under.
const eventSource = "master"

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer(tracing.BrokerService, "", os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	log.Println("Starting query broker...")

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	policy, err := domain.ParseEmptyCredentialPolicy(cfg.EmptyCredentialPolicy)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Setup graceful shutdown
	setupGracefulShutdown(cancel)

	// 5. Init the pub/sub bus. Subscriptions retry on their own, so an unreachable
	// Redis at startup is not fatal.
	rdb := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	topics := redis.NewTopics(cfg.TopicPrefix)
	bus := redis.NewBus(rdb, topics, eventSource, logger)
	if err := bus.Ping(rootCtx); err != nil {
		logger.Warn("redis not reachable yet", "addr", cfg.RedisAddr, "error", err)
	} else {
		log.Printf("Connected to Redis at %s.", cfg.RedisAddr)
	}

	// 6. Instantiate the dispatch core
	pool := broker.NewCredentialPool(cfg.FallbackAPIKey, logger)
	dispatcher := broker.NewDispatcher(
		broker.NewRegistry(),
		broker.NewTaskQueue(),
		broker.NewSessionRouter(),
		pool,
		bus,
		bus,
		broker.Options{
			CallbackEndpoint:      cfg.CallbackEndpoint,
			EmptyCredentialPolicy: policy,
			CapabilityMatching:    cfg.CapabilityMatching,
		},
		logger,
	)
	completion := broker.NewCompletionHandler(dispatcher, logger)
	brokerService := usecase.NewBrokerService(dispatcher, completion, logger)
	diag := broker.NewDiagnosticReporter(bus, logger)

	// 7. Credentials
	var etcdClient *clientv3.Client
	var source domain.CredentialSource
	switch cfg.CredentialsSource {
	case "etcd":
		etcdClient, err = etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		pingCtx, cancelPing := context.WithTimeout(rootCtx, cfg.EtcdTimeout)
		if err := etcd.Reachable(pingCtx, etcdClient); err != nil {
			logger.Warn("etcd not reachable yet, credentials fall back until it is", "error", err)
		} else {
			log.Println("Connected to etcd.")
		}
		cancelPing()
		source = etcd.NewEtcdCredentialSource(etcdClient, cfg.CredentialsEtcdKey, logger)
	case "file", "":
		source = file.NewFileCredentialSource(cfg.CredentialsFile)
	default:
		log.Fatalf("Unknown credentials_source %q", cfg.CredentialsSource)
	}
	credentialService := usecase.NewCredentialService(source, pool, diag, logger)
	credentialService.LoadInitial(rootCtx)

	if watcher, ok := source.(*etcd.EtcdCredentialSource); ok {
		go watcher.Watch(rootCtx, func(ctx context.Context) {
			if err := credentialService.Reload(ctx); err != nil {
				logger.Error("credential reload after watch event failed", "error", err)
			}
		})
	}

	// 8. Periodic jobs
	cronScheduler := scheduler.NewCronScheduler(logger)
	if cfg.CredentialReloadSchedule != "" {
		if err := cronScheduler.AddJob(scheduler.CredentialReloadJob, cfg.CredentialReloadSchedule, scheduler.CredentialReload(credentialService)); err != nil {
			log.Fatalf("Invalid credential_reload_schedule: %v", err)
		}
	}
	if cfg.AbandonedTaskAuditAt != "" && cfg.AbandonedTaskAfter > 0 {
		audit := scheduler.NewAbandonedTaskAudit(dispatcher, diag, cfg.AbandonedTaskAfter)
		if err := cronScheduler.AddJob(scheduler.AbandonedTaskAuditJob, cfg.AbandonedTaskAuditAt, audit.Run); err != nil {
			log.Fatalf("Invalid abandoned_task_audit_schedule: %v", err)
		}
	}
	go func() {
		if err := cronScheduler.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("cron scheduler stopped with error", "error", err)
		}
	}()

	// 9. Worker events
	discovery := master.NewWorkerDiscovery(bus, topics, brokerService, eventSource, logger)
	go func() {
		if err := discovery.WatchWorkers(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker discovery stopped with error", "error", err)
		}
	}()

	// 10. Completion callback server
	lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	grpcServer := grpc_infra.NewServer(grpc_infra.NewCallbackServer(brokerService, logger))
	log.Printf("gRPC callback server listening on %s, advertised as %s", cfg.GrpcListenAddr, cfg.CallbackEndpoint)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 11. Web server
	gin.SetMode(gin.ReleaseMode)
	router := http_api.NewRouter(http_api.NewHandler(brokerService, logger))
	log.Printf("Starting HTTP server on %s", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: router,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 12. Block until shutdown
	<-rootCtx.Done()
	log.Println("Shutting down broker gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()

	log.Println("Broker shut down.")
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
