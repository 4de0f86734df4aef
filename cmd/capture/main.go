package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/config"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/operation"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/pipeline"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/router"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/server"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/status"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := status.NewPostgresRepository(ctx, cfg.Postgres.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()
	feed := capture.NewPostgresFeed(repo.Pool())
	tracker := status.NewTracker(repo, cfg.Status.RecordTTL, logger).WithJournal(feed)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	q, err := queue.NewJetStream(ctx, queue.JetStreamConfig{
		URL:           cfg.NATS.URL,
		ClientName:    cfg.NATS.Name + "-capture",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
		Stream:        cfg.Queue.Stream,
		Subject:       cfg.Queue.Subject,
		Consumer:      cfg.Queue.Consumer,
	}, queue.Policy{
		VisibilityWindow: cfg.Queue.VisibilityWindow,
		MaxReceiveCount:  cfg.Queue.MaxReceiveCount,
		Retention:        cfg.Queue.Retention,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer q.Close()

	// Direct-invoke targets process items in this process rather than
	// through the queue; they share the worker's operation set.
	registry := operation.NewRegistry()
	for kind, url := range cfg.Worker.OperationURLs {
		registry.Register(operation.NewHTTPOperation(kind, url, cfg.Worker.OperationTimeout))
	}
	processor := worker.NewPool(q, registry, tracker, worker.Config{
		OperationTimeout: cfg.Worker.OperationTimeout,
	}, logger)

	specs, err := router.LoadSpecs(cfg.Capture.Subscriptions)
	if err != nil {
		log.Fatalf("Failed to load subscriptions: %v", err)
	}

	rt, err := router.Build(specs, func(spec router.TargetSpec) (router.DeliveryTarget, error) {
		switch spec.Type {
		case "queue":
			return router.NewQueueTarget(q, spec.Kind), nil
		case "direct":
			return router.NewDirectTarget(spec.Kind, processor.Process), nil
		default:
			return nil, errors.New("unknown target type " + spec.Type)
		}
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	adapter := capture.NewAdapter(capture.Config{
		SourceID:     cfg.Capture.SourceID,
		PollInterval: cfg.Capture.PollInterval,
		FetchLimit:   cfg.Capture.FetchLimit,
	}, feed, capture.NewRedisCheckpoints(redisClient),
		pipeline.EventHandler(rt, tracker, logger), logger)

	coord := pipeline.NewCoordinator(pipeline.Config{Adapter: adapter}, logger)
	if err := coord.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	srv := server.New(cfg.Server, nil)
	go func() {
		logger.Info("capture service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down capture service")
	if err := coord.Stop(); err != nil {
		logger.Error("failed to stop pipeline", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("capture service stopped")
}
