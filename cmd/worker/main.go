package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/config"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/operation"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
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
	tracker := status.NewTracker(repo, cfg.Status.RecordTTL, logger).
		WithJournal(capture.NewPostgresFeed(repo.Pool()))

	q, err := queue.NewJetStream(ctx, queue.JetStreamConfig{
		URL:           cfg.NATS.URL,
		ClientName:    cfg.NATS.Name + "-worker",
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

	registry := operation.NewRegistry()
	for kind, url := range cfg.Worker.OperationURLs {
		registry.Register(operation.NewHTTPOperation(kind, url, cfg.Worker.OperationTimeout))
	}
	if len(registry.Kinds()) == 0 {
		log.Fatalf("No operations configured; set worker.operation_urls")
	}

	pool := worker.NewPool(q, registry, tracker, worker.Config{
		Concurrency:      cfg.Worker.Concurrency,
		ReceiveBatch:     cfg.Worker.ReceiveBatch,
		ReceiveWait:      cfg.Worker.ReceiveWait,
		OperationTimeout: cfg.Worker.OperationTimeout,
	}, logger)

	if err := pool.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}

	srv := server.New(cfg.Server, nil)
	go func() {
		logger.Info("worker service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down worker service")
	if err := pool.Stop(); err != nil {
		logger.Error("failed to stop worker pool", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("worker service stopped")
}
