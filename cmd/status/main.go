package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/config"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/server"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/status"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrationsPath := flag.String("migrations", "file://migrations", "migrations source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Postgres.ConnString()

	logger.Info("running database migrations")
	m, err := migrate.New(*migrationsPath, connString)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := status.NewPostgresRepository(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	journal := capture.NewPostgresFeed(repo.Pool())
	tracker := status.NewTracker(repo, cfg.Status.RecordTTL, logger).WithJournal(journal)
	handler := status.NewHandler(tracker, journal, logger)

	reaper := status.NewReaper(repo, cfg.Status.ReaperInterval, logger)
	go reaper.Run(ctx)

	srv := server.New(cfg.Server, handler)

	go func() {
		logger.Info("status service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down status service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("status service stopped")
}
