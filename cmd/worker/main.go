// Package main provides the pipeline worker entry point: queue consumers,
// periodic jobs and the ops HTTP server in one process.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fill-tracker/internal/chain"
	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/consumer"
	"github.com/fill-tracker/internal/decoder"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/measure"
	"github.com/fill-tracker/internal/ops"
	"github.com/fill-tracker/internal/pricing"
	"github.com/fill-tracker/internal/queue"
	"github.com/fill-tracker/internal/scheduler"
	"github.com/fill-tracker/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Backing stores
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redisClient, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() { _ = redisClient.Close() }()

	store := storage.NewStore(postgres)

	// The analytics archive is optional; without it measured fills are
	// only written to Postgres.
	var archive *storage.FillArchiveRepository
	if cfg.Database.ClickHouse.Enabled() {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer func() { _ = clickhouse.Close() }()
		archive = storage.NewFillArchiveRepository(clickhouse)
		logger.Info("ClickHouse archive enabled")
	}

	// Chain access
	chainClient, err := chain.NewClient(&cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer chainClient.Close()

	dec, err := decoder.New()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build log decoder")
	}

	// Pricing
	provider := pricing.NewCoinGeckoClient(cfg.Pricing)
	resolver := pricing.NewResolver(provider, logger.WithField("component", "pricing"))

	// Queue consumers
	q := queue.New(redisClient, &cfg.Queue, logger.WithField("component", "queue"))

	fetcher := consumer.NewTransactionFetcher(chainClient, dec, store, q,
		logger.WithField("component", "fetch-transaction"))
	classifier := consumer.NewAddressTypeFetcher(chainClient, store.AddressMetadata,
		logger.WithField("component", "fetch-address-type"))

	q.Register(queue.QueueTransactionProcessing, queue.JobFetchTransaction, fetcher.Handle)
	q.Register(queue.QueueAddressProcessing, queue.JobFetchAddressType, classifier.Handle)

	// Periodic jobs
	fillScheduler := scheduler.NewFillCreationScheduler(store.Events, store.Transactions, q,
		&cfg.Scheduler, logger.WithField("component", "fill-creation-scheduler"))

	var archiveAppender measure.ArchiveAppender
	if archive != nil {
		archiveAppender = archive
	}
	measurer := measure.NewMeasurer(chainClient, resolver, store, archiveAppender,
		&cfg.Measurer, logger.WithField("component", "measurer"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start queue consumers")
	}

	go fillScheduler.Run(ctx)
	go measurer.Run(ctx)

	// Ops server
	opsServer := ops.NewServer(&cfg.Ops, postgres, q, logger.WithField("component", "ops"))
	go func() {
		if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Ops server stopped")
		}
	}()

	logger.Info("Worker started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	cancel()
	q.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Ops server shutdown failed")
	}

	logger.Info("Worker stopped")
}
