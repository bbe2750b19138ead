package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/api"
	"github.com/zr01/ledgee/internal/api/middleware"
	"github.com/zr01/ledgee/internal/config"
	"github.com/zr01/ledgee/internal/db"
	"github.com/zr01/ledgee/internal/idempotency"
	"github.com/zr01/ledgee/internal/observability"
	"github.com/zr01/ledgee/internal/reconcile"
	"github.com/zr01/ledgee/internal/repository"
	"github.com/zr01/ledgee/internal/sequence"
	"github.com/zr01/ledgee/internal/service"
	"github.com/zr01/ledgee/internal/stream"
	"github.com/zr01/ledgee/internal/worker"
)

// Run bootstraps the posting API, the stream consumer, and the batch
// reconcile worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	seqRepo := repository.NewSequenceRepository(store)

	debitAlloc := sequence.NewAllocator("dr", cfg.AllocatorBatchSize, sequence.NewDateFormatter(), seqRepo.Reserver(repository.LedgerSequence))
	creditAlloc := sequence.NewAllocator("cr", cfg.AllocatorBatchSize, sequence.NewDateFormatter(), seqRepo.Reserver(repository.LedgerSequence))
	accountAlloc := sequence.NewAllocator("ac", cfg.AllocatorBatchSize, sequence.NewEncodedFormatter(), seqRepo.Reserver(repository.AccountSequence))

	accountSvc := service.NewVirtualAccountService(store, accountAlloc)
	auditSvc := service.NewAuditService(store)
	entryPublisher := stream.NewEntryPublisher(redisClient)
	ledgerSvc := service.NewLedgerService(store, accountSvc, auditSvc, service.Allocators{
		Debit:   debitAlloc,
		Credit:  creditAlloc,
		Account: accountAlloc,
	}, entryPublisher)

	// Stream side: recorded entries fold into per-key aggregates; results
	// route to the reconciled stream or its dead letter.
	processor := reconcile.NewProcessor(
		reconcile.NewRedisRecordStore(redisClient),
		stream.NewRecordPublisher(redisClient, stream.ReconciledStream),
		stream.NewRecordPublisher(redisClient, stream.DeadLetterStream),
	)
	dispatcher := stream.NewDispatcher(cfg.StreamShards, 64, processor.Process)
	dispatcher.Start(ctx)

	consumer := stream.NewConsumer(redisClient, cfg.StreamGroup, consumerName(cfg), dispatcher)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("stream consumer stopped", zap.Error(err))
		}
	}()

	reconciler := service.NewBatchReconciler(
		service.NewPgReconcileStore(store, auditSvc),
		cfg.BatchReconcileMaxAge,
		cfg.BatchReconcileSize,
	)
	reconcileWorker := worker.NewReconcileWorker(reconciler).WithInterval(cfg.BatchReconcileEvery)
	stopWorker := reconcileWorker.Run(ctx)

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, ledgerSvc, accountSvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping batch reconcile worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Stop the consumer before the dispatcher so nothing dispatches into
	// closed shards.
	cancel()
	<-consumerDone
	dispatcher.Stop()

	logger.Info("shutdown complete")
	return nil
}

func consumerName(cfg *config.Config) string {
	if cfg.StreamConsumerName != "" {
		return cfg.StreamConsumerName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ledgee-consumer"
	}
	return host
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
