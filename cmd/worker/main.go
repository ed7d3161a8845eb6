// Package main runs the background synthesis worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anchordesk/backend/config"
	"github.com/anchordesk/backend/internal/realtime"
	"github.com/anchordesk/backend/internal/reports"
	"github.com/anchordesk/backend/internal/synthesis"
	"github.com/anchordesk/backend/internal/synthesizer"
	"github.com/anchordesk/backend/internal/translations"
	"github.com/anchordesk/backend/internal/worker"
	"github.com/anchordesk/backend/pkg/database"
	"github.com/anchordesk/backend/pkg/queue"
	"github.com/anchordesk/backend/pkg/redis"
	"github.com/anchordesk/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		AudioBucket:          cfg.AWS.AudioBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	callTimeout := time.Duration(cfg.Pipeline.RequestTimeout) * time.Second
	backoff := time.Duration(cfg.Pipeline.RetryBackoffSec * float64(time.Second))
	synthClient := synthesizer.NewClient(cfg.Pipeline.SynthesizerURL, cfg.Pipeline.APIKey,
		callTimeout, cfg.Pipeline.RetryCount, backoff, logger)

	reportRepo := reports.NewRepository(pool)
	variantRepo := translations.NewRepository(pool)
	reflectionRepo := synthesis.NewRepository(pool)
	coordinator := synthesis.NewCoordinator(reportRepo, variantRepo, reflectionRepo, synthClient, s3Client, logger)

	// Completions are published through Redis so the server instances push
	// them to connected clients.
	notifier := realtime.NewHub(realtime.NewRedisPubSub(rdb.Client, logger), logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewSynthesisProcessor(coordinator, jobQueue, notifier, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
