// Package main runs the trigger worker: ledger updates, calendar sync and the stale-trigger sweeper.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paddle-club/backend/config"
	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/calendar"
	"github.com/paddle-club/backend/internal/calsync"
	"github.com/paddle-club/backend/internal/ledger"
	"github.com/paddle-club/backend/internal/realtime"
	"github.com/paddle-club/backend/internal/registrations"
	"github.com/paddle-club/backend/internal/worker"
	"github.com/paddle-club/backend/pkg/database"
	"github.com/paddle-club/backend/pkg/queue"
	"github.com/paddle-club/backend/pkg/redis"
	"github.com/paddle-club/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	registrationRepo := registrations.NewRepository(pool)
	attendanceRepo := attendance.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Changes are published to Redis only; the API servers fan them out.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger), nil)
	engine := ledger.NewEngine(registrationRepo, attendanceRepo, jobQueue, hub, logger)

	// Calendar sync. Without credentials every sync is recorded as ERROR on the attendance record.
	var provider calendar.Provider = calendar.Unavailable{Err: errors.New("CALENDAR_ID not set")}
	if cfg.Calendar.ID != "" {
		google, err := calendar.NewGoogleProvider(ctx, cfg.Calendar.KeyBase64, logger)
		if err != nil {
			logger.Warn("calendar credentials unavailable", zap.Error(err))
			provider = calendar.Unavailable{Err: err}
		} else {
			provider = google
		}
	}
	var syncer *calsync.Syncer
	if cfg.AWS.Region != "" && cfg.AWS.RosterBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RosterBucket:         cfg.AWS.RosterBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("roster export disabled", zap.Error(err))
		} else {
			syncer = calsync.NewSyncer(attendanceRepo, provider, cfg.Calendar.ID, attendance.NewRosterExporter(s3Client), logger)
		}
	}
	if syncer == nil {
		syncer = calsync.NewSyncer(attendanceRepo, provider, cfg.Calendar.ID, nil, logger)
	}

	processor := worker.NewTriggerProcessor(jobQueue, engine, syncer, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(workerCtx)
		}()
	}

	if cfg.Worker.SweepInterval > 0 {
		sweeper := worker.NewSweeper(registrationRepo, attendanceRepo, jobQueue,
			time.Duration(cfg.Worker.SweepInterval)*time.Second,
			time.Duration(cfg.Worker.SweepStaleAfter)*time.Second,
			logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(workerCtx)
		}()
	}
	logger.Info("worker started", zap.Int("concurrency", concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
