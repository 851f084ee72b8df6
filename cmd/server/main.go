// Package main runs the club registration HTTP server with WebSocket status channels and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paddle-club/backend/config"
	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/calendar"
	"github.com/paddle-club/backend/internal/middleware"
	"github.com/paddle-club/backend/internal/realtime"
	"github.com/paddle-club/backend/internal/registrations"
	"github.com/paddle-club/backend/pkg/database"
	"github.com/paddle-club/backend/pkg/queue"
	"github.com/paddle-club/backend/pkg/redis"
	"github.com/paddle-club/backend/pkg/response"
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

	var rosters *attendance.RosterExporter
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
			rosters = attendance.NewRosterExporter(s3Client)
		}
	}

	var lister calendar.Lister
	if cfg.Calendar.APIKey != "" && cfg.Calendar.ID != "" {
		google, err := calendar.NewGooglePublicLister(ctx, cfg.Calendar.APIKey, logger)
		if err != nil {
			logger.Warn("event listing disabled", zap.Error(err))
		} else {
			ttl := time.Duration(cfg.Calendar.EventsCacheTTL) * time.Second
			lister = calendar.NewCachedLister(google, calendar.NewRedisCache(rdb.Client), ttl, logger)
		}
	}

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationSvc := registrations.NewService(registrationRepo, jobQueue, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)

	// Attendance
	attendanceRepo := attendance.NewRepository(pool)
	attendanceHandler := attendance.NewHandler(attendanceRepo, rosters, logger)

	// Events
	eventsHandler := calendar.NewHandler(lister, cfg.Calendar.ID, logger)

	channel := realtime.NewChannel(hub, registrationRepo, attendanceRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	registrationHandler.Register(router)
	attendanceHandler.Register(router)
	eventsHandler.Register(router)

	// WebSocket status channels (read-only, no auth)
	router.GET("/ws/registrations/:id", realtime.ServeRegistration(channel, logger))
	router.GET("/ws/attendance", realtime.ServeAttendance(channel, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
