// Package main runs the background export worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dfworx/chat-backend/config"
	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/export"
	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/organizations"
	"github.com/dfworx/chat-backend/internal/posts"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/worker"
	"github.com/dfworx/chat-backend/pkg/database"
	"github.com/dfworx/chat-backend/pkg/queue"
	"github.com/dfworx/chat-backend/pkg/redis"
	"github.com/dfworx/chat-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Chat.StoreDriver != "postgres" {
		logger.Fatal("the export worker needs the postgres store", zap.String("store", cfg.Chat.StoreDriver))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, "chat", cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		Endpoint:             cfg.AWS.Endpoint,
		AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
		ExportsBucket:        cfg.AWS.ExportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	m := metrics.New()
	resolver, closePosts := posts.Open(ctx, cfg, pool, rdb.Client, m, logger)
	defer closePosts()
	var postResolver chat.PostResolver
	if resolver != nil {
		postResolver = resolver
	}
	chatSvc := newChatService(cfg, store.NewPostgres(pool), organizations.NewRepository(pool), postResolver, m, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	jobs := export.NewJobs(rdb.Client, jobQueue, chatSvc, cfg.Chat.ExportStatusTTL, logger)
	exporter := export.NewExporter(chatSvc, cfg.Chat.ExportMaxMessages, m, logger)
	processor := worker.NewExportProcessor(exporter, jobs, s3Client, jobQueue, logger).
		WithPollTimeout(cfg.Worker.PollTimeout)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("export worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}

// newChatService builds the read side used by exports. Exports carry the
// thread's post context, so the worker resolves posts the way the API does.
func newChatService(cfg *config.Config, st store.Store, dir chat.Directory, postResolver chat.PostResolver, m *metrics.Metrics, logger *zap.Logger) *chat.Service {
	return chat.NewService(chat.Deps{
		Store:     st,
		Directory: dir,
		Posts:     postResolver,
		Metrics:   m,
		Logger:    logger,
	}, chat.Options{
		DefaultPageSize: cfg.Chat.DefaultPageSize,
		MaxPageSize:     cfg.Chat.MaxPageSize,
	})
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
