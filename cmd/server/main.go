// Package main runs the chat HTTP API with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dfworx/chat-backend/config"
	"github.com/dfworx/chat-backend/internal/attachments"
	"github.com/dfworx/chat-backend/internal/auth"
	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/export"
	"github.com/dfworx/chat-backend/internal/exports"
	"github.com/dfworx/chat-backend/internal/messages"
	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/organizations"
	"github.com/dfworx/chat-backend/internal/posts"
	"github.com/dfworx/chat-backend/internal/reactions"
	"github.com/dfworx/chat-backend/internal/realtime"
	"github.com/dfworx/chat-backend/internal/search"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tags"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/internal/threads"
	"github.com/dfworx/chat-backend/pkg/database"
	"github.com/dfworx/chat-backend/pkg/queue"
	"github.com/dfworx/chat-backend/pkg/redis"
	"github.com/dfworx/chat-backend/pkg/response"
	"github.com/dfworx/chat-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	m := metrics.New()

	// Storage: Postgres, or the in-memory store for local runs.
	var (
		pool      *pgxpool.Pool
		chatStore store.Store
		orgRepo   *organizations.Repository
		directory chat.Directory
	)
	if cfg.Chat.StoreDriver == "postgres" {
		pool, err = database.NewPostgresPool(ctx, "chat", cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		chatStore = store.NewPostgres(pool)
		orgRepo = organizations.NewRepository(pool)
		directory = orgRepo
	} else {
		logger.Warn("using in-memory chat store; data is lost on restart")
		chatStore = store.NewMemory()
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Realtime: Redis pub/sub fans events out across instances.
	var hub *realtime.Hub
	if rdb != nil {
		ps := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, ps, ps)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	// Post context: the posts table may live in another database.
	var postResolver chat.PostResolver
	var cache *goredis.Client
	if rdb != nil {
		cache = rdb.Client
	}
	resolver, closePosts := posts.Open(ctx, cfg, pool, cache, m, logger)
	defer closePosts()
	if resolver != nil {
		postResolver = resolver
	}

	// Search: Meilisearch when enabled, store scan otherwise.
	var engine search.Engine
	if cfg.Search.Enabled {
		meili := search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliAPIKey, cfg.Search.HealthInterval, logger)
		defer meili.Close()
		engine = meili
	}
	searchSvc := search.NewService(engine, chatStore, m, logger)

	chatSvc := chat.NewService(chat.Deps{
		Store:     chatStore,
		Directory: directory,
		Posts:     postResolver,
		Publisher: hub,
		Indexer:   searchSvc,
		Metrics:   m,
		Logger:    logger,
	}, chat.Options{
		DefaultPageSize:    cfg.Chat.DefaultPageSize,
		MaxPageSize:        cfg.Chat.MaxPageSize,
		MaxAttachmentBytes: cfg.Chat.MaxAttachmentBytes,
	})

	var s3Client *storage.S3
	if cfg.AWS.Enabled {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	exporter := export.NewExporter(chatSvc, cfg.Chat.ExportMaxMessages, m, logger)
	var jobs *export.Jobs
	if rdb != nil {
		jobs = export.NewJobs(rdb.Client, queue.NewQueue(rdb.Client, logger), chatSvc, cfg.Chat.ExportStatusTTL, logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expire)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "store": cfg.Chat.StoreDriver, "search": searchEngine(engine)}
		response.OK(c, status)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	var write []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		write = append(write, middleware.RateLimit(middleware.RateLimitConfig{
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		}, logger))
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		if orgRepo != nil {
			orgHandler := organizations.NewHandler(orgRepo, logger)
			api.GET("/me", orgHandler.Me)
			api.GET("/users", orgHandler.ListUsers)
		}
		threads.NewHandler(chatSvc, logger).Register(api, write...)
		messages.NewHandler(chatSvc, logger).Register(api, write...)
		tags.NewHandler(chatSvc, logger).Register(api, write...)
		reactions.NewHandler(chatSvc, logger).Register(api, write...)
		attachments.NewHandler(chatSvc, objectStore(s3Client), logger).Register(api, write...)
		exports.NewHandler(exporter, jobs, presigner(s3Client), logger).Register(api, write...)
		search.NewHandler(searchSvc, logger).Register(api)
	}

	// WebSocket (token in query; no Authorization header required)
	authorizeThread := func(ctx context.Context, sc tenant.Scope, threadID uuid.UUID) error {
		_, err := chatSvc.GetThread(ctx, sc, threadID)
		return err
	}
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.ScopeFromToken, authorizeThread))

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
	searchSvc.Wait()
	logger.Info("server stopped")
}

func objectStore(s3 *storage.S3) attachments.ObjectStore {
	if s3 == nil {
		return nil
	}
	return s3
}

func presigner(s3 *storage.S3) exports.Presigner {
	if s3 == nil {
		return nil
	}
	return s3
}

func searchEngine(e search.Engine) string {
	if e != nil && e.Healthy() {
		return search.EngineMeili
	}
	return search.EngineStore
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
