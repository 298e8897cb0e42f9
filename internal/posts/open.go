package posts

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/config"
	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/pkg/database"
)

// Open builds the post resolver used by every process. The posts table is
// read from a dedicated pool when POSTS_DATABASE_URL is set, else from
// chatPool. cache may be nil. A nil resolver means post context is
// unavailable; the returned func releases a dedicated pool.
func Open(ctx context.Context, cfg *config.Config, chatPool *pgxpool.Pool, cache *redis.Client, m *metrics.Metrics, logger *zap.Logger) (*Resolver, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, closeFn := chatPool, func() {}
	if cfg.PostsDatabase.URL != "" {
		p, err := database.NewPostgresPool(ctx, "posts", cfg.PostsDatabase.DSN(), cfg.PostsDatabase.MaxConns, logger)
		if err != nil {
			logger.Warn("posts database unavailable; post threads resolve without context", zap.Error(err))
			return nil, closeFn
		}
		pool, closeFn = p, p.Close
	}
	if pool == nil {
		return nil, closeFn
	}
	return NewResolver(NewPostgresSource(pool, cfg.Chat.PostsTable), cache, Config{
		Timeout:  cfg.Chat.PostLookupTimeout,
		CacheTTL: cfg.Chat.PostCacheTTL,
		MissTTL:  cfg.Chat.PostMissTTL,
	}, m, logger), closeFn
}
