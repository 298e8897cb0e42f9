// Package posts resolves the external blog post a post thread points at.
// Resolution is fail-open: a missing post, a post of another organization,
// a timeout or a broken database all come back as nil, never as an error.
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/models"
)

// ErrNotFound is returned by a Source when the post does not exist.
var ErrNotFound = errors.New("posts: not found")

const missMarker = "-"

// Source loads a post from the relational store.
type Source interface {
	FindPost(ctx context.Context, postID uuid.UUID) (*models.PostContext, error)
}

// Config tunes the resolver.
type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	MissTTL  time.Duration
}

// Resolver looks posts up through an optional Redis cache.
type Resolver struct {
	source  Source
	cache   *redis.Client
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(source Source, cache *redis.Client, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MissTTL <= 0 {
		cfg.MissTTL = 30 * time.Second
	}
	return &Resolver{source: source, cache: cache, cfg: cfg, metrics: m, logger: logger}
}

func cacheKey(postID uuid.UUID) string {
	return "post:" + postID.String()
}

// Resolve returns the post's display data, or nil when it is unavailable to
// orgID for any reason.
func (r *Resolver) Resolve(ctx context.Context, orgID, postID uuid.UUID) *models.PostContext {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if p, hit := r.fromCache(ctx, postID); hit {
		r.metrics.PostLookup("cached")
		return visibleTo(p, orgID)
	}

	p, err := r.source.FindPost(ctx, postID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.PostLookup("miss")
			r.store(ctx, postID, nil)
			return nil
		}
		r.metrics.PostLookup("unavailable")
		r.logger.Warn("post lookup failed", zap.String("post_id", postID.String()), zap.Error(err))
		return nil
	}
	r.metrics.PostLookup("hit")
	r.store(ctx, postID, p)
	return visibleTo(p, orgID)
}

func visibleTo(p *models.PostContext, orgID uuid.UUID) *models.PostContext {
	if p == nil || p.OrganizationID != orgID {
		return nil
	}
	return p
}

// fromCache reports hit=true for cached posts and cached misses (p == nil).
func (r *Resolver) fromCache(ctx context.Context, postID uuid.UUID) (p *models.PostContext, hit bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(postID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("post cache read failed", zap.Error(err))
		}
		return nil, false
	}
	if raw == missMarker {
		return nil, true
	}
	var post models.PostContext
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		return nil, false
	}
	return &post, true
}

func (r *Resolver) store(ctx context.Context, postID uuid.UUID, p *models.PostContext) {
	if r.cache == nil {
		return
	}
	val, ttl := missMarker, r.cfg.MissTTL
	if p != nil {
		b, err := json.Marshal(p)
		if err != nil {
			return
		}
		val, ttl = string(b), r.cfg.CacheTTL
	}
	if err := r.cache.Set(ctx, cacheKey(postID), val, ttl).Err(); err != nil {
		r.logger.Debug("post cache write failed", zap.Error(err))
	}
}

// Invalidate drops a cached post, e.g. after the CMS reports a change.
func (r *Resolver) Invalidate(ctx context.Context, postID uuid.UUID) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, cacheKey(postID)).Err()
}
