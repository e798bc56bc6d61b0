package cache

import (
	"cmp"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/config"
	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	recommendationKeyPrefix  = "recommendation:"
	recommendationScanBatch  = 100
	defaultRecommendationTTL = 10 * time.Minute
	redisDialTimeout         = 5 * time.Second
)

// RecommendationKey identifies one recommendation answer. ModelVersion ties
// the entry to the model that produced it so a retrain never serves stale
// answers even before InvalidateAll runs.
type RecommendationKey struct {
	From         time.Time
	To           time.Time
	EntityID     string
	TopN         int
	ModelVersion int64
	Overrides    map[string]string
}

// RecommendationCache stores computed recommendation lists.
type RecommendationCache interface {
	Get(ctx context.Context, key RecommendationKey) ([]domain.Recommendation, bool, error)
	Set(ctx context.Context, key RecommendationKey, recs []domain.Recommendation) error
	InvalidateAll(ctx context.Context) error
}

type redisRecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRecommendationCache struct{}

// NewRecommendationCache connects to Redis when caching is enabled and
// returns a cache that does nothing otherwise. An unreachable server is an
// error so the caller can decide whether to run uncached.
func NewRecommendationCache(cfg config.CacheConfig) (RecommendationCache, error) {
	if !cfg.Enabled {
		return &noopRecommendationCache{}, nil
	}

	opts, err := recommendationRedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("recommendation cache: redis ping failed: %w", err)
	}

	return NewRedisRecommendationCache(client, time.Duration(cfg.RecommendationTTLSeconds)*time.Second), nil
}

// recommendationRedisOptions prefers REDIS_URL and otherwise assembles the
// address from host and port, defaulting to a local server.
func recommendationRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cmp.Or(strings.TrimSpace(cfg.RedisHost), "127.0.0.1")
	port := cmp.Or(strings.TrimSpace(cfg.RedisPort), "6379")
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// NewRedisRecommendationCache wraps an existing client.
func NewRedisRecommendationCache(client *redis.Client, ttl time.Duration) RecommendationCache {
	if ttl <= 0 {
		ttl = defaultRecommendationTTL
	}
	return &redisRecommendationCache{client: client, ttl: ttl}
}

func NewNoopRecommendationCache() RecommendationCache {
	return &noopRecommendationCache{}
}

func (c *redisRecommendationCache) Get(ctx context.Context, key RecommendationKey) ([]domain.Recommendation, bool, error) {
	payload, err := c.client.Get(ctx, buildRecommendationKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var recs []domain.Recommendation
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, false, fmt.Errorf("decode recommendation cache: %w", err)
	}
	return recs, true, nil
}

func (c *redisRecommendationCache) Set(ctx context.Context, key RecommendationKey, recs []domain.Recommendation) error {
	payload, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendation cache: %w", err)
	}

	if err := c.client.Set(ctx, buildRecommendationKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateAll unlinks every recommendation entry, one scan batch per
// round trip.
func (c *redisRecommendationCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, recommendationKeyPrefix+"*", recommendationScanBatch).Iterator()
	batch := make([]string, 0, recommendationScanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis unlink failed: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == recommendationScanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return flush()
}

func (n *noopRecommendationCache) Get(ctx context.Context, key RecommendationKey) ([]domain.Recommendation, bool, error) {
	return nil, false, nil
}

func (n *noopRecommendationCache) Set(ctx context.Context, key RecommendationKey, recs []domain.Recommendation) error {
	return nil
}

func (n *noopRecommendationCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildRecommendationKey(key RecommendationKey) string {
	return recommendationKeyPrefix + recommendationKeyHash(key)
}

func recommendationKeyHash(key RecommendationKey) string {
	parts := []string{
		"from=" + key.From.Format(time.DateOnly),
		"to=" + key.To.Format(time.DateOnly),
		fmt.Sprintf("model=%d", key.ModelVersion),
	}
	if entity := strings.TrimSpace(key.EntityID); entity != "" {
		parts = append(parts, "entity="+entity)
	} else {
		parts = append(parts, fmt.Sprintf("top_n=%d", key.TopN))
	}
	for k, v := range key.Overrides {
		parts = append(parts, strings.ToLower(k)+"="+strings.TrimSpace(v))
	}

	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
