package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	resultKeyPrefix = "fusion:result:"
	hitsKey         = "fusion:cache:hits"
	missesKey       = "fusion:cache:misses"
)

// ResultCache keeps recent fused answers so repeated questions skip the
// providers. Entries are keyed by tier and normalized query.
type ResultCache struct {
	redis *redis.Client
	ttl   time.Duration
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int64   `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return NewResultCacheWithClient(redis.NewClient(opt), ttl), nil
}

func NewResultCacheWithClient(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{redis: client, ttl: ttl}
}

func (c *ResultCache) hashQuery(tier models.Tier, query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("%s%s:%x", resultKeyPrefix, tier, hash)
}

// Cacheable reports whether res is a complete answer worth replaying.
func Cacheable(res models.FusionResult) bool {
	switch res.Strategy {
	case models.StrategyErrorFallback, models.StrategyDegraded, models.StrategySingleProvider:
		return false
	}
	return !res.Metadata.EmptyOutput && strings.TrimSpace(res.Content) != ""
}

func (c *ResultCache) Get(ctx context.Context, tier models.Tier, query string) (*models.FusionResult, bool, error) {
	raw, err := c.redis.Get(ctx, c.hashQuery(tier, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.redis.Incr(ctx, missesKey)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var res models.FusionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	c.redis.Incr(ctx, hitsKey)
	return &res, true, nil
}

// Store saves res unless it is a fallback or partial answer.
func (c *ResultCache) Store(ctx context.Context, tier models.Tier, query string, res models.FusionResult) error {
	if c.ttl <= 0 || !Cacheable(res) {
		return nil
	}
	res.Metadata.RequestID = ""
	res.Metadata.Cached = false
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.hashQuery(tier, query), data, c.ttl).Err()
}

func (c *ResultCache) Stats(ctx context.Context) (*Stats, error) {
	vals, err := c.redis.MGet(ctx, hitsKey, missesKey).Result()
	if err != nil {
		return nil, err
	}
	var s Stats
	s.Hits = parseCount(vals[0])
	s.Misses = parseCount(vals[1])

	iter := c.redis.Scan(ctx, 0, resultKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		s.Entries++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return &s, nil
}

func parseCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (c *ResultCache) Close() error {
	return c.redis.Close()
}
