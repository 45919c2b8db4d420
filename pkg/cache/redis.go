// pkg/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/stats"
)

const quizTTL = 24 * time.Hour

// RedisCache backs the question bank and the stats read side. Misses are
// reported as (nil, nil).
type RedisCache struct {
	client   *redis.Client
	statsTTL time.Duration
}

func NewRedisCache(addr string, statsTTL time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{
		client:   client,
		statsTTL: statsTTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func quizKey(quizID uint) string {
	return fmt.Sprintf("quiz:%d", quizID)
}

func statsKey(userID string) string {
	return "stats:user:" + userID
}

func (c *RedisCache) SetQuizBundle(ctx context.Context, bundle *models.QuizBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, quizKey(bundle.Quiz.ID), data, quizTTL).Err()
}

func (c *RedisCache) GetQuizBundle(ctx context.Context, quizID uint) (*models.QuizBundle, error) {
	var bundle models.QuizBundle
	ok, err := c.get(ctx, quizKey(quizID), &bundle)
	if !ok || err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (c *RedisCache) SetStats(ctx context.Context, userID string, s *stats.UserStats) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(userID), data, c.statsTTL).Err()
}

func (c *RedisCache) GetStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	var us stats.UserStats
	ok, err := c.get(ctx, statsKey(userID), &us)
	if !ok || err != nil {
		return nil, err
	}
	return &us, nil
}

func (c *RedisCache) InvalidateStats(ctx context.Context, userID string) error {
	return c.client.Del(ctx, statsKey(userID)).Err()
}

func (c *RedisCache) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return true, nil
}
