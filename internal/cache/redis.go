package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStatsTTL = 30 * time.Second
	StatsKey        = "stats"
)

// StatsCache keeps the dashboard statistics in Redis for a short TTL. A nil
// or disabled cache always misses and ignores writes.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewStatsCache(cfg Config, logger *logrus.Logger) *StatsCache {
	sc := &StatsCache{
		ttl:    cfg.TTL,
		logger: logger,
	}
	if sc.ttl <= 0 {
		sc.ttl = DefaultStatsTTL
	}
	if cfg.Addr == "" {
		logger.Info("Redis address not set, statistics cache disabled")
		return sc
	}
	sc.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return sc
}

func (sc *StatsCache) Enabled() bool {
	return sc != nil && sc.client != nil
}

func (sc *StatsCache) Ping(ctx context.Context) error {
	if !sc.Enabled() {
		return nil
	}
	return sc.client.Ping(ctx).Err()
}

// Get decodes the cached statistics into dest and reports whether there was a hit.
func (sc *StatsCache) Get(ctx context.Context, dest interface{}) (bool, error) {
	if !sc.Enabled() {
		return false, nil
	}
	data, err := sc.client.Get(ctx, StatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get stats from redis: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		sc.logger.Warnf("Discarding undecodable stats cache entry: %v", err)
		return false, nil
	}
	return true, nil
}

func (sc *StatsCache) Set(ctx context.Context, value interface{}) error {
	if !sc.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := sc.client.Set(ctx, StatsKey, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stats: %w", err)
	}
	return nil
}

func (sc *StatsCache) Invalidate(ctx context.Context) error {
	if !sc.Enabled() {
		return nil
	}
	return sc.client.Del(ctx, StatsKey).Err()
}

func (sc *StatsCache) Close() error {
	if !sc.Enabled() {
		return nil
	}
	return sc.client.Close()
}
