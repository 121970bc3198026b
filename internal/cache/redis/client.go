package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/pkg/logger"
)

// Client is the hot-tier cache for LLM extraction results, keyed by a hash
// of the input text so identical dictation passages skip the model call.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	logger.Info("Redis client initialized", zap.String("addr", rdb.Options().Addr))

	return &Client{rdb: rdb, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func extractionKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "extraction:" + hex.EncodeToString(sum[:])
}

func (c *Client) GetExtraction(ctx context.Context, text string) (string, bool) {
	if c == nil {
		return "", false
	}

	val, err := c.rdb.Get(ctx, extractionKey(text)).Result()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("redis_extraction").Inc()
		return "", false
	}
	if err != nil {
		logger.Warn("Redis get failed", zap.Error(err))
		return "", false
	}

	metrics.CacheHits.WithLabelValues("redis_extraction").Inc()
	return val, true
}

func (c *Client) SetExtraction(ctx context.Context, text, payload string) {
	if c == nil {
		return
	}

	if err := c.rdb.Set(ctx, extractionKey(text), payload, c.ttl).Err(); err != nil {
		logger.Warn("Redis set failed", zap.Error(err))
	}
}
