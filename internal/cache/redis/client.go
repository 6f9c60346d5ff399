package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/pkg/logger"
	"github.com/kcb-text2sql/backend/pkg/utils"
)

const (
	conversionPrefix = "conversion:"
	embeddingPrefix  = "embedding:"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr), zap.Duration("ttl", ttl))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ConversionKey identifies a cached answer by the question and the RAG
// domain it was answered against.
func ConversionKey(question, domain string) string {
	return utils.HashKey(question, domain)
}

func (c *Client) SetConversion(ctx context.Context, key string, response any) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, conversionPrefix+key, data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set conversion cache: %w", err)
	}

	logger.Debug("Conversion cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// GetConversion decodes a cached answer into response and reports whether
// one was present.
func (c *Client) GetConversion(ctx context.Context, key string, response any) (bool, error) {
	data, err := c.client.Get(ctx, conversionPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("conversion").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get conversion cache: %w", err)
	}

	if err := json.Unmarshal(data, response); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	metrics.CacheHits.WithLabelValues("conversion").Inc()
	logger.Debug("Conversion cache hit", zap.String("key", key))
	return true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, text string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, embeddingPrefix+utils.HashKey(text), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+utils.HashKey(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	return embedding, true, nil
}

// InvalidateConversions drops every cached answer. Called whenever the
// dictionary or the RAG corpus changes, since either can change the SQL.
func (c *Client) InvalidateConversions(ctx context.Context) error {
	var deleted int
	iter := c.client.Scan(ctx, 0, conversionPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Conversion cache invalidated", zap.Int("keys", deleted))
	return nil
}
