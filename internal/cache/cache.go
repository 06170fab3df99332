// Package cache is a Redis-backed cache of finished analysis results, keyed
// by property, date range and industry. Repeated dashboard loads within the
// TTL reuse the stored result instead of re-billing the model.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitepulse/insight-gateway/internal/analysis"
)

// ResultCache stores analysis results with a TTL.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a result cache over the given Redis client.
func New(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func key(propertyID, dateRange, industry string) string {
	return fmt.Sprintf("analysis:%s:%s:%s", propertyID, dateRange, industry)
}

// Get returns the cached result, or nil on a miss.
func (c *ResultCache) Get(ctx context.Context, propertyID, dateRange, industry string) (*analysis.Result, error) {
	data, err := c.client.Get(ctx, key(propertyID, dateRange, industry)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result analysis.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Set stores a finished result under the snapshot's cache key.
func (c *ResultCache) Set(ctx context.Context, propertyID, dateRange, industry string, result *analysis.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(propertyID, dateRange, industry), data, c.ttl).Err()
}
