package repository

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
