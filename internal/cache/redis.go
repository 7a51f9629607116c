// Package cache verifies the application's Redis cache with a set/get roundtrip.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// probeKey is namespaced so a probe can never collide with application keys.
const probeKey = "deployctl:cache-probe"

// Checker performs cache roundtrip probes against a Redis URL.
type Checker struct {
	url string
}

// NewChecker returns a Checker for the given Redis URL (redis://host:port/db).
func NewChecker(url string) *Checker {
	return &Checker{url: url}
}

// Check writes a unique value with a short TTL, reads it back and compares.
// Any connection error, write error or value mismatch fails the check.
func (c *Checker) Check(ctx context.Context) error {
	if c.url == "" {
		return errors.New("REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(c.url)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	want := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := client.Set(ctx, probeKey, want, 30*time.Second).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	got, err := client.Get(ctx, probeKey).Result()
	if err != nil {
		return fmt.Errorf("cache get: %w", err)
	}
	if got != want {
		return fmt.Errorf("cache roundtrip mismatch: wrote %s, read %s", want, got)
	}
	client.Del(ctx, probeKey) // best-effort cleanup
	return nil
}
