package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/mikeboe/derma-research/pkg/research"
)

// CachedSearch memoises another SearchGateway in Redis. Cache errors are
// logged and never fail a search.
type CachedSearch struct {
	Next   research.SearchGateway
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*CachedSearch)

// WithTTL sets the expiration for cached responses.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedSearch) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *CachedSearch) {
		c.prefix = prefix
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedSearch) {
		c.logger = logger
	}
}

// NewCachedSearch wraps next with a Redis cache reached through client.
func NewCachedSearch(next research.SearchGateway, client *backend.Client, opts ...CacheOption) *CachedSearch {
	c := &CachedSearch{
		Next:   next,
		client: client,
		prefix: "derma:search:",
		ttl:    time.Hour,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedSearch) key(query string, maxResults int, includeRawContent bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%t", query, maxResults, includeRawContent)))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedSearch) Search(ctx context.Context, query string, maxResults int, includeRawContent bool) (research.SearchResponse, error) {
	key := c.key(query, maxResults, includeRawContent)

	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached research.SearchResponse
		if err := json.Unmarshal(val, &cached); err == nil {
			c.logger.Debug("Search cache hit", "query", query)
			return cached, nil
		}
		c.logger.Warn("Discarding unreadable cache entry", "key", key)
	case !errors.Is(err, backend.Nil):
		c.logger.Warn("Search cache unavailable", "error", err)
	}

	resp, err := c.Next.Search(ctx, query, maxResults, includeRawContent)
	if err != nil {
		return research.SearchResponse{}, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return resp, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to store search result in cache", "error", err)
	}
	return resp, nil
}
