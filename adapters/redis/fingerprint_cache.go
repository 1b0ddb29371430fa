// Package redis implements chatrelay.FingerprintCache on Redis, so every
// instance of the relay shares one dedup window per channel.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coregx/chatrelay"
	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 100

// FingerprintCache stores channel fingerprints as plain string keys with a TTL.
type FingerprintCache struct {
	client goredis.UniversalClient
}

// NewFingerprintCache creates a cache on an existing client.
func NewFingerprintCache(client goredis.UniversalClient) *FingerprintCache {
	return &FingerprintCache{client: client}
}

// Get returns the value under key. found is false when the key is absent or expired.
func (c *FingerprintCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to read fingerprint", err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value and TTL.
func (c *FingerprintCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to write fingerprint", err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix and returns how many
// were removed. Keys are found with SCAN, never KEYS.
func (c *FingerprintCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(prefix) + "*"

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to scan keys", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to delete keys", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
