package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// AnswerCache memoizes generated answers in redis. Keys embed a per-user
// generation counter; re-indexing bumps the counter, which orphans every
// cached answer for that user without scanning keys. Orphans age out via
// the entry TTL.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &AnswerCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *AnswerCache) Get(ctx context.Context, userID uint, query string, dest interface{}) (bool, error) {
	key, err := c.answerKey(ctx, userID, query)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get answer failed: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return true, nil
}

func (c *AnswerCache) Set(ctx context.Context, userID uint, query string, value interface{}) error {
	key, err := c.answerKey(ctx, userID, query)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

// InvalidateUser bumps the user's generation so existing entries can no
// longer be addressed.
func (c *AnswerCache) InvalidateUser(ctx context.Context, userID uint) error {
	if err := c.client.Incr(ctx, c.generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis bump answer generation failed: %w", err)
	}
	return nil
}

func (c *AnswerCache) answerKey(ctx context.Context, userID uint, query string) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey(userID)).Result()
	if err == redisv9.Nil {
		gen = "0"
	} else if err != nil {
		return "", fmt.Errorf("redis get answer generation failed: %w", err)
	}
	digest := sha256.Sum256([]byte(query))
	return fmt.Sprintf("rag:answer:%d:%s:%s", userID, gen, hex.EncodeToString(digest[:16])), nil
}

func (c *AnswerCache) generationKey(userID uint) string {
	return fmt.Sprintf("rag:answer:gen:%d", userID)
}
