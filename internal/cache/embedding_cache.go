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

// EmbeddingCache maps question text to its embedding vector.
type EmbeddingCache struct {
	client *redisv9.Client
	model  string
	ttl    time.Duration
}

func NewEmbeddingCache(client *redisv9.Client, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{
		client: client,
		model:  model,
		ttl:    ttl,
	}
}

func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.key(text)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get embedding failed: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached embedding failed: %w", err)
	}
	return vec, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) error {
	payload, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(text), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set embedding failed: %w", err)
	}
	return nil
}

// key is scoped by model so switching models never serves stale vectors.
func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", c.model, hex.EncodeToString(sum[:]))
}
