package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ContextCache is the semantic memory consulted before the store when
// fetching short conversation context. Its absence or failure degrades to
// "no cached history"; the pipeline then falls back to the store, and a store
// miss degrades to no history at all.
type ContextCache interface {
	Recent(ctx context.Context, conversationID uuid.UUID, k int) ([]string, error)
	Push(ctx context.Context, conversationID uuid.UUID, line string) error
}

// RedisContextCache keeps the latest turns of each conversation in a capped
// redis list.
type RedisContextCache struct {
	rdb    redis.UniversalClient
	prefix string
	cap    int64
	ttl    time.Duration
}

func NewRedisContextCache(rdb redis.UniversalClient) *RedisContextCache {
	return &RedisContextCache{
		rdb:    rdb,
		prefix: "intake:context:",
		cap:    20,
		ttl:    72 * time.Hour,
	}
}

func (c *RedisContextCache) Recent(ctx context.Context, conversationID uuid.UUID, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	key := c.prefix + conversationID.String()
	lines, err := c.rdb.LRange(ctx, key, int64(-k), -1).Result()
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *RedisContextCache) Push(ctx context.Context, conversationID uuid.UUID, line string) error {
	key := c.prefix + conversationID.String()
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, -c.cap, -1)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
