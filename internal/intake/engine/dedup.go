package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore tracks processed channel message ids so a redelivered job
// short-circuits with the previously computed result instead of re-mutating
// state.
type DedupStore interface {
	// Lookup returns the stored result for a channel message id, if any.
	Lookup(ctx context.Context, channelMessageID string) (ProcessingResult, bool, error)
	// Record stores (or overwrites) the result for a channel message id.
	Record(ctx context.Context, channelMessageID string, result ProcessingResult) error
}

// RedisDedupStore keeps results under a short-lived redis key derived from
// the channel message id.
type RedisDedupStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDedupStore(rdb redis.UniversalClient) *RedisDedupStore {
	return &RedisDedupStore{
		rdb:    rdb,
		prefix: "intake:dedup:msg:",
		ttl:    24 * time.Hour,
	}
}

func (s *RedisDedupStore) Lookup(ctx context.Context, channelMessageID string) (ProcessingResult, bool, error) {
	if channelMessageID == "" {
		return ProcessingResult{}, false, nil
	}

	data, err := s.rdb.Get(ctx, s.prefix+channelMessageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return ProcessingResult{}, false, nil
	}
	if err != nil {
		return ProcessingResult{}, false, err
	}

	var result ProcessingResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is treated as unseen; reprocessing is guarded by
		// the thread lease and the append-only store.
		return ProcessingResult{}, false, nil
	}
	return result, true, nil
}

func (s *RedisDedupStore) Record(ctx context.Context, channelMessageID string, result ProcessingResult) error {
	if channelMessageID == "" {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+channelMessageID, data, s.ttl).Err()
}
