package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrThreadBusy is returned when another worker holds the lease for the same
// conversation thread. The worker harness re-queues the job with a short
// delay instead of blocking.
var ErrThreadBusy = errors.New("conversation thread is busy")

// ThreadLease serializes pipeline runs per conversation thread. Messages for
// the same thread are never processed concurrently; different threads are
// independent.
type ThreadLease interface {
	// Acquire takes the lease for a thread or fails fast with ErrThreadBusy.
	// The returned release function is safe to call once, after step 11.
	Acquire(ctx context.Context, threadID string, ttl time.Duration) (release func(context.Context), err error)
}

// RedisThreadLease implements ThreadLease with a redis SET NX PX key holding
// a per-acquisition token, so an expired lease is never released by a
// later holder.
type RedisThreadLease struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisThreadLease(rdb redis.UniversalClient) *RedisThreadLease {
	return &RedisThreadLease{rdb: rdb, prefix: "intake:lease:thread:"}
}

// releaseScript deletes the lease only when the stored token still belongs to
// this holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisThreadLease) Acquire(ctx context.Context, threadID string, ttl time.Duration) (func(context.Context), error) {
	key := l.prefix + threadID
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrThreadBusy
	}

	release := func(ctx context.Context) {
		_, _ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Result()
	}
	return release, nil
}
