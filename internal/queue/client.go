package queue

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const taskTimeout = 2 * time.Minute

type Client struct {
	client   *asynq.Client
	maxRetry int
}

// Enqueuer is what the webhook edge needs from the queue side.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, msg engine.InboundMessage, lane string) error
}

func NewClient(cfg config.QueueConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	maxRetry := cfg.GetQueueMaxRetry()
	if maxRetry < 0 {
		maxRetry = 0
	}

	return &Client{
		client:   asynq.NewClient(opt),
		maxRetry: maxRetry,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueInbound places one message on the given lane. Unknown lanes fall
// back to the messages lane.
func (c *Client) EnqueueInbound(ctx context.Context, msg engine.InboundMessage, lane string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("queue client not configured")
	}

	if _, ok := LaneWeights[lane]; !ok {
		lane = LaneMessages
	}

	task, err := NewInboundMessageTask(msg)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(lane),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(taskTimeout),
	)
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
