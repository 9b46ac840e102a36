package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/apperr"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 60 * time.Second
	leaseBusyDelay = 2 * time.Second
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	client   *asynq.Client
	engine   *engine.Engine
	maxRetry int
	log      *logger.Logger
}

func NewWorker(cfg config.QueueConfig, eng *engine.Engine, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         LaneWeights,
		StrictPriority: false,
		RetryDelayFunc: RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			queueName, _ := asynq.GetQueueName(ctx)
			retried, _ := asynq.GetRetryCount(ctx)
			log.JobFailed(task.Type(), queueName, retried, err)
		}),
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		client:   asynq.NewClient(opt),
		engine:   eng,
		maxRetry: maxRetry,
		log:      log,
	}

	mux.HandleFunc(TaskInboundMessage, w.handleInboundMessage)

	return w, nil
}

// RetryDelay backs off exponentially from one second, capped at a minute.
// A busy thread lease is not a real failure, so it retries on a short fixed
// delay instead of climbing the curve.
func RetryDelay(n int, err error, _ *asynq.Task) time.Duration {
	if errors.Is(err, engine.ErrThreadBusy) {
		return leaseBusyDelay
	}

	delay := baseRetryDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (w *Worker) handleInboundMessage(ctx context.Context, task *asynq.Task) error {
	msg, err := ParseInboundMessagePayload(task)
	if err != nil {
		// Malformed payloads cannot be fixed by retrying.
		return fmt.Errorf("parse inbound payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.engine.ProcessInbound(ctx, msg)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		// Lease contention is not a failure: the competing job holds the
		// thread for seconds, not the job's whole retry budget. Re-enqueue
		// a fresh task with a short delay and ack this one.
		if errors.Is(err, engine.ErrThreadBusy) {
			if requeueErr := w.requeueBusy(ctx, task); requeueErr != nil {
				w.log.Error("requeue busy thread failed",
					"threadId", msg.ThreadID,
					"error", requeueErr,
				)
				return err
			}
			return nil
		}
		return err
	}

	if result.Duplicate {
		w.log.Info("duplicate message skipped",
			"threadId", msg.ThreadID,
			"channelMessageId", msg.ChannelMessageID,
		)
	}
	return nil
}

// requeueBusy re-enqueues a lease-blocked delivery as a fresh task on its
// original lane, so contention never eats into the retry ceiling reserved
// for real failures.
func (w *Worker) requeueBusy(ctx context.Context, task *asynq.Task) error {
	lane, ok := asynq.GetQueueName(ctx)
	if !ok || lane == "" {
		lane = LaneMessages
	}

	_, err := w.client.EnqueueContext(ctx,
		asynq.NewTask(task.Type(), task.Payload()),
		asynq.Queue(lane),
		asynq.MaxRetry(w.maxRetry),
		asynq.Timeout(taskTimeout),
		asynq.ProcessIn(leaseBusyDelay),
	)
	return err
}

func (w *Worker) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.Close()
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("intake worker stopped", "error", err)
	}
}
