package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

func TestRetryDelayExponentialWithCap(t *testing.T) {
	cases := []struct {
		retried int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{10, 60 * time.Second},
		{30, 60 * time.Second},
	}

	err := errors.New("transient failure")
	for _, tc := range cases {
		if got := RetryDelay(tc.retried, err, nil); got != tc.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tc.retried, got, tc.want)
		}
	}
}

func TestRetryDelayBusyLeaseShortCircuit(t *testing.T) {
	for _, retried := range []int{0, 3, 10} {
		got := RetryDelay(retried, engine.ErrThreadBusy, nil)
		if got != leaseBusyDelay {
			t.Errorf("RetryDelay(%d, ErrThreadBusy) = %v, want %v", retried, got, leaseBusyDelay)
		}
	}

	wrapped := errors.Join(errors.New("pipeline"), engine.ErrThreadBusy)
	if got := RetryDelay(2, wrapped, nil); got != leaseBusyDelay {
		t.Errorf("RetryDelay(wrapped ErrThreadBusy) = %v, want %v", got, leaseBusyDelay)
	}
}

func TestInboundMessageTaskRoundTrip(t *testing.T) {
	in := engine.InboundMessage{
		ThreadID:         "5511999990000",
		SenderAddress:    "+5511999990000",
		Body:             "quero agendar uma avaliação",
		SessionName:      "clinic-main",
		ChannelMessageID: "wamid.123",
		ReceivedAt:       time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
	}

	task, err := NewInboundMessageTask(in)
	if err != nil {
		t.Fatalf("NewInboundMessageTask: %v", err)
	}
	if task.Type() != TaskInboundMessage {
		t.Fatalf("task type = %q, want %q", task.Type(), TaskInboundMessage)
	}

	out, err := ParseInboundMessagePayload(task)
	if err != nil {
		t.Fatalf("ParseInboundMessagePayload: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

type queueCfg struct {
	redisURL string
}

func (c queueCfg) GetRedisURL() string       { return c.redisURL }
func (c queueCfg) GetRedisTLSInsecure() bool { return false }
func (c queueCfg) GetQueueConcurrency() int  { return 1 }
func (c queueCfg) GetQueueMaxRetry() int     { return 3 }

type unseenDedup struct{}

func (unseenDedup) Lookup(context.Context, string) (engine.ProcessingResult, bool, error) {
	return engine.ProcessingResult{}, false, nil
}
func (unseenDedup) Record(context.Context, string, engine.ProcessingResult) error { return nil }

type busyLease struct{}

func (busyLease) Acquire(context.Context, string, time.Duration) (func(context.Context), error) {
	return nil, engine.ErrThreadBusy
}

func TestHandleInboundMessageDeadLettersBadInput(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logger.New("test")
	eng := engine.New(engine.Config{}, engine.Deps{}, log)

	w, err := NewWorker(queueCfg{redisURL: "redis://" + mr.Addr()}, eng, log)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	// Malformed JSON never reaches the pipeline.
	err = w.handleInboundMessage(context.Background(), asynq.NewTask(TaskInboundMessage, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload error = %v, want SkipRetry", err)
	}

	// A well-formed envelope missing required fields fails validation and
	// is archived rather than retried.
	task, err := NewInboundMessageTask(engine.InboundMessage{Body: "oi"})
	if err != nil {
		t.Fatalf("NewInboundMessageTask: %v", err)
	}
	err = w.handleInboundMessage(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("validation error = %v, want SkipRetry", err)
	}
}

// Lease contention re-enqueues a fresh delayed task and acks the current
// delivery, leaving the retry ceiling for real failures.
func TestHandleInboundMessageBusyThreadRequeues(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logger.New("test")
	eng := engine.New(engine.Config{}, engine.Deps{
		Dedup: unseenDedup{},
		Lease: busyLease{},
	}, log)

	w, err := NewWorker(queueCfg{redisURL: "redis://" + mr.Addr()}, eng, log)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	task, err := NewInboundMessageTask(engine.InboundMessage{
		ThreadID:         "5511999990000",
		SenderAddress:    "+5511999990000",
		Body:             "ainda estou aqui",
		ChannelMessageID: "wamid.busy",
	})
	if err != nil {
		t.Fatalf("NewInboundMessageTask: %v", err)
	}

	if err := w.handleInboundMessage(context.Background(), task); err != nil {
		t.Fatalf("busy thread returned error %v, want ack after requeue", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	scheduled, err := inspector.ListScheduledTasks(LaneMessages)
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(scheduled) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1 requeued delivery", len(scheduled))
	}
	if scheduled[0].Type != TaskInboundMessage {
		t.Fatalf("scheduled task type = %q, want %q", scheduled[0].Type, TaskInboundMessage)
	}

	replay, err := ParseInboundMessagePayload(asynq.NewTask(scheduled[0].Type, scheduled[0].Payload))
	if err != nil {
		t.Fatalf("parse requeued payload: %v", err)
	}
	if replay.ChannelMessageID != "wamid.busy" {
		t.Fatalf("requeued channelMessageId = %q, want wamid.busy", replay.ChannelMessageID)
	}
}

func TestLaneWeightsOrdering(t *testing.T) {
	if LaneWeights[LaneEscalation] <= LaneWeights[LaneAIHeavy] {
		t.Fatal("escalation lane must outweigh the ai-heavy lane")
	}
	if LaneWeights[LaneAIHeavy] <= LaneWeights[LaneMessages] {
		t.Fatal("ai-heavy lane must outweigh the messages lane")
	}
}
