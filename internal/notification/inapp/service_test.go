package inapp

import (
	"context"
	"testing"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type memStore struct {
	created []CreateParams
}

func (m *memStore) Create(_ context.Context, p CreateParams) (Notification, error) {
	m.created = append(m.created, p)
	return Notification{
		ID:          uuid.New(),
		RecipientID: p.RecipientID,
		Type:        p.Type,
		Title:       p.Title,
		Content:     p.Content,
		Reason:      p.Reason,
		Score:       p.Score,
	}, nil
}

func newTestService(t *testing.T, operators []string) (*Service, *memStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &memStore{}
	svc := NewService(store, rdb, NewRoundRobinRouter(operators), nil, logger.New("test"))
	return svc, store
}

func TestNotifyEscalationAssignsOperatorRoundRobin(t *testing.T) {
	svc, store := newTestService(t, []string{"ana", "bruno"})

	var assigned []string
	for i := 0; i < 4; i++ {
		esc := engine.Escalation{
			ConversationID: uuid.New(),
			ThreadID:       "5511999990000",
			Reason:         domain.ReasonUrgentMedical,
			Urgency:        domain.UrgencyCritical,
		}
		op, err := svc.NotifyEscalation(context.Background(), esc)
		if err != nil {
			t.Fatalf("NotifyEscalation: %v", err)
		}
		if op == nil {
			t.Fatal("expected an assigned operator")
		}
		assigned = append(assigned, *op)
	}

	want := []string{"ana", "bruno", "ana", "bruno"}
	for i := range want {
		if assigned[i] != want[i] {
			t.Fatalf("assignment %d = %q, want %q", i, assigned[i], want[i])
		}
	}
	if len(store.created) != 4 {
		t.Fatalf("created %d notifications, want 4", len(store.created))
	}
}

func TestNotifyEscalationDedupWindow(t *testing.T) {
	svc, store := newTestService(t, []string{"ana"})

	esc := engine.Escalation{
		ConversationID: uuid.New(),
		ThreadID:       "5511999990000",
		Reason:         domain.ReasonComplexUnmatched,
		Score:          35,
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.NotifyEscalation(context.Background(), esc); err != nil {
			t.Fatalf("NotifyEscalation attempt %d: %v", i, err)
		}
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d notifications, want 1 within dedup window", len(store.created))
	}

	// A different reason for the same conversation is a distinct alert.
	esc.Reason = domain.ReasonScoreHigh
	esc.Score = 75
	if _, err := svc.NotifyEscalation(context.Background(), esc); err != nil {
		t.Fatalf("NotifyEscalation new reason: %v", err)
	}
	if len(store.created) != 2 {
		t.Fatalf("created %d notifications, want 2 after new reason", len(store.created))
	}
}

func TestNotifyEscalationNoOperatorsFallsBackToQueue(t *testing.T) {
	svc, store := newTestService(t, nil)

	op, err := svc.NotifyEscalation(context.Background(), engine.Escalation{
		ConversationID: uuid.New(),
		ThreadID:       "5511988887777",
		Reason:         domain.ReasonUrgentMedical,
		Urgency:        domain.UrgencyCritical,
	})
	if err != nil {
		t.Fatalf("NotifyEscalation: %v", err)
	}
	if op != nil {
		t.Fatalf("expected no assigned operator, got %q", *op)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(store.created))
	}
	if store.created[0].RecipientID != "triage-queue" {
		t.Fatalf("recipient = %q, want triage-queue", store.created[0].RecipientID)
	}
}
