package inapp

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const (
	notifyDedupPrefix = "intake:notify:"
	notifyDedupTTL    = 10 * time.Minute

	typeEscalation = "escalation"
)

// Dispatcher pushes a freshly created notification to a delivery channel
// (dashboard socket, pager). Delivery failures never fail the escalation.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

type logDispatcher struct {
	log *logger.Logger
}

func (d logDispatcher) Dispatch(_ context.Context, n Notification) {
	d.log.Info("notification dispatched",
		"recipientId", n.RecipientID,
		"type", n.Type,
		"reason", n.Reason,
	)
}

// OperatorRouter picks the operator an escalation is assigned to.
// RoundRobinRouter cycles through the configured on-call pool.
type OperatorRouter interface {
	Next() (string, bool)
}

type RoundRobinRouter struct {
	operators []string
	cursor    atomic.Uint64
}

func NewRoundRobinRouter(operators []string) *RoundRobinRouter {
	return &RoundRobinRouter{operators: operators}
}

func (r *RoundRobinRouter) Next() (string, bool) {
	if r == nil || len(r.operators) == 0 {
		return "", false
	}
	n := r.cursor.Add(1)
	return r.operators[(n-1)%uint64(len(r.operators))], true
}

// NotificationStore is the persistence surface the service writes through.
// Satisfied by Repository.
type NotificationStore interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
}

// Service turns pipeline escalations into persisted in-app notifications.
type Service struct {
	repo       NotificationStore
	rdb        *redis.Client
	router     OperatorRouter
	dispatcher Dispatcher
	log        *logger.Logger
}

func NewService(repo NotificationStore, rdb *redis.Client, router OperatorRouter, dispatcher Dispatcher, log *logger.Logger) *Service {
	if dispatcher == nil {
		dispatcher = logDispatcher{log: log}
	}
	return &Service{
		repo:       repo,
		rdb:        rdb,
		router:     router,
		dispatcher: dispatcher,
		log:        log,
	}
}

// NotifyEscalation records the operator alert. Re-processing the same
// escalation within the dedup window creates no second notification. Returns
// the assigned operator, if the routing pool is non-empty.
func (s *Service) NotifyEscalation(ctx context.Context, esc engine.Escalation) (*string, error) {
	var operator *string
	if op, ok := s.router.Next(); ok {
		operator = &op
	}

	fresh, err := s.claimWindow(ctx, esc)
	if err != nil {
		s.log.ServiceDegraded("redis", "notification dedup skipped", err)
	}
	if !fresh && err == nil {
		return operator, nil
	}

	recipient := "triage-queue"
	if operator != nil {
		recipient = *operator
	}

	title, content := renderEscalation(esc)
	convID := esc.ConversationID
	n, err := s.repo.Create(ctx, CreateParams{
		RecipientID:    recipient,
		Type:           typeEscalation,
		Title:          title,
		Content:        content,
		ConversationID: &convID,
		Reason:         string(esc.Reason),
		Score:          esc.Score,
	})
	if err != nil {
		return operator, fmt.Errorf("create escalation notification: %w", err)
	}

	s.dispatcher.Dispatch(ctx, n)
	return operator, nil
}

// claimWindow reserves the (conversation, reason) pair for the dedup window.
// Returns false when another worker already claimed it.
func (s *Service) claimWindow(ctx context.Context, esc engine.Escalation) (bool, error) {
	if s.rdb == nil {
		return true, nil
	}
	key := fmt.Sprintf("%s%s:%s", notifyDedupPrefix, esc.ConversationID, esc.Reason)
	return s.rdb.SetNX(ctx, key, "1", notifyDedupTTL).Result()
}

func renderEscalation(esc engine.Escalation) (title, content string) {
	switch esc.Reason {
	case domain.ReasonUrgentMedical:
		title = "Urgência médica na triagem"
		content = fmt.Sprintf(
			"Conversa %s sinalizada como urgência (%s). Assuma o atendimento imediatamente.",
			esc.ThreadID, esc.Urgency,
		)
	case domain.ReasonScoreHigh:
		title = "Lead qualificado pronto para contato"
		content = fmt.Sprintf(
			"Conversa %s atingiu pontuação %d. Lead pronto para agendamento humano.",
			esc.ThreadID, esc.Score,
		)
	default:
		title = "Conversa precisa de um atendente"
		content = fmt.Sprintf(
			"Conversa %s não pôde ser resolvida automaticamente (motivo: %s).",
			esc.ThreadID, esc.Reason,
		)
	}
	return title, content
}
