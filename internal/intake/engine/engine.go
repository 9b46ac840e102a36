// Package engine implements the per-message conversation decision pipeline:
// identity resolution, classification, urgency detection, knowledge
// retrieval, policy decision, reply generation, scoring, and escalation.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/repository"
	"clinic_intake_backend/platform/apperr"
	"clinic_intake_backend/platform/logger"
)

// Config carries the engine tunables. Passed explicitly at construction,
// never read from ambient state.
type Config struct {
	ContextWindow   int
	CallTimeout     time.Duration
	PipelineTimeout time.Duration
	UrgentKeywords  []string
	FallbackReply   string
	HandoffReply    string
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = 30 * time.Second
	}
	return c
}

// Engine orchestrates one pipeline run per dequeued job. It never re-enqueues
// work; retry and dead-lettering belong to the worker harness.
type Engine struct {
	cfg      Config
	store    Store
	classify Classifier
	urgency  UrgencyRater
	know     KnowledgeSearcher
	generate Generator
	outbound OutboundSender
	notifier EscalationNotifier
	dedup    DedupStore
	lease    ThreadLease
	cache    ContextCache
	scanner  *domain.KeywordScanner
	log      *logger.Logger
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store      Store
	Classifier Classifier
	Urgency    UrgencyRater
	Knowledge  KnowledgeSearcher
	Generator  Generator
	Outbound   OutboundSender
	Notifier   EscalationNotifier
	Dedup      DedupStore
	Lease      ThreadLease
	Cache      ContextCache // optional; absence degrades to store-only context
}

func New(cfg Config, deps Deps, log *logger.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		store:    deps.Store,
		classify: deps.Classifier,
		urgency:  deps.Urgency,
		know:     deps.Knowledge,
		generate: deps.Generator,
		outbound: deps.Outbound,
		notifier: deps.Notifier,
		dedup:    deps.Dedup,
		lease:    deps.Lease,
		cache:    deps.Cache,
		scanner:  domain.NewKeywordScanner(cfg.UrgentKeywords),
		log:      log,
	}
}

// ProcessInbound runs the full pipeline for one normalized inbound message.
func (e *Engine) ProcessInbound(ctx context.Context, in InboundMessage) (ProcessingResult, error) {
	if strings.TrimSpace(in.ThreadID) == "" || strings.TrimSpace(in.SenderAddress) == "" {
		return ProcessingResult{}, apperr.Validation("inbound event missing threadId or senderAddress")
	}
	if strings.TrimSpace(in.Body) == "" {
		return ProcessingResult{}, apperr.Validation("inbound event has empty body")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PipelineTimeout)
	defer cancel()

	log := e.log.WithThreadID(in.ThreadID)

	// Duplicate delivery short-circuits with the stored result. A result
	// persisted before delivery succeeded gets its send retried until it
	// lands, so the user is never left without a reply.
	if prev, seen, err := e.dedup.Lookup(ctx, in.ChannelMessageID); err != nil {
		log.ServiceDegraded("dedup", "reprocess", err)
	} else if seen {
		return e.replayDuplicate(ctx, in, prev, log)
	}

	release, err := e.lease.Acquire(ctx, in.ThreadID, e.cfg.PipelineTimeout)
	if err != nil {
		return ProcessingResult{}, err
	}
	defer release(context.WithoutCancel(ctx))

	// The pre-lease lookup can miss while the original run is still in
	// flight. Once the lease is held the store is settled, so a second
	// check keeps a racing duplicate from mutating state twice.
	if prev, seen, err := e.dedup.Lookup(ctx, in.ChannelMessageID); err != nil {
		log.ServiceDegraded("dedup", "reprocess", err)
	} else if seen {
		return e.replayDuplicate(ctx, in, prev, log)
	}

	// Step 1: resolve identity.
	rt, err := e.store.ResolveThread(ctx, repository.ResolveThreadParams{
		ThreadID:      in.ThreadID,
		SenderAddress: in.SenderAddress,
		SessionName:   in.SessionName,
	})
	if err != nil {
		return ProcessingResult{}, apperr.Persistence("resolve thread", err)
	}
	lead, conv := rt.Lead, rt.Conversation

	// Step 2: persist the inbound turn.
	if _, err := e.store.AppendInbound(ctx, conv.ID, in.Body); err != nil {
		return ProcessingResult{}, apperr.Persistence("append inbound message", err)
	}

	// Step 3: short context, cache first, store fallback, absence tolerated.
	shortContext := e.shortContext(ctx, conv, log)

	// Step 4: classify against the closed taxonomy.
	classification := e.classifyMessage(ctx, in.Body, shortContext, lead.Score, log)

	// Step 5: two-stage urgency; the keyword path can only raise the level.
	urgency := e.detectUrgency(ctx, in.Body, log)

	// Step 6: knowledge retrieval; failure means no match.
	matches := e.retrieve(ctx, in.Body, classification.Intent, log)
	var top *PlaybookMatch
	topConfidence := 0.0
	if len(matches) > 0 {
		top = &matches[0]
		topConfidence = top.Confidence
	}

	// Step 7: the policy branch over (urgency, confidence, speculative score).
	projected := domain.ApplyScore(lead.Score, classification.Intent)
	decision := domain.Decide(urgency, topConfidence, projected)

	// Step 8: reply text.
	reply, generated := e.buildReply(ctx, in.Body, shortContext, top, lead, decision, log)

	// Step 10 (escalation half): notify before the transaction so the
	// routing rule's operator lands in the same write.
	var operator *string
	if decision.Policy.Escalates() {
		operator = e.notifyEscalation(ctx, conv, in.ThreadID, decision, projected, urgency, log)
	}

	newStatus := targetStatus(conv.Status, decision.Policy)
	newStage := domain.StageForProgress(lead.Stage, projected, decision.Policy.Escalates())

	// Steps 9 and 10: one transaction for score, outbound turn, audit record
	// and status transition. Failures here surface to the harness for retry.
	_, err = e.store.FinalizeExchange(ctx, repository.FinalizeExchangeParams{
		ConversationID:   conv.ID,
		LeadID:           lead.ID,
		ReplyText:        reply,
		Intent:           classification.Intent,
		Note:             interactionNote(decision, classification, topConfidence, generated),
		NewScore:         projected,
		NewStage:         newStage,
		NewStatus:        newStatus,
		IsUrgent:         conv.IsUrgent || urgency == domain.UrgencyCritical,
		NeedsHumanReview: conv.NeedsHumanReview || decision.Policy == domain.PolicyAutonomousFlagged,
		AssignedOperator: operator,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindInvariant) {
			return ProcessingResult{}, err
		}
		return ProcessingResult{}, apperr.Persistence("finalize exchange", err)
	}

	e.rememberTurns(ctx, conv, in.Body, reply)

	result := ProcessingResult{
		ConversationID: conv.ID,
		LeadID:         lead.ID,
		Policy:         decision.Policy,
		Reason:         decision.Reason,
		Intent:         classification.Intent,
		Urgency:        urgency,
		NewScore:       projected,
		Escalated:      decision.Policy.Escalates(),
		ReplyText:      reply,
	}

	// State is committed; record the result before delivery so a crash
	// between here and the send never replays the mutation.
	if err := e.dedup.Record(ctx, in.ChannelMessageID, result); err != nil {
		log.ServiceDegraded("dedup", "none", err)
	}

	// Step 11: deliver the reply (or the hand-off acknowledgement).
	if err := e.send(ctx, in.SessionName, in.ThreadID, reply); err != nil {
		log.ServiceDegraded("outbound", "retry via queue", err)
		return result, apperr.Transient("send reply", err)
	}
	result.Delivered = true
	if err := e.dedup.Record(ctx, in.ChannelMessageID, result); err != nil {
		log.ServiceDegraded("dedup", "none", err)
	}

	log.Info("inbound processed",
		"policy", string(result.Policy),
		"intent", string(result.Intent),
		"urgency", string(result.Urgency),
		"score", result.NewScore,
		"escalated", result.Escalated,
	)
	return result, nil
}

// replayDuplicate resolves a redelivered message from the stored result. An
// undelivered reply is resent; a failed resend keeps the job failing so the
// harness retries instead of acking a reply that never went out.
func (e *Engine) replayDuplicate(ctx context.Context, in InboundMessage, prev ProcessingResult, log *logger.Logger) (ProcessingResult, error) {
	prev.Duplicate = true
	if !prev.Delivered && prev.ReplyText != "" {
		if err := e.send(ctx, in.SessionName, in.ThreadID, prev.ReplyText); err != nil {
			log.ServiceDegraded("outbound", "retry via queue", err)
			return prev, apperr.Transient("resend reply", err)
		}
		prev.Delivered = true
		_ = e.dedup.Record(ctx, in.ChannelMessageID, prev)
	}
	log.Info("duplicate delivery short-circuited", "channel_message_id", in.ChannelMessageID)
	return prev, nil
}

func (e *Engine) shortContext(ctx context.Context, conv domain.Conversation, log *logger.Logger) []string {
	if e.cache != nil {
		lines, err := e.cache.Recent(ctx, conv.ID, e.cfg.ContextWindow)
		if err == nil && len(lines) > 0 {
			return lines
		}
		if err != nil {
			log.ServiceDegraded("context cache", "store", err)
		}
	}

	messages, err := e.store.RecentMessages(ctx, conv.ID, e.cfg.ContextWindow)
	if err != nil {
		log.ServiceDegraded("message history", "no history", err)
		return nil
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, formatTurn(msg.Direction, msg.Content))
	}
	return lines
}

func (e *Engine) classifyMessage(ctx context.Context, body string, shortContext []string, score int, log *logger.Logger) Classification {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	classification, err := e.classify.Classify(callCtx, body, shortContext, domain.PhaseForScore(score))
	if err != nil {
		// Never silently escalate nor silently answer on classification
		// failure: OTHER carries no score delta and no policy weight.
		log.ServiceDegraded("classification", "intent=OTHER", err)
		return Classification{Intent: domain.IntentOther, Phase: domain.PhaseSituation}
	}
	return classification
}

func (e *Engine) detectUrgency(ctx context.Context, body string, log *logger.Logger) domain.UrgencyLevel {
	keyword := e.scanner.Scan(body)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	model, err := e.urgency.ConfirmUrgency(callCtx, body)
	if err != nil {
		log.ServiceDegraded("urgency confirmation", "keyword only", err)
		model = domain.UrgencyNone
	}

	return domain.MaxUrgency(keyword, model)
}

func (e *Engine) retrieve(ctx context.Context, body string, intent domain.Intent, log *logger.Logger) []PlaybookMatch {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	matches, err := e.know.Search(callCtx, body, intent)
	if err != nil {
		log.ServiceDegraded("knowledge index", "no match", err)
		return nil
	}
	return matches
}

func (e *Engine) buildReply(ctx context.Context, body string, shortContext []string, top *PlaybookMatch, lead domain.Lead, decision domain.Decision, log *logger.Logger) (reply string, generated bool) {
	if decision.Policy.Escalates() {
		return e.cfg.HandoffReply, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	out, err := e.generate.Generate(callCtx, GenerateRequest{
		Message:      body,
		ShortContext: shortContext,
		Playbook:     top,
		Score:        lead.Score,
		Stage:        lead.Stage,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		if err == nil {
			err = fmt.Errorf("empty generation output")
		}
		log.ServiceDegraded("generation", "fixed fallback reply", err)
		return e.cfg.FallbackReply, false
	}
	return out.Text, true
}

func (e *Engine) notifyEscalation(ctx context.Context, conv domain.Conversation, threadID string, decision domain.Decision, score int, urgency domain.UrgencyLevel, log *logger.Logger) *string {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	operator, err := e.notifier.NotifyEscalation(callCtx, Escalation{
		ConversationID: conv.ID,
		ThreadID:       threadID,
		Reason:         decision.Reason,
		Score:          score,
		Urgency:        urgency,
	})
	if err != nil {
		log.ServiceDegraded("escalation notify", "unassigned hand-off", err)
		return nil
	}
	return operator
}

func (e *Engine) rememberTurns(ctx context.Context, conv domain.Conversation, inbound, outbound string) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Push(ctx, conv.ID, formatTurn(domain.DirectionInbound, inbound))
	_ = e.cache.Push(ctx, conv.ID, formatTurn(domain.DirectionOutbound, outbound))
}

func (e *Engine) send(ctx context.Context, sessionName, threadID, text string) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.outbound.SendMessage(callCtx, sessionName, threadID, text)
}

// targetStatus maps the decided policy onto the conversation state machine,
// never moving backward.
func targetStatus(current domain.ConversationStatus, policy domain.Policy) domain.ConversationStatus {
	var target domain.ConversationStatus
	switch policy {
	case domain.PolicyEscalateUrgent:
		target = domain.StatusEscalated
	case domain.PolicyEscalateComplex, domain.PolicyEscalateReady:
		target = domain.StatusPendingHandoff
	default:
		return current
	}
	if !current.CanTransition(target) {
		return current
	}
	return target
}

func formatTurn(direction domain.Direction, content string) string {
	prefix := "IN"
	if direction == domain.DirectionOutbound {
		prefix = "OUT"
	}
	return prefix + ": " + content
}

func interactionNote(decision domain.Decision, classification Classification, topConfidence float64, generated bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy=%s confidence=%.2f phase=%s", decision.Policy, topConfidence, classification.Phase)
	if decision.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", decision.Reason)
	}
	if !generated && !decision.Policy.Escalates() {
		b.WriteString(" reply=fallback")
	}
	return b.String()
}
