package domain

import (
	"time"

	"github.com/google/uuid"
)

// FunnelStage is the qualification stage of a lead. Transitions only move
// forward; an administrative reset is not part of the engine.
type FunnelStage string

const (
	StageNew        FunnelStage = "NEW"
	StageQualifying FunnelStage = "QUALIFYING"
	StageQualified  FunnelStage = "QUALIFIED"
	StageEscalated  FunnelStage = "ESCALATED"
	StageConverted  FunnelStage = "CONVERTED"
	StageClosed     FunnelStage = "CLOSED"
)

var stageOrder = map[FunnelStage]int{
	StageNew:        0,
	StageQualifying: 1,
	StageQualified:  2,
	StageEscalated:  3,
	StageConverted:  4,
	StageClosed:     5,
}

// CanAdvance reports whether moving from one stage to another is a forward
// transition. Staying put is allowed.
func (s FunnelStage) CanAdvance(to FunnelStage) bool {
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	next, ok := stageOrder[to]
	if !ok {
		return false
	}
	return next >= from
}

// Lead is a prospective patient tracked across conversations.
type Lead struct {
	ID             uuid.UUID
	ChannelAddress string
	DisplayName    string
	Score          int
	Stage          FunnelStage
	Source         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FunnelPhase is the conversational phase hint passed to classification,
// derived from the current score.
type FunnelPhase string

const (
	PhaseSituation   FunnelPhase = "SITUATION"
	PhaseProblem     FunnelPhase = "PROBLEM"
	PhaseImplication FunnelPhase = "IMPLICATION"
	PhaseNeedPayoff  FunnelPhase = "NEED_PAYOFF"
	PhaseReady       FunnelPhase = "READY"
)

// PhaseForScore maps a qualification score to its funnel phase hint.
func PhaseForScore(score int) FunnelPhase {
	switch {
	case score < 20:
		return PhaseSituation
	case score < 40:
		return PhaseProblem
	case score < 60:
		return PhaseImplication
	case score < QualifiedScore:
		return PhaseNeedPayoff
	default:
		return PhaseReady
	}
}

// ParsePhase coerces a model-provided phase to the closed set. Anything
// outside the taxonomy degrades to SITUATION so downstream logic stays total.
func ParsePhase(raw string) FunnelPhase {
	switch FunnelPhase(raw) {
	case PhaseSituation, PhaseProblem, PhaseImplication, PhaseNeedPayoff, PhaseReady:
		return FunnelPhase(raw)
	default:
		return PhaseSituation
	}
}

// StageForProgress returns the furthest forward stage a lead may sit in after
// a scored exchange, given its current stage. Escalation advances the stage to
// ESCALATED; otherwise stage follows the score thresholds. Never moves backward.
func StageForProgress(current FunnelStage, score int, escalated bool) FunnelStage {
	target := StageQualifying
	if score >= QualifiedScore {
		target = StageQualified
	}
	if escalated {
		target = StageEscalated
	}
	if !current.CanAdvance(target) {
		return current
	}
	return target
}
