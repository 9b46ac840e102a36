package domain

// Policy is the per-message action decided by the engine.
type Policy string

const (
	// PolicyAutonomous replies without any flag.
	PolicyAutonomous Policy = "AUTONOMOUS"
	// PolicyAutonomousFlagged replies but marks the conversation for later
	// non-urgent review.
	PolicyAutonomousFlagged Policy = "AUTONOMOUS_FLAGGED"
	// PolicyEscalateUrgent hands off immediately on critical urgency.
	PolicyEscalateUrgent Policy = "ESCALATE_URGENT"
	// PolicyEscalateComplex hands off when no playbook matches well enough.
	PolicyEscalateComplex Policy = "ESCALATE_COMPLEX"
	// PolicyEscalateReady hands off a lead judged qualified enough to convert.
	PolicyEscalateReady Policy = "ESCALATE_READY"
)

// Escalates reports whether the policy hands the conversation to a human.
func (p Policy) Escalates() bool {
	switch p {
	case PolicyEscalateUrgent, PolicyEscalateComplex, PolicyEscalateReady:
		return true
	}
	return false
}

// EscalationReason is the reason code attached to escalation notifications.
type EscalationReason string

const (
	ReasonUrgentMedical    EscalationReason = "urgent_medical"
	ReasonComplexUnmatched EscalationReason = "complex_unmatched"
	ReasonScoreHigh        EscalationReason = "score_high"
)

// Decision is the outcome of the policy branch.
type Decision struct {
	Policy Policy
	Reason EscalationReason // empty unless Policy escalates
}

// Decide is the core policy branch: a pure function of the final urgency, the
// top playbook confidence, and the speculatively computed post-update score.
//
// CRITICAL urgency always wins. A projected score at or past the qualified
// threshold upgrades either autonomous outcome to a ready hand-off, but never
// overrides the urgent path and never rescues an unmatched message: a lead we
// cannot answer routes to a human as complex regardless of how hot it is.
func Decide(urgency UrgencyLevel, topConfidence float64, projectedScore int) Decision {
	if urgency == UrgencyCritical {
		return Decision{Policy: PolicyEscalateUrgent, Reason: ReasonUrgentMedical}
	}

	var base Policy
	switch {
	case topConfidence >= AutonomousConfidence:
		base = PolicyAutonomous
	case topConfidence >= FlaggedConfidence:
		base = PolicyAutonomousFlagged
	default:
		return Decision{Policy: PolicyEscalateComplex, Reason: ReasonComplexUnmatched}
	}

	if projectedScore >= QualifiedScore {
		return Decision{Policy: PolicyEscalateReady, Reason: ReasonScoreHigh}
	}

	return Decision{Policy: base}
}
