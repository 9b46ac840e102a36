package domain

// Scoring table and policy thresholds. These are the single source of truth
// for both the decision engine and any reporting consumer; no other package
// may restate the values.

const (
	// MinScore and MaxScore bound the qualification score.
	MinScore = 0
	MaxScore = 100

	// QualifiedScore is the score at which a lead is judged ready to hand
	// off for conversion.
	QualifiedScore = 70

	// AutonomousConfidence is the playbook confidence at or above which the
	// engine replies without any review flag.
	AutonomousConfidence = 0.80

	// FlaggedConfidence is the playbook confidence at or above which the
	// engine still replies, but marks the conversation for later review.
	FlaggedConfidence = 0.50
)

// scoreDeltas is the additive score table keyed by classified intent.
var scoreDeltas = map[Intent]int{
	IntentInterest:     10,
	IntentPricing:      15,
	IntentScheduling:   20,
	IntentConfirmation: 25,
	IntentComplaint:    0,
	IntentGreeting:     1,
	IntentClosing:      0,
	IntentOther:        0,
}

// ScoreDelta returns the additive delta for a classified intent.
func ScoreDelta(intent Intent) int {
	return scoreDeltas[intent]
}

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ApplyScore adds the intent delta to the current score and clamps the result.
func ApplyScore(current int, intent Intent) int {
	return ClampScore(current + ScoreDelta(intent))
}
