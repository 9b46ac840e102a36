package domain

import "testing"

func TestDecide(t *testing.T) {
	cases := []struct {
		name       string
		urgency    UrgencyLevel
		confidence float64
		projected  int
		wantPolicy Policy
		wantReason EscalationReason
	}{
		{"critical overrides high confidence", UrgencyCritical, 0.95, 10, PolicyEscalateUrgent, ReasonUrgentMedical},
		{"critical overrides qualified score", UrgencyCritical, 0.95, 90, PolicyEscalateUrgent, ReasonUrgentMedical},
		{"high urgency does not force escalation", UrgencyHigh, 0.90, 10, PolicyAutonomous, ""},
		{"pricing question with strong match", UrgencyNone, 0.94, 10, PolicyAutonomous, ""},
		{"confidence exactly at autonomous threshold", UrgencyNone, 0.80, 10, PolicyAutonomous, ""},
		{"mid confidence is flagged", UrgencyNone, 0.65, 10, PolicyAutonomousFlagged, ""},
		{"confidence exactly at flagged threshold", UrgencyNone, 0.50, 10, PolicyAutonomousFlagged, ""},
		{"weak match escalates complex", UrgencyNone, 0.49, 10, PolicyEscalateComplex, ReasonComplexUnmatched},
		{"no match escalates complex", UrgencyNone, 0, 10, PolicyEscalateComplex, ReasonComplexUnmatched},
		{"qualified score upgrades autonomous", UrgencyNone, 0.90, 71, PolicyEscalateReady, ReasonScoreHigh},
		{"qualified score upgrades flagged", UrgencyNone, 0.60, 70, PolicyEscalateReady, ReasonScoreHigh},
		{"qualified score does not rescue unmatched", UrgencyNone, 0.30, 85, PolicyEscalateComplex, ReasonComplexUnmatched},
		{"just below qualified stays autonomous", UrgencyNone, 0.90, 69, PolicyAutonomous, ""},
	}

	for _, tc := range cases {
		got := Decide(tc.urgency, tc.confidence, tc.projected)
		if got.Policy != tc.wantPolicy {
			t.Errorf("%s: Decide(%s, %.2f, %d).Policy = %s, want %s",
				tc.name, tc.urgency, tc.confidence, tc.projected, got.Policy, tc.wantPolicy)
		}
		if got.Reason != tc.wantReason {
			t.Errorf("%s: Decide(%s, %.2f, %d).Reason = %q, want %q",
				tc.name, tc.urgency, tc.confidence, tc.projected, got.Reason, tc.wantReason)
		}
	}
}

func TestPolicyEscalates(t *testing.T) {
	escalating := []Policy{PolicyEscalateUrgent, PolicyEscalateComplex, PolicyEscalateReady}
	for _, p := range escalating {
		if !p.Escalates() {
			t.Errorf("%s.Escalates() = false, want true", p)
		}
	}
	for _, p := range []Policy{PolicyAutonomous, PolicyAutonomousFlagged} {
		if p.Escalates() {
			t.Errorf("%s.Escalates() = true, want false", p)
		}
	}
}

// High confidence with non-critical urgency must never route to a complex or
// urgent hand-off, whatever the score.
func TestHighConfidenceNeverComplex(t *testing.T) {
	for score := 0; score <= 100; score += 5 {
		got := Decide(UrgencyHigh, 0.85, score)
		if got.Policy == PolicyEscalateComplex || got.Policy == PolicyEscalateUrgent {
			t.Fatalf("Decide(HIGH, 0.85, %d) = %s, want Autonomous or EscalateReady", score, got.Policy)
		}
	}
}
