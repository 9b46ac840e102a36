package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ConversationStatus
		want     bool
	}{
		{StatusActive, StatusPendingHandoff, true},
		{StatusActive, StatusEscalated, true},
		{StatusActive, StatusClosed, true},
		{StatusPendingHandoff, StatusEscalated, true},
		{StatusPendingHandoff, StatusClosed, true},
		{StatusEscalated, StatusClosed, true},
		// no backward transitions
		{StatusPendingHandoff, StatusActive, false},
		{StatusEscalated, StatusActive, false},
		{StatusEscalated, StatusPendingHandoff, false},
		// CLOSED is terminal
		{StatusClosed, StatusActive, false},
		{StatusClosed, StatusEscalated, false},
		// staying put is a no-op, always allowed
		{StatusActive, StatusActive, true},
		{StatusClosed, StatusClosed, true},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStageForProgress(t *testing.T) {
	cases := []struct {
		name      string
		current   FunnelStage
		score     int
		escalated bool
		want      FunnelStage
	}{
		{"new lead starts qualifying", StageNew, 10, false, StageQualifying},
		{"qualified at threshold", StageQualifying, 70, false, StageQualified},
		{"escalation advances stage", StageQualifying, 50, true, StageEscalated},
		{"never moves backward from escalated", StageEscalated, 10, false, StageEscalated},
		{"converted stays converted", StageConverted, 80, true, StageConverted},
		{"closed stays closed", StageClosed, 90, true, StageClosed},
	}

	for _, tc := range cases {
		if got := StageForProgress(tc.current, tc.score, tc.escalated); got != tc.want {
			t.Errorf("%s: StageForProgress(%s, %d, %v) = %s, want %s",
				tc.name, tc.current, tc.score, tc.escalated, got, tc.want)
		}
	}
}
