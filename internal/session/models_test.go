package session

import "testing"

func TestStatusOrdering(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitiating, StatusInProgress, true},
		{StatusInitiating, StatusCompleted, true},
		{StatusInitiating, StatusFailed, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusAICompleted, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusAICompleted, StatusCompleted, true},
		{StatusAICompleted, StatusInProgress, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusCompleted, true},
		{Status("bogus"), StatusCompleted, false},
		{StatusInProgress, Status("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("completed and failed must be terminal")
	}
	for _, s := range []Status{StatusInitiating, StatusInProgress, StatusAICompleted} {
		if s.IsTerminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}
