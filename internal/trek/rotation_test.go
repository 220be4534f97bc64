package trek

import (
	"fmt"
	"testing"
	"time"
)

func participantsN(n int) []Participant {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Participant, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Participant{
			TrekID:  "trek-1",
			UserID:  fmt.Sprintf("user-%d", i),
			AddedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func TestNextAdderCyclesThroughAll(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		participants := participantsN(n)
		current := participants[0].UserID
		for i := 0; i < n; i++ {
			current = NextAdder(current, participants)
		}
		if current != participants[0].UserID {
			t.Fatalf("n=%d: expected to cycle back to %s, got %s", n, participants[0].UserID, current)
		}
	}
}

func TestNextAdderWraps(t *testing.T) {
	participants := participantsN(3)
	if got := NextAdder("user-2", participants); got != "user-0" {
		t.Fatalf("expected wrap to user-0, got %s", got)
	}
	if got := NextAdder("user-0", participants); got != "user-1" {
		t.Fatalf("expected user-1, got %s", got)
	}
}

func TestNextAdderForLegsNoHistory(t *testing.T) {
	participants := participantsN(3)
	if got := nextAdderForLegs(nil, participants); got != "user-0" {
		t.Fatalf("first participant should open, got %s", got)
	}
}

func TestNextAdderForLegsFollowsLatestLeg(t *testing.T) {
	participants := participantsN(3)
	legs := []Leg{
		{ID: "leg-1", AddedBy: "user-0"},
		{ID: "leg-2", AddedBy: "user-1"},
	}
	if got := nextAdderForLegs(legs, participants); got != "user-2" {
		t.Fatalf("expected user-2, got %s", got)
	}
}

func TestNextAdderUnknownAdder(t *testing.T) {
	participants := participantsN(2)
	if got := NextAdder("user-gone", participants); got != "user-0" {
		t.Fatalf("unknown adder should reset to first participant, got %s", got)
	}
}
