package trek

import (
	"strings"
	"testing"
)

func TestParticipantColorPalette(t *testing.T) {
	if got := participantColor(0, "user-a"); got != "#2cb" {
		t.Fatalf("first joiner should get first palette color, got %s", got)
	}
	if got := participantColor(7, "user-b"); got != "#9d5" {
		t.Fatalf("eighth joiner should get last palette color, got %s", got)
	}
}

func TestParticipantColorFallbackDeterministic(t *testing.T) {
	a := participantColor(8, "user-x")
	b := participantColor(8, "user-x")
	if a != b {
		t.Fatalf("fallback color must be deterministic: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "#") || len(a) != 7 {
		t.Fatalf("fallback color should be a hex color, got %s", a)
	}
}
