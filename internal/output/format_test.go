package output

import (
	"strings"
	"testing"
	"time"

	"github.com/eirki/trek-api/internal/achievement"
	"github.com/eirki/trek-api/internal/progress"
)

func sampleReport() progress.Report {
	return progress.Report{
		Trek: progress.Trek{ID: "trek-1", OutputTo: "discord"},
		Date: time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		Progress: []progress.UserProgress{
			{UserID: "user-1", Name: "Alice", Color: "#2cb", Steps: 12000},
			{UserID: "user-2", Name: "Bob", Color: "#36b", Steps: 8000},
			{UserID: "user-3", Name: "Carol", Color: "#639", Steps: 1000},
		},
		Location: progress.Location{
			TrekID:       "trek-1",
			LegID:        "leg-1",
			AddedAt:      time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
			Address:      "Brandenburger Tor, Berlin",
			Country:      "Germany",
			IsNewCountry: true,
			POI:          "Museumsinsel",
			Factoid:      "Nå har vi gått 9 km på denne etappen - vi har igjen 3 km.",
		},
	}
}

func TestFormatBlocks(t *testing.T) {
	blocks := FormatBlocks(sampleReport(), "https://trek.example")
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %q", len(blocks), blocks)
	}
	if blocks[0] != "**Trek-rapport 27.8.2026**" {
		t.Fatalf("unexpected title: %q", blocks[0])
	}

	steps := blocks[1]
	if !strings.Contains(steps, "Alice: 12000 (9 km) {first_place}") {
		t.Fatalf("missing first place line: %q", steps)
	}
	if !strings.Contains(steps, "Bob: 8000 (6 km) {second_place}") {
		t.Fatalf("missing second place line: %q", steps)
	}
	if !strings.Contains(steps, "Carol: _1000_ (750 m) {last_place}") {
		t.Fatalf("missing last place line: %q", steps)
	}

	if !strings.HasPrefix(blocks[2], "Nå har vi gått") {
		t.Fatalf("expected factoid block: %q", blocks[2])
	}
	location := blocks[3]
	if !strings.Contains(location, "Velkommen til Germany! {new_country}") {
		t.Fatalf("missing country greeting: %q", location)
	}
	if !strings.Contains(location, "Vi har nå kommet til Brandenburger Tor, Berlin.") {
		t.Fatalf("missing address: %q", location)
	}
	if !strings.Contains(location, "Dagens underholdning er Museumsinsel.") {
		t.Fatalf("missing poi: %q", location)
	}
}

func TestFormatBlocksAchievementAndLegEnd(t *testing.T) {
	report := sampleReport()
	report.Achievements = []achievement.Achievement{{
		Type: "most_steps_one_day", UserID: "user-1", Amount: 12000,
		OldUserID: "user-2", OldAmount: 9000,
		Description: "Flest skritt gått på en dag", Unit: "skritt",
	}}
	report.Location.IsLastInLeg = true
	report.NextAdderName = "bob"

	blocks := FormatBlocks(report, "https://trek.example")
	joined := strings.Join(blocks, "\n\n")
	if !strings.Contains(joined,
		"Alice {achievement} har satt ny rekord: Flest skritt gått på en dag, med 12000 skritt! "+
			"Forrige rekordholder var Bob, med 9000 skritt. Huzzah!") {
		t.Fatalf("missing achievement block: %q", joined)
	}
	if !strings.Contains(joined,
		"Etappen er nå ferdig! Bob må gå inn på https://trek.example/#/trek-1 og legge til ny etappe.") {
		t.Fatalf("missing leg end reminder: %q", joined)
	}
}

func TestDiscordEmojiSubstitution(t *testing.T) {
	content := discordEmoji.Replace(strings.Join(FormatBlocks(sampleReport(), "https://trek.example"), "\n\n"))
	for _, emoji := range []string{":first_place:", ":second_place:", ":turtle:", ":confetti_ball:"} {
		if !strings.Contains(content, emoji) {
			t.Fatalf("missing %s in %q", emoji, content)
		}
	}
	if strings.Contains(content, "{") {
		t.Fatalf("unreplaced placeholder in %q", content)
	}
}
