package output

import (
	"fmt"
	"strings"

	"github.com/eirki/trek-api/internal/achievement"
	"github.com/eirki/trek-api/internal/geo"
	"github.com/eirki/trek-api/internal/progress"
)

// Report text is assembled with neutral rank placeholders so each outputter
// can substitute its own markup.
const (
	placeFirst       = "{first_place}"
	placeSecond      = "{second_place}"
	placeThird       = "{third_place}"
	placeLast        = "{last_place}"
	placeAchievement = "{achievement}"
	placeNewCountry  = "{new_country}"
)

// FormatBlocks renders a day's report as message blocks, top block first.
func FormatBlocks(report progress.Report, frontendURL string) []string {
	var blocks []string

	date := report.Date
	blocks = append(blocks, fmt.Sprintf("**Trek-rapport %d.%d.%d**", date.Day(), int(date.Month()), date.Year()))

	blocks = append(blocks, formatSteps(report.Progress))

	names := map[string]string{}
	for _, up := range report.Progress {
		names[up.UserID] = up.Name
	}
	for _, a := range report.Achievements {
		blocks = append(blocks, formatAchievement(a, names))
	}

	if report.Location.Factoid != "" {
		blocks = append(blocks, report.Location.Factoid)
	}

	if txt := formatLocation(report.Location); txt != "" {
		blocks = append(blocks, txt)
	}

	if report.Location.IsLastInLeg && report.NextAdderName != "" {
		blocks = append(blocks, fmt.Sprintf(
			"Etappen er nå ferdig! %s må gå inn på %s/#/%s og legge til ny etappe.",
			capitalize(report.NextAdderName), frontendURL, report.Trek.ID,
		))
	}
	return blocks
}

func formatSteps(ranked []progress.UserProgress) string {
	var b strings.Builder
	b.WriteString("Steg:")
	if len(ranked) == 0 {
		return b.String()
	}
	most := ranked[0].Steps
	fewest := ranked[len(ranked)-1].Steps
	for i, up := range ranked {
		distance := geo.FormatMeters(float64(up.Steps) * geo.StrideM)
		var amount string
		switch {
		case up.Steps == most:
			amount = fmt.Sprintf("%d (%s) %s", up.Steps, distance, placeFirst)
		case up.Steps == fewest:
			amount = fmt.Sprintf("_%d_ (%s) %s", up.Steps, distance, placeLast)
		case i == 1:
			amount = fmt.Sprintf("%d (%s) %s", up.Steps, distance, placeSecond)
		case i == 2:
			amount = fmt.Sprintf("%d (%s) %s", up.Steps, distance, placeThird)
		default:
			amount = fmt.Sprintf("%d (%s)", up.Steps, distance)
		}
		fmt.Fprintf(&b, "\n\t- %s: %s", up.Name, amount)
	}
	return b.String()
}

func formatAchievement(a achievement.Achievement, names map[string]string) string {
	name := names[a.UserID]
	if name == "" {
		name = a.UserID
	}
	oldName := names[a.OldUserID]
	if oldName == "" {
		oldName = a.OldUserID
	}
	return fmt.Sprintf(
		"%s %s har satt ny rekord: %s, med %d %s! "+
			"Forrige rekordholder var %s, med %d %s. Huzzah!",
		name, placeAchievement, a.Description, a.Amount, a.Unit,
		oldName, a.OldAmount, a.Unit,
	)
}

func formatLocation(loc progress.Location) string {
	var b strings.Builder
	if loc.Country != "" && loc.IsNewCountry {
		fmt.Fprintf(&b, "Velkommen til %s! %s ", loc.Country, placeNewCountry)
	}
	if loc.Address != "" {
		fmt.Fprintf(&b, "Vi har nå kommet til %s. ", loc.Address)
	}
	if loc.POI != "" {
		fmt.Fprintf(&b, "Dagens underholdning er %s.", loc.POI)
	}
	return strings.TrimRight(b.String(), " ")
}

func legReminder(trekID, nextAdderName, frontendURL string) string {
	return fmt.Sprintf(
		"Vi trenger en ny etappe! %s må gå inn på %s/#/%s og legge til ny etappe.",
		capitalize(nextAdderName), frontendURL, trekID,
	)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
