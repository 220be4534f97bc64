package achievement

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Step is one participant's total for one day, scoped to a trek and leg.
type Step struct {
	TrekID  string
	LegID   string
	UserID  string
	TakenAt time.Time
	Amount  int
}

type Achievement struct {
	ID          string    `json:"id"`
	TrekID      string    `json:"trek_id"`
	LegID       string    `json:"leg_id"`
	Type        string    `json:"achievement_type"`
	IsForTrek   bool      `json:"is_for_trek"`
	UserID      string    `json:"user_id"`
	AddedAt     time.Time `json:"added_at"`
	Amount      int       `json:"amount"`
	OldUserID   string    `json:"old_user_id"`
	OldAddedAt  time.Time `json:"old_added_at"`
	OldAmount   int       `json:"old_amount"`
	Description string    `json:"description"`
	Unit        string    `json:"unit"`
}

// record is a candidate row in a ranking. The top entry is a new achievement
// when it is dated on the day being processed, and the runner up is the
// record it displaces.
type record struct {
	userID  string
	takenAt time.Time
	amount  int
}

var kinds = []struct {
	typ         string
	description string
	unit        string
	rank        func([]Step) []record
}{
	{"most_steps_one_day", "Flest skritt gått på en dag", "skritt", rankDays},
	{"most_steps_one_week", "Flest skritt gått på en uke", "skritt", rankWeeks},
	{"longest_streak", "Flest førsteplasser på rad", "dager", rankStreaks},
}

// Detect reports the achievements set on the given day. Nothing is reported
// until a trek has three distinct days of data. The leg is ranked separately
// while it is younger than three days, so fresh legs get their own records.
func Detect(steps []Step, trekID, legID string, date time.Time) []Achievement {
	if distinctDays(steps) < 3 {
		return nil
	}
	scopes := []struct {
		steps     []Step
		isForTrek bool
	}{{steps, true}}

	var legSteps []Step
	for _, s := range steps {
		if s.LegID == legID {
			legSteps = append(legSteps, s)
		}
	}
	if distinctDays(legSteps) < 3 {
		scopes = append(scopes, struct {
			steps     []Step
			isForTrek bool
		}{legSteps, false})
	}

	var out []Achievement
	for _, scope := range scopes {
		for _, kind := range kinds {
			records := kind.rank(scope.steps)
			newRec, oldRec, ok := checkNew(records, date)
			if !ok {
				continue
			}
			out = append(out, Achievement{
				ID:          uuid.NewString(),
				TrekID:      trekID,
				LegID:       legID,
				Type:        kind.typ,
				IsForTrek:   scope.isForTrek,
				UserID:      newRec.userID,
				AddedAt:     newRec.takenAt,
				Amount:      newRec.amount,
				OldUserID:   oldRec.userID,
				OldAddedAt:  oldRec.takenAt,
				OldAmount:   oldRec.amount,
				Description: kind.description,
				Unit:        kind.unit,
			})
		}
	}
	return out
}

func checkNew(records []record, date time.Time) (record, record, bool) {
	if len(records) < 2 {
		return record{}, record{}, false
	}
	if !sameDay(records[0].takenAt, date) {
		return record{}, record{}, false
	}
	return records[0], records[1], true
}

// rankDays orders single day totals, best first. Ties keep the earlier date
// on top.
func rankDays(steps []Step) []record {
	records := make([]record, 0, len(steps))
	for _, s := range steps {
		records = append(records, record{userID: s.UserID, takenAt: s.TakenAt, amount: s.Amount})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].amount != records[j].amount {
			return records[i].amount > records[j].amount
		}
		return records[i].takenAt.Before(records[j].takenAt)
	})
	return records
}

// rankWeeks orders rolling seven day sums per participant, best first. A
// participant needs seven days of data before any window counts.
func rankWeeks(steps []Step) []record {
	byUser := map[string][]record{}
	var userOrder []string
	for _, s := range steps {
		if _, seen := byUser[s.UserID]; !seen {
			userOrder = append(userOrder, s.UserID)
		}
		byUser[s.UserID] = append(byUser[s.UserID], record{userID: s.UserID, takenAt: s.TakenAt, amount: s.Amount})
	}
	sort.Strings(userOrder)

	var records []record
	for _, userID := range userOrder {
		rows := byUser[userID]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].takenAt.Before(rows[j].takenAt) })
		sum := 0
		for i, row := range rows {
			sum += row.amount
			if i >= 7 {
				sum -= rows[i-7].amount
			}
			if i >= 6 {
				records = append(records, record{userID: userID, takenAt: row.takenAt, amount: sum})
			}
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].amount != records[j].amount {
			return records[i].amount > records[j].amount
		}
		return records[i].takenAt.After(records[j].takenAt)
	})
	return records
}

// rankStreaks finds each day's top stepper, counts consecutive wins, and
// orders the runs by length. Ties on a day go to the row seen first.
func rankStreaks(steps []Step) []record {
	winners := map[time.Time]record{}
	var days []time.Time
	for _, s := range steps {
		day := dayOf(s.TakenAt)
		best, seen := winners[day]
		if !seen {
			days = append(days, day)
		}
		if !seen || s.Amount > best.amount {
			winners[day] = record{userID: s.UserID, takenAt: day, amount: s.Amount}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	records := make([]record, 0, len(days))
	streak := 0
	for i, day := range days {
		winner := winners[day]
		if i > 0 && winners[days[i-1]].userID == winner.userID {
			streak++
		} else {
			streak = 1
		}
		records = append(records, record{userID: winner.userID, takenAt: day, amount: streak})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].amount > records[j].amount })
	return records
}

func distinctDays(steps []Step) int {
	days := map[time.Time]struct{}{}
	for _, s := range steps {
		days[dayOf(s.TakenAt)] = struct{}{}
	}
	return len(days)
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return dayOf(a).Equal(dayOf(b))
}
