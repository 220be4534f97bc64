package progress

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/eirki/trek-api/internal/tracker"
)

type participant struct {
	userID        string
	name          string
	color         string
	activeTracker string
}

func (s *Service) participants(ctx context.Context, trekID string) ([]participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tu.user_id, COALESCE(NULLIF(u.full_name, ''), u.username), tu.color, COALESCE(u.active_tracker, '')
		FROM trek_users tu JOIN users u ON u.id = tu.user_id
		WHERE tu.trek_id=$1
		ORDER BY tu.added_at
	`, trekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []participant
	for rows.Next() {
		var p participant
		if err := rows.Scan(&p.userID, &p.name, &p.color, &p.activeTracker); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// usersProgress fetches every participant's step total for the day and
// returns them ranked, most steps first. A participant without a working
// tracker counts as zero, the day still advances for everyone else.
func (s *Service) usersProgress(ctx context.Context, participants []participant, date time.Time) []UserProgress {
	ranked := make([]UserProgress, 0, len(participants))
	for _, p := range participants {
		ranked = append(ranked, UserProgress{
			UserID: p.userID,
			Name:   p.name,
			Color:  p.color,
			Steps:  s.stepsForUser(ctx, p, date),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Steps > ranked[j].Steps })
	return ranked
}

func (s *Service) stepsForUser(ctx context.Context, p participant, date time.Time) int {
	if p.activeTracker == "" {
		log.Printf("progress: no active tracker for user %s", p.userID)
		return 0
	}
	tr, err := s.trackers.Get(p.activeTracker)
	if err != nil {
		log.Printf("progress: %v", err)
		return 0
	}
	token, err := s.loadToken(ctx, p.userID, p.activeTracker)
	if err != nil {
		log.Printf("progress: could not load token for user %s: %v", p.userID, err)
		return 0
	}
	steps, rotated, err := tr.Steps(ctx, token, date)
	if err != nil {
		log.Printf("progress: fetching steps for user %s failed: %v", p.userID, err)
		return 0
	}
	if rotated != token {
		if err := s.persistToken(ctx, p.userID, p.activeTracker, rotated); err != nil {
			log.Printf("progress: persisting rotated token for user %s failed: %v", p.userID, err)
		}
	}
	return steps
}

func (s *Service) loadToken(ctx context.Context, userID, trackerName string) (tracker.Token, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT token FROM user_tokens WHERE user_id=$1 AND tracker_name=$2
	`, userID, trackerName).Scan(&raw)
	if err != nil {
		return tracker.Token{}, err
	}
	var token tracker.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return tracker.Token{}, err
	}
	return token, nil
}

func (s *Service) persistToken(ctx context.Context, userID, trackerName string, token tracker.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE user_tokens SET token=$3 WHERE user_id=$1 AND tracker_name=$2
	`, userID, trackerName, raw)
	return err
}

func (s *Service) persistSteps(ctx context.Context, trekID, legID string, date time.Time, ranked []UserProgress) error {
	for _, up := range ranked {
		_, err := s.db.Exec(ctx, `
			INSERT INTO steps (trek_id, leg_id, user_id, taken_at, amount)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (trek_id, leg_id, user_id, taken_at) DO NOTHING
		`, trekID, legID, up.UserID, date, up.Steps)
		if err != nil {
			return err
		}
	}
	return nil
}
