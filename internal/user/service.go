package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eirki/trek-api/internal/db"
	"github.com/eirki/trek-api/internal/tracker"
)

// Link states expire quickly, the user is mid-redirect when they exist.
const linkStateTTL = 10 * time.Minute

var ErrLinkExpired = errors.New("tracker link expired or unknown")

type Profile struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Username       string   `json:"username"`
	FullName       string   `json:"full_name"`
	ActiveTracker  string   `json:"active_tracker,omitempty"`
	LinkedTrackers []string `json:"linked_trackers"`
}

type Service struct {
	db       db.Querier
	rdb      *redis.Client
	trackers *tracker.Registry
}

func NewService(db db.Querier, rdb *redis.Client, trackers *tracker.Registry) *Service {
	return &Service{db: db, rdb: rdb, trackers: trackers}
}

func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT id, email, username, full_name, COALESCE(active_tracker, '')
		FROM users WHERE id=$1
	`, userID).Scan(&p.ID, &p.Email, &p.Username, &p.FullName, &p.ActiveTracker)
	if err != nil {
		return Profile{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT tracker_name FROM user_tokens WHERE user_id=$1 ORDER BY tracker_name
	`, userID)
	if err != nil {
		return Profile{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Profile{}, err
		}
		p.LinkedTrackers = append(p.LinkedTrackers, name)
	}
	return p, nil
}

// LinkURL starts the oauth dance for a tracker. The state is a one time
// value held in redis so the callback can recover which user it belongs to.
func (s *Service) LinkURL(ctx context.Context, userID, trackerName string) (string, error) {
	trk, err := s.trackers.Get(trackerName)
	if err != nil {
		return "", err
	}
	state := uuid.NewString()
	if err := s.rdb.Set(ctx, linkStateKey(state), userID, linkStateTTL).Err(); err != nil {
		return "", err
	}
	return trk.AuthorizationURL(state), nil
}

// HandleCallback exchanges the oauth code, stores the token and makes the
// tracker active if the user has none yet.
func (s *Service) HandleCallback(ctx context.Context, trackerName, code, state string) error {
	trk, err := s.trackers.Get(trackerName)
	if err != nil {
		return err
	}
	userID, err := s.rdb.GetDel(ctx, linkStateKey(state)).Result()
	if err == redis.Nil {
		return ErrLinkExpired
	}
	if err != nil {
		return err
	}

	token, err := trk.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging %s code: %w", trackerName, err)
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_tokens (user_id, tracker_name, tracker_user_id, token)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, tracker_name)
		DO UPDATE SET tracker_user_id = EXCLUDED.tracker_user_id, token = EXCLUDED.token
	`, userID, trackerName, token.TrackerUserID, raw)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE users SET active_tracker=$2 WHERE id=$1 AND active_tracker IS NULL
	`, userID, trackerName)
	if err != nil {
		return err
	}
	s.backfillName(ctx, userID, trackerName, trk, token)
	return nil
}

// backfillName fills an empty full_name from the tracker profile. Purely
// cosmetic, failures only get logged.
func (s *Service) backfillName(ctx context.Context, userID, trackerName string, trk tracker.Tracker, token tracker.Token) {
	var fullName string
	err := s.db.QueryRow(ctx, `
		SELECT full_name FROM users WHERE id=$1
	`, userID).Scan(&fullName)
	if err != nil || fullName != "" {
		return
	}
	name, rotated, err := trk.DisplayName(ctx, token)
	if err != nil {
		log.Printf("user: fetching %s display name: %v", trackerName, err)
		return
	}
	if rotated != token {
		raw, err := json.Marshal(rotated)
		if err == nil {
			_, _ = s.db.Exec(ctx, `
				UPDATE user_tokens SET token=$3 WHERE user_id=$1 AND tracker_name=$2
			`, userID, trackerName, raw)
		}
	}
	if name == "" {
		return
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE users SET full_name=$2 WHERE id=$1
	`, userID, name); err != nil {
		log.Printf("user: backfilling name: %v", err)
	}
}

// SetActiveTracker switches which linked tracker future step fetches use.
func (s *Service) SetActiveTracker(ctx context.Context, userID, trackerName string) error {
	var linked bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_tokens WHERE user_id=$1 AND tracker_name=$2)
	`, userID, trackerName).Scan(&linked)
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("tracker %s is not linked", trackerName)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE users SET active_tracker=$2 WHERE id=$1
	`, userID, trackerName)
	return err
}

func linkStateKey(state string) string {
	return "tracker:link:" + state
}
