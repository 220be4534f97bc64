package achievement

import (
	"context"
	"time"

	"github.com/eirki/trek-api/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// DetectAndPersist ranks the trek's full step history, stores any new
// achievements and returns them.
func (s *Service) DetectAndPersist(ctx context.Context, trekID, legID string, date time.Time) ([]Achievement, error) {
	steps, err := s.loadSteps(ctx, trekID)
	if err != nil {
		return nil, err
	}
	achievements := Detect(steps, trekID, legID, date)
	for _, a := range achievements {
		_, err := s.db.Exec(ctx, `
			INSERT INTO achievements
				(id, trek_id, achievement_type, is_for_trek, user_id, added_at, amount,
				 old_user_id, old_added_at, old_amount, description, unit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, a.ID, a.TrekID, a.Type, a.IsForTrek, a.UserID, a.AddedAt, a.Amount,
			a.OldUserID, a.OldAddedAt, a.OldAmount, a.Description, a.Unit)
		if err != nil {
			return nil, err
		}
	}
	return achievements, nil
}

func (s *Service) loadSteps(ctx context.Context, trekID string) ([]Step, error) {
	rows, err := s.db.Query(ctx, `
		SELECT trek_id, leg_id, user_id, taken_at, amount
		FROM steps WHERE trek_id=$1
		ORDER BY taken_at, user_id
	`, trekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.TrekID, &s.LegID, &s.UserID, &s.TakenAt, &s.Amount); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}
