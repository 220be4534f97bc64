package factoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goodsign/monday"

	"github.com/eirki/trek-api/internal/db"
	"github.com/eirki/trek-api/internal/geo"
)

// Service writes the little prose notes that accompany a day's progress
// report. Which note is generated depends on the weekday.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// Daily returns the factoid for the given day, or "" when there is nothing
// to say (a weekly summary with no steps).
func (s *Service) Daily(ctx context.Context, trekID, legID string, date time.Time, cumulativeProgress float64) (string, error) {
	switch date.Weekday() {
	case time.Sunday, time.Tuesday, time.Thursday:
		return s.remainingDistance(ctx, trekID, legID, cumulativeProgress)
	case time.Monday, time.Wednesday, time.Friday:
		return s.eta(ctx, trekID, legID, date, cumulativeProgress)
	default:
		return s.weeklySummary(ctx, trekID, legID, date)
	}
}

func (s *Service) remainingDistance(ctx context.Context, trekID, legID string, cumulativeProgress float64) (string, error) {
	total, err := s.legTotalDistance(ctx, trekID, legID)
	if err != nil {
		return "", err
	}
	remaining := math.Max(total-cumulativeProgress, 0)
	return fmt.Sprintf(
		"Nå har vi gått %s på denne etappen - vi har igjen %s.",
		geo.FormatMeters(cumulativeProgress), geo.FormatMeters(remaining),
	), nil
}

func (s *Service) eta(ctx context.Context, trekID, legID string, date time.Time, cumulativeProgress float64) (string, error) {
	var locationCount int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM locations WHERE trek_id=$1 AND leg_id=$2
	`, trekID, legID).Scan(&locationCount)
	if err != nil {
		return "", err
	}
	days := locationCount + 1
	average := cumulativeProgress / float64(days)
	if average <= 0 {
		return s.remainingDistance(ctx, trekID, legID, cumulativeProgress)
	}

	total, err := s.legTotalDistance(ctx, trekID, legID)
	if err != nil {
		return "", err
	}
	remaining := total - cumulativeProgress
	daysRemaining := int(math.Ceil(remaining / average))
	eta := date.AddDate(0, 0, daysRemaining)
	return fmt.Sprintf(
		"Vi har gått i snitt %s hver dag denne etappen. "+
			"Holder vi dette tempoet er vi fremme den %s, om %d dager.",
		geo.FormatMeters(average),
		monday.Format(eta, "02. January 2006", monday.LocaleNbNO),
		daysRemaining,
	), nil
}

func (s *Service) weeklySummary(ctx context.Context, trekID, legID string, date time.Time) (string, error) {
	oneWeekAgo := date.AddDate(0, 0, -7)
	rows, err := s.db.Query(ctx, `
		SELECT COALESCE(u.full_name, u.username), SUM(s.amount)
		FROM steps s JOIN users u ON u.id = s.user_id
		WHERE s.trek_id=$1 AND s.leg_id=$2 AND s.taken_at > $3
		GROUP BY s.user_id, u.full_name, u.username
		ORDER BY SUM(s.amount) DESC
	`, trekID, legID, oneWeekAgo)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	topName := ""
	topSteps := 0
	totalSteps := 0
	for rows.Next() {
		var name string
		var sum int
		if err := rows.Scan(&name, &sum); err != nil {
			return "", err
		}
		if topName == "" {
			topName, topSteps = name, sum
		}
		totalSteps += sum
	}
	if totalSteps == 0 {
		return "", nil
	}
	return fmt.Sprintf(
		"Denne uken har vi gått %s til sammen. Den som gikk lengst var %s, med %s!",
		geo.FormatMeters(float64(totalSteps)*geo.StrideM),
		topName,
		geo.FormatMeters(float64(topSteps)*geo.StrideM),
	), nil
}

// LegSummary is produced once, the day a leg is walked to its end.
func (s *Service) LegSummary(ctx context.Context, trekID, legID string) (string, error) {
	var days int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM locations WHERE trek_id=$1 AND leg_id=$2
	`, trekID, legID).Scan(&days)
	if err != nil {
		return "", err
	}

	var topName string
	var topSteps int
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(u.full_name, u.username), SUM(s.amount)
		FROM steps s JOIN users u ON u.id = s.user_id
		WHERE s.trek_id=$1 AND s.leg_id=$2
		GROUP BY s.user_id, u.full_name, u.username
		ORDER BY SUM(s.amount) DESC
		LIMIT 1
	`, trekID, legID).Scan(&topName, &topSteps)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Denne etappen tok oss %d dager. Den som gikk lengst var %s, med %s!",
		days, topName, geo.FormatMeters(float64(topSteps)*geo.StrideM),
	), nil
}

func (s *Service) legTotalDistance(ctx context.Context, trekID, legID string) (float64, error) {
	var total float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(distance), 0) FROM waypoints WHERE trek_id=$1 AND leg_id=$2
	`, trekID, legID).Scan(&total)
	return total, err
}
