package trek

import (
	"context"
	"errors"
	"time"

	"github.com/eirki/trek-api/internal/db"
	"github.com/eirki/trek-api/internal/geo"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/twpayne/go-polyline"
)

type Service struct {
	db           db.Querier
	inviteSecret []byte
}

func NewService(q db.Querier, inviteSecret string) *Service {
	return &Service{db: q, inviteSecret: []byte(inviteSecret)}
}

type CreateTrekRequest struct {
	Polyline       string `json:"polyline"`
	ProgressAtHour *int   `json:"progress_at_hour"`
	ProgressAtTz   string `json:"progress_at_tz"`
	OutputTo       string `json:"output_to"`
}

func (s *Service) CreateTrek(ctx context.Context, ownerID string, req CreateTrekRequest) (Trek, error) {
	hour := 12
	if req.ProgressAtHour != nil {
		hour = *req.ProgressAtHour
	}
	if hour < 0 || hour > 23 {
		return Trek{}, ErrInvalidHour
	}
	tz := req.ProgressAtTz
	if tz == "" {
		tz = "CET"
	}
	points, err := decodeRoute(req.Polyline)
	if err != nil {
		return Trek{}, err
	}

	trek := Trek{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		IsActive:       false,
		ProgressAtHour: hour,
		ProgressAtTz:   tz,
		OutputTo:       req.OutputTo,
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO treks (id, owner_id, is_active, progress_at_hour, progress_at_tz, output_to)
		VALUES ($1,$2,$3,$4,$5, NULLIF($6,''))
	`, trek.ID, trek.OwnerID, trek.IsActive, trek.ProgressAtHour, trek.ProgressAtTz, trek.OutputTo)
	if err != nil {
		return Trek{}, err
	}

	if _, err := s.addParticipant(ctx, trek.ID, ownerID); err != nil {
		return Trek{}, err
	}
	if _, err := s.insertLeg(ctx, trek.ID, ownerID, points); err != nil {
		return Trek{}, err
	}
	return trek, nil
}

type EditTrekRequest struct {
	OwnerID        string `json:"owner_id"`
	IsActive       *bool  `json:"is_active"`
	ProgressAtHour *int   `json:"progress_at_hour"`
	ProgressAtTz   string `json:"progress_at_tz"`
	OutputTo       string `json:"output_to"`
}

func (s *Service) EditTrek(ctx context.Context, trekID, userID string, patch EditTrekRequest) (Trek, error) {
	trek, err := s.getTrek(ctx, trekID)
	if err != nil {
		return Trek{}, err
	}
	if trek.OwnerID != userID {
		return Trek{}, ErrForbidden
	}
	if patch.OwnerID != "" {
		trek.OwnerID = patch.OwnerID
	}
	if patch.IsActive != nil {
		trek.IsActive = *patch.IsActive
	}
	if patch.ProgressAtHour != nil {
		if *patch.ProgressAtHour < 0 || *patch.ProgressAtHour > 23 {
			return Trek{}, ErrInvalidHour
		}
		trek.ProgressAtHour = *patch.ProgressAtHour
	}
	if patch.ProgressAtTz != "" {
		trek.ProgressAtTz = patch.ProgressAtTz
	}
	if patch.OutputTo != "" {
		trek.OutputTo = patch.OutputTo
	}

	_, err = s.db.Exec(ctx, `
		UPDATE treks
		SET owner_id=$2, is_active=$3, progress_at_hour=$4, progress_at_tz=$5, output_to=NULLIF($6,'')
		WHERE id=$1
	`, trek.ID, trek.OwnerID, trek.IsActive, trek.ProgressAtHour, trek.ProgressAtTz, trek.OutputTo)
	if err != nil {
		return Trek{}, err
	}
	return trek, nil
}

func (s *Service) SetActive(ctx context.Context, trekID, userID string, active bool) error {
	trek, err := s.getTrek(ctx, trekID)
	if err != nil {
		return err
	}
	if trek.OwnerID != userID {
		return ErrForbidden
	}
	_, err = s.db.Exec(ctx, `UPDATE treks SET is_active=$2 WHERE id=$1`, trekID, active)
	return err
}

// DeleteTrek removes the trek; legs, waypoints, participants, locations,
// steps and achievements follow via the schema's cascades.
func (s *Service) DeleteTrek(ctx context.Context, trekID, userID string) error {
	trek, err := s.getTrek(ctx, trekID)
	if err != nil {
		return err
	}
	if trek.OwnerID != userID {
		return ErrForbidden
	}
	_, err = s.db.Exec(ctx, `DELETE FROM treks WHERE id=$1`, trekID)
	return err
}

// InviteToken signs a join token for the trek. Only the owner may invite.
func (s *Service) InviteToken(ctx context.Context, trekID, userID string) (string, error) {
	trek, err := s.getTrek(ctx, trekID)
	if err != nil {
		return "", err
	}
	if trek.OwnerID != userID {
		return "", ErrForbidden
	}
	claims := jwt.MapClaims{
		"trek_id": trekID,
		"exp":     jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.inviteSecret)
}

// Join adds the user to the trek named by the invite token. Joining twice is
// a no-op.
func (s *Service) Join(ctx context.Context, inviteToken, userID string) (string, error) {
	parsed, err := jwt.Parse(inviteToken, func(_ *jwt.Token) (interface{}, error) {
		return s.inviteSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrForbidden
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrForbidden
	}
	trekID, _ := claims["trek_id"].(string)
	if _, err := s.getTrek(ctx, trekID); err != nil {
		return "", err
	}
	joined, err := s.isParticipant(ctx, trekID, userID)
	if err != nil {
		return "", err
	}
	if !joined {
		if _, err := s.addParticipant(ctx, trekID, userID); err != nil {
			return "", err
		}
	}
	return trekID, nil
}

type AddLegRequest struct {
	Polyline string `json:"polyline"`
}

func (s *Service) AddLeg(ctx context.Context, trekID, userID string, req AddLegRequest) (Leg, error) {
	if _, err := s.getTrek(ctx, trekID); err != nil {
		return Leg{}, err
	}
	joined, err := s.isParticipant(ctx, trekID, userID)
	if err != nil {
		return Leg{}, err
	}
	if !joined {
		return Leg{}, ErrNotParticipant
	}

	legs, err := s.Legs(ctx, trekID)
	if err != nil {
		return Leg{}, err
	}
	for _, leg := range legs {
		if !leg.IsFinished {
			return Leg{}, ErrUnfinishedLeg
		}
	}

	participants, err := s.Participants(ctx, trekID)
	if err != nil {
		return Leg{}, err
	}
	if nextAdderForLegs(legs, participants) != userID {
		return Leg{}, ErrNotNextAdder
	}

	points, err := decodeRoute(req.Polyline)
	if err != nil {
		return Leg{}, err
	}
	if len(legs) > 0 {
		if err := s.assertConnects(ctx, trekID, legs[len(legs)-1].ID, points[0]); err != nil {
			return Leg{}, err
		}
	}
	return s.insertLeg(ctx, trekID, userID, points)
}

func (s *Service) GetTrek(ctx context.Context, trekID, userID string) (TrekDetail, error) {
	trek, err := s.getTrek(ctx, trekID)
	if err != nil {
		return TrekDetail{}, err
	}
	participants, err := s.Participants(ctx, trekID)
	if err != nil {
		return TrekDetail{}, err
	}
	joined := false
	for _, p := range participants {
		if p.UserID == userID {
			joined = true
		}
	}
	if !joined {
		return TrekDetail{}, ErrForbidden
	}

	legs, err := s.Legs(ctx, trekID)
	if err != nil {
		return TrekDetail{}, err
	}
	unfinished := false
	for _, leg := range legs {
		if !leg.IsFinished {
			unfinished = true
		}
	}

	current, err := s.currentPoint(ctx, trekID)
	if err != nil {
		return TrekDetail{}, err
	}

	return TrekDetail{
		Trek:            trek,
		Users:           participants,
		Legs:            legs,
		CurrentLocation: current,
		IsOwner:         trek.OwnerID == userID,
		CanAddLeg:       !unfinished && nextAdderForLegs(legs, participants) == userID,
	}, nil
}

func (s *Service) GetLeg(ctx context.Context, trekID, legID, userID string) (LegDetail, error) {
	if _, err := s.getTrek(ctx, trekID); err != nil {
		return LegDetail{}, err
	}
	joined, err := s.isParticipant(ctx, trekID, userID)
	if err != nil {
		return LegDetail{}, err
	}
	if !joined {
		return LegDetail{}, ErrForbidden
	}

	row := s.db.QueryRow(ctx, `
		SELECT id, trek_id, added_at, added_by, is_finished
		FROM legs WHERE trek_id=$1 AND id=$2
	`, trekID, legID)
	var leg Leg
	if err := row.Scan(&leg.ID, &leg.TrekID, &leg.AddedAt, &leg.AddedBy, &leg.IsFinished); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegDetail{}, ErrLegNotFound
		}
		return LegDetail{}, err
	}

	locations, err := s.legLocations(ctx, trekID, legID)
	if err != nil {
		return LegDetail{}, err
	}
	detail := LegDetail{Leg: leg, Locations: locations}
	if len(locations) == 0 {
		return detail, nil
	}

	// Only show the traversed part of an unfinished leg.
	q := `
		SELECT lat, lon, distance FROM waypoints
		WHERE trek_id=$1 AND leg_id=$2
	`
	args := []any{trekID, legID}
	if !leg.IsFinished {
		q += ` AND distance < $3`
		args = append(args, locations[len(locations)-1].Distance)
	}
	q += ` ORDER BY distance`
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return LegDetail{}, err
	}
	defer rows.Close()

	var coords [][]float64
	var points []CurrentPoint
	for rows.Next() {
		var p CurrentPoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Distance); err != nil {
			return LegDetail{}, err
		}
		coords = append(coords, []float64{p.Lat, p.Lon})
		points = append(points, p)
	}
	if len(points) > 0 {
		detail.Polyline = string(polyline.EncodeCoords(coords))
		detail.Start = &points[0]
		detail.End = &points[len(points)-1]
	}
	return detail, nil
}

func (s *Service) Participants(ctx context.Context, trekID string) ([]Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT trek_id, user_id, added_at, color
		FROM trek_users WHERE trek_id=$1
		ORDER BY added_at
	`, trekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.TrekID, &p.UserID, &p.AddedAt, &p.Color); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func (s *Service) Legs(ctx context.Context, trekID string) ([]Leg, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trek_id, added_at, added_by, is_finished
		FROM legs WHERE trek_id=$1
		ORDER BY added_at
	`, trekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []Leg
	for rows.Next() {
		var leg Leg
		if err := rows.Scan(&leg.ID, &leg.TrekID, &leg.AddedAt, &leg.AddedBy, &leg.IsFinished); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (s *Service) getTrek(ctx context.Context, trekID string) (Trek, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, is_active, progress_at_hour, progress_at_tz, COALESCE(output_to,'')
		FROM treks WHERE id=$1
	`, trekID)
	var trek Trek
	err := row.Scan(&trek.ID, &trek.OwnerID, &trek.IsActive, &trek.ProgressAtHour, &trek.ProgressAtTz, &trek.OutputTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trek{}, ErrTrekNotFound
	}
	if err != nil {
		return Trek{}, err
	}
	return trek, nil
}

func (s *Service) isParticipant(ctx context.Context, trekID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM trek_users WHERE trek_id=$1 AND user_id=$2)
	`, trekID, userID).Scan(&ok)
	return ok, err
}

func (s *Service) addParticipant(ctx context.Context, trekID, userID string) (Participant, error) {
	var index int
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM trek_users WHERE trek_id=$1
	`, trekID).Scan(&index); err != nil {
		return Participant{}, err
	}

	p := Participant{
		TrekID:  trekID,
		UserID:  userID,
		AddedAt: time.Now().UTC(),
		Color:   participantColor(index, userID),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO trek_users (trek_id, user_id, added_at, color)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (trek_id, user_id) DO NOTHING
	`, p.TrekID, p.UserID, p.AddedAt, p.Color)
	if err != nil {
		return Participant{}, err
	}
	return p, nil
}

func (s *Service) insertLeg(ctx context.Context, trekID, userID string, points []geo.Point) (Leg, error) {
	leg := Leg{
		ID:      uuid.NewString(),
		TrekID:  trekID,
		AddedAt: time.Now().UTC(),
		AddedBy: userID,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO legs (id, trek_id, added_at, added_by, is_finished)
		VALUES ($1,$2,$3,$4,false)
	`, leg.ID, leg.TrekID, leg.AddedAt, leg.AddedBy)
	if err != nil {
		return Leg{}, err
	}

	for _, wp := range buildWaypoints(trekID, leg.ID, points) {
		_, err := s.db.Exec(ctx, `
			INSERT INTO waypoints (id, trek_id, leg_id, lat, lon, distance)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, wp.ID, wp.TrekID, wp.LegID, wp.Lat, wp.Lon, wp.Distance)
		if err != nil {
			return Leg{}, err
		}
	}
	return leg, nil
}

// assertConnects rejects a leg whose first point is not where the previous
// leg's route ended, comparing whole degrees only.
func (s *Service) assertConnects(ctx context.Context, trekID, prevLegID string, first geo.Point) error {
	row := s.db.QueryRow(ctx, `
		SELECT lat, lon FROM waypoints
		WHERE trek_id=$1 AND leg_id=$2
		ORDER BY distance DESC LIMIT 1
	`, trekID, prevLegID)
	var lat, lon float64
	if err := row.Scan(&lat, &lon); err != nil {
		return err
	}
	if int(lat) != int(first.Lat) || int(lon) != int(first.Lon) {
		return ErrLegDisconnected
	}
	return nil
}

func (s *Service) currentPoint(ctx context.Context, trekID string) (*CurrentPoint, error) {
	var p CurrentPoint
	err := s.db.QueryRow(ctx, `
		SELECT lat, lon, distance FROM locations
		WHERE trek_id=$1
		ORDER BY added_at DESC LIMIT 1
	`, trekID).Scan(&p.Lat, &p.Lon, &p.Distance)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	err = s.db.QueryRow(ctx, `
		SELECT lat, lon, distance FROM waypoints
		WHERE trek_id=$1
		ORDER BY distance LIMIT 1
	`, trekID).Scan(&p.Lat, &p.Lon, &p.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) legLocations(ctx context.Context, trekID, legID string) ([]LegLocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT added_at, lat, lon, distance, COALESCE(factoid,'')
		FROM locations WHERE trek_id=$1 AND leg_id=$2
		ORDER BY added_at
	`, trekID, legID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []LegLocation
	for rows.Next() {
		var loc LegLocation
		if err := rows.Scan(&loc.AddedAt, &loc.Lat, &loc.Lon, &loc.Distance, &loc.Factoid); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func decodeRoute(encoded string) ([]geo.Point, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	if len(coords) < 2 {
		return nil, ErrEmptyRoute
	}
	points := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, geo.Point{Lat: geo.RoundCoord(c[0]), Lon: geo.RoundCoord(c[1])})
	}
	return points, nil
}

// buildWaypoints assigns each decoded point its cumulative distance from the
// leg start, rounded to 2 decimals per segment.
func buildWaypoints(trekID, legID string, points []geo.Point) []Waypoint {
	waypoints := make([]Waypoint, 0, len(points))
	cumulative := 0.0
	for i, p := range points {
		if i > 0 {
			cumulative += geo.RoundDistance(geo.DistanceBetween(points[i-1], p))
		}
		waypoints = append(waypoints, Waypoint{
			ID:       uuid.NewString(),
			TrekID:   trekID,
			LegID:    legID,
			Lat:      p.Lat,
			Lon:      p.Lon,
			Distance: cumulative,
		})
	}
	return waypoints
}
