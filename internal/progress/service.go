package progress

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eirki/trek-api/internal/achievement"
	"github.com/eirki/trek-api/internal/db"
	"github.com/eirki/trek-api/internal/factoid"
	"github.com/eirki/trek-api/internal/geo"
	"github.com/eirki/trek-api/internal/tracker"
	"github.com/eirki/trek-api/internal/trek"
)

type Service struct {
	db           db.Querier
	trackers     *tracker.Registry
	achievements *achievement.Service
	factoids     *factoid.Service
	places       PlaceFinder
	renderer     Renderer
	outputters   map[string]Outputter
}

func NewService(
	q db.Querier,
	trackers *tracker.Registry,
	places PlaceFinder,
	renderer Renderer,
	outputters map[string]Outputter,
) *Service {
	return &Service{
		db:           q,
		trackers:     trackers,
		achievements: achievement.NewService(q),
		factoids:     factoid.NewService(q),
		places:       places,
		renderer:     renderer,
		outputters:   outputters,
	}
}

// Run advances every trek whose local trigger hour matches now. Each due
// trek is processed for yesterday, the last fully completed day. A due trek
// whose latest leg is already finished gets a reminder instead.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	due, err := s.dueTreks(ctx, now)
	if err != nil {
		return err
	}
	yesterday := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	for _, d := range due {
		if !d.leg.IsFinished {
			if err := s.ExecuteOne(ctx, d.trek, d.leg, yesterday); err != nil {
				log.Printf("progress: trek %s failed: %v", d.trek.ID, err)
			}
			continue
		}
		if err := s.postLegReminder(ctx, d.trek, d.leg); err != nil {
			log.Printf("progress: reminder for trek %s failed: %v", d.trek.ID, err)
		}
	}
	return nil
}

type dueTrek struct {
	trek Trek
	leg  Leg
}

func (s *Service) dueTreks(ctx context.Context, now time.Time) ([]dueTrek, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.owner_id, t.progress_at_hour, t.progress_at_tz, COALESCE(t.output_to, ''),
		       l.id, l.added_at, l.added_by, l.is_finished,
		       (SELECT MAX(added_at) FROM locations WHERE trek_id = t.id)
		FROM treks t
		JOIN LATERAL (
			SELECT id, added_at, added_by, is_finished
			FROM legs WHERE trek_id = t.id
			ORDER BY added_at DESC LIMIT 1
		) l ON true
		WHERE t.is_active
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []dueTrek
	for rows.Next() {
		var t Trek
		var l Leg
		var lastLocation *time.Time
		err := rows.Scan(
			&t.ID, &t.OwnerID, &t.ProgressAtHour, &t.ProgressAtTz, &t.OutputTo,
			&l.ID, &l.AddedAt, &l.AddedBy, &l.IsFinished,
			&lastLocation,
		)
		if err != nil {
			return nil, err
		}
		l.TrekID = t.ID
		if isDue(t, lastLocation, now) {
			due = append(due, dueTrek{trek: t, leg: l})
		}
	}
	return due, nil
}

// ExecuteOne runs one trek's daily progression for one date: fetch and store
// everyone's steps, move the cursor, enrich the new location, and announce
// the result.
func (s *Service) ExecuteOne(ctx context.Context, t Trek, leg Leg, date time.Time) error {
	participants, err := s.participants(ctx, t.ID)
	if err != nil {
		return err
	}
	ranked := s.usersProgress(ctx, participants, date)
	if err := s.persistSteps(ctx, t.ID, leg.ID, date, ranked); err != nil {
		return err
	}

	location, achievements, err := s.dailyProgression(ctx, t.ID, leg.ID, date, ranked)
	if err != nil {
		return err
	}
	if location == nil {
		return nil
	}
	if err := s.insertLocation(ctx, *location); err != nil {
		return err
	}

	nextAdderName := ""
	if location.IsLastInLeg {
		if _, err := s.db.Exec(ctx, `UPDATE legs SET is_finished=true WHERE id=$1`, leg.ID); err != nil {
			return err
		}
		nextAdderName = s.nextAdderName(ctx, leg.AddedBy, participants)
	}

	report := Report{
		Trek:          t,
		Date:          date,
		Progress:      ranked,
		Location:      *location,
		Achievements:  achievements,
		NextAdderName: nextAdderName,
	}
	// Websocket subscribers always get the report, the configured channel
	// gets it too.
	for name, outputter := range s.outputters {
		if name != t.OutputTo && name != "stream" {
			continue
		}
		if err := outputter.PostUpdate(ctx, report); err != nil {
			log.Printf("progress: output %s for trek %s failed: %v", name, t.ID, err)
		}
	}
	return nil
}

// dailyProgression moves the trek cursor along the leg by the day's combined
// distance and assembles the location row. It returns nil when there is
// nothing to do: nobody walked, or the leg was already walked to its end.
func (s *Service) dailyProgression(ctx context.Context, trekID, legID string, date time.Time, ranked []UserProgress) (*Location, []achievement.Achievement, error) {
	stepsToday := 0
	for _, up := range ranked {
		stepsToday += up.Steps
	}
	if stepsToday == 0 {
		return nil, nil, nil
	}

	lastLocation, err := s.mostRecentLocation(ctx, trekID, legID)
	if err != nil {
		return nil, nil, err
	}
	if lastLocation != nil && lastLocation.IsLastInLeg {
		return nil, nil, nil
	}
	progressBefore := 0.0
	if lastLocation != nil {
		progressBefore = lastLocation.Distance
	}

	waypoints, err := s.legWaypoints(ctx, trekID, legID)
	if err != nil {
		return nil, nil, err
	}
	if len(waypoints) == 0 {
		return nil, nil, nil
	}

	progressToday := float64(stepsToday) * geo.StrideM
	cumulative := progressBefore + progressToday
	terminus, latestWaypoint, finished := pointAtDistance(waypoints, cumulative)
	if finished {
		cumulative = latestWaypoint.Distance
	}

	place := s.places.Find(ctx, trekID, legID, date, dayIntervals(waypoints, progressBefore, cumulative))
	isNewCountry := place.Country != "" &&
		lastLocation != nil && lastLocation.Country != "" &&
		place.Country != lastLocation.Country

	mapURL := s.renderTraversalMap(ctx, trekID, legID, date, lastLocation, terminus, cumulative, ranked)

	var note string
	if finished {
		note, err = s.factoids.LegSummary(ctx, trekID, legID)
	} else {
		note, err = s.factoids.Daily(ctx, trekID, legID, date, cumulative)
	}
	if err != nil {
		return nil, nil, err
	}

	achievements, err := s.achievements.DetectAndPersist(ctx, trekID, legID, date)
	if err != nil {
		return nil, nil, err
	}
	achievementIDs := make([]string, 0, len(achievements))
	for _, a := range achievements {
		achievementIDs = append(achievementIDs, a.ID)
	}

	location := &Location{
		TrekID:          trekID,
		LegID:           legID,
		AddedAt:         date,
		LatestWaypoint:  latestWaypoint.ID,
		Lat:             terminus.Lat,
		Lon:             terminus.Lon,
		Distance:        cumulative,
		Address:         place.Address,
		Country:         place.Country,
		IsNewCountry:    isNewCountry,
		IsLastInLeg:     finished,
		POI:             place.POI,
		PhotoURL:        place.PhotoURL,
		GmapURL:         place.MapURL,
		TraversalMapURL: mapURL,
		Achievements:    achievementIDs,
		Factoid:         note,
	}
	return location, achievements, nil
}

// renderTraversalMap gathers the drawable state of the leg and hands it to
// the renderer. Map failures never block the day's progression.
func (s *Service) renderTraversalMap(
	ctx context.Context,
	trekID, legID string,
	date time.Time,
	lastLocation *Location,
	terminus geo.Point,
	cumulative float64,
	ranked []UserProgress,
) string {
	m, err := s.traversalMap(ctx, trekID, legID, lastLocation, terminus, cumulative, ranked)
	if err != nil {
		log.Printf("progress: traversal map data for trek %s failed: %v", trekID, err)
		return ""
	}
	return s.renderer.RenderTraversalMap(ctx, trekID, legID, date, m)
}

func (s *Service) traversalMap(
	ctx context.Context,
	trekID, legID string,
	lastLocation *Location,
	terminus geo.Point,
	cumulative float64,
	ranked []UserProgress,
) (TraversalMap, error) {
	var m TraversalMap
	startDist := 0.0
	var start *trackPoint
	if lastLocation != nil {
		startDist = lastLocation.Distance
		oldWaypoints, err := s.waypointsBetween(ctx, trekID, legID, 0, lastLocation.Distance)
		if err != nil {
			return m, err
		}
		for _, wp := range oldWaypoints {
			m.OldTrail = append(m.OldTrail, geo.Point{Lat: wp.Lat, Lon: wp.Lon})
		}
		m.OldTrail = append(m.OldTrail, geo.Point{Lat: lastLocation.Lat, Lon: lastLocation.Lon})

		stops, err := s.locationsBetween(ctx, trekID, legID, 0, lastLocation.Distance)
		if err != nil {
			return m, err
		}
		if len(oldWaypoints) > 0 {
			m.Stops = append(m.Stops, geo.Point{Lat: oldWaypoints[0].Lat, Lon: oldWaypoints[0].Lon})
		}
		m.Stops = append(m.Stops, stops...)

		m.Trail = append(m.Trail, geo.Point{Lat: lastLocation.Lat, Lon: lastLocation.Lon})
		start = &trackPoint{lat: lastLocation.Lat, lon: lastLocation.Lon, distance: lastLocation.Distance}
	}

	currentWaypoints, err := s.waypointsBetween(ctx, trekID, legID, startDist, cumulative)
	if err != nil {
		return m, err
	}
	currentPoints := make([]trackPoint, 0, len(currentWaypoints)+1)
	for _, wp := range currentWaypoints {
		currentPoints = append(currentPoints, trackPoint{lat: wp.Lat, lon: wp.Lon, distance: wp.Distance})
		m.Trail = append(m.Trail, geo.Point{Lat: wp.Lat, Lon: wp.Lon})
	}
	currentPoints = append(currentPoints, trackPoint{lat: terminus.Lat, lon: terminus.Lon, distance: cumulative})
	m.Trail = append(m.Trail, terminus)
	m.Current = terminus

	if start == nil {
		if len(currentPoints) > 0 {
			start = &currentPoints[0]
		} else {
			start = &trackPoint{lat: terminus.Lat, lon: terminus.Lon, distance: cumulative}
		}
	}
	m.DaySegments = daySegments(currentPoints, *start, ranked, startDist)
	return m, nil
}

func (s *Service) nextAdderName(ctx context.Context, mostRecentAdder string, participants []participant) string {
	trekParticipants := make([]trek.Participant, 0, len(participants))
	for _, p := range participants {
		trekParticipants = append(trekParticipants, trek.Participant{UserID: p.userID})
	}
	nextID := trek.NextAdder(mostRecentAdder, trekParticipants)
	for _, p := range participants {
		if p.userID == nextID {
			return p.name
		}
	}
	return nextID
}

func (s *Service) postLegReminder(ctx context.Context, t Trek, leg Leg) error {
	participants, err := s.participants(ctx, t.ID)
	if err != nil {
		return err
	}
	nextName := s.nextAdderName(ctx, leg.AddedBy, participants)
	for name, outputter := range s.outputters {
		if name != t.OutputTo && name != "stream" {
			continue
		}
		if err := outputter.PostLegReminder(ctx, t.ID, nextName); err != nil {
			log.Printf("progress: reminder output %s for trek %s failed: %v", name, t.ID, err)
		}
	}
	return nil
}

func (s *Service) mostRecentLocation(ctx context.Context, trekID, legID string) (*Location, error) {
	row := s.db.QueryRow(ctx, `
		SELECT trek_id, leg_id, added_at, latest_waypoint, lat, lon, distance,
		       COALESCE(address, ''), COALESCE(country, ''), is_new_country, is_last_in_leg
		FROM locations WHERE trek_id=$1 AND leg_id=$2
		ORDER BY added_at DESC LIMIT 1
	`, trekID, legID)
	var loc Location
	err := row.Scan(
		&loc.TrekID, &loc.LegID, &loc.AddedAt, &loc.LatestWaypoint,
		&loc.Lat, &loc.Lon, &loc.Distance,
		&loc.Address, &loc.Country, &loc.IsNewCountry, &loc.IsLastInLeg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *Service) legWaypoints(ctx context.Context, trekID, legID string) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lat, lon, distance FROM waypoints
		WHERE trek_id=$1 AND leg_id=$2
		ORDER BY distance
	`, trekID, legID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWaypoints(rows)
}

func (s *Service) waypointsBetween(ctx context.Context, trekID, legID string, low, high float64) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lat, lon, distance FROM waypoints
		WHERE trek_id=$1 AND leg_id=$2 AND distance >= $3 AND distance <= $4
		ORDER BY distance
	`, trekID, legID, low, high)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWaypoints(rows)
}

func scanWaypoints(rows pgx.Rows) ([]Waypoint, error) {
	var waypoints []Waypoint
	for rows.Next() {
		var wp Waypoint
		if err := rows.Scan(&wp.ID, &wp.Lat, &wp.Lon, &wp.Distance); err != nil {
			return nil, err
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints, rows.Err()
}

func (s *Service) locationsBetween(ctx context.Context, trekID, legID string, low, high float64) ([]geo.Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lon FROM locations
		WHERE trek_id=$1 AND leg_id=$2 AND distance >= $3 AND distance <= $4
		ORDER BY added_at
	`, trekID, legID, low, high)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Service) insertLocation(ctx context.Context, loc Location) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO locations
			(trek_id, leg_id, added_at, latest_waypoint, lat, lon, distance,
			 address, country, is_new_country, is_last_in_leg,
			 poi, photo_url, gmap_url, traversal_map_url, achievements, factoid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,
		        NULLIF($8,''), NULLIF($9,''), $10, $11,
		        NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), NULLIF($15,''), $16, NULLIF($17,''))
	`, loc.TrekID, loc.LegID, loc.AddedAt, loc.LatestWaypoint, loc.Lat, loc.Lon, loc.Distance,
		loc.Address, loc.Country, loc.IsNewCountry, loc.IsLastInLeg,
		loc.POI, loc.PhotoURL, loc.GmapURL, loc.TraversalMapURL, loc.Achievements, loc.Factoid)
	return err
}
