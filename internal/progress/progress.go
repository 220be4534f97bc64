package progress

import (
	"context"
	"time"

	"github.com/eirki/trek-api/internal/achievement"
	"github.com/eirki/trek-api/internal/geo"
)

// Trek is the slice of the trek row the engine needs to decide when and how
// to advance it.
type Trek struct {
	ID             string
	OwnerID        string
	ProgressAtHour int
	ProgressAtTz   string
	OutputTo       string
}

type Leg struct {
	ID         string
	TrekID     string
	AddedAt    time.Time
	AddedBy    string
	IsFinished bool
}

type Waypoint struct {
	ID       string
	Lat      float64
	Lon      float64
	Distance float64
}

// Location is one day's arrival point on a leg. Rows are immutable once
// written, a trek day is never recomputed.
type Location struct {
	TrekID          string    `json:"trek_id"`
	LegID           string    `json:"leg_id"`
	AddedAt         time.Time `json:"added_at"`
	LatestWaypoint  string    `json:"latest_waypoint"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Distance        float64   `json:"distance"`
	Address         string    `json:"address,omitempty"`
	Country         string    `json:"country,omitempty"`
	IsNewCountry    bool      `json:"is_new_country"`
	IsLastInLeg     bool      `json:"is_last_in_leg"`
	POI             string    `json:"poi,omitempty"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	GmapURL         string    `json:"gmap_url,omitempty"`
	TraversalMapURL string    `json:"traversal_map_url,omitempty"`
	Achievements    []string  `json:"achievements,omitempty"`
	Factoid         string    `json:"factoid,omitempty"`
}

// UserProgress is one participant's contribution on one day.
type UserProgress struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Steps  int    `json:"steps"`
}

// Report is everything an outputter needs to announce a day's progress.
type Report struct {
	Trek          Trek                      `json:"trek"`
	Date          time.Time                 `json:"date"`
	Progress      []UserProgress            `json:"progress"`
	Location      Location                  `json:"location"`
	Achievements  []achievement.Achievement `json:"achievements,omitempty"`
	NextAdderName string                    `json:"next_adder_name,omitempty"`
}

// Place is what the location lookups found near a day's arrival point.
type Place struct {
	Address  string
	Country  string
	PhotoURL string
	MapURL   string
	POI      string
}

// PlaceFinder resolves a day's sampled route points to address, point of
// interest and photo data. Lookups are best effort, a zero value field means
// that lookup found nothing.
type PlaceFinder interface {
	Find(ctx context.Context, trekID, legID string, date time.Time, points []geo.Point) Place
}

// DaySegment is the stretch one participant covered, in ranked order.
type DaySegment struct {
	Name   string
	Color  string
	Points []geo.Point
}

// TraversalMap is the drawable state of a leg after a day's progress.
type TraversalMap struct {
	OldTrail    []geo.Point
	Stops       []geo.Point
	Trail       []geo.Point
	DaySegments []DaySegment
	Current     geo.Point
}

// Renderer draws and stores the traversal map, returning its public URL or
// "" when rendering failed.
type Renderer interface {
	RenderTraversalMap(ctx context.Context, trekID, legID string, date time.Time, m TraversalMap) string
}

type Outputter interface {
	PostUpdate(ctx context.Context, report Report) error
	PostLegReminder(ctx context.Context, trekID, nextAdderName string) error
}
