package trek

import "time"

type Trek struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	IsActive       bool   `json:"is_active"`
	ProgressAtHour int    `json:"progress_at_hour"`
	ProgressAtTz   string `json:"progress_at_tz"`
	OutputTo       string `json:"output_to,omitempty"`
}

type Leg struct {
	ID         string    `json:"id"`
	TrekID     string    `json:"trek_id"`
	AddedAt    time.Time `json:"added_at"`
	AddedBy    string    `json:"added_by"`
	IsFinished bool      `json:"is_finished"`
}

type Waypoint struct {
	ID       string  `json:"id"`
	TrekID   string  `json:"trek_id"`
	LegID    string  `json:"leg_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance"`
}

type Participant struct {
	TrekID  string    `json:"trek_id"`
	UserID  string    `json:"user_id"`
	AddedAt time.Time `json:"added_at"`
	Color   string    `json:"color"`
}

type TrekDetail struct {
	Trek
	Users           []Participant `json:"users"`
	Legs            []Leg         `json:"legs"`
	CurrentLocation *CurrentPoint `json:"current_location,omitempty"`
	IsOwner         bool          `json:"is_owner"`
	CanAddLeg       bool          `json:"can_add_leg"`
}

// CurrentPoint is either the latest daily location or, before any
// progression, the first waypoint of the trek.
type CurrentPoint struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance"`
}

type LegDetail struct {
	Leg
	Locations []LegLocation `json:"locations"`
	Polyline  string        `json:"polyline,omitempty"`
	Start     *CurrentPoint `json:"start,omitempty"`
	End       *CurrentPoint `json:"end,omitempty"`
}

// LegLocation is the subset of a daily location shown on the leg view.
type LegLocation struct {
	AddedAt  time.Time `json:"added_at"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Distance float64   `json:"distance"`
	Factoid  string    `json:"factoid,omitempty"`
}
