package progress

import (
	"time"

	"github.com/eirki/trek-api/internal/geo"
)

// poiRadius is the search radius for points of interest, in meters. Sampled
// route points are spaced two radii apart so the searches tile the day's
// stretch without overlapping.
const poiRadius = 2500

// pointAtDistance walks the sorted waypoint list and returns the coordinate
// at the given cumulative distance, the last waypoint passed, and whether the
// distance runs past the end of the leg. The position is interpolated on the
// great circle between the bracketing waypoints, and clamps to the final
// waypoint when the leg is overshot.
func pointAtDistance(waypoints []Waypoint, distance float64) (geo.Point, Waypoint, bool) {
	latest := waypoints[0]
	next := -1
	for i, wp := range waypoints {
		if wp.Distance <= distance {
			latest = wp
			continue
		}
		next = i
		break
	}
	if next == -1 {
		return geo.Point{Lat: latest.Lat, Lon: latest.Lon}, latest, true
	}
	point := geo.PointBetween(
		geo.Point{Lat: latest.Lat, Lon: latest.Lon},
		geo.Point{Lat: waypoints[next].Lat, Lon: waypoints[next].Lon},
		distance-latest.Distance,
	)
	return point, latest, false
}

// dayIntervals samples the stretch walked today, newest point first, for the
// location lookups.
func dayIntervals(waypoints []Waypoint, fromDistance, toDistance float64) []geo.Point {
	var points []geo.Point
	for d := int(toDistance); d > int(fromDistance); d -= poiRadius * 2 {
		p, _, _ := pointAtDistance(waypoints, float64(d))
		points = append(points, p)
	}
	return points
}

type trackPoint struct {
	lat      float64
	lon      float64
	distance float64
}

// daySegments splits today's stretch between the participants in ranked
// order: the day's top stepper walks first, from where the trek stood
// yesterday, and each subsequent participant continues where the previous
// one stopped.
func daySegments(current []trackPoint, start trackPoint, ranked []UserProgress, startDist float64) []DaySegment {
	latest := start
	currentDistance := startDist
	idx := 0
	var next *trackPoint

	segments := make([]DaySegment, 0, len(ranked))
	for _, user := range ranked {
		points := []geo.Point{{Lat: latest.lat, Lon: latest.lon}}
		currentDistance += float64(user.Steps) * geo.StrideM
		for {
			if next == nil || next.distance < currentDistance {
				if idx < len(current) {
					next = &current[idx]
					idx++
				} else {
					next = nil
				}
				if next == nil {
					break
				}
			}
			if next.distance < currentDistance {
				points = append(points, geo.Point{Lat: next.lat, Lon: next.lon})
				latest = *next
				continue
			}
			remaining := currentDistance - latest.distance
			p := geo.PointBetween(
				geo.Point{Lat: latest.lat, Lon: latest.lon},
				geo.Point{Lat: next.lat, Lon: next.lon},
				remaining,
			)
			points = append(points, p)
			latest = trackPoint{lat: p.Lat, lon: p.Lon, distance: currentDistance}
			break
		}
		segments = append(segments, DaySegment{Name: user.Name, Color: user.Color, Points: points})
	}
	return segments
}

// isDue reports whether a trek should be advanced at the given instant: the
// hour in the trek's own timezone matches its trigger hour, and no location
// has been written for the trek's current local day yet.
func isDue(trek Trek, lastLocation *time.Time, now time.Time) bool {
	loc, err := time.LoadLocation(trek.ProgressAtTz)
	if err != nil {
		return false
	}
	local := now.In(loc)
	if local.Hour() != trek.ProgressAtHour {
		return false
	}
	if lastLocation == nil {
		return true
	}
	y, m, d := local.Date()
	ly, lm, ld := lastLocation.Date()
	return time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC).
		Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
