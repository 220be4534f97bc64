package geo

import (
	"fmt"
	"math"
	"strconv"
)

const earthRadiusM = 6371000.0

// StrideM is the assumed length of one step, used to convert step counts to
// distance walked.
const StrideM = 0.75

type Point struct {
	Lat float64
	Lon float64
}

// DistanceBetween returns the great-circle distance between two points in meters.
func DistanceBetween(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// PointBetween projects distance meters from a toward b along the initial
// bearing and returns the resulting point, rounded to 7 decimal places.
func PointBetween(a, b Point, distance float64) Point {
	bearing := initialBearing(a, b)

	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	angular := distance / earthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{
		Lat: RoundCoord(lat2 * 180 / math.Pi),
		Lon: RoundCoord(lon2 * 180 / math.Pi),
	}
}

func initialBearing(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Atan2(y, x)
}

// RoundCoord rounds a coordinate to 7 decimal places, ~1cm precision.
func RoundCoord(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}

// RoundDistance rounds a meter value to 2 decimal places.
func RoundDistance(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatMeters renders a distance for narrative text: "950 m" or "1.2 km".
func FormatMeters(n float64) string {
	unit := "m"
	if n >= 1000 {
		n /= 1000
		unit = "km"
	}
	n = math.Round(n*10) / 10
	if n == math.Trunc(n) {
		return fmt.Sprintf("%d %s", int(n), unit)
	}
	return strconv.FormatFloat(n, 'f', 1, 64) + " " + unit
}
