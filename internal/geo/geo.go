package geo

import (
	"math"

	"github.com/example/carpool/internal/models"
)

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points in kilometers.
func HaversineKm(a, b models.Coord) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// NearestVertexKm projects p onto the closest vertex of route and returns
// the distance to it. ok is false when the route is empty.
func NearestVertexKm(p models.Coord, route []models.Coord) (km float64, ok bool) {
	if len(route) == 0 {
		return 0, false
	}
	best := math.MaxFloat64
	for _, v := range route {
		if d := HaversineKm(p, v); d < best {
			best = d
		}
	}
	return best, true
}
