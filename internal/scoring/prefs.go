package scoring

import (
	"sort"
	"time"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
)

const (
	// historyWindow caps how many recent rides inform the profile.
	historyWindow = 10

	// clusterRadiusKm is the greedy attachment threshold for place clusters.
	clusterRadiusKm = 5.0

	topPreferences = 3
)

// defaultHours are assumed commute hours for passengers with no history.
var defaultHours = []int{8, 12, 17}

// RideHistory is one completed or accepted ride from a passenger's past.
type RideHistory struct {
	Origin        models.Coord
	Destination   models.Coord
	DepartureTime time.Time
	Price         float64
}

// PlaceCluster is a group of nearby historical points represented by its
// running centroid.
type PlaceCluster struct {
	Centroid models.Coord `json:"centroid"`
	Count    int          `json:"count"`
}

// Preferences are the implicit travel habits derived from ride history.
type Preferences struct {
	FrequentHours        []int          `json:"frequent_hours"`
	FrequentOrigins      []PlaceCluster `json:"frequent_origins"`
	FrequentDestinations []PlaceCluster `json:"frequent_destinations"`
	AveragePrice         float64        `json:"average_price"`
}

// Profile derives a passenger's preferences from up to the ten most
// recent rides. History order does not matter; recency is decided by
// departure time.
func Profile(history []RideHistory) Preferences {
	recent := make([]RideHistory, len(history))
	copy(recent, history)
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].DepartureTime.After(recent[j].DepartureTime)
	})
	if len(recent) > historyWindow {
		recent = recent[:historyWindow]
	}

	p := Preferences{
		FrequentHours: frequentHours(recent),
	}

	origins := make([]models.Coord, len(recent))
	dests := make([]models.Coord, len(recent))
	var priceSum float64
	for i, h := range recent {
		origins[i] = h.Origin
		dests[i] = h.Destination
		priceSum += h.Price
	}
	p.FrequentOrigins = clusterPlaces(origins)
	p.FrequentDestinations = clusterPlaces(dests)
	if len(recent) > 0 {
		p.AveragePrice = priceSum / float64(len(recent))
	}
	return p
}

func frequentHours(history []RideHistory) []int {
	if len(history) == 0 {
		out := make([]int, len(defaultHours))
		copy(out, defaultHours)
		return out
	}
	counts := make(map[int]int)
	for _, h := range history {
		counts[h.DepartureTime.Hour()]++
	}
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > topPreferences {
		hours = hours[:topPreferences]
	}
	return hours
}

// clusterPlaces runs a single greedy pass: each point joins the first
// cluster within clusterRadiusKm, moving that cluster's centroid as the
// running weighted average, or starts a new cluster.
func clusterPlaces(points []models.Coord) []PlaceCluster {
	var clusters []PlaceCluster
	for _, p := range points {
		attached := false
		for i := range clusters {
			if geo.HaversineKm(p, clusters[i].Centroid) <= clusterRadiusKm {
				c := &clusters[i]
				n := float64(c.Count)
				c.Centroid.Lat = (c.Centroid.Lat*n + p.Lat) / (n + 1)
				c.Centroid.Lon = (c.Centroid.Lon*n + p.Lon) / (n + 1)
				c.Count++
				attached = true
				break
			}
		}
		if !attached {
			clusters = append(clusters, PlaceCluster{Centroid: p, Count: 1})
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	if len(clusters) > topPreferences {
		clusters = clusters[:topPreferences]
	}
	return clusters
}
