package geo

import (
	"context"
	"sync"
	"time"

	"github.com/example/carpool/internal/models"
)

// Candidate is the slim ride projection kept in the candidate index.
// The matcher loads the full ride from the repository before scoring.
type Candidate struct {
	RideID         string       `json:"ride_id"`
	Origin         models.Coord `json:"origin"`
	SeatsAvailable int          `json:"seats_available"`
	DepartureTime  time.Time    `json:"departure_time"`
}

// CandidateIndex finds open rides near an origin point.
type CandidateIndex interface {
	Nearby(ctx context.Context, origin models.Coord, radiusKm float64, limit int) ([]Candidate, error)
	Upsert(ctx context.Context, c Candidate) error
	Remove(ctx context.Context, rideID string) error
}

type Index struct {
	mu    sync.RWMutex
	rides map[string]Candidate
}

func NewIndex() *Index {
	return &Index{rides: make(map[string]Candidate)}
}

func (g *Index) Upsert(_ context.Context, c Candidate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rides[c.RideID] = c
	return nil
}

func (g *Index) Remove(_ context.Context, rideID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rides, rideID)
	return nil
}

// naive scan; in prod use geo-hash or H3
func (g *Index) Nearby(_ context.Context, origin models.Coord, radiusKm float64, limit int) ([]Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		c    Candidate
		dist float64
	}
	arr := make([]pair, 0, len(g.rides))
	for _, c := range g.rides {
		dist := HaversineKm(origin, c.Origin)
		if radiusKm > 0 && dist > radiusKm {
			continue
		}
		arr = append(arr, pair{c, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].c)
	}
	return out, nil
}
