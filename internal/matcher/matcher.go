// Package matcher ranks candidate rides against a passenger's demand
// using the compatibility score.
package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/scoring"
	"github.com/example/carpool/internal/storage"
)

type RankedRide struct {
	Ride   *models.Ride   `json:"ride"`
	Result scoring.Result `json:"result"`
}

// Rank scores eligible rides against the demand and orders them best
// first. It is pure: candidates, stats, and config in, ordering out.
func Rank(cfg scoring.Config, demand *models.RideDemand, rides []*models.Ride, driverStats map[string]models.RatingStats, passenger models.RatingStats) []RankedRide {
	out := make([]RankedRide, 0, len(rides))
	for _, r := range rides {
		if r.Status != models.RideOpen || r.SeatsAvailable < demand.SeatsNeeded {
			continue
		}
		if r.DriverID == demand.PassengerID {
			continue
		}
		res := cfg.Score(r, demand, driverStats[r.DriverID], passenger)
		out = append(out, RankedRide{Ride: r, Result: res})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Result.Score != out[j].Result.Score {
			return out[i].Result.Score > out[j].Result.Score
		}
		return out[i].Ride.DepartureTime.Before(out[j].Ride.DepartureTime)
	})
	return out
}

// Service wires candidate discovery and stat lookup around Rank.
type Service struct {
	Repo           storage.Repository
	Index          geo.CandidateIndex // optional; falls back to a repository scan
	Scoring        scoring.Config
	Stats          *StatsCache // optional
	SearchRadiusKm float64
	TopN           int
}

func (s *Service) RankForDemand(ctx context.Context, d *models.RideDemand) ([]RankedRide, error) {
	start := time.Now()
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}

	rides, err := s.candidates(ctx, d, topN*2)
	if err != nil {
		return nil, err
	}
	passenger, err := s.ratingStats(ctx, d.PassengerID)
	if err != nil {
		return nil, err
	}
	driverStats := make(map[string]models.RatingStats, len(rides))
	for _, r := range rides {
		if _, ok := driverStats[r.DriverID]; ok {
			continue
		}
		st, err := s.ratingStats(ctx, r.DriverID)
		if err != nil {
			return nil, err
		}
		driverStats[r.DriverID] = st
	}

	ranked := Rank(s.Scoring, d, rides, driverStats, passenger)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	observability.MatchesScored.Add(float64(len(ranked)))
	return ranked, nil
}

func (s *Service) candidates(ctx context.Context, d *models.RideDemand, limit int) ([]*models.Ride, error) {
	if s.Index == nil {
		return s.Repo.ListOpenRides(ctx)
	}
	radius := s.SearchRadiusKm
	if radius <= 0 {
		radius = 50
	}
	cands, err := s.Index.Nearby(ctx, d.Origin.Coord, radius, limit)
	if err != nil {
		return nil, err
	}
	rides := make([]*models.Ride, 0, len(cands))
	for _, c := range cands {
		r, err := s.Repo.GetRide(ctx, c.RideID)
		if err != nil {
			// index may lag the store; skip rides that are gone
			continue
		}
		rides = append(rides, r)
	}
	return rides, nil
}

func (s *Service) ratingStats(ctx context.Context, userID string) (models.RatingStats, error) {
	if s.Stats != nil {
		if st, ok := s.Stats.Get(userID); ok {
			return st, nil
		}
	}
	st, err := s.Repo.RatingStats(ctx, userID)
	if err != nil {
		return models.RatingStats{}, err
	}
	if s.Stats != nil {
		s.Stats.Set(userID, st)
	}
	return st, nil
}
