// Package scoring holds the pure ranking math: compatibility of a ride
// against a demand, user trust/risk reputation, and implicit preference
// profiles. All functions are deterministic and do no I/O.
package scoring

import (
	"math"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
)

// Config carries the product constants of the compatibility score.
// These are tunable, not derived; see DefaultConfig for the shipped values.
type Config struct {
	RouteWeight float64 `yaml:"route_weight"`
	TimeWeight  float64 `yaml:"time_weight"`
	UserWeight  float64 `yaml:"user_weight"`
	PriceWeight float64 `yaml:"price_weight"`

	// MaxDeviationKm bounds the on-route classification and the linear
	// decay of the route score.
	MaxDeviationKm float64 `yaml:"max_deviation_km"`

	// ExactThresholdKm classifies a match as exact when both endpoint
	// deviations fall under it.
	ExactThresholdKm float64 `yaml:"exact_threshold_km"`

	// MaxTimeDiffHours is the window over which the time score decays
	// from 100 to 0.
	MaxTimeDiffHours float64 `yaml:"max_time_diff_hours"`
}

func DefaultConfig() Config {
	return Config{
		RouteWeight:      0.4,
		TimeWeight:       0.2,
		UserWeight:       0.3,
		PriceWeight:      0.1,
		MaxDeviationKm:   5,
		ExactThresholdKm: 0.5,
		MaxTimeDiffHours: 2,
	}
}

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchOnRoute MatchType = "on-route"
	MatchNearby  MatchType = "nearby"
)

// Breakdown exposes the per-factor scores for explainability.
type Breakdown struct {
	Route float64 `json:"route"`
	Time  float64 `json:"time"`
	User  float64 `json:"user"`
	Price float64 `json:"price"`

	OriginDeviationKm      float64 `json:"origin_deviation_km"`
	DestinationDeviationKm float64 `json:"destination_deviation_km"`
	RouteDeviationKm       float64 `json:"route_deviation_km"`
}

type Result struct {
	Score     int       `json:"score"`
	MatchType MatchType `json:"match_type"`
	Breakdown Breakdown `json:"breakdown"`
}

const neutralRating = 3.0

// Score ranks a candidate ride against a demand on a 0-100 scale.
// Driver and passenger stats feed the trust factor; zero-count stats fall
// back to the neutral rating.
func (c Config) Score(ride *models.Ride, demand *models.RideDemand, driver, passenger models.RatingStats) Result {
	var b Breakdown

	hasRoute := len(ride.Route) > 0
	if hasRoute {
		b.OriginDeviationKm, _ = geo.NearestVertexKm(demand.Origin.Coord, ride.Route)
		b.DestinationDeviationKm, _ = geo.NearestVertexKm(demand.Destination.Coord, ride.Route)
	} else {
		b.OriginDeviationKm = geo.HaversineKm(demand.Origin.Coord, ride.Origin.Coord)
		b.DestinationDeviationKm = geo.HaversineKm(demand.Destination.Coord, ride.Destination.Coord)
	}
	b.RouteDeviationKm = math.Max(b.OriginDeviationKm, b.DestinationDeviationKm)

	originScore := c.decayScore(b.OriginDeviationKm)
	destScore := c.decayScore(b.DestinationDeviationKm)
	if hasRoute {
		b.Route = 0.5*c.decayScore(b.RouteDeviationKm) + 0.25*originScore + 0.25*destScore
	} else {
		b.Route = 0.5*originScore + 0.5*destScore
	}

	b.Time = c.timeScore(ride, demand)
	b.User = userScore(driver, passenger)
	b.Price = priceScore(ride.Price, demand.MaxPrice)

	total := c.RouteWeight*b.Route + c.TimeWeight*b.Time + c.UserWeight*b.User + c.PriceWeight*b.Price

	return Result{
		Score:     int(math.Round(total)),
		MatchType: c.classify(b),
		Breakdown: b,
	}
}

func (c Config) classify(b Breakdown) MatchType {
	switch {
	case b.OriginDeviationKm < c.ExactThresholdKm && b.DestinationDeviationKm < c.ExactThresholdKm:
		return MatchExact
	case b.RouteDeviationKm < c.MaxDeviationKm:
		return MatchOnRoute
	default:
		return MatchNearby
	}
}

// decayScore is the linear route decay: 100 at zero deviation, 50 at the
// maximum allowed deviation, clamped below that.
func (c Config) decayScore(deviationKm float64) float64 {
	return clamp(100 - (deviationKm/c.MaxDeviationKm)*50)
}

func (c Config) timeScore(ride *models.Ride, demand *models.RideDemand) float64 {
	dh := math.Abs(ride.DepartureTime.Sub(demand.DesiredTime).Hours())
	return clamp(100 - (dh/c.MaxTimeDiffHours)*100)
}

func userScore(driver, passenger models.RatingStats) float64 {
	score := (ratingOrNeutral(driver) + ratingOrNeutral(passenger)) / 2 * 20
	score += sideAdjustment(driver)
	score += sideAdjustment(passenger)
	return clamp(score)
}

func ratingOrNeutral(s models.RatingStats) float64 {
	if s.Count == 0 {
		return neutralRating
	}
	return s.Average
}

func sideAdjustment(s models.RatingStats) float64 {
	var adj float64
	avg := ratingOrNeutral(s)
	if avg >= 4.5 {
		adj += 10
	}
	if s.Count >= 5 {
		adj += 5
	}
	if avg < 3.0 {
		adj -= 15
	}
	return adj
}

// priceScore is neutral without a cap, rewards savings under it and
// penalizes excess over it, proportionally.
func priceScore(price float64, maxPrice *float64) float64 {
	if maxPrice == nil || *maxPrice <= 0 {
		return 50
	}
	limit := *maxPrice
	if price <= limit {
		return clamp(50 + (limit-price)/limit*50)
	}
	return clamp(50 - (price-limit)/limit*50)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
