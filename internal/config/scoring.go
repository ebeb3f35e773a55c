package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/carpool/internal/scoring"
)

// scoringOverlay mirrors scoring.Config with pointer fields so an
// override file only touches the keys it names.
type scoringOverlay struct {
	RouteWeight      *float64 `yaml:"route_weight"`
	TimeWeight       *float64 `yaml:"time_weight"`
	UserWeight       *float64 `yaml:"user_weight"`
	PriceWeight      *float64 `yaml:"price_weight"`
	MaxDeviationKm   *float64 `yaml:"max_deviation_km"`
	ExactThresholdKm *float64 `yaml:"exact_threshold_km"`
	MaxTimeDiffHours *float64 `yaml:"max_time_diff_hours"`
}

// LoadScoringConfig returns the default scoring constants, overridden by
// the YAML file at path when one is given.
func LoadScoringConfig(path string) (scoring.Config, error) {
	cfg := scoring.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring config: %w", err)
	}
	var o scoringOverlay
	if err := yaml.Unmarshal(b, &o); err != nil {
		return cfg, fmt.Errorf("parse scoring config: %w", err)
	}
	apply := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&cfg.RouteWeight, o.RouteWeight)
	apply(&cfg.TimeWeight, o.TimeWeight)
	apply(&cfg.UserWeight, o.UserWeight)
	apply(&cfg.PriceWeight, o.PriceWeight)
	apply(&cfg.MaxDeviationKm, o.MaxDeviationKm)
	apply(&cfg.ExactThresholdKm, o.ExactThresholdKm)
	apply(&cfg.MaxTimeDiffHours, o.MaxTimeDiffHours)

	if cfg.MaxDeviationKm <= 0 || cfg.MaxTimeDiffHours <= 0 {
		return cfg, fmt.Errorf("scoring config: deviation and time windows must be positive")
	}
	return cfg, nil
}
