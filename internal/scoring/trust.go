package scoring

import (
	"math"
	"time"

	"github.com/example/carpool/internal/models"
)

// TrustInput gathers everything trust and risk scoring look at.
type TrustInput struct {
	Reviews          models.RatingStats
	CompletedRides   int
	CancellationRate float64
	AccountAge       time.Duration
	EmailVerified    bool
	HasProfilePhoto  bool
}

// TrustInputFromActivity builds the scoring input from repository records.
func TrustInputFromActivity(stats models.RatingStats, act models.UserActivity, now time.Time) TrustInput {
	var age time.Duration
	if !act.AccountCreated.IsZero() && now.After(act.AccountCreated) {
		age = now.Sub(act.AccountCreated)
	}
	return TrustInput{
		Reviews:          stats,
		CompletedRides:   act.CompletedRides,
		CancellationRate: act.CancellationRate(),
		AccountAge:       age,
		EmailVerified:    act.EmailVerified,
		HasProfilePhoto:  act.HasProfilePhoto,
	}
}

// TrustBreakdown holds the five capped components of the trust score.
type TrustBreakdown struct {
	Reviews      float64 `json:"reviews"`      // max 40
	Activity     float64 `json:"activity"`     // max 20
	AccountAge   float64 `json:"account_age"`  // max 10
	Verification float64 `json:"verification"` // max 15
	Behavior     float64 `json:"behavior"`     // max 15
}

type TrustLevel string

const (
	TrustExcellent TrustLevel = "excellent"
	TrustGood      TrustLevel = "good"
	TrustFair      TrustLevel = "fair"
	TrustPoor      TrustLevel = "poor"
	TrustNew       TrustLevel = "new"
)

type TrustResult struct {
	Score           int            `json:"score"`
	Level           TrustLevel     `json:"level"`
	Breakdown       TrustBreakdown `json:"breakdown"`
	Factors         []string       `json:"factors"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

const (
	// unratedReviewScore is the reduced-confidence neutral awarded to
	// accounts with no reviews yet: half of what a steady 3.0 average
	// would earn.
	unratedReviewScore = 12.0

	maxReviewScore       = 40.0
	maxActivityScore     = 20.0
	maxAgeScore          = 10.0
	maxVerificationScore = 15.0
	baseBehaviorScore    = 15.0
)

// TrustScore computes the 0-100 reputation score with its breakdown,
// level classification, and human-readable factors.
func TrustScore(in TrustInput) TrustResult {
	var b TrustBreakdown
	var factors, recs []string

	if in.Reviews.Count == 0 {
		b.Reviews = unratedReviewScore
		factors = append(factors, "no reviews yet")
		recs = append(recs, "complete rides and collect reviews to build reputation")
	} else {
		b.Reviews = math.Min(in.Reviews.Average/5*maxReviewScore, maxReviewScore)
		factors = append(factors, "rated from received reviews")
	}

	b.Activity = math.Min(float64(in.CompletedRides)*2, maxActivityScore)
	if in.CompletedRides == 0 {
		recs = append(recs, "complete your first ride")
	}

	days := in.AccountAge.Hours() / 24
	b.AccountAge = math.Min(math.Floor(days/30), maxAgeScore)

	if in.EmailVerified {
		b.Verification += 10
	} else {
		recs = append(recs, "verify your email address")
	}
	if in.HasProfilePhoto {
		b.Verification += 5
	} else {
		recs = append(recs, "add a profile photo")
	}

	b.Behavior = baseBehaviorScore
	switch {
	case in.CancellationRate > 0.3:
		b.Behavior -= 10
		factors = append(factors, "high cancellation rate")
		recs = append(recs, "avoid cancelling confirmed rides")
	case in.CancellationRate > 0.1:
		b.Behavior -= 5
		factors = append(factors, "elevated cancellation rate")
	}
	if b.Behavior < 0 {
		b.Behavior = 0
	}

	total := clamp(b.Reviews + b.Activity + b.AccountAge + b.Verification + b.Behavior)
	score := int(math.Round(total))

	return TrustResult{
		Score:           score,
		Level:           trustLevel(score),
		Breakdown:       b,
		Factors:         factors,
		Recommendations: recs,
	}
}

func trustLevel(score int) TrustLevel {
	switch {
	case score >= 80:
		return TrustExcellent
	case score >= 65:
		return TrustGood
	case score >= 50:
		return TrustFair
	case score >= 30:
		return TrustPoor
	default:
		return TrustNew
	}
}

type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

type RiskResult struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors,omitempty"`
}

// RiskScore is the companion 0-100 score where higher means riskier. It
// weighs cancellation behavior and persistently low ratings.
func RiskScore(in TrustInput) RiskResult {
	var score float64
	var factors []string

	switch {
	case in.CancellationRate > 0.5:
		score += 40
		factors = append(factors, "cancels more than half of rides")
	case in.CancellationRate > 0.3:
		score += 25
		factors = append(factors, "frequent cancellations")
	}

	switch {
	case in.Reviews.Average < 2.5 && in.Reviews.Count >= 3:
		score += 30
		factors = append(factors, "consistently low ratings")
	case in.Reviews.Average < 3.0 && in.Reviews.Count >= 5:
		score += 15
		factors = append(factors, "below-average ratings")
	}

	s := int(math.Round(clamp(score)))
	return RiskResult{Score: s, Level: riskLevel(s), Factors: factors}
}

func riskLevel(score int) RiskLevel {
	switch {
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}
