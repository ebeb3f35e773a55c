package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/scoring"
	"github.com/example/carpool/internal/storage"
)

var (
	tunis  = models.Coord{Lat: 36.80, Lon: 10.18}
	marsa  = models.Coord{Lat: 36.88, Lon: 10.32}
	sousse = models.Coord{Lat: 35.83, Lon: 10.64} // ~120km south
)

func matchRide(id, driverID string, origin models.Coord, depart time.Time, seats int) *models.Ride {
	return &models.Ride{
		ID:             id,
		DriverID:       driverID,
		Origin:         models.Location{Coord: origin},
		Destination:    models.Location{Coord: marsa},
		DepartureTime:  depart,
		SeatsTotal:     seats,
		SeatsAvailable: seats,
		Price:          8,
		Status:         models.RideOpen,
	}
}

func matchDemand(passengerID string, desired time.Time) *models.RideDemand {
	return &models.RideDemand{
		ID:          "d1",
		PassengerID: passengerID,
		Origin:      models.Location{Coord: tunis},
		Destination: models.Location{Coord: marsa},
		DesiredTime: desired,
		SeatsNeeded: 2,
		Status:      models.DemandOpen,
	}
}

func TestRankFiltersIneligibleRides(t *testing.T) {
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	d := matchDemand("pass-1", desired)

	full := matchRide("full", "drv-1", tunis, desired, 4)
	full.SeatsAvailable = 1 // demand needs 2
	closed := matchRide("closed", "drv-2", tunis, desired, 4)
	closed.Status = models.RideCancelled
	own := matchRide("own", "pass-1", tunis, desired, 4)
	good := matchRide("good", "drv-3", tunis, desired, 4)

	ranked := Rank(scoring.DefaultConfig(), d, []*models.Ride{full, closed, own, good}, nil, models.RatingStats{})
	require.Len(t, ranked, 1)
	assert.Equal(t, "good", ranked[0].Ride.ID)
}

func TestRankOrdersByScoreThenDeparture(t *testing.T) {
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	d := matchDemand("pass-1", desired)

	// same location, increasingly worse departure offsets
	onTime := matchRide("on-time", "drv-1", tunis, desired, 4)
	lateHour := matchRide("late-hour", "drv-2", tunis, desired.Add(time.Hour), 4)
	farAway := matchRide("far", "drv-3", sousse, desired, 4)

	ranked := Rank(scoring.DefaultConfig(), d, []*models.Ride{farAway, lateHour, onTime}, nil, models.RatingStats{})
	require.Len(t, ranked, 3)
	assert.Equal(t, "on-time", ranked[0].Ride.ID)
	assert.Equal(t, "late-hour", ranked[1].Ride.ID)
	assert.Equal(t, "far", ranked[2].Ride.ID)
	assert.Greater(t, ranked[0].Result.Score, ranked[1].Result.Score)
	assert.Greater(t, ranked[1].Result.Score, ranked[2].Result.Score)
}

func TestRankTiesBreakOnEarlierDeparture(t *testing.T) {
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	d := matchDemand("pass-1", desired)

	// identical rides apart from departure: same score each side of desired
	early := matchRide("early", "drv-1", tunis, desired.Add(-time.Hour), 4)
	late := matchRide("late", "drv-2", tunis, desired.Add(time.Hour), 4)

	ranked := Rank(scoring.DefaultConfig(), d, []*models.Ride{late, early}, nil, models.RatingStats{})
	require.Len(t, ranked, 2)
	assert.Equal(t, ranked[0].Result.Score, ranked[1].Result.Score)
	assert.Equal(t, "early", ranked[0].Ride.ID)
}

func TestRankPrefersRatedDriver(t *testing.T) {
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	d := matchDemand("pass-1", desired)
	a := matchRide("rated", "drv-good", tunis, desired, 4)
	b := matchRide("unrated", "drv-unknown", tunis, desired, 4)

	stats := map[string]models.RatingStats{
		"drv-good": {Average: 4.9, Count: 20},
	}
	ranked := Rank(scoring.DefaultConfig(), d, []*models.Ride{b, a}, stats, models.RatingStats{})
	require.Len(t, ranked, 2)
	assert.Equal(t, "rated", ranked[0].Ride.ID)
}

func TestRankForDemandRepositoryFallback(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRide(ctx, matchRide("near", "drv-1", tunis, desired, 4)))
	require.NoError(t, store.CreateRide(ctx, matchRide("far", "drv-2", sousse, desired, 4)))

	svc := &Service{Repo: store, Scoring: scoring.DefaultConfig(), TopN: 10}
	ranked, err := svc.RankForDemand(ctx, matchDemand("pass-1", desired))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "near", ranked[0].Ride.ID)
}

func TestRankForDemandUsesIndex(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	near := matchRide("near", "drv-1", tunis, desired, 4)
	far := matchRide("far", "drv-2", sousse, desired, 4)
	require.NoError(t, store.CreateRide(ctx, near))
	require.NoError(t, store.CreateRide(ctx, far))

	idx := geo.NewIndex()
	for _, r := range []*models.Ride{near, far} {
		require.NoError(t, idx.Upsert(ctx, geo.Candidate{
			RideID: r.ID, Origin: r.Origin.Coord,
			SeatsAvailable: r.SeatsAvailable, DepartureTime: r.DepartureTime,
		}))
	}
	// stale entry pointing at a ride the store no longer has
	require.NoError(t, idx.Upsert(ctx, geo.Candidate{RideID: "gone", Origin: tunis}))

	svc := &Service{Repo: store, Index: idx, Scoring: scoring.DefaultConfig(), SearchRadiusKm: 50, TopN: 10}
	ranked, err := svc.RankForDemand(ctx, matchDemand("pass-1", desired))
	require.NoError(t, err)

	// the far ride is outside the radius, the stale entry is skipped
	require.Len(t, ranked, 1)
	assert.Equal(t, "near", ranked[0].Ride.ID)
}

func TestRankForDemandTruncatesToTopN(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	desired := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.CreateRide(ctx, matchRide(id, "drv-"+id, tunis, desired, 4)))
	}

	svc := &Service{Repo: store, Scoring: scoring.DefaultConfig(), TopN: 3}
	ranked, err := svc.RankForDemand(ctx, matchDemand("pass-1", desired))
	require.NoError(t, err)
	assert.Len(t, ranked, 3)
}

func TestStatsCache(t *testing.T) {
	c := NewStatsCache(50 * time.Millisecond)

	_, ok := c.Get("u1")
	assert.False(t, ok)

	want := models.RatingStats{Average: 4.2, Count: 9}
	c.Set("u1", want)
	got, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, want, got)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("u1")
	assert.False(t, ok)
}
