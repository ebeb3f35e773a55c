package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/models"
)

func storeRide(id string) *models.Ride {
	return &models.Ride{
		ID:             id,
		DriverID:       "driver-1",
		Origin:         models.Location{Coord: models.Coord{Lat: 36.80, Lon: 10.18}},
		Destination:    models.Location{Coord: models.Coord{Lat: 36.85, Lon: 10.25}},
		DepartureTime:  time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		SeatsTotal:     4,
		SeatsAvailable: 4,
		Status:         models.RideOpen,
	}
}

func TestRideRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := storeRide("r1")
	require.NoError(t, s.CreateRide(ctx, r))
	assert.Equal(t, int64(1), r.Version)

	got, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = s.GetRide(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))

	assert.True(t, apperr.IsConflict(s.CreateRide(ctx, storeRide("r1"))))
}

func TestUpdateRideVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRide(ctx, storeRide("r1")))

	a, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	b, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)

	a.SeatsAvailable = 2
	require.NoError(t, s.UpdateRide(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	// b still carries version 1; its write must lose
	b.SeatsAvailable = 1
	assert.True(t, apperr.IsConflict(s.UpdateRide(ctx, b)))

	got, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.SeatsAvailable)
}

func TestGetRideReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := storeRide("r1")
	r.Route = []models.Coord{{Lat: 1, Lon: 1}}
	r.Participants = []string{"p1"}
	require.NoError(t, s.CreateRide(ctx, r))

	got, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	got.Participants[0] = "mutated"
	got.Route[0] = models.Coord{Lat: 9, Lon: 9}
	got.SeatsAvailable = 0

	again, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "p1", again.Participants[0])
	assert.Equal(t, models.Coord{Lat: 1, Lon: 1}, again.Route[0])
	assert.Equal(t, 4, again.SeatsAvailable)
}

func TestListOpenRides(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRide(ctx, storeRide("open-1")))
	require.NoError(t, s.CreateRide(ctx, storeRide("open-2")))

	closed := storeRide("closed")
	require.NoError(t, s.CreateRide(ctx, closed))
	closed.Status = models.RideCancelled
	require.NoError(t, s.UpdateRide(ctx, closed))

	out, err := s.ListOpenRides(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, models.RideOpen, r.Status)
	}
}

func TestCreateRequestActivePairUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRide(ctx, storeRide("r1")))

	first := &models.BookingRequest{ID: "q1", RideID: "r1", PassengerID: "p1", Seats: 1, Status: models.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, first))

	// a second active request for the same (ride, passenger) is rejected
	dup := &models.BookingRequest{ID: "q2", RideID: "r1", PassengerID: "p1", Seats: 2, Status: models.RequestPending}
	assert.True(t, apperr.IsConflict(s.CreateRequest(ctx, dup)))

	// other passengers and other rides are unaffected
	other := &models.BookingRequest{ID: "q3", RideID: "r1", PassengerID: "p2", Seats: 1, Status: models.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, other))

	// once the first request leaves the active set, the pair may request again
	first.Status = models.RequestCancelled
	require.NoError(t, s.UpdateRequest(ctx, first))
	again := &models.BookingRequest{ID: "q4", RideID: "r1", PassengerID: "p1", Seats: 1, Status: models.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, again))
}

func TestSaveRideAndRequestAtomicity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRide(ctx, storeRide("r1")))
	br := &models.BookingRequest{ID: "q1", RideID: "r1", PassengerID: "p1", Seats: 2, Status: models.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, br))

	ride, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)

	// bump the ride behind the caller's back
	other, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, s.UpdateRide(ctx, other))

	ride.SeatsAvailable = 2
	br.Status = models.RequestAccepted
	err = s.SaveRideAndRequest(ctx, ride, br)
	assert.True(t, apperr.IsConflict(err))

	// neither side committed
	gotReq, err := s.GetRequest(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, gotReq.Status)
	assert.Equal(t, int64(1), gotReq.Version)
	gotRide, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, gotRide.SeatsAvailable)
}

func TestSaveRideAndRequestStaleRequest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRide(ctx, storeRide("r1")))
	br := &models.BookingRequest{ID: "q1", RideID: "r1", PassengerID: "p1", Seats: 1, Status: models.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, br))

	ride, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)

	stale := *br
	br.Status = models.RequestCancelled
	require.NoError(t, s.UpdateRequest(ctx, br))

	stale.Status = models.RequestAccepted
	ride.SeatsAvailable = 3
	err = s.SaveRideAndRequest(ctx, ride, &stale)
	assert.True(t, apperr.IsConflict(err))

	gotRide, err := s.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, gotRide.SeatsAvailable)
	assert.Equal(t, int64(1), gotRide.Version)
}

func TestDemandUpdateIsSingleWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d := &models.RideDemand{
		ID:          "d1",
		PassengerID: "p1",
		Status:      models.DemandOpen,
		SeatsNeeded: 1,
		Offers: []models.Offer{
			{ID: "o1", DriverID: "drv1", RideID: "r1", Status: models.OfferPending},
			{ID: "o2", DriverID: "drv2", RideID: "r2", Status: models.OfferPending},
		},
	}
	require.NoError(t, s.CreateDemand(ctx, d))

	cur, err := s.GetDemand(ctx, "d1")
	require.NoError(t, err)
	cur.OfferByID("o1").Status = models.OfferAccepted
	cur.OfferByID("o2").Status = models.OfferDeclined
	cur.Status = models.DemandMatched
	require.NoError(t, s.UpdateDemand(ctx, cur))

	got, err := s.GetDemand(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DemandMatched, got.Status)
	assert.Equal(t, models.OfferAccepted, got.OfferByID("o1").Status)
	assert.Equal(t, models.OfferDeclined, got.OfferByID("o2").Status)
	assert.Equal(t, int64(2), got.Version)

	// a writer holding the pre-accept version cannot clobber the result
	stale := *d
	stale.Version = 1
	assert.True(t, apperr.IsConflict(s.UpdateDemand(ctx, &stale)))
}

func TestGetDemandCopiesOffers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d := &models.RideDemand{
		ID:          "d1",
		PassengerID: "p1",
		Status:      models.DemandOpen,
		Offers:      []models.Offer{{ID: "o1", Status: models.OfferPending}},
	}
	require.NoError(t, s.CreateDemand(ctx, d))

	got, err := s.GetDemand(ctx, "d1")
	require.NoError(t, err)
	got.Offers[0].Status = models.OfferDeclined

	again, err := s.GetDemand(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferPending, again.Offers[0].Status)
}

func TestRatingStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stats, err := s.RatingStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RatingStats{}, stats)

	for _, rating := range []int{5, 4, 3} {
		require.NoError(t, s.AddReview(ctx, &models.Review{SubjectID: "u1", AuthorID: "a", Rating: rating}))
	}
	require.NoError(t, s.AddReview(ctx, &models.Review{SubjectID: "other", AuthorID: "a", Rating: 1}))

	stats, err = s.RatingStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 4.0, stats.Average, 0.001)
}

func TestUserActivityDefaultsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	act, err := s.UserActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", act.UserID)
	assert.Zero(t, act.CompletedRides)

	s.PutUserActivity(models.UserActivity{UserID: "u1", CompletedRides: 7, EmailVerified: true})
	act, err = s.UserActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, act.CompletedRides)
	assert.True(t, act.EmailVerified)
}
