package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/notify"
)

type fakeIndexer struct {
	failUntil int // calls that fail before the first success
	calls     int
	upserts   []geo.Candidate
	removes   []string
}

func (f *fakeIndexer) Upsert(_ context.Context, c geo.Candidate) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("redis unavailable")
	}
	f.upserts = append(f.upserts, c)
	return nil
}

func (f *fakeIndexer) Remove(_ context.Context, rideID string) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("redis unavailable")
	}
	f.removes = append(f.removes, rideID)
	return nil
}

func openEvent(rideID string, seats int) notify.Event {
	return notify.Event{
		Kind:   notify.KindRideOpened,
		RideID: rideID,
		Ride: &notify.RideSnapshot{
			RideID:         rideID,
			Origin:         models.Coord{Lat: 36.80, Lon: 10.18},
			SeatsAvailable: seats,
			DepartureTime:  time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
			Status:         models.RideOpen,
		},
	}
}

func TestApplyEventUpsertsOpenRide(t *testing.T) {
	idx := &fakeIndexer{}
	err := applyEventWithRetry(context.Background(), idx, openEvent("r1", 3), 3, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, idx.upserts, 1)
	assert.Equal(t, "r1", idx.upserts[0].RideID)
	assert.Equal(t, 3, idx.upserts[0].SeatsAvailable)
	assert.Empty(t, idx.removes)
}

func TestApplyEventRemovesClosedRide(t *testing.T) {
	for _, status := range []models.RideStatus{models.RideFull, models.RideCompleted, models.RideCancelled} {
		idx := &fakeIndexer{}
		ev := openEvent("r1", 0)
		ev.Kind = notify.KindRideClosed
		ev.Ride.Status = status
		err := applyEventWithRetry(context.Background(), idx, ev, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, idx.removes, "status %s", status)
	}
}

func TestApplyEventRetriesTransientFailure(t *testing.T) {
	idx := &fakeIndexer{failUntil: 2}
	err := applyEventWithRetry(context.Background(), idx, openEvent("r1", 2), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.calls)
	assert.Len(t, idx.upserts, 1)
}

func TestApplyEventExhaustsRetries(t *testing.T) {
	idx := &fakeIndexer{failUntil: 10}
	err := applyEventWithRetry(context.Background(), idx, openEvent("r1", 2), 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, idx.calls)
	assert.Empty(t, idx.upserts)
}
