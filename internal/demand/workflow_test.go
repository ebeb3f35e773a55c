package demand

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/storage"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Publish(_ context.Context, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureNotifier) byKind(kind notify.Kind) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newWorkflow(t *testing.T) (*Workflow, *storage.MemoryStore, *captureNotifier) {
	t.Helper()
	store := storage.NewMemoryStore()
	sink := &captureNotifier{}
	w := &Workflow{
		Repo:     store,
		Notifier: sink,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
	}
	return w, store, sink
}

func demandInput(passengerID string) CreateDemandInput {
	return CreateDemandInput{
		PassengerID: passengerID,
		Origin:      models.Location{Address: "Ariana", Coord: models.Coord{Lat: 36.86, Lon: 10.19}},
		Destination: models.Location{Address: "Tunis", Coord: models.Coord{Lat: 36.80, Lon: 10.18}},
		DesiredTime: time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC),
		SeatsNeeded: 1,
	}
}

func seedRide(t *testing.T, store *storage.MemoryStore, id, driverID string) *models.Ride {
	t.Helper()
	r := &models.Ride{
		ID:             id,
		DriverID:       driverID,
		DepartureTime:  time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		SeatsTotal:     3,
		SeatsAvailable: 3,
		Status:         models.RideOpen,
	}
	require.NoError(t, store.CreateRide(context.Background(), r))
	return r
}

func TestCreateDemand(t *testing.T) {
	w, _, _ := newWorkflow(t)
	d, err := w.CreateDemand(context.Background(), demandInput("pass-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, models.DemandOpen, d.Status)
	assert.Empty(t, d.Offers)
}

func TestCreateDemandValidation(t *testing.T) {
	w, _, _ := newWorkflow(t)
	ctx := context.Background()

	in := demandInput("")
	_, err := w.CreateDemand(ctx, in)
	assert.True(t, apperr.IsValidation(err))

	in = demandInput("pass-1")
	in.SeatsNeeded = 0
	_, err = w.CreateDemand(ctx, in)
	assert.True(t, apperr.IsValidation(err))

	in = demandInput("pass-1")
	bad := -5.0
	in.MaxPrice = &bad
	_, err = w.CreateDemand(ctx, in)
	assert.True(t, apperr.IsValidation(err))
}

func TestMakeOffer(t *testing.T) {
	w, store, sink := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")

	offer, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "room for one")
	require.NoError(t, err)
	assert.Equal(t, models.OfferPending, offer.Status)

	got, err := store.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, offer.ID, got.Offers[0].ID)

	received := sink.byKind(notify.KindOfferReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "pass-1", received[0].UserID)
}

func TestMakeOfferGuards(t *testing.T) {
	w, store, _ := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")

	// ride owned by someone else
	_, err = w.MakeOffer(ctx, d.ID, "drv-2", "ride-1", "")
	assert.True(t, apperr.IsForbidden(err))

	// passenger offering on their own demand
	seedRide(t, store, "ride-own", "pass-1")
	_, err = w.MakeOffer(ctx, d.ID, "pass-1", "ride-own", "")
	assert.True(t, apperr.IsConflict(err))

	// non-open ride
	closed := seedRide(t, store, "ride-closed", "drv-1")
	closed.Status = models.RideCancelled
	require.NoError(t, store.UpdateRide(ctx, closed))
	_, err = w.MakeOffer(ctx, d.ID, "drv-1", "ride-closed", "")
	assert.True(t, apperr.IsConflict(err))
}

func TestMakeOfferDuplicatePair(t *testing.T) {
	w, store, _ := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")

	first, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)

	_, err = w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	assert.True(t, apperr.IsConflict(err))

	// after a decline the pair may offer again
	_, err = w.DecideOffer(ctx, d.ID, first.ID, "pass-1", DecisionDecline)
	require.NoError(t, err)
	_, err = w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "second try")
	assert.NoError(t, err)
}

func TestDecideOfferAcceptIsExclusive(t *testing.T) {
	w, store, sink := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")
	seedRide(t, store, "ride-2", "drv-2")
	seedRide(t, store, "ride-3", "drv-3")

	o1, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)
	o2, err := w.MakeOffer(ctx, d.ID, "drv-2", "ride-2", "")
	require.NoError(t, err)
	o3, err := w.MakeOffer(ctx, d.ID, "drv-3", "ride-3", "")
	require.NoError(t, err)

	got, err := w.DecideOffer(ctx, d.ID, o2.ID, "pass-1", DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.DemandMatched, got.Status)
	assert.Equal(t, models.OfferAccepted, got.OfferByID(o2.ID).Status)
	assert.Equal(t, models.OfferDeclined, got.OfferByID(o1.ID).Status)
	assert.Equal(t, models.OfferDeclined, got.OfferByID(o3.ID).Status)

	// the losing drivers are told, the winner separately
	accepted := sink.byKind(notify.KindOfferAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "drv-2", accepted[0].UserID)
	declined := sink.byKind(notify.KindOfferDeclined)
	assert.Len(t, declined, 2)

	// persisted in one write: stored state matches the returned one
	stored, err := store.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status, stored.Status)
	assert.Equal(t, got.Version, stored.Version)
}

func TestDecideOfferGuards(t *testing.T) {
	w, store, _ := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")
	o1, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)

	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "drv-1", DecisionAccept)
	assert.True(t, apperr.IsForbidden(err))

	_, err = w.DecideOffer(ctx, d.ID, "nope", "pass-1", DecisionAccept)
	assert.True(t, apperr.IsNotFound(err))

	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "pass-1", Decision("maybe"))
	assert.True(t, apperr.IsValidation(err))
}

func TestDecideOfferRedecideConflicts(t *testing.T) {
	w, store, _ := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")
	o1, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)

	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "pass-1", DecisionAccept)
	require.NoError(t, err)

	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "pass-1", DecisionAccept)
	assert.True(t, apperr.IsConflict(err))
	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "pass-1", DecisionDecline)
	assert.True(t, apperr.IsConflict(err))
}

func TestMakeOfferOnMatchedDemand(t *testing.T) {
	w, store, _ := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")
	seedRide(t, store, "ride-2", "drv-2")
	o1, err := w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)
	_, err = w.DecideOffer(ctx, d.ID, o1.ID, "pass-1", DecisionAccept)
	require.NoError(t, err)

	_, err = w.MakeOffer(ctx, d.ID, "drv-2", "ride-2", "too late")
	assert.True(t, apperr.IsConflict(err))
}

func TestCancelDemandDeclinesPendingOffers(t *testing.T) {
	w, store, sink := newWorkflow(t)
	ctx := context.Background()
	d, err := w.CreateDemand(ctx, demandInput("pass-1"))
	require.NoError(t, err)
	seedRide(t, store, "ride-1", "drv-1")
	seedRide(t, store, "ride-2", "drv-2")
	_, err = w.MakeOffer(ctx, d.ID, "drv-1", "ride-1", "")
	require.NoError(t, err)
	_, err = w.MakeOffer(ctx, d.ID, "drv-2", "ride-2", "")
	require.NoError(t, err)

	_, err = w.CancelDemand(ctx, d.ID, "drv-1")
	assert.True(t, apperr.IsForbidden(err))

	got, err := w.CancelDemand(ctx, d.ID, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, models.DemandCancelled, got.Status)
	for _, o := range got.Offers {
		assert.Equal(t, models.OfferDeclined, o.Status)
	}
	assert.Len(t, sink.byKind(notify.KindOfferDeclined), 2)

	_, err = w.CancelDemand(ctx, d.ID, "pass-1")
	assert.True(t, apperr.IsConflict(err))
}
