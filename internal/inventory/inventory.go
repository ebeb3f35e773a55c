// Package inventory is the seat state machine for rides. It mutates only
// the in-memory ride passed to it; callers make the change durable and
// atomic through the repository's versioned writes.
package inventory

import (
	"time"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/models"
)

// ReserveIfOpen decrements seat availability when the ride is open and
// has capacity, flipping the status to full at zero. The check and the
// decrement apply to the caller's copy; commit races surface as version
// conflicts on save.
func ReserveIfOpen(r *models.Ride, seats int) error {
	if seats <= 0 {
		return apperr.New(apperr.KindValidation, "seats must be positive")
	}
	if r.Status != models.RideOpen {
		return apperr.Newf(apperr.KindConflict, "ride %s is %s, not open", r.ID, r.Status)
	}
	if seats > r.SeatsAvailable {
		return apperr.Newf(apperr.KindConflict, "ride %s has %d seats available, %d requested", r.ID, r.SeatsAvailable, seats)
	}
	r.SeatsAvailable -= seats
	if r.SeatsAvailable == 0 {
		r.Status = models.RideFull
	}
	return nil
}

// Release returns previously reserved seats after a reversal, reopening
// a full ride. Releasing past the total indicates corrupted bookkeeping
// and is reported as an internal error rather than silently capped.
func Release(r *models.Ride, seats int) error {
	if seats <= 0 {
		return apperr.New(apperr.KindValidation, "seats must be positive")
	}
	if r.Status.Terminal() {
		return apperr.Newf(apperr.KindConflict, "ride %s is %s; seats cannot be released", r.ID, r.Status)
	}
	if r.SeatsAvailable+seats > r.SeatsTotal {
		return apperr.Newf(apperr.KindInternal, "releasing %d seats would exceed total %d on ride %s", seats, r.SeatsTotal, r.ID)
	}
	r.SeatsAvailable += seats
	if r.Status == models.RideFull {
		r.Status = models.RideOpen
	}
	return nil
}

// Terminate moves a ride into a terminal state. Completion requires the
// departure time to have elapsed; cancellation is allowed at any time.
// Terminal states are final.
func Terminate(r *models.Ride, outcome models.RideStatus, now time.Time) error {
	if outcome != models.RideCompleted && outcome != models.RideCancelled {
		return apperr.Newf(apperr.KindValidation, "invalid terminal outcome %q", outcome)
	}
	if r.Status.Terminal() {
		return apperr.Newf(apperr.KindConflict, "ride %s is already %s", r.ID, r.Status)
	}
	if outcome == models.RideCompleted && now.Before(r.DepartureTime) {
		return apperr.Newf(apperr.KindConflict, "ride %s cannot complete before departure", r.ID)
	}
	r.Status = outcome
	return nil
}
