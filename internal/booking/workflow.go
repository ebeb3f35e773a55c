// Package booking implements ride publication and the booking-request
// state machine: pending -> accepted | rejected, with passenger-driven
// cancellation. All seat mutations go through the inventory rules and
// commit via the repository's versioned writes, so concurrent decisions
// on the same ride cannot jointly overbook it.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/inventory"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

type Workflow struct {
	Repo     storage.Repository
	Notifier notify.Notifier
	Routes   geo.RouteClient // optional polyline lookup on ride creation
	Logger   *slog.Logger
	Now      func() time.Time
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// notifyBestEffort publishes and logs failures; committed decisions are
// never rolled back because a notification could not be delivered.
func (w *Workflow) notifyBestEffort(ctx context.Context, ev notify.Event) {
	if w.Notifier == nil {
		return
	}
	ev.OccurredAt = w.now()
	if err := w.Notifier.Publish(ctx, ev); err != nil {
		w.Logger.Warn("notification failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
	}
}

func (w *Workflow) publishRideState(ctx context.Context, kind notify.Kind, r *models.Ride) {
	w.notifyBestEffort(ctx, notify.Event{
		Kind:   kind,
		RideID: r.ID,
		Ride: &notify.RideSnapshot{
			RideID:         r.ID,
			Origin:         r.Origin.Coord,
			SeatsAvailable: r.SeatsAvailable,
			DepartureTime:  r.DepartureTime,
			Status:         r.Status,
		},
	})
}

type CreateRideInput struct {
	DriverID      string
	Origin        models.Location
	Destination   models.Location
	Route         []models.Coord
	DepartureTime time.Time
	SeatsTotal    int
	Price         float64
}

func (w *Workflow) CreateRide(ctx context.Context, in CreateRideInput) (*models.Ride, error) {
	if in.DriverID == "" {
		return nil, apperr.New(apperr.KindValidation, "driver id is required")
	}
	if in.SeatsTotal <= 0 {
		return nil, apperr.New(apperr.KindValidation, "seats total must be positive")
	}
	if in.DepartureTime.IsZero() {
		return nil, apperr.New(apperr.KindValidation, "departure time is required")
	}
	if in.Price < 0 {
		return nil, apperr.New(apperr.KindValidation, "price cannot be negative")
	}

	route := in.Route
	if len(route) == 0 && w.Routes != nil {
		fetched, err := w.Routes.Route(ctx, in.Origin.Coord, in.Destination.Coord)
		if err != nil {
			w.Logger.Warn("route lookup failed, publishing without polyline", "error", err)
		} else {
			route = fetched
		}
	}

	now := w.now()
	r := &models.Ride{
		ID:             uuid.NewString(),
		DriverID:       in.DriverID,
		Origin:         in.Origin,
		Destination:    in.Destination,
		Route:          route,
		DepartureTime:  in.DepartureTime,
		SeatsTotal:     in.SeatsTotal,
		SeatsAvailable: in.SeatsTotal,
		Price:          in.Price,
		Status:         models.RideOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := w.Repo.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()
	w.publishRideState(ctx, notify.KindRideOpened, r)
	w.Logger.Info("ride created", "ride_id", r.ID, "driver_id", r.DriverID, "seats", r.SeatsTotal)
	return r, nil
}

// RequestSeats creates a pending booking request. All rejections happen
// before any persistence write.
func (w *Workflow) RequestSeats(ctx context.Context, rideID, passengerID string, seats int, message string) (*models.BookingRequest, error) {
	if passengerID == "" {
		return nil, apperr.New(apperr.KindValidation, "passenger id is required")
	}
	if seats <= 0 {
		return nil, apperr.New(apperr.KindValidation, "seats must be positive")
	}
	ride, err := w.Repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == passengerID {
		return nil, apperr.New(apperr.KindConflict, "driver cannot book their own ride")
	}
	if ride.Status != models.RideOpen {
		return nil, apperr.Newf(apperr.KindConflict, "ride %s is %s, not open", ride.ID, ride.Status)
	}
	if seats > ride.SeatsAvailable {
		return nil, apperr.Newf(apperr.KindConflict, "ride %s has %d seats available, %d requested", ride.ID, ride.SeatsAvailable, seats)
	}
	existing, err := w.Repo.ListRequestsByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	for _, br := range existing {
		if br.PassengerID == passengerID && br.Status.Active() {
			return nil, apperr.Newf(apperr.KindConflict, "passenger already has an active request for ride %s", rideID)
		}
	}

	br := &models.BookingRequest{
		ID:          uuid.NewString(),
		RideID:      rideID,
		PassengerID: passengerID,
		Seats:       seats,
		Message:     message,
		Status:      models.RequestPending,
		CreatedAt:   w.now(),
	}
	if err := w.Repo.CreateRequest(ctx, br); err != nil {
		return nil, err
	}
	observability.BookingRequestsCreated.Inc()
	w.notifyBestEffort(ctx, notify.Event{
		UserID:    ride.DriverID,
		Kind:      notify.KindRequestReceived,
		RideID:    rideID,
		RequestID: br.ID,
	})
	return br, nil
}

// DecideRequest applies the owner's accept or decline. Accepting reserves
// seats; when a concurrent decision already took them, the call fails
// with a conflict and the request stays pending for a retry or decline.
// Re-deciding an already-decided request always fails with a conflict.
func (w *Workflow) DecideRequest(ctx context.Context, rideID, requestID, callerID string, decision Decision) (*models.Ride, *models.BookingRequest, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, nil, apperr.Newf(apperr.KindValidation, "invalid decision %q", decision)
	}
	ride, err := w.Repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, nil, err
	}
	br, err := w.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if br.RideID != rideID {
		return nil, nil, apperr.Newf(apperr.KindNotFound, "request %s does not belong to ride %s", requestID, rideID)
	}
	if callerID != ride.DriverID {
		return nil, nil, apperr.New(apperr.KindForbidden, "only the ride owner may decide requests")
	}
	if br.Status != models.RequestPending {
		return nil, nil, apperr.Newf(apperr.KindConflict, "request %s is already %s", br.ID, br.Status)
	}

	if decision == DecisionDecline {
		br.Status = models.RequestRejected
		br.DecidedAt = w.now()
		if err := w.Repo.UpdateRequest(ctx, br); err != nil {
			return nil, nil, err
		}
		observability.BookingDeclines.Inc()
		w.notifyBestEffort(ctx, notify.Event{
			UserID:    br.PassengerID,
			Kind:      notify.KindRequestDeclined,
			RideID:    rideID,
			RequestID: br.ID,
		})
		return ride, br, nil
	}

	if err := inventory.ReserveIfOpen(ride, br.Seats); err != nil {
		observability.BookingConflicts.Inc()
		return nil, nil, err
	}
	if !ride.HasParticipant(br.PassengerID) {
		ride.Participants = append(ride.Participants, br.PassengerID)
	}
	ride.UpdatedAt = w.now()
	br.Status = models.RequestAccepted
	br.DecidedAt = ride.UpdatedAt

	if err := w.Repo.SaveRideAndRequest(ctx, ride, br); err != nil {
		if apperr.IsConflict(err) {
			observability.BookingConflicts.Inc()
		}
		return nil, nil, err
	}
	observability.BookingAccepts.Inc()
	w.notifyBestEffort(ctx, notify.Event{
		UserID:    br.PassengerID,
		Kind:      notify.KindRequestAccepted,
		RideID:    rideID,
		RequestID: br.ID,
	})
	if ride.Status == models.RideFull {
		w.publishRideState(ctx, notify.KindRideClosed, ride)
	} else {
		w.publishRideState(ctx, notify.KindRideSeats, ride)
	}
	w.Logger.Info("request accepted", "ride_id", rideID, "request_id", br.ID, "seats_left", ride.SeatsAvailable)
	return ride, br, nil
}

// CancelRequest lets the passenger withdraw their request. Cancelling an
// accepted request releases the reserved seats and removes the passenger
// from the participant list in the same atomic write.
func (w *Workflow) CancelRequest(ctx context.Context, rideID, requestID, callerID string) (*models.BookingRequest, error) {
	ride, err := w.Repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	br, err := w.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if br.RideID != rideID {
		return nil, apperr.Newf(apperr.KindNotFound, "request %s does not belong to ride %s", requestID, rideID)
	}
	if callerID != br.PassengerID {
		return nil, apperr.New(apperr.KindForbidden, "only the requesting passenger may cancel")
	}

	switch br.Status {
	case models.RequestPending:
		br.Status = models.RequestCancelled
		br.DecidedAt = w.now()
		if err := w.Repo.UpdateRequest(ctx, br); err != nil {
			return nil, err
		}
		return br, nil
	case models.RequestAccepted:
		if ride.Status.Terminal() {
			return nil, apperr.Newf(apperr.KindConflict, "ride %s is %s; booking can no longer change", ride.ID, ride.Status)
		}
		if err := inventory.Release(ride, br.Seats); err != nil {
			return nil, err
		}
		ride.RemoveParticipant(br.PassengerID)
		ride.UpdatedAt = w.now()
		br.Status = models.RequestCancelled
		br.DecidedAt = ride.UpdatedAt
		if err := w.Repo.SaveRideAndRequest(ctx, ride, br); err != nil {
			return nil, err
		}
		w.notifyBestEffort(ctx, notify.Event{
			UserID:    ride.DriverID,
			Kind:      notify.KindRequestDeclined,
			RideID:    rideID,
			RequestID: br.ID,
		})
		w.publishRideState(ctx, notify.KindRideSeats, ride)
		return br, nil
	default:
		return nil, apperr.Newf(apperr.KindConflict, "request %s is already %s", br.ID, br.Status)
	}
}

// CancelRide terminates a ride at the owner's request and notifies
// everyone holding or awaiting a seat.
func (w *Workflow) CancelRide(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	return w.terminateRide(ctx, rideID, callerID, models.RideCancelled)
}

// CompleteRide marks a ride completed once its departure time has passed.
func (w *Workflow) CompleteRide(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	return w.terminateRide(ctx, rideID, callerID, models.RideCompleted)
}

func (w *Workflow) terminateRide(ctx context.Context, rideID, callerID string, outcome models.RideStatus) (*models.Ride, error) {
	ride, err := w.Repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if callerID != ride.DriverID {
		return nil, apperr.New(apperr.KindForbidden, "only the ride owner may terminate the ride")
	}
	if err := inventory.Terminate(ride, outcome, w.now()); err != nil {
		return nil, err
	}
	ride.UpdatedAt = w.now()
	if err := w.Repo.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	if outcome == models.RideCancelled {
		requests, err := w.Repo.ListRequestsByRide(ctx, rideID)
		if err != nil {
			w.Logger.Warn("listing requests for cancellation notices failed", "ride_id", rideID, "error", err)
		} else {
			for _, br := range requests {
				if br.Status.Active() {
					w.notifyBestEffort(ctx, notify.Event{
						UserID:    br.PassengerID,
						Kind:      notify.KindRideCancelled,
						RideID:    rideID,
						RequestID: br.ID,
					})
				}
			}
		}
	}
	w.publishRideState(ctx, notify.KindRideClosed, ride)
	w.Logger.Info("ride terminated", "ride_id", rideID, "outcome", outcome)
	return ride, nil
}
