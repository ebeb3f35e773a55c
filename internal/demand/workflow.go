// Package demand implements the demand/offer negotiation: passengers
// publish standing ride demands, drivers answer with offers backed by
// their own rides, and the passenger picks at most one. Offers live
// embedded in the demand record, so accepting one and declining its
// siblings is a single versioned write with no observable intermediate
// state.
package demand

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/apperr"
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
	Logger   *slog.Logger
	Now      func() time.Time
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Workflow) notifyBestEffort(ctx context.Context, ev notify.Event) {
	if w.Notifier == nil {
		return
	}
	ev.OccurredAt = w.now()
	if err := w.Notifier.Publish(ctx, ev); err != nil {
		w.Logger.Warn("notification failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
	}
}

type CreateDemandInput struct {
	PassengerID string
	Origin      models.Location
	Destination models.Location
	DesiredTime time.Time
	SeatsNeeded int
	MaxPrice    *float64
}

func (w *Workflow) CreateDemand(ctx context.Context, in CreateDemandInput) (*models.RideDemand, error) {
	if in.PassengerID == "" {
		return nil, apperr.New(apperr.KindValidation, "passenger id is required")
	}
	if in.SeatsNeeded <= 0 {
		return nil, apperr.New(apperr.KindValidation, "seats needed must be positive")
	}
	if in.DesiredTime.IsZero() {
		return nil, apperr.New(apperr.KindValidation, "desired time is required")
	}
	if in.MaxPrice != nil && *in.MaxPrice < 0 {
		return nil, apperr.New(apperr.KindValidation, "max price cannot be negative")
	}
	now := w.now()
	d := &models.RideDemand{
		ID:          uuid.NewString(),
		PassengerID: in.PassengerID,
		Origin:      in.Origin,
		Destination: in.Destination,
		DesiredTime: in.DesiredTime,
		SeatsNeeded: in.SeatsNeeded,
		MaxPrice:    in.MaxPrice,
		Status:      models.DemandOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.Repo.CreateDemand(ctx, d); err != nil {
		return nil, err
	}
	observability.DemandsCreated.Inc()
	return d, nil
}

// MakeOffer records a driver's proposal against an open demand. The same
// driver/ride pair may not hold more than one non-declined offer.
func (w *Workflow) MakeOffer(ctx context.Context, demandID, driverID, rideID, message string) (*models.Offer, error) {
	if driverID == "" || rideID == "" {
		return nil, apperr.New(apperr.KindValidation, "driver id and ride id are required")
	}
	d, err := w.Repo.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DemandOpen {
		return nil, apperr.Newf(apperr.KindConflict, "demand %s is %s, not open", d.ID, d.Status)
	}
	if d.PassengerID == driverID {
		return nil, apperr.New(apperr.KindConflict, "passenger cannot offer on their own demand")
	}
	ride, err := w.Repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, apperr.Newf(apperr.KindForbidden, "ride %s is not owned by driver %s", rideID, driverID)
	}
	if ride.Status != models.RideOpen {
		return nil, apperr.Newf(apperr.KindConflict, "ride %s is %s, not open", rideID, ride.Status)
	}
	for _, o := range d.Offers {
		if o.DriverID == driverID && o.RideID == rideID && o.Status != models.OfferDeclined {
			return nil, apperr.Newf(apperr.KindConflict, "driver %s already has an open offer with ride %s", driverID, rideID)
		}
	}

	offer := models.Offer{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		RideID:    rideID,
		Message:   message,
		Status:    models.OfferPending,
		OfferedAt: w.now(),
	}
	d.Offers = append(d.Offers, offer)
	d.UpdatedAt = offer.OfferedAt
	if err := w.Repo.UpdateDemand(ctx, d); err != nil {
		return nil, err
	}
	observability.OffersCreated.Inc()
	w.notifyBestEffort(ctx, notify.Event{
		UserID:   d.PassengerID,
		Kind:     notify.KindOfferReceived,
		DemandID: d.ID,
		OfferID:  offer.ID,
		RideID:   rideID,
	})
	return &offer, nil
}

// DecideOffer applies the passenger's accept or decline. Accepting sets
// the offer accepted, the demand matched, and every sibling declined in
// one atomic update; re-deciding a decided offer fails with a conflict.
func (w *Workflow) DecideOffer(ctx context.Context, demandID, offerID, callerID string, decision Decision) (*models.RideDemand, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, apperr.Newf(apperr.KindValidation, "invalid decision %q", decision)
	}
	d, err := w.Repo.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	if callerID != d.PassengerID {
		return nil, apperr.New(apperr.KindForbidden, "only the demand's passenger may decide offers")
	}
	offer := d.OfferByID(offerID)
	if offer == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "offer %s not found on demand %s", offerID, demandID)
	}
	if offer.Status != models.OfferPending {
		return nil, apperr.Newf(apperr.KindConflict, "offer %s is already %s", offer.ID, offer.Status)
	}

	now := w.now()
	if decision == DecisionDecline {
		offer.Status = models.OfferDeclined
		d.UpdatedAt = now
		if err := w.Repo.UpdateDemand(ctx, d); err != nil {
			return nil, err
		}
		w.notifyBestEffort(ctx, notify.Event{
			UserID:   offer.DriverID,
			Kind:     notify.KindOfferDeclined,
			DemandID: d.ID,
			OfferID:  offer.ID,
		})
		return d, nil
	}

	if d.Status != models.DemandOpen {
		return nil, apperr.Newf(apperr.KindConflict, "demand %s is %s, not open", d.ID, d.Status)
	}
	var declined []models.Offer
	for i := range d.Offers {
		o := &d.Offers[i]
		if o.ID == offer.ID {
			o.Status = models.OfferAccepted
			continue
		}
		if o.Status != models.OfferDeclined {
			o.Status = models.OfferDeclined
			declined = append(declined, *o)
		}
	}
	d.Status = models.DemandMatched
	d.UpdatedAt = now
	if err := w.Repo.UpdateDemand(ctx, d); err != nil {
		return nil, err
	}
	observability.OffersAccepted.Inc()
	w.notifyBestEffort(ctx, notify.Event{
		UserID:   offer.DriverID,
		Kind:     notify.KindOfferAccepted,
		DemandID: d.ID,
		OfferID:  offer.ID,
		RideID:   offer.RideID,
	})
	for _, o := range declined {
		w.notifyBestEffort(ctx, notify.Event{
			UserID:   o.DriverID,
			Kind:     notify.KindOfferDeclined,
			DemandID: d.ID,
			OfferID:  o.ID,
		})
	}
	w.Logger.Info("offer accepted", "demand_id", d.ID, "offer_id", offer.ID, "declined_siblings", len(declined))
	return d, nil
}

// CancelDemand closes an open demand; pending offers are declined so
// drivers are not left waiting on a dead demand.
func (w *Workflow) CancelDemand(ctx context.Context, demandID, callerID string) (*models.RideDemand, error) {
	d, err := w.Repo.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	if callerID != d.PassengerID {
		return nil, apperr.New(apperr.KindForbidden, "only the demand's passenger may cancel it")
	}
	if d.Status != models.DemandOpen {
		return nil, apperr.Newf(apperr.KindConflict, "demand %s is %s, not open", d.ID, d.Status)
	}
	var declined []models.Offer
	for i := range d.Offers {
		o := &d.Offers[i]
		if o.Status == models.OfferPending {
			o.Status = models.OfferDeclined
			declined = append(declined, *o)
		}
	}
	d.Status = models.DemandCancelled
	d.UpdatedAt = w.now()
	if err := w.Repo.UpdateDemand(ctx, d); err != nil {
		return nil, err
	}
	for _, o := range declined {
		w.notifyBestEffort(ctx, notify.Event{
			UserID:   o.DriverID,
			Kind:     notify.KindOfferDeclined,
			DemandID: d.ID,
			OfferID:  o.ID,
		})
	}
	return d, nil
}
