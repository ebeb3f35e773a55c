// Package notify carries fire-and-forget event emission. Delivery is
// at-least-once and best-effort; a failed notification never rolls back
// a committed booking or offer decision.
package notify

import (
	"context"
	"time"

	"github.com/example/carpool/internal/models"
)

type Kind string

const (
	KindRequestReceived Kind = "request-received"
	KindRequestAccepted Kind = "request-accepted"
	KindRequestDeclined Kind = "request-declined"
	KindOfferReceived   Kind = "offer-received"
	KindOfferAccepted   Kind = "offer-accepted"
	KindOfferDeclined   Kind = "offer-declined"
	KindRideCancelled   Kind = "ride-cancelled"

	// Ride lifecycle kinds drive the candidate-index consumer rather
	// than a user inbox; UserID is empty on these.
	KindRideOpened Kind = "ride-opened"
	KindRideSeats  Kind = "ride-seats-changed"
	KindRideClosed Kind = "ride-closed"
)

// RideSnapshot is the slice of ride state the geo index consumer needs.
type RideSnapshot struct {
	RideID         string            `json:"ride_id"`
	Origin         models.Coord      `json:"origin"`
	SeatsAvailable int               `json:"seats_available"`
	DepartureTime  time.Time         `json:"departure_time"`
	Status         models.RideStatus `json:"status"`
}

type Event struct {
	UserID     string        `json:"user_id,omitempty"`
	Kind       Kind          `json:"kind"`
	RideID     string        `json:"ride_id,omitempty"`
	DemandID   string        `json:"demand_id,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	OfferID    string        `json:"offer_id,omitempty"`
	Ride       *RideSnapshot `json:"ride,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
