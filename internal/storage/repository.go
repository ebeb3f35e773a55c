// Package storage defines the persistence contract the workflows rely
// on and provides an in-memory and a Postgres implementation. Every
// update is a compare-and-swap on the entity's version; a stale version
// fails with a conflict so the caller can reload and retry.
package storage

import (
	"context"

	"github.com/example/carpool/internal/models"
)

// Repository is the transactional store behind the booking and demand
// workflows.
type Repository interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	// UpdateRide persists r only when its Version still matches the
	// stored one, then bumps the version on both sides.
	UpdateRide(ctx context.Context, r *models.Ride) error
	ListOpenRides(ctx context.Context) ([]*models.Ride, error)

	CreateRequest(ctx context.Context, br *models.BookingRequest) error
	GetRequest(ctx context.Context, id string) (*models.BookingRequest, error)
	UpdateRequest(ctx context.Context, br *models.BookingRequest) error
	ListRequestsByRide(ctx context.Context, rideID string) ([]*models.BookingRequest, error)
	// SaveRideAndRequest applies both versioned updates as one atomic
	// unit: either both commit or neither does. Used by the accept and
	// the post-acceptance cancellation paths, where a seat change and a
	// request transition must never be observed apart.
	SaveRideAndRequest(ctx context.Context, r *models.Ride, br *models.BookingRequest) error

	CreateDemand(ctx context.Context, d *models.RideDemand) error
	GetDemand(ctx context.Context, id string) (*models.RideDemand, error)
	UpdateDemand(ctx context.Context, d *models.RideDemand) error

	AddReview(ctx context.Context, rv *models.Review) error
	RatingStats(ctx context.Context, userID string) (models.RatingStats, error)
	UserActivity(ctx context.Context, userID string) (models.UserActivity, error)
}
