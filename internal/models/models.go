package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is an address plus its resolved coordinate. The engine only
// computes on the coordinate; the address is carried for display.
type Location struct {
	Address string `json:"address"`
	Coord   Coord  `json:"coord"`
}

type RideStatus string

const (
	RideOpen      RideStatus = "open"
	RideFull      RideStatus = "full"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

// Ride is a published trip with fixed seat inventory.
//
// Invariants: 0 <= SeatsAvailable <= SeatsTotal; Status is full iff
// SeatsAvailable is zero and the ride is not terminal; open iff
// SeatsAvailable is positive and the ride is not terminal.
type Ride struct {
	ID             string     `json:"id"`
	DriverID       string     `json:"driver_id"`
	Origin         Location   `json:"origin"`
	Destination    Location   `json:"destination"`
	Route          []Coord    `json:"route,omitempty"`
	DepartureTime  time.Time  `json:"departure_time"`
	SeatsTotal     int        `json:"seats_total"`
	SeatsAvailable int        `json:"seats_available"`
	Price          float64    `json:"price"`
	Status         RideStatus `json:"status"`
	Participants   []string   `json:"participants,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r *Ride) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (r *Ride) RemoveParticipant(userID string) {
	out := r.Participants[:0]
	for _, p := range r.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	r.Participants = out
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Active reports whether the request still holds or may still claim seats.
// At most one active request per (ride, passenger) may exist.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestAccepted
}

// BookingRequest is a passenger's bid for seats on a specific ride.
// Once decided it is immutable apart from passenger cancellation.
type BookingRequest struct {
	ID          string        `json:"id"`
	RideID      string        `json:"ride_id"`
	PassengerID string        `json:"passenger_id"`
	Seats       int           `json:"seats"`
	Message     string        `json:"message,omitempty"`
	Status      RequestStatus `json:"status"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	DecidedAt   time.Time     `json:"decided_at,omitempty"`
}

type DemandStatus string

const (
	DemandOpen      DemandStatus = "open"
	DemandMatched   DemandStatus = "matched"
	DemandCancelled DemandStatus = "cancelled"
	DemandCompleted DemandStatus = "completed"
)

// RideDemand is a passenger's standing request for a ride not yet matched
// to a specific one. Offers are embedded so that accepting one offer and
// declining its siblings is a single versioned write.
type RideDemand struct {
	ID          string       `json:"id"`
	PassengerID string       `json:"passenger_id"`
	Origin      Location     `json:"origin"`
	Destination Location     `json:"destination"`
	DesiredTime time.Time    `json:"desired_time"`
	SeatsNeeded int          `json:"seats_needed"`
	MaxPrice    *float64     `json:"max_price,omitempty"`
	Status      DemandStatus `json:"status"`
	Offers      []Offer      `json:"offers,omitempty"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (d *RideDemand) OfferByID(offerID string) *Offer {
	for i := range d.Offers {
		if d.Offers[i].ID == offerID {
			return &d.Offers[i]
		}
	}
	return nil
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
)

// Offer is a driver's proposal to serve a demand with one of their rides.
type Offer struct {
	ID        string      `json:"id"`
	DriverID  string      `json:"driver_id"`
	RideID    string      `json:"ride_id"`
	Message   string      `json:"message,omitempty"`
	Status    OfferStatus `json:"status"`
	OfferedAt time.Time   `json:"offered_at"`
}

// Review is read-only input to scoring, written after a completed ride.
type Review struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	SubjectID string    `json:"subject_id"`
	RideID    string    `json:"ride_id"`
	Rating    int       `json:"rating"` // 1..5
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RatingStats summarizes a user's received reviews.
type RatingStats struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// UserActivity is the behavioral input to trust scoring.
type UserActivity struct {
	UserID          string    `json:"user_id"`
	CompletedRides  int       `json:"completed_rides"`
	CancelledRides  int       `json:"cancelled_rides"`
	AccountCreated  time.Time `json:"account_created"`
	EmailVerified   bool      `json:"email_verified"`
	HasProfilePhoto bool      `json:"has_profile_photo"`
}

// CancellationRate is cancelled over total decided rides; zero when idle.
func (u UserActivity) CancellationRate() float64 {
	total := u.CompletedRides + u.CancelledRides
	if total == 0 {
		return 0
	}
	return float64(u.CancelledRides) / float64(total)
}
