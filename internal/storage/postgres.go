package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/models"
)

// PostgresStore implements Repository with optimistic concurrency: every
// UPDATE carries "AND version = $n" and bumps the version, so a stale
// write touches zero rows and is reported as a conflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode route", err)
	}
	r.Version = 1
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO rides(id, driver_id, origin_address, origin_lat, origin_lon,
			dest_address, dest_lat, dest_lon, route, departure_time,
			seats_total, seats_available, price, status, participants,
			version, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		r.ID, r.DriverID, r.Origin.Address, r.Origin.Coord.Lat, r.Origin.Coord.Lon,
		r.Destination.Address, r.Destination.Coord.Lat, r.Destination.Coord.Lon,
		route, r.DepartureTime, r.SeatsTotal, r.SeatsAvailable, r.Price, r.Status,
		pq.Array(r.Participants), r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert ride", err)
	}
	return nil
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, driver_id, origin_address, origin_lat, origin_lon,
			dest_address, dest_lat, dest_lon, route, departure_time,
			seats_total, seats_available, price, status, participants,
			version, created_at, updated_at
		FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

func scanRide(row *sql.Row) (*models.Ride, error) {
	var r models.Ride
	var route []byte
	var participants pq.StringArray
	err := row.Scan(&r.ID, &r.DriverID, &r.Origin.Address, &r.Origin.Coord.Lat, &r.Origin.Coord.Lon,
		&r.Destination.Address, &r.Destination.Coord.Lat, &r.Destination.Coord.Lon,
		&route, &r.DepartureTime, &r.SeatsTotal, &r.SeatsAvailable, &r.Price, &r.Status,
		&participants, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "ride not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan ride", err)
	}
	if len(route) > 0 {
		if err := json.Unmarshal(route, &r.Route); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "decode route", err)
		}
	}
	r.Participants = []string(participants)
	return &r, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *PostgresStore) updateRideTx(ctx context.Context, tx execer, r *models.Ride) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE rides SET seats_available=$1, status=$2, participants=$3,
			updated_at=$4, version=version+1
		WHERE id=$5 AND version=$6`,
		r.SeatsAvailable, r.Status, pq.Array(r.Participants), r.UpdatedAt, r.ID, r.Version)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update ride", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update ride", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindConflict, "ride %s modified concurrently", r.ID)
	}
	r.Version++
	return nil
}

func (p *PostgresStore) UpdateRide(ctx context.Context, r *models.Ride) error {
	return p.updateRideTx(ctx, p.db, r)
}

func (p *PostgresStore) ListOpenRides(ctx context.Context) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, driver_id, origin_address, origin_lat, origin_lon,
			dest_address, dest_lat, dest_lon, route, departure_time,
			seats_total, seats_available, price, status, participants,
			version, created_at, updated_at
		FROM rides WHERE status = $1 ORDER BY departure_time`, models.RideOpen)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list open rides", err)
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		var r models.Ride
		var route []byte
		var participants pq.StringArray
		if err := rows.Scan(&r.ID, &r.DriverID, &r.Origin.Address, &r.Origin.Coord.Lat, &r.Origin.Coord.Lon,
			&r.Destination.Address, &r.Destination.Coord.Lat, &r.Destination.Coord.Lon,
			&route, &r.DepartureTime, &r.SeatsTotal, &r.SeatsAvailable, &r.Price, &r.Status,
			&participants, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan ride", err)
		}
		if len(route) > 0 {
			if err := json.Unmarshal(route, &r.Route); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "decode route", err)
			}
		}
		r.Participants = []string(participants)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateRequest(ctx context.Context, br *models.BookingRequest) error {
	br.Version = 1
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO booking_requests(id, ride_id, passenger_id, seats, message, status, version, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		br.ID, br.RideID, br.PassengerID, br.Seats, br.Message, br.Status, br.Version, br.CreatedAt)
	if err != nil {
		// the partial unique index on (ride_id, passenger_id) for active
		// requests turns a racing duplicate into a conflict, not a 500
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperr.Newf(apperr.KindConflict, "passenger %s already has an active request for ride %s", br.PassengerID, br.RideID)
		}
		return apperr.Wrap(apperr.KindInternal, "insert request", err)
	}
	return nil
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.BookingRequest, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, ride_id, passenger_id, seats, message, status, version, created_at, decided_at
		FROM booking_requests WHERE id = $1`, id)
	var br models.BookingRequest
	var decided sql.NullTime
	err := row.Scan(&br.ID, &br.RideID, &br.PassengerID, &br.Seats, &br.Message, &br.Status,
		&br.Version, &br.CreatedAt, &decided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan request", err)
	}
	if decided.Valid {
		br.DecidedAt = decided.Time
	}
	return &br, nil
}

func (p *PostgresStore) updateRequestTx(ctx context.Context, tx execer, br *models.BookingRequest) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE booking_requests SET status=$1, decided_at=$2, version=version+1
		WHERE id=$3 AND version=$4`,
		br.Status, nullTime(br.DecidedAt), br.ID, br.Version)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update request", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindConflict, "request %s modified concurrently", br.ID)
	}
	br.Version++
	return nil
}

func (p *PostgresStore) UpdateRequest(ctx context.Context, br *models.BookingRequest) error {
	return p.updateRequestTx(ctx, p.db, br)
}

func (p *PostgresStore) ListRequestsByRide(ctx context.Context, rideID string) ([]*models.BookingRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, ride_id, passenger_id, seats, message, status, version, created_at, decided_at
		FROM booking_requests WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list requests", err)
	}
	defer rows.Close()
	var out []*models.BookingRequest
	for rows.Next() {
		var br models.BookingRequest
		var decided sql.NullTime
		if err := rows.Scan(&br.ID, &br.RideID, &br.PassengerID, &br.Seats, &br.Message, &br.Status,
			&br.Version, &br.CreatedAt, &decided); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan request", err)
		}
		if decided.Valid {
			br.DecidedAt = decided.Time
		}
		out = append(out, &br)
	}
	return out, rows.Err()
}

// SaveRideAndRequest runs both versioned updates inside one transaction.
func (p *PostgresStore) SaveRideAndRequest(ctx context.Context, r *models.Ride, br *models.BookingRequest) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "begin tx", err)
	}
	defer tx.Rollback()
	if err := p.updateRideTx(ctx, tx, r); err != nil {
		r.Version-- // undone by rollback
		return err
	}
	if err := p.updateRequestTx(ctx, tx, br); err != nil {
		r.Version--
		return err
	}
	if err := tx.Commit(); err != nil {
		r.Version--
		br.Version--
		return apperr.Wrap(apperr.KindInternal, "commit", err)
	}
	return nil
}

func (p *PostgresStore) CreateDemand(ctx context.Context, d *models.RideDemand) error {
	offers, err := json.Marshal(d.Offers)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode offers", err)
	}
	d.Version = 1
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO ride_demands(id, passenger_id, origin_address, origin_lat, origin_lon,
			dest_address, dest_lat, dest_lon, desired_time, seats_needed, max_price,
			status, offers, version, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		d.ID, d.PassengerID, d.Origin.Address, d.Origin.Coord.Lat, d.Origin.Coord.Lon,
		d.Destination.Address, d.Destination.Coord.Lat, d.Destination.Coord.Lon,
		d.DesiredTime, d.SeatsNeeded, d.MaxPrice, d.Status, offers, d.Version,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert demand", err)
	}
	return nil
}

func (p *PostgresStore) GetDemand(ctx context.Context, id string) (*models.RideDemand, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, origin_address, origin_lat, origin_lon,
			dest_address, dest_lat, dest_lon, desired_time, seats_needed, max_price,
			status, offers, version, created_at, updated_at
		FROM ride_demands WHERE id = $1`, id)
	var d models.RideDemand
	var offers []byte
	var maxPrice sql.NullFloat64
	err := row.Scan(&d.ID, &d.PassengerID, &d.Origin.Address, &d.Origin.Coord.Lat, &d.Origin.Coord.Lon,
		&d.Destination.Address, &d.Destination.Coord.Lat, &d.Destination.Coord.Lon,
		&d.DesiredTime, &d.SeatsNeeded, &maxPrice, &d.Status, &offers, &d.Version,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "demand not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan demand", err)
	}
	if maxPrice.Valid {
		d.MaxPrice = &maxPrice.Float64
	}
	if len(offers) > 0 {
		if err := json.Unmarshal(offers, &d.Offers); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "decode offers", err)
		}
	}
	return &d, nil
}

func (p *PostgresStore) UpdateDemand(ctx context.Context, d *models.RideDemand) error {
	offers, err := json.Marshal(d.Offers)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode offers", err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE ride_demands SET status=$1, offers=$2, updated_at=$3, version=version+1
		WHERE id=$4 AND version=$5`,
		d.Status, offers, d.UpdatedAt, d.ID, d.Version)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update demand", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update demand", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindConflict, "demand %s modified concurrently", d.ID)
	}
	d.Version++
	return nil
}

func (p *PostgresStore) AddReview(ctx context.Context, rv *models.Review) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reviews(id, author_id, subject_id, ride_id, rating, comment, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)`,
		rv.ID, rv.AuthorID, rv.SubjectID, rv.RideID, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert review", err)
	}
	return nil
}

func (p *PostgresStore) RatingStats(ctx context.Context, userID string) (models.RatingStats, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE subject_id = $1`, userID)
	var s models.RatingStats
	if err := row.Scan(&s.Average, &s.Count); err != nil {
		return models.RatingStats{}, apperr.Wrap(apperr.KindInternal, "rating stats", err)
	}
	return s, nil
}

func (p *PostgresStore) UserActivity(ctx context.Context, userID string) (models.UserActivity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, completed_rides, cancelled_rides, account_created, email_verified, has_profile_photo
		FROM users WHERE id = $1`, userID)
	var act models.UserActivity
	err := row.Scan(&act.UserID, &act.CompletedRides, &act.CancelledRides,
		&act.AccountCreated, &act.EmailVerified, &act.HasProfilePhoto)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserActivity{UserID: userID}, nil
	}
	if err != nil {
		return models.UserActivity{}, apperr.Wrap(apperr.KindInternal, "user activity", err)
	}
	return act, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
