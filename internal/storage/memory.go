package storage

import (
	"context"
	"sync"

	"github.com/example/carpool/internal/apperr"
	"github.com/example/carpool/internal/models"
)

// MemoryStore is the reference Repository implementation. A single lock
// linearizes all writes; version checks still apply so workflow-level
// races behave exactly as against the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	requests map[string]*models.BookingRequest
	demands  map[string]*models.RideDemand
	reviews  []*models.Review
	users    map[string]models.UserActivity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		requests: make(map[string]*models.BookingRequest),
		demands:  make(map[string]*models.RideDemand),
		users:    make(map[string]models.UserActivity),
	}
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return apperr.Newf(apperr.KindConflict, "ride %s already exists", r.ID)
	}
	r.Version = 1
	m.rides[r.ID] = copyRide(r)
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "ride %s not found", id)
	}
	return copyRide(r), nil
}

func (m *MemoryStore) UpdateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRideLocked(r)
}

func (m *MemoryStore) updateRideLocked(r *models.Ride) error {
	cur, ok := m.rides[r.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "ride %s not found", r.ID)
	}
	if cur.Version != r.Version {
		return apperr.Newf(apperr.KindConflict, "ride %s modified concurrently", r.ID)
	}
	r.Version++
	m.rides[r.ID] = copyRide(r)
	return nil
}

func (m *MemoryStore) ListOpenRides(_ context.Context) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if r.Status == models.RideOpen {
			out = append(out, copyRide(r))
		}
	}
	return out, nil
}

// CreateRequest inserts a request and enforces, under the write lock,
// that a passenger holds at most one active request per ride. The
// workflow's pre-checks are a fast path; this is the commit-time
// guarantee racing callers actually hit.
func (m *MemoryStore) CreateRequest(_ context.Context, br *models.BookingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[br.ID]; ok {
		return apperr.Newf(apperr.KindConflict, "request %s already exists", br.ID)
	}
	if br.Status.Active() {
		for _, cur := range m.requests {
			if cur.RideID == br.RideID && cur.PassengerID == br.PassengerID && cur.Status.Active() {
				return apperr.Newf(apperr.KindConflict, "passenger %s already has an active request for ride %s", br.PassengerID, br.RideID)
			}
		}
	}
	br.Version = 1
	cp := *br
	m.requests[br.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*models.BookingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	br, ok := m.requests[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "request %s not found", id)
	}
	cp := *br
	return &cp, nil
}

func (m *MemoryStore) UpdateRequest(_ context.Context, br *models.BookingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(br)
}

func (m *MemoryStore) updateRequestLocked(br *models.BookingRequest) error {
	cur, ok := m.requests[br.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "request %s not found", br.ID)
	}
	if cur.Version != br.Version {
		return apperr.Newf(apperr.KindConflict, "request %s modified concurrently", br.ID)
	}
	br.Version++
	cp := *br
	m.requests[br.ID] = &cp
	return nil
}

func (m *MemoryStore) ListRequestsByRide(_ context.Context, rideID string) ([]*models.BookingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.BookingRequest
	for _, br := range m.requests {
		if br.RideID == rideID {
			cp := *br
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SaveRideAndRequest checks both versions before applying either write,
// so a stale ride cannot leave a half-committed request behind.
func (m *MemoryStore) SaveRideAndRequest(_ context.Context, r *models.Ride, br *models.BookingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	curRide, ok := m.rides[r.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "ride %s not found", r.ID)
	}
	curReq, ok := m.requests[br.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "request %s not found", br.ID)
	}
	if curRide.Version != r.Version {
		return apperr.Newf(apperr.KindConflict, "ride %s modified concurrently", r.ID)
	}
	if curReq.Version != br.Version {
		return apperr.Newf(apperr.KindConflict, "request %s modified concurrently", br.ID)
	}
	if err := m.updateRideLocked(r); err != nil {
		return err
	}
	return m.updateRequestLocked(br)
}

func (m *MemoryStore) CreateDemand(_ context.Context, d *models.RideDemand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.demands[d.ID]; ok {
		return apperr.Newf(apperr.KindConflict, "demand %s already exists", d.ID)
	}
	d.Version = 1
	m.demands[d.ID] = copyDemand(d)
	return nil
}

func (m *MemoryStore) GetDemand(_ context.Context, id string) (*models.RideDemand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.demands[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "demand %s not found", id)
	}
	return copyDemand(d), nil
}

func (m *MemoryStore) UpdateDemand(_ context.Context, d *models.RideDemand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.demands[d.ID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "demand %s not found", d.ID)
	}
	if cur.Version != d.Version {
		return apperr.Newf(apperr.KindConflict, "demand %s modified concurrently", d.ID)
	}
	d.Version++
	m.demands[d.ID] = copyDemand(d)
	return nil
}

func (m *MemoryStore) AddReview(_ context.Context, rv *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rv
	m.reviews = append(m.reviews, &cp)
	return nil
}

func (m *MemoryStore) RatingStats(_ context.Context, userID string) (models.RatingStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, count int
	for _, rv := range m.reviews {
		if rv.SubjectID == userID {
			sum += rv.Rating
			count++
		}
	}
	if count == 0 {
		return models.RatingStats{}, nil
	}
	return models.RatingStats{Average: float64(sum) / float64(count), Count: count}, nil
}

// PutUserActivity seeds activity records; the real system maintains
// these counters from ride lifecycle events.
func (m *MemoryStore) PutUserActivity(act models.UserActivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[act.UserID] = act
}

func (m *MemoryStore) UserActivity(_ context.Context, userID string) (models.UserActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	act, ok := m.users[userID]
	if !ok {
		return models.UserActivity{UserID: userID}, nil
	}
	return act, nil
}

// copies keep callers from aliasing store-internal slices

func copyRide(r *models.Ride) *models.Ride {
	cp := *r
	if r.Route != nil {
		cp.Route = append([]models.Coord(nil), r.Route...)
	}
	if r.Participants != nil {
		cp.Participants = append([]string(nil), r.Participants...)
	}
	return &cp
}

func copyDemand(d *models.RideDemand) *models.RideDemand {
	cp := *d
	if d.Offers != nil {
		cp.Offers = append([]models.Offer(nil), d.Offers...)
	}
	if d.MaxPrice != nil {
		v := *d.MaxPrice
		cp.MaxPrice = &v
	}
	return &cp
}
