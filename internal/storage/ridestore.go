package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("ride not found")
	// ErrAlreadyTaken is the normal losing outcome of the accept race: the
	// ride left pending (another captain won, or the rider cancelled) before
	// this caller's conditional update landed.
	ErrAlreadyTaken = errors.New("ride already taken")
	ErrInvalidState = errors.New("invalid ride state transition")
	ErrWrongCaptain = errors.New("ride held by another captain")
	// ErrCaptainBusy means the accepting captain already holds an accepted or
	// in_progress ride. Enforced inside Accept itself, in the same critical
	// section as the transition, so two accepts on different rides cannot both
	// win for one captain.
	ErrCaptainBusy = errors.New("captain already holds an active ride")
)

// RideStore persists rides. Every transition is a conditional update that
// succeeds only from the expected prior state, so concurrent callers race
// through the store rather than through check-then-act in the coordinator.
type RideStore interface {
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)

	// Accept transitions pending -> accepted and stamps the winning captain,
	// but only if the ride is still pending with no captain set and the
	// captain holds no other active ride. Exactly one concurrent caller can
	// succeed; the rest get ErrAlreadyTaken (ride resolved) or ErrCaptainBusy
	// (captain won elsewhere).
	Accept(ctx context.Context, rideID, captainID string, at time.Time) (*models.Ride, error)

	// Start transitions accepted -> in_progress for the holding captain.
	Start(ctx context.Context, rideID, captainID string) (*models.Ride, error)

	// Complete transitions in_progress -> completed and records the final
	// trip figures as supplied by the captain's app.
	Complete(ctx context.Context, rideID, captainID string, finalFare, finalDistance, finalDuration float64, at time.Time) (*models.Ride, error)

	// Cancel is allowed from pending or accepted only.
	Cancel(ctx context.Context, rideID string) (*models.Ride, error)

	// HasActiveRide reports whether the captain currently holds an accepted
	// or in_progress ride.
	HasActiveRide(ctx context.Context, captainID string) (bool, error)
}

// MemoryStore keeps rides in-process. The per-store mutex makes each
// conditional transition atomic; fine for a single coordinator process.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

// copyRide returns a detached copy. The coord pointers are cloned too, so a
// caller mutating the returned ride cannot write through to stored state.
func copyRide(r *models.Ride) *models.Ride {
	cp := *r
	if r.Pickup.Coord != nil {
		c := *r.Pickup.Coord
		cp.Pickup.Coord = &c
	}
	if r.Dropoff.Coord != nil {
		c := *r.Dropoff.Coord
		cp.Dropoff.Coord = &c
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = copyRide(r)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRide(r), nil
}

func (m *MemoryStore) Accept(ctx context.Context, rideID, captainID string, at time.Time) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusPending || r.CaptainID != "" {
		return nil, ErrAlreadyTaken
	}
	// busy check shares the critical section with the transition, so a
	// captain racing accepts on two pending rides can only win one
	if m.hasActiveRideLocked(captainID) {
		return nil, ErrCaptainBusy
	}
	r.Status = models.StatusAccepted
	r.CaptainID = captainID
	r.AcceptedAt = at
	return copyRide(r), nil
}

func (m *MemoryStore) Start(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusAccepted {
		return nil, ErrInvalidState
	}
	if r.CaptainID != captainID {
		return nil, ErrWrongCaptain
	}
	r.Status = models.StatusInProgress
	return copyRide(r), nil
}

func (m *MemoryStore) Complete(ctx context.Context, rideID, captainID string, finalFare, finalDistance, finalDuration float64, at time.Time) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusInProgress {
		return nil, ErrInvalidState
	}
	if r.CaptainID != captainID {
		return nil, ErrWrongCaptain
	}
	r.Status = models.StatusCompleted
	r.FinalFare = finalFare
	r.FinalDistance = finalDistance
	r.FinalDuration = finalDuration
	r.CompletedAt = at
	return copyRide(r), nil
}

func (m *MemoryStore) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusPending && r.Status != models.StatusAccepted {
		return nil, ErrInvalidState
	}
	r.Status = models.StatusCancelled
	return copyRide(r), nil
}

func (m *MemoryStore) HasActiveRide(ctx context.Context, captainID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasActiveRideLocked(captainID), nil
}

func (m *MemoryStore) hasActiveRideLocked(captainID string) bool {
	for _, r := range m.rides {
		if r.CaptainID != captainID {
			continue
		}
		if r.Status == models.StatusAccepted || r.Status == models.StatusInProgress {
			return true
		}
	}
	return false
}
