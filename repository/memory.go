package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/you/bustracker/internal/clock"
	"github.com/you/bustracker/models"
)

// ErrNotFound is returned by Get when no bus with the given id has reported.
var ErrNotFound = errors.New("bus not found")

// MemoryStore keeps the latest state per bus in process memory.
// Entries live for the lifetime of the process; cardinality is bounded by the fleet.
type MemoryStore struct {
	mu    sync.RWMutex
	buses map[string]models.VehicleState
	clock clock.Clock
}

// NewMemoryStore creates an empty MemoryStore stamping updates with c
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{
		buses: make(map[string]models.VehicleState),
		clock: c,
	}
}

// Upsert inserts or wholesale replaces the state for state.VehicleID.
// UpdatedAt is taken from the store clock, not from the caller.
func (s *MemoryStore) Upsert(_ context.Context, state models.VehicleState) error {
	stored := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored.UpdatedAt = s.clock.Now()
	s.buses[stored.VehicleID] = stored
	return nil
}

// SnapshotAll returns a copy of every stored state.
// When maxAge is set, entries with now - UpdatedAt > maxAge are skipped.
func (s *MemoryStore) SnapshotAll(_ context.Context, maxAge *time.Duration) ([]models.VehicleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	buses := make([]models.VehicleState, 0, len(s.buses))
	for _, b := range s.buses {
		if maxAge != nil && now.Sub(b.UpdatedAt) > *maxAge {
			continue
		}
		buses = append(buses, b.Clone())
	}

	return buses, nil
}

// Get returns a single bus regardless of its age
func (s *MemoryStore) Get(_ context.Context, busID string) (*models.VehicleState, error) {
	s.mu.RLock()
	b, ok := s.buses[busID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	out := b.Clone()
	return &out, nil
}

// Len returns the number of tracked buses
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buses)
}

// Ping always succeeds; kept so every backend satisfies the health check.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend
func (s *MemoryStore) Close() error {
	return nil
}
