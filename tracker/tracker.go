// Package tracker combines the bus state store with the arrival estimator.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/eta"
	"github.com/you/bustracker/models"
)

// Store is the bus state store contract; implemented by repository.MemoryStore,
// repository.SQLiteStore and repository.PostgresStore.
type Store interface {
	Upsert(ctx context.Context, state models.VehicleState) error
	SnapshotAll(ctx context.Context, maxAge *time.Duration) ([]models.VehicleState, error)
	Get(ctx context.Context, busID string) (*models.VehicleState, error)
}

// Listener is notified after every accepted ingest.
type Listener func(ctx context.Context, busID string)

// Tracker serves ingest and query operations for the request layer
type Tracker struct {
	store     Store
	routes    models.RoutePoints
	logger    *logrus.Logger
	listeners []Listener
}

// New creates a Tracker. routes is copied and never modified afterwards.
func New(store Store, routes models.RoutePoints, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		store:  store,
		routes: routes.Copy(),
		logger: logger,
	}
}

// OnIngest registers l. Must be called before the tracker starts serving.
func (t *Tracker) OnIngest(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Ingest stores a validated location update.
// Validation is the caller's job; nothing is re-checked here.
func (t *Tracker) Ingest(ctx context.Context, update models.LocationUpdate) error {
	state := update.ToState()

	if err := t.store.Upsert(ctx, state); err != nil {
		return fmt.Errorf("failed to store location for bus %s: %w", state.VehicleID, err)
	}

	t.logger.WithFields(logrus.Fields{
		"bus_id":   state.VehicleID,
		"route_id": state.RouteID,
	}).Debug("location ingested")

	for _, l := range t.listeners {
		l(ctx, state.VehicleID)
	}

	return nil
}

// Query returns every bus passing the optional freshness filter, each with its ETA
func (t *Tracker) Query(ctx context.Context, maxAge *time.Duration) ([]models.BusWithETA, error) {
	states, err := t.store.SnapshotAll(ctx, maxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot buses: %w", err)
	}

	buses := make([]models.BusWithETA, 0, len(states))
	for _, s := range states {
		buses = append(buses, t.withETA(s))
	}

	return buses, nil
}

// QueryOne returns a single bus with its ETA. Unknown ids yield repository.ErrNotFound.
func (t *Tracker) QueryOne(ctx context.Context, busID string) (*models.BusWithETA, error) {
	state, err := t.store.Get(ctx, busID)
	if err != nil {
		return nil, err
	}

	bus := t.withETA(*state)
	return &bus, nil
}

// Routes returns a copy of the route reference table
func (t *Tracker) Routes() models.RoutePoints {
	return t.routes.Copy()
}

func (t *Tracker) withETA(s models.VehicleState) models.BusWithETA {
	return models.BusWithETA{
		VehicleState: s,
		ETA:          eta.Estimate(s, t.routes),
	}
}
