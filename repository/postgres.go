package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/you/bustracker/internal/clock"
	"github.com/you/bustracker/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore is the durable variant of the bus state store backed by Postgres.
// Same last-write-wins contract as MemoryStore; UpdatedAt still comes from the injected clock.
type PostgresStore struct {
	pool    *pgxpool.Pool
	clock   clock.Clock
	writeMu sync.Mutex
}

func NewPostgresStore(ctx context.Context, databaseURL string, c clock.Clock) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if c == nil {
		c = clock.System{}
	}

	return &PostgresStore{pool: pool, clock: c}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, state models.VehicleState) error {
	// Serialized so upserts for one bus commit in call order
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO buses (bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bus_id) DO UPDATE SET
			route_id = EXCLUDED.route_id,
			last_lat = EXCLUDED.last_lat,
			last_lng = EXCLUDED.last_lng,
			speed_kmph = EXCLUDED.speed_kmph,
			heading_deg = EXCLUDED.heading_deg,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		state.VehicleID,
		state.RouteID,
		state.Latitude,
		state.Longitude,
		state.SpeedKmh,
		state.HeadingDeg,
		s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bus %s: %w", state.VehicleID, err)
	}

	return nil
}

func (s *PostgresStore) SnapshotAll(ctx context.Context, maxAge *time.Duration) ([]models.VehicleState, error) {
	query := `
		SELECT bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at
		FROM buses
	`
	var args []any
	if maxAge != nil {
		query += ` WHERE updated_at >= $1`
		args = append(args, s.clock.Now().UTC().Add(-*maxAge))
	}
	query += ` ORDER BY bus_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buses: %w", err)
	}
	defer rows.Close()

	buses := []models.VehicleState{}
	for rows.Next() {
		var b models.VehicleState
		err := rows.Scan(
			&b.VehicleID,
			&b.RouteID,
			&b.Latitude,
			&b.Longitude,
			&b.SpeedKmh,
			&b.HeadingDeg,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bus row: %w", err)
		}
		b.UpdatedAt = b.UpdatedAt.UTC()
		buses = append(buses, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bus rows: %w", err)
	}

	return buses, nil
}

func (s *PostgresStore) Get(ctx context.Context, busID string) (*models.VehicleState, error) {
	query := `
		SELECT bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at
		FROM buses
		WHERE bus_id = $1
	`

	var b models.VehicleState
	err := s.pool.QueryRow(ctx, query, busID).Scan(
		&b.VehicleID,
		&b.RouteID,
		&b.Latitude,
		&b.Longitude,
		&b.SpeedKmh,
		&b.HeadingDeg,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query bus: %w", err)
	}
	b.UpdatedAt = b.UpdatedAt.UTC()

	return &b, nil
}

// Truncate removes every row; used by integration tests to start clean.
func (s *PostgresStore) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE buses`); err != nil {
		return fmt.Errorf("failed to truncate buses: %w", err)
	}
	return nil
}
