package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/internal/clock"
	"github.com/you/bustracker/models"

	_ "modernc.org/sqlite"
)

// sqliteSchema is embedded at compile time from schema.sql.
//
//go:embed schema.sql
var sqliteSchema string

// sqliteTimeLayout is fixed-width UTC so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite opens a SQLite database with WAL mode enabled
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logrus.Warnf("failed to set %s: %v", pragma, err)
		}
	}

	return db, nil
}

// SQLiteStore persists the latest state per bus in a single SQLite table
type SQLiteStore struct {
	db      *sql.DB
	clock   clock.Clock
	writeMu sync.Mutex // serializes upserts so the last completed call wins
}

// NewSQLiteStore creates a new SQLiteStore on an open connection
func NewSQLiteStore(db *sql.DB, c clock.Clock) *SQLiteStore {
	if c == nil {
		c = clock.System{}
	}
	return &SQLiteStore{db: db, clock: c}
}

// EnsureSchema creates the buses table if it doesn't exist
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for state.VehicleID
func (s *SQLiteStore) Upsert(ctx context.Context, state models.VehicleState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updatedAt := formatSQLiteTime(s.clock.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buses (bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bus_id) DO UPDATE SET
			route_id = excluded.route_id,
			last_lat = excluded.last_lat,
			last_lng = excluded.last_lng,
			speed_kmph = excluded.speed_kmph,
			heading_deg = excluded.heading_deg,
			updated_at = excluded.updated_at
	`,
		state.VehicleID,
		state.RouteID,
		state.Latitude,
		state.Longitude,
		state.SpeedKmh,
		state.HeadingDeg,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bus %s: %w", state.VehicleID, err)
	}

	return nil
}

// SnapshotAll returns every bus, or only those updated within maxAge
func (s *SQLiteStore) SnapshotAll(ctx context.Context, maxAge *time.Duration) ([]models.VehicleState, error) {
	query := `
		SELECT bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at
		FROM buses
	`
	var args []interface{}
	if maxAge != nil {
		query += ` WHERE updated_at >= ?`
		args = append(args, formatSQLiteTime(s.clock.Now().Add(-*maxAge)))
	}
	query += ` ORDER BY bus_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buses: %w", err)
	}
	defer rows.Close()

	buses := []models.VehicleState{}
	for rows.Next() {
		b, err := scanSQLiteBus(rows)
		if err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bus rows: %w", err)
	}

	return buses, nil
}

// Get returns a single bus by id, ignoring freshness
func (s *SQLiteStore) Get(ctx context.Context, busID string) (*models.VehicleState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bus_id, route_id, last_lat, last_lng, speed_kmph, heading_deg, updated_at
		FROM buses
		WHERE bus_id = ?
	`, busID)

	b, err := scanSQLiteBus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &b, nil
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteBus(row rowScanner) (models.VehicleState, error) {
	var b models.VehicleState
	var updatedAtStr string

	err := row.Scan(
		&b.VehicleID,
		&b.RouteID,
		&b.Latitude,
		&b.Longitude,
		&b.SpeedKmh,
		&b.HeadingDeg,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("failed to scan bus row: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return b, fmt.Errorf("invalid updated_at %q for bus %s: %w", updatedAtStr, b.VehicleID, err)
	}
	b.UpdatedAt = updatedAt

	return b, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
