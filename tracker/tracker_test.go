package tracker

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/internal/clock"
	"github.com/you/bustracker/models"
	"github.com/you/bustracker/repository"
)

var (
	_ Store = (*repository.MemoryStore)(nil)
	_ Store = (*repository.SQLiteStore)(nil)
	_ Store = (*repository.PostgresStore)(nil)
)

var epoch = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

var mumbaiRoutes = models.RoutePoints{
	"22": {Latitude: 19.08, Longitude: 72.87},
}

func f64(v float64) *float64 { return &v }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestTracker(c clock.Clock) *Tracker {
	return New(repository.NewMemoryStore(c), mumbaiRoutes, quietLogger())
}

type failingStore struct{ err error }

func (f failingStore) Upsert(context.Context, models.VehicleState) error { return f.err }
func (f failingStore) SnapshotAll(context.Context, *time.Duration) ([]models.VehicleState, error) {
	return nil, f.err
}
func (f failingStore) Get(context.Context, string) (*models.VehicleState, error) { return nil, f.err }

func TestIngestThenQueryOne(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(clock.NewManual(epoch))

	err := tr.Ingest(ctx, models.LocationUpdate{BusID: "22", RouteID: "22", Lat: f64(19.0812), Lng: f64(72.8691), Speed: f64(24)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	bus, err := tr.QueryOne(ctx, "22")
	if err != nil {
		t.Fatalf("QueryOne failed: %v", err)
	}
	if bus.ETA != "Arriving" {
		t.Errorf("expected ETA Arriving, got %q", bus.ETA)
	}
	if !bus.UpdatedAt.Equal(epoch) {
		t.Errorf("expected UpdatedAt %v, got %v", epoch, bus.UpdatedAt)
	}
}

func TestQueryOneNotFound(t *testing.T) {
	tr := newTestTracker(clock.NewManual(epoch))

	_, err := tr.QueryOne(context.Background(), "unknown-id")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryAttachesETAPerBus(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(epoch)
	tr := newTestTracker(c)

	// 5 km due north of the route point, stationary
	fiveKmNorth := 19.08 + 5/6371.0*180/math.Pi
	updates := []models.LocationUpdate{
		{BusID: "22", RouteID: "22", Lat: f64(19.0812), Lng: f64(72.8691), Speed: f64(24)},
		{BusID: "idle", RouteID: "22", Lat: f64(fiveKmNorth), Lng: f64(72.87), Speed: f64(0)},
		{BusID: "lost", RouteID: "no-such-route", Lat: f64(19.08), Lng: f64(72.87)},
	}
	for _, u := range updates {
		if err := tr.Ingest(ctx, u); err != nil {
			t.Fatalf("Ingest %s failed: %v", u.BusID, err)
		}
	}

	buses, err := tr.Query(ctx, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	want := map[string]string{"22": "Arriving", "idle": "17 mins", "lost": "N/A"}
	if len(buses) != len(want) {
		t.Fatalf("expected %d buses, got %d", len(want), len(buses))
	}
	for _, b := range buses {
		if b.ETA != want[b.VehicleID] {
			t.Errorf("bus %s: ETA %q, expected %q", b.VehicleID, b.ETA, want[b.VehicleID])
		}
	}
}

func TestQueryFreshnessFilter(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(epoch)
	tr := newTestTracker(c)

	if err := tr.Ingest(ctx, models.LocationUpdate{BusID: "stale", Lat: f64(1), Lng: f64(1)}); err != nil {
		t.Fatal(err)
	}
	c.Advance(2 * time.Minute)
	if err := tr.Ingest(ctx, models.LocationUpdate{BusID: "fresh", Lat: f64(1), Lng: f64(1)}); err != nil {
		t.Fatal(err)
	}

	maxAge := time.Minute
	buses, err := tr.Query(ctx, &maxAge)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(buses) != 1 || buses[0].VehicleID != "fresh" {
		t.Errorf("expected only the fresh bus, got %+v", buses)
	}

	// QueryOne ignores freshness
	if _, err := tr.QueryOne(ctx, "stale"); err != nil {
		t.Errorf("QueryOne(stale) failed: %v", err)
	}
}

func TestQueryEmptyStore(t *testing.T) {
	tr := newTestTracker(clock.NewManual(epoch))

	buses, err := tr.Query(context.Background(), nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if buses == nil || len(buses) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", buses)
	}
}

func TestIngestNotifiesListeners(t *testing.T) {
	tr := newTestTracker(clock.NewManual(epoch))

	var got []string
	tr.OnIngest(func(_ context.Context, busID string) { got = append(got, busID) })

	for _, id := range []string{"703", "22"} {
		if err := tr.Ingest(context.Background(), models.LocationUpdate{BusID: id, Lat: f64(19), Lng: f64(72)}); err != nil {
			t.Fatal(err)
		}
	}

	if len(got) != 2 || got[0] != "703" || got[1] != "22" {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk on fire")
	tr := New(failingStore{err: boom}, mumbaiRoutes, quietLogger())

	notified := false
	tr.OnIngest(func(context.Context, string) { notified = true })

	if err := tr.Ingest(context.Background(), models.LocationUpdate{BusID: "x", Lat: f64(1), Lng: f64(1)}); !errors.Is(err, boom) {
		t.Errorf("Ingest: expected wrapped store error, got %v", err)
	}
	if notified {
		t.Error("listeners must not fire for failed ingests")
	}
	if _, err := tr.Query(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("Query: expected wrapped store error, got %v", err)
	}
	if _, err := tr.QueryOne(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("QueryOne: expected store error, got %v", err)
	}
}

func TestRoutesIsACopy(t *testing.T) {
	src := models.RoutePoints{"22": {Latitude: 19.08, Longitude: 72.87}}
	tr := New(repository.NewMemoryStore(nil), src, quietLogger())

	// Mutating the caller's table after construction has no effect
	delete(src, "22")
	routes := tr.Routes()
	if _, ok := routes["22"]; !ok {
		t.Fatal("tracker must keep its own copy of the route table")
	}

	routes["new"] = models.RoutePoint{}
	if _, ok := tr.Routes()["new"]; ok {
		t.Error("Routes() must return a copy")
	}
}
