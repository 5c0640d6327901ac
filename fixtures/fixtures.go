// Package fixtures provides the sample fleet and route table used by tests,
// local development (SEED_FIXTURES=true) and the simulator.
package fixtures

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/you/bustracker/internal/config"
	"github.com/you/bustracker/models"
)

//go:embed routes.yml
var routesYAML []byte

//go:embed buses.yml
var busesYAML []byte

type busEntry struct {
	BusID   string   `yaml:"busId"`
	RouteID string   `yaml:"routeId"`
	Lat     float64  `yaml:"lat"`
	Lng     float64  `yaml:"lng"`
	Speed   *float64 `yaml:"speed"`
	Heading *float64 `yaml:"heading"`
}

// RoutePoints returns the built-in route reference table
func RoutePoints() (models.RoutePoints, error) {
	return config.ParseRoutes(routesYAML)
}

// Buses returns the sample fleet as validated location updates
func Buses() ([]models.LocationUpdate, error) {
	var doc struct {
		Buses []busEntry `yaml:"buses"`
	}
	if err := yaml.Unmarshal(busesYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bus fixtures: %w", err)
	}

	updates := make([]models.LocationUpdate, 0, len(doc.Buses))
	for _, b := range doc.Buses {
		lat, lng := b.Lat, b.Lng
		u := models.LocationUpdate{
			BusID:   b.BusID,
			RouteID: b.RouteID,
			Lat:     &lat,
			Lng:     &lng,
			Speed:   b.Speed,
			Heading: b.Heading,
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("invalid bus fixture %q: %w", b.BusID, err)
		}
		updates = append(updates, u)
	}

	return updates, nil
}

// Ingester accepts location updates; satisfied by *tracker.Tracker.
type Ingester interface {
	Ingest(ctx context.Context, update models.LocationUpdate) error
}

// Seed ingests the sample fleet and returns how many buses were loaded
func Seed(ctx context.Context, dst Ingester) (int, error) {
	buses, err := Buses()
	if err != nil {
		return 0, err
	}

	for _, b := range buses {
		if err := dst.Ingest(ctx, b); err != nil {
			return 0, fmt.Errorf("failed to seed bus %s: %w", b.BusID, err)
		}
	}

	return len(buses), nil
}
