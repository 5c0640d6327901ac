package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/you/bustracker/models"
)

// RouteEntry is one route reference point as written in a routes file
type RouteEntry struct {
	ID  string  `yaml:"id" validate:"required"`
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// RoutesFile is the root of a routes YAML document:
//
//	routes:
//	  - id: "22"
//	    lat: 19.08
//	    lng: 72.87
type RoutesFile struct {
	Routes []RouteEntry `yaml:"routes" validate:"dive"`
}

// LoadRoutes reads and validates a routes YAML file
func LoadRoutes(path string) (models.RoutePoints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes a routes YAML document into a lookup table.
// Duplicate route ids are rejected.
func ParseRoutes(data []byte) (models.RoutePoints, error) {
	var doc RoutesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}

	routes := make(models.RoutePoints, len(doc.Routes))
	for _, r := range doc.Routes {
		if _, dup := routes[r.ID]; dup {
			return nil, fmt.Errorf("invalid routes: duplicate route id %q", r.ID)
		}
		routes[r.ID] = models.RoutePoint{Latitude: r.Lat, Longitude: r.Lng}
	}

	return routes, nil
}
