package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/handlers"
	"github.com/you/bustracker/internal/config"
)

type routerDeps struct {
	buses  *handlers.BusHandler
	health *handlers.HealthHandler
	gtfsrt *handlers.GTFSRTHandler
	live   *handlers.LiveHandler
	logger *logrus.Logger
}

func newRouter(cfg *config.Config, d routerDeps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(handlers.RequestID)
	r.Use(handlers.RequestLogger(d.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{handlers.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", d.health.GetHealth)
	r.Get("/healthz", d.health.GetHealthz)

	r.Route("/api", func(r chi.Router) {
		r.With(handlers.RequireAPIKey(cfg.APIKey)).Post("/driver/update-location", d.buses.UpdateLocation)

		r.Route("/public", func(r chi.Router) {
			r.Get("/all-buses", d.buses.GetAllBuses)
			r.Get("/bus/{busId}", d.buses.GetBus)
			r.Get("/routes", d.buses.GetRoutes)
			r.Get("/gtfs-rt/vehicle-positions", d.gtfsrt.GetVehiclePositions)
			r.Get("/live", d.live.Subscribe)
		})
	})

	// Static file serving (if configured)
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
