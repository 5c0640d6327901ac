package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/fixtures"
	"github.com/you/bustracker/handlers"
	"github.com/you/bustracker/ingest/mqtt"
	"github.com/you/bustracker/internal/clock"
	"github.com/you/bustracker/internal/config"
	"github.com/you/bustracker/internal/logging"
	"github.com/you/bustracker/models"
	"github.com/you/bustracker/repository"
	"github.com/you/bustracker/tracker"
)

// busStore is what the server needs from any store backend
type busStore interface {
	tracker.Store
	handlers.Pinger
	Close() error
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Store
	// ═══════════════════════════════════════════════════════
	store, err := openStore(ctx, cfg, clock.System{}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Tracker
	// ═══════════════════════════════════════════════════════
	routes, err := loadRoutes(cfg.RoutesFile)
	if err != nil {
		logger.Fatalf("Failed to load routes: %v", err)
	}
	logger.WithField("routes", len(routes)).Info("Route reference points loaded")

	trk := tracker.New(store, routes, logger)

	if cfg.SeedFixtures {
		n, err := fixtures.Seed(ctx, trk)
		if err != nil {
			logger.Fatalf("Failed to seed sample buses: %v", err)
		}
		logger.WithField("buses", n).Info("Sample buses seeded")
	}

	live := handlers.NewLiveHandler(trk, logger)
	trk.OnIngest(live.Notify)
	defer live.Close()

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Optional MQTT ingest
	// ═══════════════════════════════════════════════════════
	if cfg.MQTT.Enabled() {
		client, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		sub := mqtt.NewSubscriber(client, cfg.MQTT.Topic, trk, logger)
		if err := sub.Start(); err != nil {
			logger.Fatalf("Failed to subscribe: %v", err)
		}
		defer sub.Stop()
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: HTTP server
	// ═══════════════════════════════════════════════════════
	r := newRouter(cfg, routerDeps{
		buses:  handlers.NewBusHandler(trk, logger),
		health: handlers.NewHealthHandler(store, cfg.StoreBackend),
		gtfsrt: handlers.NewGTFSRTHandler(trk, logger),
		live:   live,
		logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("API server starting on :%s (store=%s)", cfg.Port, cfg.StoreBackend)
		logger.Info("Driver endpoints:")
		logger.Info("  POST /api/driver/update-location")
		logger.Info("Public endpoints:")
		logger.Info("  GET /api/public/all-buses")
		logger.Info("  GET /api/public/bus/{busId}")
		logger.Info("  GET /api/public/routes")
		logger.Info("  GET /api/public/gtfs-rt/vehicle-positions")
		logger.Info("  GET /api/public/live (websocket)")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown did not complete cleanly")
	}
	cancel()
	logger.Info("Goodbye!")
}

// openStore builds the configured backend and makes sure its schema exists
func openStore(ctx context.Context, cfg *config.Config, c clock.Clock, logger *logrus.Logger) (busStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Info("Using in-memory bus store")
		return repository.NewMemoryStore(c), nil

	case "sqlite":
		logger.Infof("Connecting to SQLite database: %s", cfg.SQLitePath)
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := repository.NewSQLiteStore(db, c)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("SQLite database connection established")
		return store, nil

	case "postgres":
		logger.Info("Connecting to PostgreSQL")
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL, c)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("PostgreSQL connection established")
		return store, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func loadRoutes(path string) (models.RoutePoints, error) {
	if path == "" {
		return fixtures.RoutePoints()
	}
	return config.LoadRoutes(path)
}
