// Command simulate drives a fake bus around a start point and reports its
// position every interval, over HTTP or MQTT.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/ingest/mqtt"
	"github.com/you/bustracker/internal/config"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	apiURL := flag.String("url", "http://localhost:3001/api/driver/update-location", "Driver ingest URL")
	apiKey := flag.String("api-key", os.Getenv("API_KEY"), "Driver API key (defaults to $API_KEY)")
	busID := flag.String("bus", "BUS100", "Bus id to report as")
	routeID := flag.String("route", "R1", "Route id to report")
	lat := flag.Float64("lat", 28.7041, "Start latitude")
	lng := flag.Float64("lng", 77.1025, "Start longitude")
	interval := flag.Duration("interval", 5*time.Second, "Time between updates")
	count := flag.Int("count", 0, "Stop after this many updates (0 runs until interrupted)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	broker := flag.String("mqtt-broker", os.Getenv("MQTT_BROKER"), "Publish to this MQTT broker instead of HTTP")
	topic := flag.String("mqtt-topic", "bus-tracker/driver/+/location", "MQTT topic pattern; '+' is replaced by the bus id")
	verbose := flag.Bool("v", false, "Log every update")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var out sender
	if *broker != "" {
		client, err := mqtt.Connect(config.MQTTConfig{
			Broker:   *broker,
			ClientID: "bus-simulator",
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer client.Disconnect(250)
		out = &mqttSender{client: client, topic: strings.Replace(*topic, "+", *busID, 1)}
		logger.Infof("Publishing %s to %s every %v", *busID, *broker, *interval)
	} else {
		if *apiKey == "" {
			logger.Warn("No API key set; the server will reject updates")
		}
		out = newHTTPSender(*apiURL, *apiKey)
		logger.Infof("Posting %s to %s every %v", *busID, *apiURL, *interval)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := newWalker(*busID, *routeID, *lat, *lng, *seed)
	sent := run(ctx, w, out, *interval, *count, logger)
	logger.Infof("Sent %d updates", sent)
}

// run sends one update per tick until ctx ends or count updates were sent
func run(ctx context.Context, w *walker, out sender, interval time.Duration, count int, logger *logrus.Logger) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return sent
		case <-ticker.C:
			update := w.next()
			if err := out.Send(ctx, update); err != nil {
				logger.WithError(err).Error("Error sending update")
			} else {
				sent++
				logger.WithFields(logrus.Fields{
					"lat":     *update.Lat,
					"lng":     *update.Lng,
					"speed":   *update.Speed,
					"heading": *update.Heading,
				}).Debug("Update sent")
			}
			if count > 0 && sent >= count {
				return sent
			}
		}
	}
}
