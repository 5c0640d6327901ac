package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/you/bustracker/handlers"
	"github.com/you/bustracker/models"
)

// walker produces a random walk of location updates for one bus
type walker struct {
	busID   string
	routeID string
	lat     float64
	lng     float64
	step    float64
	rng     *rand.Rand
}

func newWalker(busID, routeID string, lat, lng float64, seed int64) *walker {
	return &walker{
		busID:   busID,
		routeID: routeID,
		lat:     lat,
		lng:     lng,
		step:    0.01,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// next moves the bus by at most step/2 degrees per axis and returns the fix
func (w *walker) next() models.LocationUpdate {
	w.lat += (w.rng.Float64() - 0.5) * w.step
	w.lng += (w.rng.Float64() - 0.5) * w.step

	lat, lng := w.lat, w.lng
	speed := w.rng.Float64() * 60
	heading := w.rng.Float64() * 360

	return models.LocationUpdate{
		BusID:   w.busID,
		RouteID: w.routeID,
		Lat:     &lat,
		Lng:     &lng,
		Speed:   &speed,
		Heading: &heading,
	}
}

type sender interface {
	Send(ctx context.Context, update models.LocationUpdate) error
}

// httpSender posts updates to the driver ingest route
type httpSender struct {
	url    string
	apiKey string
	client *http.Client
}

func newHTTPSender(url, apiKey string) *httpSender {
	return &httpSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpSender) Send(ctx context.Context, update models.LocationUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.APIKeyHeader, s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP error! status: %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// mqttSender publishes updates to the driver topic for the bus
type mqttSender struct {
	client paho.Client
	topic  string
}

func (s *mqttSender) Send(_ context.Context, update models.LocationUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, 1, false, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", s.topic)
	}
	return token.Error()
}
