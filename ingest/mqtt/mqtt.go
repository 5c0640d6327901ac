// Package mqtt feeds driver location updates published over MQTT into the tracker.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/internal/config"
	"github.com/you/bustracker/models"
)

const (
	subscribeQoS   = 1
	ingestTimeout  = 5 * time.Second
	connectTimeout = 10 * time.Second
)

type ingester interface {
	Ingest(ctx context.Context, update models.LocationUpdate) error
}

// Connect opens a client against cfg.Broker. The client id gets a random
// suffix so several API replicas can share one configuration.
func Connect(cfg config.MQTTConfig, logger *logrus.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.WithField("broker", cfg.Broker).Info("mqtt connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// Subscriber applies location messages from the driver topic
type Subscriber struct {
	client  paho.Client
	topic   string
	tracker ingester
	logger  *logrus.Logger
}

// NewSubscriber creates a subscriber for topic. A single '+' wildcard in
// topic is read as the bus id.
func NewSubscriber(client paho.Client, topic string, tracker ingester, logger *logrus.Logger) *Subscriber {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Subscriber{
		client:  client,
		topic:   topic,
		tracker: tracker,
		logger:  logger,
	}
}

// Start subscribes and blocks until the broker acknowledges
func (s *Subscriber) Start() error {
	token := s.client.Subscribe(s.topic, subscribeQoS, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}
	s.logger.WithField("topic", s.topic).Info("subscribed to driver locations")
	return nil
}

// Stop unsubscribes and disconnects
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		s.logger.WithError(token.Error()).Warn("mqtt unsubscribe failed")
	}
	s.client.Disconnect(250)
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	entry := s.logger.WithField("topic", msg.Topic())

	update, err := models.ParseLocationUpdate(msg.Payload())
	if err != nil {
		entry.WithError(err).Warn("invalid location message")
		return
	}

	if fromTopic := busIDFromTopic(s.topic, msg.Topic()); fromTopic != "" {
		switch {
		case strings.TrimSpace(update.BusID) == "":
			update.BusID = fromTopic
		case update.BusID != fromTopic:
			entry.WithField("bus_id", update.BusID).Warn("bus id does not match topic, dropping message")
			return
		}
	}

	if err := update.Validate(); err != nil {
		entry.WithError(err).Warn("location message rejected")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if err := s.tracker.Ingest(ctx, update); err != nil {
		entry.WithError(err).WithField("bus_id", update.BusID).Error("failed to ingest location")
	}
}

// busIDFromTopic returns the topic level matched by the single '+' in pattern
func busIDFromTopic(pattern, topic string) string {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return ""
	}

	id := ""
	for i, p := range pp {
		switch p {
		case "+":
			if id != "" {
				return ""
			}
			id = tp[i]
		case tp[i]:
		default:
			return ""
		}
	}
	return id
}
