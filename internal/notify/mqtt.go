package notify

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/metrics"
)

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes events to <prefix>/trips/<tripId>/<event> with QoS 1.
type MQTTPublisher struct {
	client  Publisher
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher returns a Notifier publishing through client.
func NewMQTTPublisher(client Publisher, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, timeout: 2 * time.Second}
}

// Topic returns the topic an event is published to.
func (p *MQTTPublisher) Topic(event Event) string {
	return fmt.Sprintf("%s/trips/%s/%s", p.prefix, event.TripID, event.Type)
}

// Notify publishes event and waits briefly for the broker acknowledgement.
func (p *MQTTPublisher) Notify(_ context.Context, event Event) {
	fields := log.Fields{"event": event.Type, "trip_id": event.TripID}

	payload, err := event.Encode()
	if err != nil {
		metrics.NotifyFailuresTotal.WithLabelValues("mqtt").Inc()
		log.WithFields(fields).WithError(err).Error("Failed to encode event")
		return
	}

	token := p.client.Publish(p.Topic(event), 1, false, payload)
	if !token.WaitTimeout(p.timeout) {
		metrics.NotifyFailuresTotal.WithLabelValues("mqtt").Inc()
		log.WithFields(fields).Warn("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		metrics.NotifyFailuresTotal.WithLabelValues("mqtt").Inc()
		log.WithFields(fields).WithError(err).Warn("MQTT publish failed")
	}
}

// ConnectMQTT connects to broker. An empty clientID gets a random one.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = "fleet-api-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	log.WithFields(log.Fields{"broker": broker, "client_id": clientID}).Info("Connected to MQTT broker")
	return client, nil
}
