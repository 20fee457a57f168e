package publish

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/config"
)

// ErrMirrorOffline is returned when the mirror has no broker connection.
var ErrMirrorOffline = errors.New("mqtt mirror not connected")

// Mirror receives a copy of every uploaded payload.
type Mirror interface {
	Publish(payload []byte) error
	Close()
}

// MQTTMirror publishes payloads to an MQTT topic with QoS 0.
type MQTTMirror struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTMirror starts connecting to the broker in the background and returns
// immediately; payloads published while offline are dropped.
func NewMQTTMirror(cfg config.MQTTConfig) *MQTTMirror {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", cfg.Broker).Info("MQTT mirror connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT mirror connection lost")
		})

	client := mqtt.NewClient(opts)
	client.Connect()

	return &MQTTMirror{
		client:  client,
		topic:   cfg.Topic,
		timeout: 5 * time.Second,
	}
}

// Publish sends the payload once, without retaining it.
func (m *MQTTMirror) Publish(payload []byte) error {
	if !m.client.IsConnectionOpen() {
		return ErrMirrorOffline
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
}
