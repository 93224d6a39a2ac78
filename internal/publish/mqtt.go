package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"aquamon/internal/config"
	"aquamon/internal/logger"
	"aquamon/internal/models"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher republishes collected readings to a broker topic
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(cfg config.MQTTConfig, log *logger.Logger) (*MQTTPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	return newMQTTPublisher(client, cfg.Topic, log), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, log *logger.Logger) *MQTTPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &MQTTPublisher{client: client, topic: topic, logger: log}
}

// Name identifies the publisher in collector logs
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Publish sends r as JSON with QoS 0
func (p *MQTTPublisher) Publish(ctx context.Context, r models.Reading) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client is not connected")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("mqtt publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.logger.Debug().Str("topic", p.topic).Int("bytes", len(payload)).Msg("reading published")
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
