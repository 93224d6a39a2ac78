package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"aquamon/internal/models"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient implements the parts of mqtt.Client the publisher uses
type fakeClient struct {
	mqtt.Client
	connected bool
	err       error

	topic   string
	qos     byte
	payload []byte
	closed  bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	return newFakeToken(c.err)
}

func (c *fakeClient) Disconnect(quiesce uint) { c.closed = true }

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, "aquamon/readings", nil)

	r := models.Reading{
		Temperature: 24.5,
		Level:       80,
		PumpStatus:  true,
		Timestamp:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if client.topic != "aquamon/readings" || client.qos != 0 {
		t.Fatalf("published to %q with qos %d", client.topic, client.qos)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(client.payload, &body); err != nil {
		t.Fatal(err)
	}
	if body["temperature"] != 24.5 || body["pump_status"] != float64(1) {
		t.Fatalf("unexpected payload: %s", client.payload)
	}
}

func TestMQTTPublishErrors(t *testing.T) {
	p := newMQTTPublisher(&fakeClient{connected: false}, "t", nil)
	if err := p.Publish(context.Background(), models.Reading{}); err == nil {
		t.Fatal("expected error when disconnected")
	}

	p = newMQTTPublisher(&fakeClient{connected: true, err: errors.New("not authorized")}, "t", nil)
	if err := p.Publish(context.Background(), models.Reading{}); err == nil {
		t.Fatal("expected broker error")
	}
}

func TestMQTTClose(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, "t", nil)
	if err := p.Close(); err != nil || !client.closed {
		t.Fatalf("closed = %v, err = %v", client.closed, err)
	}
}
