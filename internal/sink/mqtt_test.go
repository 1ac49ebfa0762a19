package sink

import (
	"context"
	"strings"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vrheadset-sim/internal/telemetry"
)

type fakeMQTTClient struct {
	topics       []string
	payloads     [][]byte
	err          error
	open         bool
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return newFakeToken(c.err)
}
func (c *fakeMQTTClient) IsConnectionOpen() bool  { return c.open }
func (c *fakeMQTTClient) Disconnect(quiesce uint) { c.disconnected = true; c.open = false }

func TestMQTTSinkPublishes(t *testing.T) {
	c := &fakeMQTTClient{open: true}
	m := &MQTTSink{client: c, topic: "vr/telemetry"}
	if !m.Ready() {
		t.Fatalf("expected ready")
	}
	if err := m.Send(context.Background(), testPacket(2)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := m.WriteStatus(telemetry.StatusRow{State: "READY"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(c.topics) != 2 || c.topics[0] != "vr/telemetry" || c.topics[1] != "vr/telemetry/status" {
		t.Fatalf("unexpected topics: %v", c.topics)
	}
	if !strings.Contains(string(c.payloads[0]), `"frame_id":2`) {
		t.Fatalf("unexpected payload: %s", c.payloads[0])
	}
	if err := m.Close(); err != nil || !c.disconnected || m.Ready() {
		t.Fatalf("close did not disconnect")
	}
}

func TestMQTTSinkError(t *testing.T) {
	c := &fakeMQTTClient{open: true, err: errDown}
	m := &MQTTSink{client: c, topic: "vr/telemetry"}
	if err := m.Send(context.Background(), testPacket(0)); err != errDown {
		t.Fatalf("expected token error, got %v", err)
	}
}
