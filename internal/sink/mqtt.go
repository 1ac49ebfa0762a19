package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/telemetry"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const mqttTimeout = 5 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes packets to an MQTT topic.
type MQTTSink struct {
	client mqttClient
	topic  string
	qos    byte
}

// DialMQTT connects to the broker. An empty client id gets a random one.
func DialMQTT(cfg config.MQTT) (*MQTTSink, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "vrheadset-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTTSink{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

// Ready reports whether the client connection is open.
func (m *MQTTSink) Ready() bool {
	return m.client.IsConnectionOpen()
}

func (m *MQTTSink) publish(ctx context.Context, topic string, payload []byte) error {
	tok := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttTimeout):
		return errors.New("mqtt publish timeout")
	}
}

// Send publishes one packet.
func (m *MQTTSink) Send(ctx context.Context, p telemetry.Packet) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.publish(ctx, m.topic, body)
}

// WriteStatus publishes a status row to <topic>/status.
func (m *MQTTSink) WriteStatus(row telemetry.StatusRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return m.publish(context.Background(), m.topic+"/status", body)
}

// Close disconnects from the broker.
func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
