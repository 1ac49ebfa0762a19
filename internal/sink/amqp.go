package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/telemetry"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpConnection interface {
	IsClosed() bool
	Close() error
}

// AMQPSink publishes packets as persistent JSON messages to a topic exchange.
type AMQPSink struct {
	mu         sync.Mutex
	conn       amqpConnection
	ch         amqpChannel
	exchange   string
	routingKey string
	appID      string
}

// DialAMQP connects to the broker, opens a channel and declares the
// exchange.
func DialAMQP(cfg config.AMQP, appID string) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("amqp dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.Exchange, err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: cfg.Exchange, routingKey: cfg.RoutingKey, appID: appID}, nil
}

// Ready reports whether the connection and channel are both open.
func (a *AMQPSink) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil && !a.conn.IsClosed() && a.ch != nil && !a.ch.IsClosed()
}

// Send publishes one packet.
func (a *AMQPSink) Send(ctx context.Context, p telemetry.Packet) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil || a.ch.IsClosed() {
		return fmt.Errorf("amqp channel closed: %w", core.ErrNotConnected)
	}
	return a.ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        a.appID,
		Timestamp:    p.Time(),
		Body:         body,
	})
}

// WriteStatus publishes a status row under <routing key>.status.
func (a *AMQPSink) WriteStatus(row telemetry.StatusRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil || a.ch.IsClosed() {
		return fmt.Errorf("amqp channel closed: %w", core.ErrNotConnected)
	}
	return a.ch.PublishWithContext(ctx, a.exchange, a.routingKey+".status", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        a.appID,
		Timestamp:    row.Timestamp,
		Body:         body,
	})
}

// Close closes the channel and then the connection.
func (a *AMQPSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	if a.ch != nil && !a.ch.IsClosed() {
		errs = append(errs, a.ch.Close())
	}
	if a.conn != nil && !a.conn.IsClosed() {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}
