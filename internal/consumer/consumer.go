// Package consumer reads headset telemetry back off the RabbitMQ exchange.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/sink"
	"vrheadset-sim/internal/telemetry"
)

// keepRecent bounds the in-memory packet window.
const keepRecent = 1000

type deliveryChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type connection interface {
	Close() error
}

// Stats summarizes what the consumer has received.
type Stats struct {
	Messages     uint64    `json:"total_messages"`
	DecodeErrors uint64    `json:"decode_errors"`
	ExportErrors uint64    `json:"export_errors"`
	FrameGaps    uint64    `json:"frame_gaps"`
	LastFrameID  uint32    `json:"last_frame_id"`
	StartTime    time.Time `json:"start_time"`
	LastMessage  time.Time `json:"last_message_time"`
	MessageRate  float64   `json:"message_rate"`
}

// Consumer binds an exclusive queue to the telemetry exchange and decodes
// every delivery into a Packet.
type Consumer struct {
	conn  connection
	ch    deliveryChannel
	queue string

	export     sink.Sink
	printEvery uint64
	now        func() time.Time
	log        *zap.Logger

	mu     sync.Mutex
	stats  Stats
	recent []telemetry.Packet
}

// Option customizes a Consumer.
type Option func(*Consumer)

// WithExport forwards every decoded packet to s.
func WithExport(s sink.Sink) Option { return func(c *Consumer) { c.export = s } }

// WithLogger sets the consumer logger.
func WithLogger(l *zap.Logger) Option { return func(c *Consumer) { c.log = l } }

// WithProgressEvery logs a progress line every n messages. Zero disables it.
func WithProgressEvery(n uint64) Option { return func(c *Consumer) { c.printEvery = n } }

// WithNow replaces time.Now.
func WithNow(now func() time.Time) Option { return func(c *Consumer) { c.now = now } }

// Dial connects to the broker and binds a queue to the exchange and routing
// key in cfg. An empty queue name asks the broker for an exclusive one.
func Dial(cfg config.AMQP, queue string, opts ...Option) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("amqp dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	c, err := newConsumer(conn, ch, cfg, queue, opts...)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return c, nil
}

func newConsumer(conn connection, ch deliveryChannel, cfg config.AMQP, queue string, opts ...Option) (*Consumer, error) {
	c := &Consumer{conn: conn, ch: ch, printEvery: 100, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.Exchange, err)
	}
	exclusive := queue == ""
	q, err := ch.QueueDeclare(queue, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqp declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("amqp bind %s to %s/%s: %w", q.Name, cfg.Exchange, cfg.RoutingKey, err)
	}
	c.queue = q.Name
	c.log.Info("consumer bound",
		zap.String("queue", q.Name),
		zap.String("exchange", cfg.Exchange),
		zap.String("routing_key", cfg.RoutingKey))
	return c, nil
}

// Queue returns the bound queue name.
func (c *Consumer) Queue() string { return c.queue }

// Run consumes until ctx is done, the delivery channel closes or limit
// (when non-zero) messages have been handled.
func (c *Consumer) Run(ctx context.Context, limit uint64) error {
	deliveries, err := c.ch.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.Warn("dropping message", zap.Error(err))
			}
			if limit > 0 && c.Stats().Messages >= limit {
				return nil
			}
		}
	}
}

// Handle decodes one message body and updates the statistics.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var p telemetry.Packet
	if err := json.Unmarshal(body, &p); err != nil {
		c.mu.Lock()
		c.stats.DecodeErrors++
		c.mu.Unlock()
		return fmt.Errorf("decode packet: %w", err)
	}

	now := c.now()
	c.mu.Lock()
	st := &c.stats
	if st.Messages > 0 && p.FrameID != st.LastFrameID+1 {
		st.FrameGaps++
	}
	st.Messages++
	if st.StartTime.IsZero() {
		st.StartTime = now
	}
	st.LastMessage = now
	st.LastFrameID = p.FrameID
	if elapsed := now.Sub(st.StartTime).Seconds(); elapsed > 0 {
		st.MessageRate = float64(st.Messages) / elapsed
	}
	c.recent = append(c.recent, p)
	if len(c.recent) > keepRecent {
		c.recent = c.recent[len(c.recent)-keepRecent:]
	}
	snap := *st
	c.mu.Unlock()

	if c.printEvery > 0 && snap.Messages%c.printEvery == 0 {
		c.log.Info("processed messages",
			zap.Uint64("messages", snap.Messages),
			zap.Float64("rate", snap.MessageRate),
			zap.Uint32("last_frame_id", snap.LastFrameID))
	}

	if c.export != nil {
		if err := c.export.Send(ctx, p); err != nil {
			c.mu.Lock()
			c.stats.ExportErrors++
			c.mu.Unlock()
			return fmt.Errorf("export packet %d: %w", p.FrameID, err)
		}
	}
	return nil
}

// Stats returns a copy of the statistics.
func (c *Consumer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Latest returns up to n of the most recent packets, oldest first.
func (c *Consumer) Latest(n int) []telemetry.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.recent) {
		n = len(c.recent)
	}
	return append([]telemetry.Packet(nil), c.recent[len(c.recent)-n:]...)
}

// Close closes the channel and the connection.
func (c *Consumer) Close() error {
	return errors.Join(c.ch.Close(), c.conn.Close())
}
