package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/telemetry"

	"github.com/go-redis/redis/v8"
)

// RedisStreamSink appends packets to a Redis stream capped at MaxLen entries.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates the client and pings the server.
func NewRedisStreamSink(ctx context.Context, cfg config.Redis) (*RedisStreamSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisStreamSink{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

func (r *RedisStreamSink) add(ctx context.Context, stream string, values map[string]interface{}) error {
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Send appends one packet. The entry carries the frame id and the JSON body.
func (r *RedisStreamSink) Send(ctx context.Context, p telemetry.Packet) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.add(ctx, r.stream, map[string]interface{}{
		"frame_id": p.FrameID,
		"ts_us":    p.TimestampUS,
		"data":     body,
	})
}

// WriteStatus appends a status row to <stream>:status.
func (r *RedisStreamSink) WriteStatus(row telemetry.StatusRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return r.add(context.Background(), r.stream+":status", map[string]interface{}{
		"state": row.State,
		"data":  body,
	})
}

// Close closes the client.
func (r *RedisStreamSink) Close() error {
	return r.client.Close()
}
