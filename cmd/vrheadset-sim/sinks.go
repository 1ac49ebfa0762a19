package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/sink"
)

const retryBackoff = 20 * time.Millisecond

type sinkOptions struct {
	noBroker bool
	tui      bool
	noStatus bool
}

// sinkSet is the fan-out the scheduler publishes to, plus the handles the
// run command needs separately.
type sinkSet struct {
	multi  *sink.MultiSink
	sink   core.Sink
	status []core.StatusWriter
	tui    *sink.TUISink
}

// Close releases every sink.
func (s *sinkSet) Close() error {
	return s.multi.Close()
}

// buildSinks sets up the console (or TUI), the optional JSONL log and every
// enabled broker. A broker that cannot be reached is an error unless
// noBroker is set.
func buildSinks(ctx context.Context, cfg *config.Config, opts sinkOptions) (*sinkSet, error) {
	log := logging.FromContext(ctx)
	var sinks []sink.Sink
	var tui *sink.TUISink
	cleanup := func() {
		_ = sink.NewMultiSink(sinks...).Close()
	}

	switch {
	case opts.tui:
		tui = sink.NewTUISink(cfg)
		sinks = append(sinks, tui)
	case cfg.Sinks.Console:
		sinks = append(sinks, sink.NewConsoleSink(cfg))
	}

	if cfg.Sinks.LogFile != "" {
		statusPath := ""
		if !opts.noStatus {
			statusPath = cfg.Sinks.LogFile + ".status"
		}
		fs, err := sink.NewFileSink(cfg.Sinks.LogFile, statusPath)
		if err != nil {
			cleanup()
			return nil, err
		}
		sinks = append(sinks, fs)
	}

	if opts.noBroker {
		log.Info("broker sinks disabled, console output only")
	} else {
		brokers, err := brokerSinks(ctx, cfg)
		if err != nil {
			sinks = append(sinks, brokers...)
			cleanup()
			return nil, fmt.Errorf("%w (use --no-broker to run without brokers)", err)
		}
		for _, b := range brokers {
			if cfg.Sinks.Retries > 0 {
				b = sink.NewRetrySink(b, cfg.Sinks.Retries, retryBackoff)
			}
			sinks = append(sinks, b)
		}
	}

	multi := sink.NewMultiSink(sinks...)
	set := &sinkSet{multi: multi, tui: tui}
	if multi.Len() > 0 {
		set.sink = multi
	}
	if !opts.noStatus {
		set.status = []core.StatusWriter{multi}
	}
	log.Info("sinks ready", zap.Int("count", multi.Len()))
	return set, nil
}

// brokerSinks connects every enabled broker. On error the sinks connected so
// far are returned for cleanup.
func brokerSinks(ctx context.Context, cfg *config.Config) ([]sink.Sink, error) {
	log := logging.FromContext(ctx)
	var out []sink.Sink
	if a := cfg.Sinks.AMQP; a.Enabled {
		s, err := sink.DialAMQP(a, cfg.DeviceID)
		if err != nil {
			return out, err
		}
		log.Info("amqp connected", zap.String("host", a.Host), zap.Int("port", a.Port), zap.String("exchange", a.Exchange), zap.String("routing_key", a.RoutingKey))
		out = append(out, s)
	}
	if m := cfg.Sinks.MQTT; m.Enabled {
		s, err := sink.DialMQTT(m)
		if err != nil {
			return out, err
		}
		log.Info("mqtt connected", zap.String("broker", m.Broker), zap.String("topic", m.Topic))
		out = append(out, s)
	}
	if r := cfg.Sinks.Redis; r.Enabled {
		s, err := sink.NewRedisStreamSink(ctx, r)
		if err != nil {
			return out, err
		}
		log.Info("redis connected", zap.String("addr", r.Addr), zap.String("stream", r.Stream))
		out = append(out, s)
	}
	if g := cfg.Sinks.Greptime; g.Enabled {
		s, err := sink.NewGreptimeSink(g.Endpoint, g.Database, cfg.DeviceID, g.Table, g.StatusTable)
		if err != nil {
			return out, err
		}
		log.Info("greptime client ready", zap.String("endpoint", g.Endpoint), zap.String("table", g.Table))
		out = append(out, s)
	}
	return out, nil
}
