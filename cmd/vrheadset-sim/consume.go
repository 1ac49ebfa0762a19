package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/consumer"
	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/sink"
)

var (
	consumeHost       string
	consumePort       int
	consumeUser       string
	consumePass       string
	consumeVHost      string
	consumeExchange   string
	consumeRoutingKey string
	consumeQueue      string
	consumeExport     string
	consumeMax        uint64
	consumeEvery      uint64
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume headset telemetry from RabbitMQ",
	Long:  "consume binds a queue to the telemetry exchange, decodes every packet, keeps message statistics and optionally exports the packets as JSONL.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyConsumeFlags(cmd, &cfg.Sinks.AMQP)
		log, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		opts := []consumer.Option{consumer.WithLogger(log), consumer.WithProgressEvery(consumeEvery)}
		if consumeExport != "" {
			fs, err := sink.NewFileSink(consumeExport, "")
			if err != nil {
				return err
			}
			defer fs.Close()
			opts = append(opts, consumer.WithExport(fs))
		}

		c, err := consumer.Dial(cfg.Sinks.AMQP, consumeQueue, opts...)
		if err != nil {
			return err
		}
		defer c.Close()
		log.Info("consuming telemetry", zap.String("queue", c.Queue()), zap.Uint64("max_messages", consumeMax))

		runErr := c.Run(ctx, consumeMax)
		st := c.Stats()
		fields := []zap.Field{
			zap.Uint64("messages", st.Messages),
			zap.Float64("rate", st.MessageRate),
			zap.Uint32("last_frame_id", st.LastFrameID),
			zap.Uint64("frame_gaps", st.FrameGaps),
			zap.Uint64("decode_errors", st.DecodeErrors),
		}
		if last := c.Latest(1); len(last) == 1 {
			fields = append(fields,
				zap.Float64("temperature", last[0].Temperature),
				zap.Uint8("battery_level", last[0].BatteryLevel))
		}
		log.Info("consumer stopped", fields...)
		return runErr
	},
}

// applyConsumeFlags overrides the broker settings with the flags the user set.
func applyConsumeFlags(cmd *cobra.Command, a *config.AMQP) {
	f := cmd.Flags()
	for name, apply := range map[string]func(){
		"host":        func() { a.Host = consumeHost },
		"port":        func() { a.Port = consumePort },
		"username":    func() { a.Username = consumeUser },
		"password":    func() { a.Password = consumePass },
		"vhost":       func() { a.VHost = consumeVHost },
		"exchange":    func() { a.Exchange = consumeExchange },
		"routing-key": func() { a.RoutingKey = consumeRoutingKey },
	} {
		if f.Changed(name) {
			apply()
		}
	}
}

func init() {
	addConsumeFlags(consumeCmd)
}

func addConsumeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&consumeHost, "host", "H", "localhost", "RabbitMQ host")
	f.IntVarP(&consumePort, "port", "p", 5672, "RabbitMQ port")
	f.StringVarP(&consumeUser, "username", "u", "guest", "RabbitMQ username")
	f.StringVarP(&consumePass, "password", "w", "guest", "RabbitMQ password")
	f.StringVarP(&consumeVHost, "vhost", "v", "/", "RabbitMQ vhost")
	f.StringVarP(&consumeExchange, "exchange", "e", "vr_telemetry", "RabbitMQ exchange")
	f.StringVarP(&consumeRoutingKey, "routing-key", "r", "telemetry.data", "RabbitMQ routing key")
	f.StringVar(&consumeQueue, "queue", "", "Durable queue name (empty binds an exclusive server-named queue)")
	f.StringVar(&consumeExport, "export", "", "Path to export consumed packets (JSONL)")
	f.Uint64Var(&consumeMax, "max-messages", 0, "Stop after N messages (0 = until interrupted)")
	f.Uint64Var(&consumeEvery, "print-every", 100, "Log progress every N messages (0 disables)")
}
