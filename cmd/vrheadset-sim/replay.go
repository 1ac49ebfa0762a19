package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/sink"
)

var (
	replayInput    string
	replaySpeed    float64
	replayNoBroker bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry packet log",
	Long:  "replay feeds packets from a JSONL log file back into the configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Sinks.LogFile = ""
		log, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		set, err := buildSinks(ctx, cfg, sinkOptions{noBroker: replayNoBroker, noStatus: true})
		if err != nil {
			return err
		}
		defer set.Close()
		if set.sink == nil {
			return fmt.Errorf("no sinks configured")
		}
		n, err := sink.ReplayLogFile(ctx, replayInput, set.sink, replaySpeed)
		log.Info("replay finished", zap.Int("packets", n), zap.String("input", replayInput))
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to packet log file (JSONL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVarP(&replayNoBroker, "no-broker", "n", false, "Replay to the console only")
	replayCmd.MarkFlagRequired("input")
}
