package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrheadset-sim/internal/admin"
	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/journal"
	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/scenario"
)

var (
	runNoBroker        bool
	runAMQPHost        string
	runAMQPPort        int
	runAMQPUser        string
	runAMQPPass        string
	runAMQPVHost       string
	runExchange        string
	runRoutingKey      string
	runSensorRate      uint32
	runTelemetryRate   uint32
	runDuration        uint32
	runWatchdogTimeout uint32
	runNoWatchdog      bool
	runPowerSave       bool
	runSleepLevel      uint8
	runStatusEvery     uint32
	runSeed            int64
	runDeviceID        string
	runLogFile         string
	runScenario        string
	runBuiltin         string
	runTUI             bool
	runAdmin           bool
	runAdminAddr       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the headset control loop",
	Long:  "run initializes the headset core and ticks it until the duration elapses or SIGINT/SIGTERM arrives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.DeviceID == "" {
			cfg.DeviceID = "hs-" + uuid.NewString()[:8]
		}

		log, err := newLogger(cfg, runTUI)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		faults, err := loadScenario(runScenario, runBuiltin)
		if err != nil {
			return err
		}

		set, err := buildSinks(ctx, cfg, sinkOptions{noBroker: runNoBroker, tui: runTUI})
		if err != nil {
			return err
		}
		defer func() {
			if err := set.Close(); err != nil {
				log.Warn("closing sinks", zap.Error(err))
			}
		}()

		opts := []core.Option{core.WithLogger(log)}
		if set.tui != nil {
			opts = append(opts, core.WithObserver(set.tui))
		}
		if cfg.Journal.Enabled {
			j, err := journal.Open(ctx, cfg.Journal.DSN, cfg.DeviceID, cfg.Journal.Buffer, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := j.Close(); err != nil {
					log.Warn("closing journal", zap.Error(err))
				}
				log.Info("journal closed", zap.Uint64("written", j.Written()), zap.Uint64("dropped", j.Dropped()))
			}()
			opts = append(opts, core.WithObserver(j))
			log.Info("journal enabled", zap.String("session_id", j.SessionID().String()))
		}

		sched := core.NewScheduler(cfg, set.sink, opts...)
		log.Info("headset starting",
			zap.String("device_id", cfg.DeviceID),
			zap.Uint32("system_clock_hz", cfg.SystemClockHz),
			zap.Uint32("sensor_hz", cfg.SensorRateHz),
			zap.Uint32("telemetry_hz", cfg.TelemetryRateHz),
			zap.Bool("watchdog", cfg.Watchdog.Enabled),
			zap.Uint32("watchdog_timeout_ms", cfg.Watchdog.TimeoutMS),
			zap.Bool("power_save", cfg.Power.SaveEnabled),
			zap.Uint8("sleep_level", cfg.Power.SleepLevel),
			zap.Uint32("duration_s", cfg.DurationS))

		if err := sched.Initialize(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn("initialization incomplete", zap.Error(err), zap.Stringer("state", sched.Status().State))
		}

		if cfg.Admin.Enabled {
			srv := admin.NewServer(sched, log)
			go func() {
				if err := srv.Start(cfg.Admin.Addr); err != nil {
					log.Error("admin server failed", zap.Error(err))
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			if set.tui != nil {
				set.tui.SetAdminStatus(true)
			}
		}

		ropts := []core.RunnerOption{
			core.WithDuration(time.Duration(cfg.DurationS) * time.Second),
			core.WithStatusEvery(uint64(cfg.StatusEveryTicks)),
			core.WithStatusWriters(set.status...),
			core.WithDeviceID(cfg.DeviceID),
		}
		if faults != nil {
			ropts = append(ropts, core.WithFaults(faults))
			log.Info("fault scenario loaded", zap.String("name", faults.Name), zap.Int("steps", len(faults.Steps)))
		}
		runner := core.NewRunner(sched, ropts...)
		if err := runner.Run(ctx); err != nil {
			return err
		}
		stats := sched.Stats()
		log.Info("system shutdown completed",
			zap.Uint64("total_ticks", sched.CurrentTick()),
			zap.Uint64("telemetry_sent", stats.TelemetrySent),
			zap.Uint64("telemetry_failed", stats.TelemetryFailed),
			zap.Uint64("telemetry_dropped", stats.TelemetryDropped))
		return nil
	},
}

// applyRunFlags overrides config values with the flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	amqp := &cfg.Sinks.AMQP
	for name, apply := range map[string]func(){
		"host":             func() { amqp.Host = runAMQPHost },
		"port":             func() { amqp.Port = runAMQPPort },
		"username":         func() { amqp.Username = runAMQPUser },
		"password":         func() { amqp.Password = runAMQPPass },
		"vhost":            func() { amqp.VHost = runAMQPVHost },
		"exchange":         func() { amqp.Exchange = runExchange },
		"routing-key":      func() { amqp.RoutingKey = runRoutingKey },
		"frequency":        func() { cfg.SensorRateHz = runSensorRate },
		"telemetry-rate":   func() { cfg.TelemetryRateHz = runTelemetryRate },
		"duration":         func() { cfg.DurationS = runDuration },
		"watchdog-timeout": func() { cfg.Watchdog.TimeoutMS = runWatchdogTimeout },
		"no-watchdog":      func() { cfg.Watchdog.Enabled = !runNoWatchdog },
		"power-save":       func() { cfg.Power.SaveEnabled = runPowerSave },
		"cpu-sleep-level":  func() { cfg.Power.SleepLevel = runSleepLevel },
		"status-every":     func() { cfg.StatusEveryTicks = runStatusEvery },
		"seed":             func() { cfg.Sensors.Seed = runSeed },
		"device-id":        func() { cfg.DeviceID = runDeviceID },
		"log-file":         func() { cfg.Sinks.LogFile = runLogFile },
		"admin":            func() { cfg.Admin.Enabled = runAdmin },
		"admin-addr":       func() { cfg.Admin.Addr = runAdminAddr; cfg.Admin.Enabled = true },
	} {
		if f.Changed(name) {
			apply()
		}
	}
	for _, name := range []string{"host", "port", "username", "password", "vhost", "exchange", "routing-key"} {
		if f.Changed(name) {
			amqp.Enabled = true
		}
	}
}

func loadScenario(path, builtin string) (*scenario.Scenario, error) {
	switch {
	case path != "" && builtin != "":
		return nil, fmt.Errorf("use either --scenario or --builtin-scenario")
	case path != "":
		return scenario.Load(path)
	case builtin != "":
		sc, ok := scenario.BuiltIn()[builtin]
		if !ok {
			return nil, fmt.Errorf("unknown built-in scenario %q", builtin)
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		return &sc, nil
	}
	return nil, nil
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&runNoBroker, "no-broker", "n", false, "Run without brokers (console output only)")
	f.StringVarP(&runAMQPHost, "host", "H", "localhost", "RabbitMQ host")
	f.IntVarP(&runAMQPPort, "port", "p", 5672, "RabbitMQ port")
	f.StringVarP(&runAMQPUser, "username", "u", "guest", "RabbitMQ username")
	f.StringVarP(&runAMQPPass, "password", "w", "guest", "RabbitMQ password")
	f.StringVarP(&runAMQPVHost, "vhost", "v", "/", "RabbitMQ vhost")
	f.StringVarP(&runExchange, "exchange", "e", "vr_telemetry", "RabbitMQ exchange")
	f.StringVarP(&runRoutingKey, "routing-key", "r", "telemetry.data", "RabbitMQ routing key")
	f.Uint32VarP(&runSensorRate, "frequency", "f", 1000, "Sensor update frequency in Hz")
	f.Uint32VarP(&runTelemetryRate, "telemetry-rate", "t", 60, "Telemetry transmission rate in Hz")
	f.Uint32VarP(&runDuration, "duration", "d", 0, "Duration in seconds (0 = until interrupted)")
	f.Uint32Var(&runWatchdogTimeout, "watchdog-timeout", 5000, "Watchdog timeout in milliseconds")
	f.BoolVar(&runNoWatchdog, "no-watchdog", false, "Disable the watchdog")
	f.BoolVar(&runPowerSave, "power-save", false, "Enable power saving mode")
	f.Uint8Var(&runSleepLevel, "cpu-sleep-level", 1, "CPU sleep level 0-3")
	f.Uint32Var(&runStatusEvery, "status-every", 1000, "Print a status line every N ticks (0 disables)")
	f.Int64Var(&runSeed, "seed", 0, "Seed for sensor noise and self-test (0 = time based)")
	f.StringVar(&runDeviceID, "device-id", "", "Device id used in status rows and stored events")
	f.StringVar(&runLogFile, "log-file", "", "Path to export packets (JSONL); status rows go to <path>.status")
	f.StringVar(&runScenario, "scenario", "", "Path to a fault scenario YAML")
	f.StringVar(&runBuiltin, "builtin-scenario", "", "Name of a built-in fault scenario (low-voltage, link-loss, watchdog-starve, sleep-cycle)")
	f.BoolVar(&runTUI, "tui", false, "Render telemetry in a terminal UI instead of the console")
	f.BoolVar(&runAdmin, "admin", false, "Serve the admin HTTP API")
	f.StringVar(&runAdminAddr, "admin-addr", ":8080", "Admin HTTP listen address")
}
