// ColorStdoutSink prints human-friendly, colorized telemetry to STDOUT.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/telemetry"

	"golang.org/x/term"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutSink prints packets using ANSI colors.
type ColorStdoutSink struct {
	cfg  *config.Config
	out  io.Writer
	once sync.Once
	mu   sync.Mutex
}

// NewColorStdoutSink creates a ColorStdoutSink writing to os.Stdout.
func NewColorStdoutSink(cfg *config.Config) *ColorStdoutSink {
	return &ColorStdoutSink{cfg: cfg, out: os.Stdout}
}

// NewConsoleSink picks the colored sink for a terminal and JSON lines
// otherwise.
func NewConsoleSink(cfg *config.Config) Sink {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutSink(cfg)
	}
	return NewJSONStdoutSink()
}

func (w *ColorStdoutSink) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Headset Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "System Clock (Hz):\t%d\n", w.cfg.SystemClockHz)
	fmt.Fprintf(tw, "Sensor Rate (Hz):\t%d\n", w.cfg.SensorRateHz)
	fmt.Fprintf(tw, "Telemetry Rate (Hz):\t%d\n", w.cfg.TelemetryRateHz)
	fmt.Fprintf(tw, "Watchdog:\t%t (%d ms)\n", w.cfg.Watchdog.Enabled, w.cfg.Watchdog.TimeoutMS)
	fmt.Fprintf(tw, "Power Save:\t%t (level %d)\n", w.cfg.Power.SaveEnabled, w.cfg.Power.SleepLevel)
	fmt.Fprintf(tw, "Sensor Noise:\t%.3f\n", w.cfg.Sensors.NoiseLevel)
	tw.Flush()
	fmt.Fprintln(w.out)
}

func levelColor(v, warn, crit float64) string {
	switch {
	case v >= crit:
		return colorRed
	case v >= warn:
		return colorYellow
	}
	return colorGreen
}

func batteryColor(level uint8) string {
	switch {
	case level <= 10:
		return colorRed
	case level <= 25:
		return colorYellow
	}
	return colorGreen
}

// Send outputs a single packet in colorized format.
func (w *ColorStdoutSink) Send(_ context.Context, p telemetry.Packet) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, p.Time().Format("15:04:05.000"), colorReset)
	fmt.Fprintf(w.out, "%sframe=%d%s ", colorBlue, p.FrameID, colorReset)
	fmt.Fprintf(w.out, "%shead=(%.3f,%.3f,%.3f)%s ", colorCyan, p.HeadPosition.X, p.HeadPosition.Y, p.HeadPosition.Z, colorReset)
	fmt.Fprintf(w.out, "%sgaze=(%.2f,%.2f)%s ", colorMagenta, p.LeftEye.X, p.LeftEye.Y, colorReset)
	fmt.Fprintf(w.out, "%scpu=%.1f%%%s ", levelColor(p.CPUUsage, 70, 90), p.CPUUsage, colorReset)
	fmt.Fprintf(w.out, "%sgpu=%.1f%%%s ", levelColor(p.GPUUsage, 70, 90), p.GPUUsage, colorReset)
	fmt.Fprintf(w.out, "%stemp=%.1fC%s ", levelColor(p.Temperature, 50, 60), p.Temperature, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%d%%%s", batteryColor(p.BatteryLevel), p.BatteryLevel, colorReset)
	if p.LeftEye.Blinking {
		fmt.Fprintf(w.out, " %sblink%s", colorYellow, colorReset)
	}
	if !p.Connected {
		fmt.Fprintf(w.out, " %soffline%s", colorRed, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteStatus prints the status line.
func (w *ColorStdoutSink) WriteStatus(row telemetry.StatusRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s[%s]%s %sSTATUS%s loop=%d state=%s%s%s errors=%d resets=%d uptime=%dms sent=%d failed=%d dropped=%d vbat=%.2fV\n",
		colorGray, row.Timestamp.Format("15:04:05.000"), colorReset,
		colorBlue, colorReset, row.Tick,
		stateColor(row.State), row.State, colorReset,
		row.ErrorCount, row.ResetCount, row.UptimeMS,
		row.TelemetrySent, row.TelemetryFailed, row.TelemetryDropped, row.Voltage)
	return nil
}
