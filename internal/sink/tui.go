package sink

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/telemetry"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a packet line for the viewport.
type logMsg struct{ line string }

// packetMsg carries the latest packet for the gauges.
type packetMsg struct{ telemetry.Packet }

// eventMsg carries a state machine event line.
type eventMsg struct{ line string }

// statusMsg carries a periodic status row.
type statusMsg struct{ telemetry.StatusRow }

// adminMsg reports admin server status.
type adminMsg struct{ active bool }

const (
	maxLogLines         = 500
	maxSectionHeightPct = 0.25
)

// TUISink renders telemetry using a bubbletea TUI. It also observes the
// state machine and lists transitions and reported errors.
type TUISink struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUISink starts a bubbletea program and returns a TUISink. Quitting the
// UI interrupts the process.
func NewTUISink(cfg *config.Config) *TUISink {
	w := &TUISink{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Send implements Sink.
func (w *TUISink) Send(_ context.Context, p telemetry.Packet) error {
	line := fmt.Sprintf("%s[%s]%s %sframe=%d%s %shead=(%.3f,%.3f,%.3f)%s %sgaze=(%.2f,%.2f)%s %sgrip=%.2f/%.2f%s %scpu=%.1f%%%s %sgpu=%.1f%%%s %stemp=%.1fC%s %sbatt=%d%%%s",
		colorGray, p.Time().Format("15:04:05.000"), colorReset,
		colorBlue, p.FrameID, colorReset,
		colorCyan, p.HeadPosition.X, p.HeadPosition.Y, p.HeadPosition.Z, colorReset,
		colorMagenta, p.LeftEye.X, p.LeftEye.Y, colorReset,
		colorYellow, p.LeftHand.GripStrength, p.RightHand.GripStrength, colorReset,
		levelColor(p.CPUUsage, 70, 90), p.CPUUsage, colorReset,
		levelColor(p.GPUUsage, 70, 90), p.GPUUsage, colorReset,
		levelColor(p.Temperature, 50, 60), p.Temperature, colorReset,
		batteryColor(p.BatteryLevel), p.BatteryLevel, colorReset,
	)
	if p.LeftEye.Blinking {
		line += fmt.Sprintf(" %sblink%s", colorYellow, colorReset)
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(packetMsg{p})
	return nil
}

// WriteStatus implements StatusWriter.
func (w *TUISink) WriteStatus(row telemetry.StatusRow) error {
	w.program.Send(statusMsg{row})
	return nil
}

// StateChanged lists a state transition.
func (w *TUISink) StateChanged(from, to core.State, st core.Status) {
	w.program.Send(eventMsg{line: fmt.Sprintf("%s[%dms]%s %s%s -> %s%s",
		colorGray, st.UptimeMS, colorReset, stateColor(to.String()), from, to, colorReset)})
}

// ErrorReported lists a reported error.
func (w *TUISink) ErrorReported(kind core.ErrorKind, st core.Status) {
	w.program.Send(eventMsg{line: fmt.Sprintf("%s[%dms]%s %serror %s%s count=%d",
		colorGray, st.UptimeMS, colorReset, colorRed, kind, colorReset, st.ErrorCount)})
}

// SetAdminStatus updates the admin indicator.
func (w *TUISink) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUISink) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func stateColor(state string) string {
	switch state {
	case "ERROR":
		return colorRed
	case "INIT", "SLEEP":
		return colorYellow
	case "SHUTDOWN":
		return colorGray
	}
	return colorGreen
}

type tuiModel struct {
	cfg        *config.Config
	table      table.Model
	vp         viewport.Model
	eventVP    viewport.Model
	logs       []string
	events     []string
	latest     telemetry.Packet
	havePacket bool
	status     telemetry.StatusRow
	haveStatus bool
	admin      bool
	wrap       bool
	autoscroll bool
	help       bool
	header     string
	height     int
}

func newTUIModel(cfg *config.Config) tuiModel {
	if cfg == nil {
		cfg = config.Defaults()
	}
	cols := []table.Column{
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
	}
	rows := []table.Row{
		{"System Clock (Hz)", fmt.Sprintf("%d", cfg.SystemClockHz), "Sensor Rate (Hz)", fmt.Sprintf("%d", cfg.SensorRateHz)},
		{"Telemetry Rate (Hz)", fmt.Sprintf("%d", cfg.TelemetryRateHz), "Watchdog (ms)", watchdogLabel(cfg.Watchdog)},
		{"Power Save", fmt.Sprintf("%t", cfg.Power.SaveEnabled), "Sleep Level", fmt.Sprintf("%d", cfg.Power.SleepLevel)},
		{"Sensor Noise", fmt.Sprintf("%.3f", cfg.Sensors.NoiseLevel), "Self-test Fail", fmt.Sprintf("%.2f", cfg.Sensors.SelfTestFailureRate)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		eventVP:    viewport.New(0, 0),
		autoscroll: true,
	}
}

func watchdogLabel(w config.Watchdog) string {
	if !w.Enabled {
		return "off"
	}
	return fmt.Sprintf("%d", w.TimeoutMS)
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.eventVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.table.View()
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshEvents()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "h", "?", "esc":
				m.help = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.eventVP.GotoBottom()
			}
		case "h", "?":
			m.help = true
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case logMsg:
		m.logs = appendCapped(m.logs, msg.line)
		m.refreshViewport()
	case packetMsg:
		m.latest = msg.Packet
		m.havePacket = true
	case eventMsg:
		m.events = appendCapped(m.events, msg.line)
		m.updateViewportHeight()
		m.refreshEvents()
	case statusMsg:
		m.status = msg.StatusRow
		m.haveStatus = true
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func appendCapped(lines []string, line string) []string {
	lines = append(lines, line)
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	return lines
}

func (m *tuiModel) updateViewportHeight() {
	maxLines := int(float64(m.height) * maxSectionHeightPct)
	if maxLines < 1 {
		maxLines = 1
	}
	evLines := len(m.events)
	if evLines == 0 {
		evLines = 1
	}
	if evLines > maxLines {
		evLines = maxLines
	}
	m.eventVP.Height = evLines

	h := m.height - lipgloss.Height(m.header) - lipgloss.Height(m.renderBottom()) - (1 + m.eventVP.Height) - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
		m.eventVP.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshEvents() {
	content := "none"
	if len(m.events) > 0 {
		content = strings.Join(m.events, "\n")
	}
	m.eventVP.SetContent(content)
	if m.autoscroll {
		m.eventVP.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"State Events:",
		m.eventVP.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := fmt.Sprintf("%sSTATE%s waiting", colorBlue, colorReset)
	if m.haveStatus {
		state = fmt.Sprintf("%sSTATE%s %s%s%s %serrors=%d%s %sresets=%d%s %suptime=%s%s %ssent=%d%s %sfailed=%d%s %sdropped=%d%s %svbat=%.2fV%s",
			colorBlue, colorReset,
			stateColor(m.status.State), m.status.State, colorReset,
			colorRed, m.status.ErrorCount, colorReset,
			colorYellow, m.status.ResetCount, colorReset,
			colorCyan, (time.Duration(m.status.UptimeMS) * time.Millisecond).String(), colorReset,
			colorGreen, m.status.TelemetrySent, colorReset,
			colorRed, m.status.TelemetryFailed, colorReset,
			colorGray, m.status.TelemetryDropped, colorReset,
			colorMagenta, m.status.Voltage, colorReset)
	}
	line := fmt.Sprintf("%s | Admin %s | Wrap %s | Scroll %s | Help %s", state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.help))
	if m.havePacket {
		gauges := fmt.Sprintf("%sLATEST%s frame=%d %sbatt=%d%%%s %stemp=%.1fC%s",
			colorBlue, colorReset, m.latest.FrameID,
			batteryColor(m.latest.BatteryLevel), m.latest.BatteryLevel, colorReset,
			levelColor(m.latest.Temperature, 50, 60), m.latest.Temperature, colorReset)
		return gauges + "\n" + line
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for packet lines",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
