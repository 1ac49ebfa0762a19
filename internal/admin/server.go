// Package admin exposes the headset status and control surface over HTTP.
package admin

import (
	"context"
	"errors"
	"strconv"

	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Controller is the part of the scheduler the admin server drives.
type Controller interface {
	Status() core.Status
	CurrentTick() uint64
	Latest() telemetry.Packet
	History() []float64
	Stats() core.Stats
	TelemetryRate() uint32
	SetTelemetryRate(hz uint32) error
	Reset(ctx context.Context) error
	RequestSleep()
	WakeUp()
	WatchdogDisable()
	WatchdogArmed() bool
	Voltage() float64
	Current() float64
	Report(kind core.ErrorKind) core.Status
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State              string     `json:"state"`
	Tick               uint64     `json:"tick"`
	UptimeMS           uint64     `json:"uptime_ms"`
	LastWatchdogFeed   uint64     `json:"last_watchdog_feed"`
	ErrorCount         uint32     `json:"error_count"`
	ResetCount         uint32     `json:"reset_count"`
	SensorsInitialized bool       `json:"sensors_initialized"`
	CommunicationReady bool       `json:"communication_ready"`
	TelemetryRateHz    uint32     `json:"telemetry_rate_hz"`
	WatchdogArmed      bool       `json:"watchdog_armed"`
	Voltage            float64    `json:"voltage"`
	Current            float64    `json:"current"`
	Stats              core.Stats `json:"stats"`
}

type Server struct {
	ctl Controller
	app *fiber.App
	log *zap.Logger
}

func NewServer(ctl Controller, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{ctl: ctl, log: log}
	app := fiber.New(fiber.Config{
		AppName:               "vrheadset-sim admin",
		DisableStartupMessage: true,
	})
	app.Get("/healthz", s.handleHealth)
	app.Get("/status", s.handleStatus)
	app.Get("/packet", s.handlePacket)
	app.Get("/history", s.handleHistory)
	app.Post("/reset", s.handleReset)
	app.Post("/sleep", s.handleSleep)
	app.Post("/wake", s.handleWake)
	app.Post("/telemetry-rate", s.handleTelemetryRate)
	app.Post("/watchdog/disable", s.handleWatchdogDisable)
	app.Post("/errors/:kind", s.handleReport)
	s.app = app
	return s
}

// App returns the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("admin server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) status() StatusResponse {
	st := s.ctl.Status()
	return StatusResponse{
		State:              st.State.String(),
		Tick:               s.ctl.CurrentTick(),
		UptimeMS:           st.UptimeMS,
		LastWatchdogFeed:   st.LastWatchdogFeed,
		ErrorCount:         st.ErrorCount,
		ResetCount:         st.ResetCount,
		SensorsInitialized: st.SensorsInitialized,
		CommunicationReady: st.CommunicationReady,
		TelemetryRateHz:    s.ctl.TelemetryRate(),
		WatchdogArmed:      s.ctl.WatchdogArmed(),
		Voltage:            s.ctl.Voltage(),
		Current:            s.ctl.Current(),
		Stats:              s.ctl.Stats(),
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.ctl.Status().State
	if st == core.StateError || st == core.StateShutdown {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "state": st.String()})
	}
	return c.JSON(fiber.Map{"ok": true, "state": st.String()})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handlePacket(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Latest())
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"head_x": s.ctl.History()})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	ctx := logging.NewContext(c.UserContext(), s.log)
	if err := s.ctl.Reset(ctx); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, core.ErrInvalidTransition) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error(), "status": s.status()})
	}
	return c.JSON(s.status())
}

func (s *Server) handleSleep(c *fiber.Ctx) error {
	s.ctl.RequestSleep()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleWake(c *fiber.Ctx) error {
	s.ctl.WakeUp()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTelemetryRate(c *fiber.Ctx) error {
	hz, err := strconv.ParseUint(c.Query("hz"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hz must be a positive integer"})
	}
	if err := s.ctl.SetTelemetryRate(uint32(hz)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"telemetry_rate_hz": s.ctl.TelemetryRate()})
}

func (s *Server) handleWatchdogDisable(c *fiber.Ctx) error {
	s.ctl.WatchdogDisable()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	kind, err := core.ParseErrorKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	st := s.ctl.Report(kind)
	s.log.Warn("error injected via admin", zap.Stringer("kind", kind), zap.Uint32("error_count", st.ErrorCount))
	return c.JSON(s.status())
}
