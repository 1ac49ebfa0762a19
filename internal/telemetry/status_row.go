package telemetry

import "time"

// StatusRow captures the periodic core status line.
type StatusRow struct {
	DeviceID         string    `json:"device_id"`
	Tick             uint64    `json:"tick"`
	State            string    `json:"state"`
	ErrorCount       uint32    `json:"error_count"`
	ResetCount       uint32    `json:"reset_count"`
	UptimeMS         uint64    `json:"uptime_ms"`
	SensorSamples    uint64    `json:"sensor_samples"`
	TelemetrySent    uint64    `json:"telemetry_sent"`
	TelemetryFailed  uint64    `json:"telemetry_failed"`
	TelemetryDropped uint64    `json:"telemetry_dropped"`
	WatchdogFeeds    uint64    `json:"watchdog_feeds"`
	Voltage          float64   `json:"voltage"`
	Current          float64   `json:"current"`
	Timestamp        time.Time `json:"ts"`
}
