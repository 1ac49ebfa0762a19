// Telemetry packet and status row types
package telemetry

import (
	"os"
	"time"
)

// Vec3 is a point or vector in headset space (metres, m/s², rad/s).
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Quaternion is an orientation; identity is {0, 0, 0, 1}.
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Identity is the zero rotation.
var Identity = Quaternion{W: 1}

// Eye holds one eye-tracking record. Gaze is normalized to 0..1.
type Eye struct {
	X             float64
	Y             float64
	PupilDiameter float64 // mm
	Blinking      bool
}

// Hand holds one hand-tracking record.
type Hand struct {
	Position     Vec3
	Orientation  Quaternion
	GripStrength float64 // 0..1
	Tracking     bool
}

// Packet is one telemetry snapshot, assembled once per sensor tick. It is a
// value type; sinks receive a copy and must not keep it past Send.
type Packet struct {
	TimestampUS uint64
	FrameID     uint32

	HeadPosition        Vec3
	HeadOrientation     Quaternion
	HeadAcceleration    Vec3
	HeadAngularVelocity Vec3

	LeftEye  Eye
	RightEye Eye

	LeftHand  Hand
	RightHand Hand

	CPUUsage     float64 // percent
	GPUUsage     float64 // percent
	Temperature  float64 // °C
	BatteryLevel uint8   // percent
	Connected    bool
}

// Time converts the packet timestamp to a time.Time.
func (p Packet) Time() time.Time {
	return time.UnixMicro(int64(p.TimestampUS)).UTC()
}

// PacketTableName holds the table name used when writing packets to
// GreptimeDB. It defaults to "vr_telemetry" and can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var PacketTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "vr_telemetry"
}()
