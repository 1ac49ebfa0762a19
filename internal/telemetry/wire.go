package telemetry

import (
	"encoding/json"
	"strconv"
)

// f6 renders with six decimals (geometry, orientation, gaze, grip).
type f6 float64

func (f f6) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', 6, 64), nil
}

// f2 renders with two decimals (percentages, temperature).
type f2 float64

func (f f2) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', 2, 64), nil
}

type wireVec3 struct {
	X f6 `json:"x"`
	Y f6 `json:"y"`
	Z f6 `json:"z"`
}

type wireQuat struct {
	X f6 `json:"x"`
	Y f6 `json:"y"`
	Z f6 `json:"z"`
	W f6 `json:"w"`
}

type wireEye struct {
	X             f6   `json:"x"`
	Y             f6   `json:"y"`
	PupilDiameter f6   `json:"pupil_diameter"`
	IsBlinking    bool `json:"is_blinking"`
}

type wireHand struct {
	X            f6       `json:"x"`
	Y            f6       `json:"y"`
	Z            f6       `json:"z"`
	Orientation  wireQuat `json:"orientation"`
	GripStrength f6       `json:"grip_strength"`
	IsTracking   bool     `json:"is_tracking"`
}

type wirePacket struct {
	TimestampUS         uint64   `json:"timestamp_us"`
	FrameID             uint32   `json:"frame_id"`
	HeadPosition        wireVec3 `json:"head_position"`
	HeadOrientation     wireQuat `json:"head_orientation"`
	HeadAcceleration    wireVec3 `json:"head_acceleration"`
	HeadAngularVelocity wireVec3 `json:"head_angular_velocity"`
	LeftEye             wireEye  `json:"left_eye"`
	RightEye            wireEye  `json:"right_eye"`
	LeftHand            wireHand `json:"left_hand"`
	RightHand           wireHand `json:"right_hand"`
	CPUUsage            f2       `json:"cpu_usage"`
	GPUUsage            f2       `json:"gpu_usage"`
	Temperature         f2       `json:"temperature"`
	BatteryLevel        uint8    `json:"battery_level"`
	IsConnected         bool     `json:"is_connected"`
}

func toWireVec(v Vec3) wireVec3 { return wireVec3{f6(v.X), f6(v.Y), f6(v.Z)} }
func (w wireVec3) vec() Vec3    { return Vec3{float64(w.X), float64(w.Y), float64(w.Z)} }

func toWireQuat(q Quaternion) wireQuat { return wireQuat{f6(q.X), f6(q.Y), f6(q.Z), f6(q.W)} }
func (w wireQuat) quat() Quaternion {
	return Quaternion{float64(w.X), float64(w.Y), float64(w.Z), float64(w.W)}
}

func toWireEye(e Eye) wireEye {
	return wireEye{X: f6(e.X), Y: f6(e.Y), PupilDiameter: f6(e.PupilDiameter), IsBlinking: e.Blinking}
}

func (w wireEye) eye() Eye {
	return Eye{X: float64(w.X), Y: float64(w.Y), PupilDiameter: float64(w.PupilDiameter), Blinking: w.IsBlinking}
}

func toWireHand(h Hand) wireHand {
	return wireHand{
		X:            f6(h.Position.X),
		Y:            f6(h.Position.Y),
		Z:            f6(h.Position.Z),
		Orientation:  toWireQuat(h.Orientation),
		GripStrength: f6(h.GripStrength),
		IsTracking:   h.Tracking,
	}
}

func (w wireHand) hand() Hand {
	return Hand{
		Position:     Vec3{float64(w.X), float64(w.Y), float64(w.Z)},
		Orientation:  w.Orientation.quat(),
		GripStrength: float64(w.GripStrength),
		Tracking:     w.IsTracking,
	}
}

// MarshalJSON encodes the packet in the broker wire format.
func (p Packet) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePacket{
		TimestampUS:         p.TimestampUS,
		FrameID:             p.FrameID,
		HeadPosition:        toWireVec(p.HeadPosition),
		HeadOrientation:     toWireQuat(p.HeadOrientation),
		HeadAcceleration:    toWireVec(p.HeadAcceleration),
		HeadAngularVelocity: toWireVec(p.HeadAngularVelocity),
		LeftEye:             toWireEye(p.LeftEye),
		RightEye:            toWireEye(p.RightEye),
		LeftHand:            toWireHand(p.LeftHand),
		RightHand:           toWireHand(p.RightHand),
		CPUUsage:            f2(p.CPUUsage),
		GPUUsage:            f2(p.GPUUsage),
		Temperature:         f2(p.Temperature),
		BatteryLevel:        p.BatteryLevel,
		IsConnected:         p.Connected,
	})
}

// UnmarshalJSON decodes the broker wire format.
func (p *Packet) UnmarshalJSON(data []byte) error {
	var w wirePacket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Packet{
		TimestampUS:         w.TimestampUS,
		FrameID:             w.FrameID,
		HeadPosition:        w.HeadPosition.vec(),
		HeadOrientation:     w.HeadOrientation.quat(),
		HeadAcceleration:    w.HeadAcceleration.vec(),
		HeadAngularVelocity: w.HeadAngularVelocity.vec(),
		LeftEye:             w.LeftEye.eye(),
		RightEye:            w.RightEye.eye(),
		LeftHand:            w.LeftHand.hand(),
		RightHand:           w.RightHand.hand(),
		CPUUsage:            float64(w.CPUUsage),
		GPUUsage:            float64(w.GPUUsage),
		Temperature:         float64(w.Temperature),
		BatteryLevel:        w.BatteryLevel,
		Connected:           w.IsConnected,
	}
	return nil
}
