package telemetry

// Assemble builds the packet for one sensor sample stamped at timestampUS.
func Assemble(s Sample, timestampUS uint64) Packet {
	return Packet{
		TimestampUS:         timestampUS,
		FrameID:             s.FrameID,
		HeadPosition:        s.Head.Position,
		HeadOrientation:     s.Head.Orientation,
		HeadAcceleration:    s.Head.Acceleration,
		HeadAngularVelocity: s.Head.AngularVelocity,
		LeftEye:             s.LeftEye,
		RightEye:            s.RightEye,
		LeftHand:            s.LeftHand,
		RightHand:           s.RightHand,
		CPUUsage:            s.Metrics.CPUUsage,
		GPUUsage:            s.Metrics.GPUUsage,
		Temperature:         s.Metrics.Temperature,
		BatteryLevel:        s.Metrics.BatteryLevel,
		Connected:           s.Metrics.Connected,
	}
}

// InitialPacket is the power-on packet: head at average standing height,
// identity orientation, full battery.
func InitialPacket() Packet {
	return Packet{
		HeadPosition:    Vec3{Y: 1.7},
		HeadOrientation: Identity,
		LeftHand:        Hand{Orientation: Identity},
		RightHand:       Hand{Orientation: Identity},
		BatteryLevel:    100,
		Connected:       true,
	}
}
