package telemetry

import (
	"math"
	"math/rand"
)

// DefaultDelta is the simulation time advanced per sensor sample (1 ms).
const DefaultDelta = 0.001

// HeadPose is the synthesized head state.
type HeadPose struct {
	Position        Vec3
	Orientation     Quaternion
	Acceleration    Vec3
	AngularVelocity Vec3
}

// Metrics holds synthesized system metrics.
type Metrics struct {
	CPUUsage     float64
	GPUUsage     float64
	Temperature  float64
	BatteryLevel uint8
	Connected    bool
}

// Sample is one synthesizer output, before timestamping.
type Sample struct {
	Time      float64 // simulation seconds
	FrameID   uint32
	Head      HeadPose
	LeftEye   Eye
	RightEye  Eye
	LeftHand  Hand
	RightHand Hand
	Metrics   Metrics
}

// Synthesizer generates synthetic sensor samples. It carries the simulation
// clock, the frame counter and the gyro bias random walk. Not safe for
// concurrent use; the scheduler owns it.
type Synthesizer struct {
	delta   float64
	samples uint64
	frame   uint32
	noise   float64
	bias    Vec3
	rng     *rand.Rand
}

// NewSynthesizer creates a synthesizer advancing delta seconds per sample.
// noise > 0 perturbs head position and acceleration and drives a gyro bias
// walk using rng. A nil rng gets a fixed seed.
func NewSynthesizer(delta float64, rng *rand.Rand, noise float64) *Synthesizer {
	if delta < 0 || math.IsNaN(delta) {
		panic("telemetry: negative synthesizer delta")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Synthesizer{delta: delta, rng: rng, noise: noise}
}

// Time returns the current simulation time in seconds.
func (s *Synthesizer) Time() float64 {
	return float64(s.samples) * s.delta
}

// Next advances the simulation clock by one delta and synthesizes a sample.
func (s *Synthesizer) Next() Sample {
	s.samples++
	t := s.Time()

	head := Head(t)
	if s.noise > 0 {
		head.Position.X = AddNoise(s.rng, head.Position.X, s.noise)
		head.Position.Y = AddNoise(s.rng, head.Position.Y, s.noise)
		head.Position.Z = AddNoise(s.rng, head.Position.Z, s.noise)
		head.Acceleration.X = AddNoise(s.rng, head.Acceleration.X, s.noise)
		head.Acceleration.Y = AddNoise(s.rng, head.Acceleration.Y, s.noise)
		head.Acceleration.Z = AddNoise(s.rng, head.Acceleration.Z, s.noise)
		s.bias.X = RandomWalk(s.rng, s.bias.X, s.noise*0.01)
		s.bias.Y = RandomWalk(s.rng, s.bias.Y, s.noise*0.01)
		s.bias.Z = RandomWalk(s.rng, s.bias.Z, s.noise*0.01)
		head.AngularVelocity.X += s.bias.X
		head.AngularVelocity.Y += s.bias.Y
		head.AngularVelocity.Z += s.bias.Z
	}
	left, right := Eyes(t)
	lh, rh := Hands(t)

	out := Sample{
		Time:      t,
		FrameID:   s.frame,
		Head:      head,
		LeftEye:   left,
		RightEye:  right,
		LeftHand:  lh,
		RightHand: rh,
		Metrics:   SystemMetrics(t),
	}
	s.frame++
	return out
}

// Head returns the head pose at simulation time t. Acceleration is the second
// derivative of position; angular velocity is 2·dq/dt of the vector part,
// the small-angle rate of the orientation curve.
func Head(t float64) HeadPose {
	ox := 0.1 * math.Sin(0.2*t)
	oy := 0.2 * math.Sin(0.15*t)
	oz := 0.05 * math.Sin(0.1*t)
	return HeadPose{
		Position: Vec3{
			X: 0.1 * math.Sin(0.5*t),
			Y: 1.7 + 0.02*math.Sin(0.3*t),
			Z: 0.1 * math.Cos(0.4*t),
		},
		Orientation: Quaternion{
			X: ox,
			Y: oy,
			Z: oz,
			W: math.Sqrt(math.Max(0, 1-(ox*ox+oy*oy+oz*oz))),
		},
		Acceleration: Vec3{
			X: -0.025 * math.Sin(0.5*t),
			Y: -0.0018 * math.Sin(0.3*t),
			Z: -0.016 * math.Cos(0.4*t),
		},
		AngularVelocity: Vec3{
			X: 0.04 * math.Cos(0.2*t),
			Y: 0.06 * math.Cos(0.15*t),
			Z: 0.01 * math.Cos(0.1*t),
		},
	}
}

// Eyes returns left and right eye records. Both eyes blink together for the
// last 100 ms of every 3 s window.
func Eyes(t float64) (Eye, Eye) {
	blink := math.Mod(t, 3.0) > 2.9
	left := Eye{
		X:             0.5 + 0.1*math.Sin(2.0*t),
		Y:             0.5 + 0.1*math.Cos(1.5*t),
		PupilDiameter: 3.5 + 0.5*math.Sin(0.5*t),
		Blinking:      blink,
	}
	right := Eye{
		X:             0.5 + 0.1*math.Sin(2.1*t),
		Y:             0.5 + 0.1*math.Cos(1.6*t),
		PupilDiameter: 3.5 + 0.5*math.Sin(0.51*t),
		Blinking:      blink,
	}
	return left, right
}

// Hands returns left and right hand records. Hands are always tracked.
func Hands(t float64) (Hand, Hand) {
	y := 1.2 + 0.3*math.Cos(0.7*t)
	z := 0.1 + 0.15*math.Sin(1.2*t)
	grip := 0.5 + 0.3*math.Sin(0.4*t)
	left := Hand{
		Position:     Vec3{X: 0.3 + 0.2*math.Sin(t), Y: y, Z: z},
		Orientation:  Identity,
		GripStrength: grip,
		Tracking:     true,
	}
	right := Hand{
		Position:     Vec3{X: -0.3 + 0.2*math.Sin(1.1*t), Y: y, Z: z},
		Orientation:  Identity,
		GripStrength: grip,
		Tracking:     true,
	}
	return left, right
}

// SystemMetrics returns CPU, GPU, temperature, battery and link state at t.
// Battery drains 0.1 %/s of simulation time. The link drops for 2 s of every
// minute once t passes 300 s.
func SystemMetrics(t float64) Metrics {
	cpu := 45.0 + 10.0*math.Sin(0.8*t)
	gpu := 60.0 + 15.0*math.Cos(0.6*t)
	return Metrics{
		CPUUsage:     cpu,
		GPUUsage:     gpu,
		Temperature:  35.0 + (cpu+gpu)*0.1,
		BatteryLevel: battery(t),
		Connected:    t < 300 || math.Mod(t, 60.0) < 58.0,
	}
}

func battery(t float64) uint8 {
	level := 100.0 - t*0.1
	switch {
	case level <= 0:
		return 0
	case level >= 100:
		return 100
	}
	return uint8(level)
}

// RandomWalk moves last by a uniform step in [-maxChange, maxChange).
func RandomWalk(rng *rand.Rand, last, maxChange float64) float64 {
	return last + (rng.Float64()-0.5)*2*maxChange
}

// AddNoise perturbs v by uniform noise in [-level, level).
func AddNoise(rng *rand.Rand, v, level float64) float64 {
	return v + (rng.Float64()-0.5)*2*level
}
