package physics

import "math"

// ThrowConfig shapes the launch velocity derived from hand motion.
type ThrowConfig struct {
	Gain             float64 `yaml:"throw_gain"`
	MinSpeed         float64 `yaml:"min_throw_speed"`
	MaxSpeed         float64 `yaml:"max_throw_speed"`
	StrongThreshold  float64 `yaml:"strong_throw_threshold"`
	StrongMultiplier float64 `yaml:"strong_throw_multiplier"`
}

func DefaultThrowConfig() ThrowConfig {
	return ThrowConfig{
		Gain:             20,
		MinSpeed:         0.025,
		MaxSpeed:         80,
		StrongThreshold:  79,
		StrongMultiplier: 1.25,
	}
}

// ThrowVelocity converts an averaged hand velocity into a launch velocity.
// The speed is clamped to [MinSpeed, MaxSpeed] before a strong throw is
// amplified. A motionless hand drops the object straight down.
func ThrowVelocity(avg Vec3, cfg ThrowConfig) (Vec3, bool) {
	speed := math.Min(math.Max(avg.Len()*cfg.Gain, cfg.MinSpeed), cfg.MaxSpeed)
	dir := avg.Normalized()
	if dir.IsZero() {
		dir = Down
	}
	strong := speed > cfg.StrongThreshold
	if strong {
		speed *= cfg.StrongMultiplier
	}
	return dir.Scale(speed), strong
}

// velocityHistory is a ring buffer of per-step hand velocities.
type velocityHistory struct {
	samples []Vec3
	next    int
	prev    Vec3
	average Vec3
}

func newVelocityHistory(frames int) *velocityHistory {
	if frames <= 0 {
		frames = 16
	}
	return &velocityHistory{samples: make([]Vec3, frames)}
}

// reset clears the buffer and restarts sampling from the given hand position.
func (h *velocityHistory) reset(from Vec3) {
	for i := range h.samples {
		h.samples[i] = Zero
	}
	h.next = 0
	h.prev = from
	h.average = Zero
}

// sample records the hand velocity over one step of dt seconds.
func (h *velocityHistory) sample(hand Vec3, dt float64) {
	if dt <= 0 {
		return
	}
	h.samples[h.next] = hand.Sub(h.prev).Scale(1 / dt)
	h.next = (h.next + 1) % len(h.samples)
	h.prev = hand

	var total Vec3
	for _, v := range h.samples {
		total = total.Add(v)
	}
	h.average = total.Scale(1 / float64(len(h.samples)))
}
