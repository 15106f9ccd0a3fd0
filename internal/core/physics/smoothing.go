package physics

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// smoother eases the displayed position of a remote-owned object toward the
// last replicated position. The tween only yields the eased fraction; the
// position itself is interpolated in float64.
type smoother struct {
	duration float32
	from, to Vec3
	current  Vec3
	tween    *gween.Tween
}

func newSmoother(d time.Duration, at Vec3) *smoother {
	return &smoother{duration: float32(d.Seconds()), current: at}
}

func (s *smoother) retarget(to Vec3) {
	if s.duration <= 0 {
		s.snap(to)
		return
	}
	s.from, s.to = s.current, to
	s.tween = gween.New(0, 1, s.duration, ease.OutQuad)
}

func (s *smoother) snap(to Vec3) {
	s.current = to
	s.tween = nil
}

func (s *smoother) update(dt time.Duration) Vec3 {
	if s.tween == nil {
		return s.current
	}
	f, done := s.tween.Update(float32(dt.Seconds()))
	if done {
		s.snap(s.to)
		return s.current
	}
	s.current = s.from.Add(s.to.Sub(s.from).Scale(float64(f)))
	return s.current
}
