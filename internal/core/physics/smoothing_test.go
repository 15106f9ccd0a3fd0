package physics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSmootherKeepsFullPrecision(t *testing.T) {
	target := Vec3{X: 123456.789012, Y: 1.000000001, Z: -0.3}
	s := newSmoother(100*time.Millisecond, Zero)
	s.retarget(target)

	mid := s.update(50 * time.Millisecond)
	require.Greater(t, mid.X, 0.0)
	require.Less(t, mid.X, target.X)
	require.InDelta(t, mid.X/target.X, mid.Z/target.Z, 1e-12, "moves along the segment")

	for i := 0; i < 10; i++ {
		s.update(10 * time.Millisecond)
	}
	require.Equal(t, target, s.update(10*time.Millisecond))
}

func TestSmootherSnapsWithoutDuration(t *testing.T) {
	s := newSmoother(0, Zero)
	s.retarget(Vec3{X: 2})
	require.Equal(t, Vec3{X: 2}, s.update(time.Millisecond))
}
