package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAfterFiresAtDeadline(t *testing.T) {
	s := New(20 * time.Millisecond)
	fired := 0
	s.After(200*time.Millisecond, func() { fired++ })

	for i := 0; i < 9; i++ {
		s.Step()
	}
	require.Equal(t, 0, fired, "timer must not fire before its deadline")

	s.Step()
	require.Equal(t, 1, fired)
	require.Equal(t, 200*time.Millisecond, s.Now())

	s.Step()
	require.Equal(t, 1, fired)
}

func TestAfterRoundsUpToNextStep(t *testing.T) {
	s := New(20 * time.Millisecond)
	var firedAt time.Duration
	s.After(25*time.Millisecond, func() { firedAt = s.Now() })

	s.Step()
	s.Step()
	require.Equal(t, 40*time.Millisecond, firedAt)
}

func TestTimerStop(t *testing.T) {
	s := New(10 * time.Millisecond)
	fired := false
	timer := s.After(10*time.Millisecond, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	s.Step()
	require.False(t, fired)
	require.Equal(t, 0, s.Pending())
}

func TestNextFixedStep(t *testing.T) {
	s := New(10 * time.Millisecond)
	var order []string

	s.NextFixedStep(func() {
		order = append(order, "first")
		s.NextFixedStep(func() { order = append(order, "second") })
	})

	s.Step()
	require.Equal(t, []string{"first"}, order)

	s.Step()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTimersRunInDeadlineOrder(t *testing.T) {
	s := New(50 * time.Millisecond)
	var order []int
	s.After(30*time.Millisecond, func() { order = append(order, 2) })
	s.After(10*time.Millisecond, func() { order = append(order, 1) })
	s.After(30*time.Millisecond, func() { order = append(order, 3) })

	s.Step()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestFromRate(t *testing.T) {
	require.Equal(t, time.Second/72, FromRate(72).FixedStep())
	require.Equal(t, time.Second/50, FromRate(0).FixedStep())
}
