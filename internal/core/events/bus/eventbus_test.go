package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testEvent struct {
	kind string
	n    int
}

func (e testEvent) Type() string { return e.kind }

type testObserver struct {
	delivered int
	lastErr   error
}

func (o *testObserver) OnDelivered(_ string, handlers int, err error) {
	o.delivered += handlers
	o.lastErr = err
}

func TestPublishInSubscriptionOrder(t *testing.T) {
	b := New()
	var got []int
	b.Subscribe("score", func(e Event) error { got = append(got, e.(testEvent).n); return nil })
	b.Subscribe("score", func(e Event) error { got = append(got, e.(testEvent).n*10); return nil })
	b.Subscribe("other", func(Event) error { t.Fatal("wrong type delivered"); return nil })

	require.NoError(t, b.Publish(testEvent{kind: "score", n: 2}))
	require.Equal(t, []int{2, 20}, got)
}

func TestPublishJoinsHandlerErrors(t *testing.T) {
	b := New()
	first, second := errors.New("first"), errors.New("second")
	b.Subscribe("x", func(Event) error { return first })
	b.Subscribe("x", func(Event) error { return nil })
	b.Subscribe("x", func(Event) error { return second })

	err := b.Publish(testEvent{kind: "x"})
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
}

func TestCancel(t *testing.T) {
	b := New()
	calls := 0
	sub := b.Subscribe("x", func(Event) error { calls++; return nil })
	require.True(t, sub.IsActive())
	require.Equal(t, 1, b.Subscribers("x"))

	b.Unsubscribe(sub)
	sub.Cancel()
	b.Unsubscribe(nil)
	require.False(t, sub.IsActive())
	require.Equal(t, 0, b.Subscribers("x"))

	require.NoError(t, b.Publish(testEvent{kind: "x"}))
	require.Zero(t, calls)
}

func TestCancelDuringDelivery(t *testing.T) {
	b := New()
	calls := 0
	var second Subscription
	b.Subscribe("x", func(Event) error { second.Cancel(); return nil })
	second = b.Subscribe("x", func(Event) error { calls++; return nil })

	require.NoError(t, b.Publish(testEvent{kind: "x"}))
	require.Zero(t, calls, "a handler cancelled earlier in the same delivery is skipped")
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	b.Subscribe("e", func(Event) error { return nil })
	require.NoError(t, b.Publish(testEvent{kind: "e"}))
	require.Zero(t, b.Metrics().Published)

	obs := &testObserver{}
	b.AddObserver(obs)
	require.NoError(t, b.Publish(testEvent{kind: "e"}))
	require.Equal(t, uint64(1), b.Metrics().Published)
	require.Equal(t, uint64(1), b.Metrics().DeliveredHandlers)
	require.Equal(t, 1, obs.delivered)

	b.RemoveObserver(obs)
	require.NoError(t, b.Publish(testEvent{kind: "e"}))
	require.Equal(t, 1, obs.delivered)
}
