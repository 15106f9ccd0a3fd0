package ownership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/courtsync/internal/core/clock"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
)

type flags struct {
	spawnLocked bool
	resetting   bool
}

func (f *flags) SpawnLocked() bool     { return f.spawnLocked }
func (f *flags) ResetInProgress() bool { return f.resetting }

type node struct {
	ep    *transport.Endpoint
	rpc   *protocol.Dispatcher
	sched *clock.Scheduler
	coord *Coordinator
	flags *flags

	gained, lost int
	states       []State
}

func newNode(t *testing.T, ep *transport.Endpoint, logger log.Log) *node {
	t.Helper()
	n := &node{
		ep:    ep,
		rpc:   protocol.NewDispatcher(ep, logger),
		sched: clock.New(10 * time.Millisecond),
		flags: &flags{},
	}
	n.coord = New("ball", n.rpc, n.sched, ep, DefaultOptions(), logger)
	n.coord.SetFlags(n.flags)
	n.coord.OnGainedOwnership(func() { n.gained++ })
	n.coord.OnLostOwnership(func() { n.lost++ })
	n.coord.OnTransition(func(tr Transition) { n.states = append(n.states, tr.To) })
	require.NoError(t, n.coord.Spawn())
	return n
}

func (n *node) pump() {
	for {
		select {
		case env := <-n.ep.Inbox():
			_ = n.rpc.Handle(env)
		default:
			return
		}
	}
}

func pumpAll(nodes ...*node) {
	for i := 0; i < 3; i++ {
		for _, n := range nodes {
			n.pump()
		}
	}
}

func TestCollisionExchangeGrant(t *testing.T) {
	hub := transport.NewHub(20 * time.Millisecond)
	host := newNode(t, hub.Host(), log.NewNop())
	a := newNode(t, hub.Join(), log.NewNop())
	b := newNode(t, hub.Join(), log.NewNop())

	// A owns the object.
	require.NoError(t, host.coord.Grant(a.ep.LocalID()))
	pumpAll(host, a, b)
	require.True(t, a.coord.IsOwner())
	require.Equal(t, 1, a.gained)
	for _, n := range []*node{host, a, b} {
		require.Equal(t, a.ep.LocalID(), n.coord.Owner())
	}

	// B's object struck it while moving faster, so B asks for it.
	require.False(t, b.coord.TransferBlocked(ReasonCollision))
	require.NoError(t, b.coord.RequestOwnership(ReasonCollision))
	require.Equal(t, TransferRequested, b.coord.State())
	require.True(t, b.coord.TransferBlocked(ReasonCollision), "a second request waits for the first")

	pumpAll(host, a, b)
	require.True(t, b.coord.IsOwner())
	require.False(t, b.coord.Pending())
	require.Equal(t, Idle, b.coord.State())
	require.Equal(t, 1, b.gained)
	require.Equal(t, 1, a.lost)
	require.Equal(t, []State{TransferRequested, Idle}, b.states)

	owners := 0
	for _, n := range []*node{host, a, b} {
		if n.coord.IsOwner() {
			owners++
		}
	}
	require.Equal(t, 1, owners)
}

func TestSpawnLockedRequestRejected(t *testing.T) {
	hub := transport.NewHub(0)
	host := newNode(t, hub.Host(), log.NewNop())
	client := newNode(t, hub.Join(), log.NewNop())
	client.flags.spawnLocked = true

	require.True(t, client.coord.TransferBlocked(ReasonCollision))
	require.ErrorIs(t, client.coord.RequestOwnership(ReasonCollision), ErrTransferBlocked)
	require.Equal(t, Idle, client.coord.State())
	require.False(t, client.coord.Pending())
	require.Empty(t, client.states)
	require.Equal(t, 0, client.sched.Pending())

	pumpAll(host, client)
	require.True(t, host.coord.IsOwner())
}

func TestTransferBlockedGuards(t *testing.T) {
	hub := transport.NewHub(0)
	host := newNode(t, hub.Host(), log.NewNop())
	client := newNode(t, hub.Join(), log.NewNop())

	require.True(t, host.coord.TransferBlocked(ReasonCollision), "owner never requests")
	require.True(t, host.coord.TransferBlocked(ReasonGrab))

	client.flags.resetting = true
	require.True(t, client.coord.TransferBlocked(ReasonGrab))
	client.flags.resetting = false

	client.coord.SetCollisionExchange(false)
	require.True(t, client.coord.TransferBlocked(ReasonCollision))
	require.False(t, client.coord.TransferBlocked(ReasonGrab))
	client.coord.SetCollisionExchange(true)

	client.flags.spawnLocked = true
	require.False(t, client.coord.TransferBlocked(ReasonGrab), "a grab unlocks the object")
	client.flags.spawnLocked = false

	client.coord.BeginInteraction()
	require.True(t, client.coord.TransferBlocked(ReasonCollision))
	require.False(t, client.coord.TransferBlocked(ReasonGrab))
	client.coord.EndInteraction()

	client.coord.Despawn()
	require.True(t, client.coord.TransferBlocked(ReasonGrab))
}

func TestTimeoutBounds(t *testing.T) {
	tests := []struct {
		name string
		rtt  time.Duration
		want time.Duration
	}{
		{"floor", 0, 25 * time.Millisecond},
		{"double rtt", 40 * time.Millisecond, 80 * time.Millisecond},
		{"ceiling", 4 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := transport.NewHub(tt.rtt)
			hub.Host()
			client := newNode(t, hub.Join(), log.NewNop())
			require.Equal(t, tt.want, client.coord.Timeout())
		})
	}
}

func TestUnansweredRequestExpires(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hub := transport.NewHub(40 * time.Millisecond)
	host := newNode(t, hub.Host(), log.NewNop())
	client := newNode(t, hub.Join(), log.NewWithCore(core))

	// The host never hears about the request.
	client.ep.SetPartitioned(true)
	require.NoError(t, client.coord.RequestOwnership(ReasonCollision))
	require.True(t, client.coord.Pending())

	// 80ms at 10ms steps: still pending after the 7th step, abandoned on the 8th.
	for i := 0; i < 7; i++ {
		client.sched.Step()
	}
	require.True(t, client.coord.Pending())
	require.Equal(t, TransferRequested, client.coord.State())

	client.sched.Step()
	require.False(t, client.coord.Pending())
	require.Equal(t, Idle, client.coord.State())
	require.Equal(t, 1, logs.FilterMessage("Ownership request timed out").Len())

	// No retry was scheduled.
	require.Equal(t, 0, client.sched.Pending())
	client.ep.SetPartitioned(false)
	pumpAll(host, client)
	require.True(t, host.coord.IsOwner())
}

func TestLastRequestWins(t *testing.T) {
	hub := transport.NewHub(0)
	host := newNode(t, hub.Host(), log.NewNop())
	a := newNode(t, hub.Join(), log.NewNop())
	b := newNode(t, hub.Join(), log.NewNop())

	require.NoError(t, a.coord.RequestOwnership(ReasonCollision))
	require.NoError(t, b.coord.RequestOwnership(ReasonCollision))

	// The host serves both in arrival order.
	host.pump()
	require.Equal(t, b.ep.LocalID(), host.coord.Owner())

	pumpAll(host, a, b)
	require.True(t, b.coord.IsOwner())
	require.False(t, a.coord.IsOwner())
	require.Equal(t, 1, a.gained)
	require.Equal(t, 1, a.lost)
}

func TestGrabRequestEntersInteracting(t *testing.T) {
	hub := transport.NewHub(0)
	host := newNode(t, hub.Host(), log.NewNop())
	client := newNode(t, hub.Join(), log.NewNop())
	client.flags.spawnLocked = true

	require.False(t, client.coord.BeginInteraction())
	require.NoError(t, client.coord.RequestOwnership(ReasonGrab))
	pumpAll(host, client)
	require.True(t, client.coord.IsOwner())
	require.Equal(t, Interacting, client.coord.State())

	client.coord.EndInteraction()
	require.Equal(t, Idle, client.coord.State())
}

func TestHostRequestResolvesLocally(t *testing.T) {
	hub := transport.NewHub(0)
	host := newNode(t, hub.Host(), log.NewNop())
	client := newNode(t, hub.Join(), log.NewNop())

	require.NoError(t, host.coord.Grant(client.ep.LocalID()))
	pumpAll(host, client)
	require.Equal(t, 1, host.lost)

	require.NoError(t, host.coord.RequestOwnership(ReasonCollision))
	require.True(t, host.coord.IsOwner())
	require.False(t, host.coord.Pending())
	require.Equal(t, 0, host.sched.Pending())

	pumpAll(host, client)
	require.Equal(t, 1, client.lost)
	require.ErrorIs(t, client.coord.Grant(client.ep.LocalID()), ErrNotServer)
}
