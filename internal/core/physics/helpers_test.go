package physics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/courtsync/internal/core/clock"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/ownership"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/team"
)

const step = 10 * time.Millisecond

type recordingRules struct {
	tags         []string
	bounceResets int
	colorResets  int
}

func (r *recordingRules) HandleCollision(tag string) { r.tags = append(r.tags, tag) }
func (r *recordingRules) ResetBounces()              { r.bounceResets++ }
func (r *recordingRules) ResetColor()                { r.colorResets++ }

type recordingEffects struct {
	bounces   int
	throws    []bool
	trailsOff int
}

func (e *recordingEffects) Bounce(float64)    { e.bounces++ }
func (e *recordingEffects) Throw(strong bool) { e.throws = append(e.throws, strong) }
func (e *recordingEffects) StopTrails()       { e.trailsOff++ }

type peer struct {
	ep      *transport.Endpoint
	rpc     *protocol.Dispatcher
	reg     *replication.Registry
	sched   *clock.Scheduler
	fx      *recordingEffects
	objects map[protocol.ObjectID]*Interactable
	rules   map[protocol.ObjectID]*recordingRules
}

func newPeer(ep *transport.Endpoint) *peer {
	return &peer{
		ep:      ep,
		rpc:     protocol.NewDispatcher(ep, log.NewNop()),
		reg:     replication.NewRegistry(ep, replication.Reject, log.NewNop()),
		sched:   clock.New(step),
		fx:      &recordingEffects{},
		objects: make(map[protocol.ObjectID]*Interactable),
		rules:   make(map[protocol.ObjectID]*recordingRules),
	}
}

func (p *peer) spawn(t *testing.T, id protocol.ObjectID, at Vec3, color team.Color, cfg Config) *Interactable {
	t.Helper()
	coord := ownership.New(id, p.rpc, p.sched, p.ep, ownership.DefaultOptions(), log.NewNop())
	obj, err := NewInteractable(id, NewSimBody(at, 0.1), Deps{
		Coordinator: coord,
		Registry:    p.reg,
		RPC:         p.rpc,
		Scheduler:   p.sched,
		Effects:     p.fx,
		LocalColor:  color,
		Logger:      log.NewNop(),
	}, cfg)
	require.NoError(t, err)
	rules := &recordingRules{}
	obj.SetRules(rules)
	require.NoError(t, obj.Spawn())
	p.objects[id] = obj
	p.rules[id] = rules
	return obj
}

func (p *peer) pump() {
	for {
		select {
		case env := <-p.ep.Inbox():
			switch env.Kind {
			case protocol.KindRPC:
				_ = p.rpc.Handle(env)
			case protocol.KindValue, protocol.KindWriteRequest:
				_ = p.reg.Handle(env)
			}
		default:
			return
		}
	}
}

func pumpAll(peers ...*peer) {
	for i := 0; i < 3; i++ {
		for _, p := range peers {
			p.pump()
		}
	}
}

// fixedStep mirrors the session step order: timers, network, then objects.
func (p *peer) fixedStep() {
	p.sched.Step()
	p.pump()
	for _, obj := range p.objects {
		obj.FixedUpdate(step)
	}
}

func unlockedConfig() Config {
	cfg := DefaultConfig()
	cfg.SpawnLocked = false
	return cfg
}
