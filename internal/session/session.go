// Package session owns everything one peer needs for a match: the transport,
// the RPC dispatcher, the replication registry, the single score authority
// and the spawned balls. It drives them from one logic goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/courtsync/internal/config"
	"github.com/zeusync/courtsync/internal/core/clock"
	"github.com/zeusync/courtsync/internal/core/events/bus"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/ownership"
	"github.com/zeusync/courtsync/internal/core/physics"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/score"
	"github.com/zeusync/courtsync/internal/game/scoring"
	"github.com/zeusync/courtsync/internal/game/team"
)

const DefaultBallID protocol.ObjectID = "ball"

var (
	ErrUnknownObject = errors.New("session: unknown object")
	ErrClosed        = errors.New("session: closed")
)

type Options struct {
	Config config.Config
	// Color is the local player's side; None for spectators.
	Color   team.Color
	Effects physics.Effects
	World   physics.WorldConfig
	Logger  log.Log
}

// Ball is a spawned interactable together with its scoring rules.
type Ball struct {
	*physics.Interactable
	Rules *scoring.Rules
}

type Session struct {
	id     uuid.UUID
	cfg    config.Config
	color  team.Color
	fx     physics.Effects
	logger log.Log

	tr     transport.Transport
	sched  *clock.Scheduler
	rpc    *protocol.Dispatcher
	reg    *replication.Registry
	events bus.Bus
	score  *score.Authority
	world  *physics.World

	balls  map[protocol.ObjectID]*Ball
	order  []protocol.ObjectID
	closed bool
}

func New(tr transport.Transport, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Provide()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	fx := opts.Effects
	if fx == nil {
		fx = physics.NopEffects{}
	}
	world := opts.World
	if world == (physics.WorldConfig{}) {
		world = physics.DefaultWorldConfig()
	}

	id := uuid.New()
	logger = logger.With(
		log.String("session", id.String()),
		log.Uint64("peer", uint64(tr.LocalID())),
	)

	s := &Session{
		id:     id,
		cfg:    opts.Config,
		color:  opts.Color,
		fx:     fx,
		logger: logger,
		tr:     tr,
		sched:  clock.New(opts.Config.FixedStep()),
		rpc:    protocol.NewDispatcher(tr, logger),
		reg:    replication.NewRegistry(tr, opts.Config.WritePolicy(), logger),
		events: bus.New(),
		world:  physics.NewWorld(world),
		balls:  make(map[protocol.ObjectID]*Ball),
	}

	auth, err := score.New(s.reg, s.rpc, s.events, opts.Config.Score(), logger)
	if err != nil {
		return nil, err
	}
	s.score = auth
	return s, nil
}

func (s *Session) ID() uuid.UUID                    { return s.id }
func (s *Session) LocalID() protocol.PeerID         { return s.tr.LocalID() }
func (s *Session) IsHost() bool                     { return s.tr.IsServer() }
func (s *Session) Color() team.Color                { return s.color }
func (s *Session) Score() *score.Authority          { return s.score }
func (s *Session) Events() bus.Bus                  { return s.events }
func (s *Session) Scheduler() *clock.Scheduler      { return s.sched }
func (s *Session) Dispatcher() *protocol.Dispatcher { return s.rpc }
func (s *Session) Registry() *replication.Registry  { return s.reg }
func (s *Session) World() *physics.World            { return s.world }

// Ball returns a spawned ball.
func (s *Session) Ball(id protocol.ObjectID) (*Ball, bool) {
	b, ok := s.balls[id]
	return b, ok
}

// Balls lists the spawned balls in spawn order.
func (s *Session) Balls() []*Ball {
	out := make([]*Ball, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.balls[id])
	}
	return out
}

// SpawnBall creates and spawns a ball at at. Every peer spawns the same ids
// in the same order; the host owns new balls.
func (s *Session) SpawnBall(id protocol.ObjectID, at physics.Vec3, visuals scoring.Visuals) (*Ball, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.balls[id]; ok {
		return nil, fmt.Errorf("spawn %s: %w", id, replication.ErrDuplicate)
	}

	coord := ownership.New(id, s.rpc, s.sched, s.tr, s.cfg.Ownership(), s.logger)
	obj, err := physics.NewInteractable(id, physics.NewSimBody(at, 0.15), physics.Deps{
		Coordinator: coord,
		Registry:    s.reg,
		RPC:         s.rpc,
		Scheduler:   s.sched,
		Effects:     s.fx,
		LocalColor:  s.color,
		Logger:      s.logger,
	}, s.cfg.Interactable())
	if err != nil {
		s.reg.Remove(id)
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}

	rules := scoring.New(obj, s.score, visuals, s.cfg.Scoring(), s.logger.With(log.String("object", string(id))))
	obj.SetRules(rules)
	if err = obj.Spawn(); err != nil {
		obj.Despawn()
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	rules.ResetColor()

	b := &Ball{Interactable: obj, Rules: rules}
	s.balls[id] = b
	s.order = append(s.order, id)
	s.world.Add(obj)
	s.logger.Info("Ball spawned", log.String("object", string(id)), log.Bool("owner", obj.IsOwner()))
	return b, nil
}

// Despawn removes a ball. A ball still in motion gets its physics reset
// first.
func (s *Session) Despawn(id protocol.ObjectID) error {
	b, ok := s.balls[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	s.world.Remove(b.Interactable)
	b.Despawn()
	delete(s.balls, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Pump dispatches every envelope already waiting in the inbox and returns
// how many were handled.
func (s *Session) Pump() int {
	n := 0
	for {
		select {
		case env := <-s.tr.Inbox():
			s.dispatch(env)
			n++
		default:
			return n
		}
	}
}

func (s *Session) dispatch(env *protocol.Envelope) {
	var err error
	switch env.Kind {
	case protocol.KindRPC:
		err = s.rpc.Handle(env)
	case protocol.KindValue, protocol.KindWriteRequest:
		err = s.reg.Handle(env)
	default:
		err = fmt.Errorf("%w: %s", protocol.ErrUnexpectedMessage, env.Kind)
	}
	if err != nil {
		s.logger.Debug("Envelope not applied",
			log.String("kind", env.Kind.String()),
			log.String("object", string(env.Object)),
			log.Uint64("from", uint64(env.From)),
			log.Error(err))
	}
}

// Step runs one physics step: due timers, inbound traffic, then every ball
// and the court simulation.
func (s *Session) Step() {
	dt := s.sched.FixedStep()
	s.sched.Step()
	s.Pump()
	for _, b := range s.Balls() {
		b.FixedUpdate(dt)
	}
	s.world.Step(dt)
}

// Frame advances cosmetic smoothing.
func (s *Session) Frame(dt time.Duration) {
	for _, b := range s.Balls() {
		b.Frame(dt)
	}
}

// Run drives the session in real time until ctx is done or the transport
// fails. Despawn cleanup always runs before Run returns.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tr.Run(gctx) })
	g.Go(func() error {
		defer s.shutdown()
		return s.loop(gctx)
	})
	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	s.logger.Info("Session stopped", log.Error(err))
	return err
}

func (s *Session) loop(ctx context.Context) error {
	fixed := time.NewTicker(s.sched.FixedStep())
	defer fixed.Stop()
	frameStep := s.cfg.FrameStep()
	frame := time.NewTicker(frameStep)
	defer frame.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fixed.C:
			s.Step()
		case <-frame.C:
			s.Frame(frameStep)
		}
	}
}

func (s *Session) shutdown() {
	for _, id := range append([]protocol.ObjectID(nil), s.order...) {
		_ = s.Despawn(id)
	}
}

// Close releases the session and its transport. It must not race with Run.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.shutdown()
	s.score.Close()
	return s.tr.Close()
}
