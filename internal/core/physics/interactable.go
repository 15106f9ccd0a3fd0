// Package physics implements grabbable, throwable networked objects: the
// grab/release/throw transitions, collision driven ownership exchange and
// the networked physics reset bracket.
package physics

import (
	"errors"
	"time"

	"github.com/zeusync/courtsync/internal/core/clock"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/ownership"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/team"
)

const (
	MethodThrowFX    = "physics.throw_fx"
	MethodTrailsOff  = "physics.trails_off"
	fieldSpawnLocked = "spawn_locked"
	fieldResetting   = "reset_in_progress"
	fieldPosition    = "position"
	fieldVelocity    = "velocity"
)

type Config struct {
	HistoryFrames    int
	Throw            ThrowConfig
	MinExchangeSpeed float64
	SpawnLocked      bool
	ResetOnDespawn   bool
	Smoothing        time.Duration
}

func DefaultConfig() Config {
	return Config{
		HistoryFrames:    16,
		Throw:            DefaultThrowConfig(),
		MinExchangeSpeed: 0.025,
		SpawnLocked:      true,
		ResetOnDespawn:   true,
		Smoothing:        100 * time.Millisecond,
	}
}

// Deps are the session services an Interactable is built from.
type Deps struct {
	Coordinator *ownership.Coordinator
	Registry    *replication.Registry
	RPC         *protocol.Dispatcher
	Scheduler   *clock.Scheduler
	Effects     Effects
	LocalColor  team.Color
	Logger      log.Log
}

type throwFX struct {
	Strong bool `json:"strong"`
}

// Interactable is one physically simulated, grabbable prop such as the ball.
type Interactable struct {
	id     protocol.ObjectID
	coord  *ownership.Coordinator
	rpc    *protocol.Dispatcher
	reg    *replication.Registry
	sched  *clock.Scheduler
	body   Body
	rules  CollisionRules
	fx     Effects
	color  team.Color
	cfg    Config
	logger log.Log

	spawnLocked     *replication.Value[bool]
	resetInProgress *replication.Value[bool]
	position        *replication.Value[Vec3]
	velocity        *replication.Value[Vec3]
	subscriptions   []func()

	isHeld        bool
	isThrown      bool
	lastThrownBy  team.Color
	interactor    Interactor
	history       *velocityHistory
	pauseSampling bool
	display       *smoother
}

func NewInteractable(id protocol.ObjectID, body Body, deps Deps, cfg Config) (*Interactable, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Provide()
	}
	fx := deps.Effects
	if fx == nil {
		fx = NopEffects{}
	}

	i := &Interactable{
		id:           id,
		coord:        deps.Coordinator,
		rpc:          deps.RPC,
		reg:          deps.Registry,
		sched:        deps.Scheduler,
		body:         body,
		fx:           fx,
		color:        deps.LocalColor,
		cfg:          cfg,
		logger:       logger.With(log.String("object", string(id))),
		lastThrownBy: team.None,
		history:      newVelocityHistory(cfg.HistoryFrames),
		display:      newSmoother(cfg.Smoothing, body.Position()),
	}

	var err error
	if i.spawnLocked, err = replication.New(i.reg, id, fieldSpawnLocked, replication.WriteOwner, i.coord, cfg.SpawnLocked); err != nil {
		return nil, err
	}
	if i.resetInProgress, err = replication.New(i.reg, id, fieldResetting, replication.WriteOwner, i.coord, false); err != nil {
		return nil, err
	}
	if i.position, err = replication.New(i.reg, id, fieldPosition, replication.WriteOwner, i.coord, body.Position()); err != nil {
		return nil, err
	}
	if i.velocity, err = replication.New(i.reg, id, fieldVelocity, replication.WriteOwner, i.coord, body.Velocity()); err != nil {
		return nil, err
	}

	i.coord.SetFlags(i)
	i.coord.OnGainedOwnership(i.onGainedOwnership)
	i.coord.OnLostOwnership(i.onLostOwnership)
	return i, nil
}

// SetRules attaches the rule collaborator evaluated on owned collisions.
func (i *Interactable) SetRules(rules CollisionRules) { i.rules = rules }

func (i *Interactable) ID() protocol.ObjectID { return i.id }

func (i *Interactable) Coordinator() *ownership.Coordinator { return i.coord }

func (i *Interactable) Body() Body { return i.body }

func (i *Interactable) IsOwner() bool { return i.coord.IsOwner() }

func (i *Interactable) IsHeld() bool { return i.isHeld }

func (i *Interactable) IsThrown() bool { return i.isThrown }

func (i *Interactable) LastThrownBy() team.Color { return i.lastThrownBy }

// SpawnLocked implements ownership.Flags.
func (i *Interactable) SpawnLocked() bool { return i.spawnLocked.Get() }

// ResetInProgress implements ownership.Flags.
func (i *Interactable) ResetInProgress() bool { return i.resetInProgress.Get() }

// Position is the authoritative position: the body on the owner, the last
// replicated value elsewhere.
func (i *Interactable) Position() Vec3 {
	if i.IsOwner() {
		return i.body.Position()
	}
	return i.position.Get()
}

// Velocity follows the same rule as Position.
func (i *Interactable) Velocity() Vec3 {
	if i.IsOwner() {
		return i.body.Velocity()
	}
	return i.velocity.Get()
}

// DisplayPosition is where the object should be drawn this frame.
func (i *Interactable) DisplayPosition() Vec3 {
	if i.IsOwner() {
		return i.body.Position()
	}
	return i.display.current
}

// AverageHandVelocity is the mean interactor velocity over the history window.
func (i *Interactable) AverageHandVelocity() Vec3 { return i.history.average }

// Spawn makes the object network-active.
func (i *Interactable) Spawn() error {
	if err := i.coord.Spawn(); err != nil {
		return err
	}
	if err := i.rpc.Register(i.id, MethodThrowFX, i.handleThrowFX); err != nil {
		return err
	}
	if err := i.rpc.Register(i.id, MethodTrailsOff, func(protocol.Call) error {
		i.fx.StopTrails()
		return nil
	}); err != nil {
		return err
	}

	resetSub := i.resetInProgress.Subscribe(func(_, resetting bool) { i.pauseSampling = resetting })
	lockSub := i.spawnLocked.Subscribe(func(_, locked bool) { i.body.SetFrozen(locked) })
	posSub := i.position.Subscribe(func(_, at Vec3) {
		if !i.IsOwner() {
			i.display.retarget(at)
		}
	})
	i.subscriptions = []func(){
		func() { i.resetInProgress.Unsubscribe(resetSub) },
		func() { i.spawnLocked.Unsubscribe(lockSub) },
		func() { i.position.Unsubscribe(posSub) },
	}

	i.body.SetFrozen(i.spawnLocked.Get())
	if i.IsOwner() {
		i.setFlag(i.spawnLocked, i.cfg.SpawnLocked)
		i.publish()
	}
	return nil
}

// Despawn runs the physics reset for a moving object, then detaches it.
func (i *Interactable) Despawn() {
	if i.cfg.ResetOnDespawn && !i.body.Kinematic() {
		i.ResetPhysics()
	}
	for _, unsubscribe := range i.subscriptions {
		unsubscribe()
	}
	i.subscriptions = nil
	i.coord.Despawn()
	i.rpc.UnregisterObject(i.id)
	i.reg.Remove(i.id)
}

// OnGrab starts holding the object. It reports false when the grab is ignored.
func (i *Interactable) OnGrab(interactor Interactor) bool {
	if i.isHeld {
		return false
	}
	if i.resetInProgress.Get() {
		i.logger.Debug("Grab ignored during physics reset")
		return false
	}

	i.isHeld = true
	i.isThrown = false
	i.lastThrownBy = team.None
	i.interactor = interactor
	i.callEveryone(MethodTrailsOff, nil)
	if i.rules != nil {
		i.rules.ResetBounces()
		i.rules.ResetColor()
	}
	i.history.reset(interactor.Position())

	if i.coord.BeginInteraction() {
		i.holdInPlace()
		i.setFlag(i.spawnLocked, false)
		return true
	}
	if err := i.coord.RequestOwnership(ownership.ReasonGrab); err != nil && !errors.Is(err, ownership.ErrTransferBlocked) {
		i.logger.Warn("Grab ownership request failed", log.Error(err))
	}
	return true
}

func (i *Interactable) holdInPlace() {
	i.body.SetVelocity(Zero)
	i.body.SetAngularVelocity(Zero)
	i.body.SetGravity(false)
}

// OnRelease ends a hold; on the owner it launches the object along the
// averaged hand velocity.
func (i *Interactable) OnRelease(Interactor) bool {
	if !i.isHeld {
		return false
	}
	i.isHeld = false
	i.interactor = nil
	i.coord.EndInteraction()

	if !i.IsOwner() {
		return true
	}

	launch, strong := ThrowVelocity(i.history.average, i.cfg.Throw)
	i.body.SetVelocity(launch)
	i.body.SetGravity(true)
	i.isThrown = true
	i.lastThrownBy = i.color
	i.publish()

	i.logger.Debug("Thrown",
		log.Float64("speed", launch.Len()),
		log.Bool("strong", strong),
		log.String("team", i.color.String()))
	i.callEveryone(MethodThrowFX, throwFX{Strong: strong})
	return true
}

// ForceRelease runs the release path without the interactor letting go.
// Only the owner may do this.
func (i *Interactable) ForceRelease() {
	if !i.IsOwner() || !i.isHeld {
		return
	}
	i.OnRelease(i.interactor)
}

// ClearThrown ends the current flight.
func (i *Interactable) ClearThrown() { i.isThrown = false }

// Teleport stops the object and moves it to at. Owner only.
func (i *Interactable) Teleport(at Vec3) {
	if !i.IsOwner() {
		return
	}
	i.body.SetVelocity(Zero)
	i.body.SetAngularVelocity(Zero)
	i.body.SetPosition(at)
	i.publish()
	i.callEveryone(MethodTrailsOff, nil)
}

// FixedUpdate runs once per physics step.
func (i *Interactable) FixedUpdate(dt time.Duration) {
	if i.pauseSampling {
		return
	}
	if i.isHeld && i.interactor != nil {
		hand := i.interactor.Position()
		i.history.sample(hand, dt.Seconds())
		if i.coord.State() == ownership.Interacting {
			i.body.SetPosition(hand)
		}
	} else if !i.coord.Selected() {
		i.history.reset(Zero)
	}
	if i.IsOwner() {
		i.publish()
	}
}

// Frame advances cosmetic smoothing once per rendered frame.
func (i *Interactable) Frame(dt time.Duration) {
	if i.IsOwner() {
		i.display.snap(i.body.Position())
		return
	}
	i.display.update(dt)
}

// OnCollision handles one contact reported by the engine.
func (i *Interactable) OnCollision(c Collision) {
	if c.Tag == TagCourt {
		i.fx.Bounce(i.Velocity().Len())
	}
	if !i.IsOwner() {
		return
	}
	if i.rules != nil && !i.body.Kinematic() {
		i.rules.HandleCollision(c.Tag)
	}

	other := c.Other
	if other == nil || other == i || !i.coord.CollisionExchange() {
		return
	}
	if i.coord.State() == ownership.Interacting || i.movingFaster(other) {
		if err := other.coord.RequestOwnership(ownership.ReasonCollision); err != nil {
			i.logger.Debug("Collision exchange skipped",
				log.String("other", string(other.id)),
				log.Error(err))
		}
	}
}

func (i *Interactable) movingFaster(other *Interactable) bool {
	speed := i.body.Velocity().Len()
	return speed > i.cfg.MinExchangeSpeed && speed > other.Velocity().Len()
}

// ResetPhysics zeroes the body inside a one step kinematic bracket while
// peers see resetInProgress.
func (i *Interactable) ResetPhysics() {
	wasKinematic := i.body.Kinematic()
	interpolation := i.body.Interpolation()
	if !wasKinematic {
		i.body.SetVelocity(Zero)
		i.body.SetAngularVelocity(Zero)
	}
	i.body.SetInterpolation(InterpolateNone)
	i.body.SetKinematic(true)
	i.setFlag(i.resetInProgress, true)

	i.sched.NextFixedStep(func() {
		i.body.SetInterpolation(interpolation)
		i.body.SetKinematic(wasKinematic)
		i.setFlag(i.resetInProgress, false)
	})
}

func (i *Interactable) onGainedOwnership() {
	if i.coord.Selected() {
		i.holdInPlace()
		i.setFlag(i.spawnLocked, false)
	}
	i.publish()
}

func (i *Interactable) onLostOwnership() {
	i.display.snap(i.position.Get())
}

func (i *Interactable) publish() {
	if !i.IsOwner() {
		return
	}
	if err := i.position.Set(i.body.Position()); err != nil {
		i.logger.Warn("Failed to publish position", log.Error(err))
	}
	if err := i.velocity.Set(i.body.Velocity()); err != nil {
		i.logger.Warn("Failed to publish velocity", log.Error(err))
	}
}

func (i *Interactable) setFlag(v *replication.Value[bool], value bool) {
	if !i.IsOwner() {
		return
	}
	if err := v.Set(value); err != nil {
		i.logger.Warn("Failed to set flag", log.Error(err))
	}
}

func (i *Interactable) callEveryone(method string, args any) {
	if err := i.rpc.Call(i.id, method, protocol.Everyone(), args); err != nil {
		i.logger.Warn("RPC failed", log.String("method", method), log.Error(err))
	}
}

func (i *Interactable) handleThrowFX(call protocol.Call) error {
	var fx throwFX
	if err := call.Decode(&fx); err != nil {
		return err
	}
	i.fx.Throw(fx.Strong)
	return nil
}

var _ ownership.Flags = (*Interactable)(nil)
