// Package ownership arbitrates which peer may drive an object's physics.
// Requests always travel to the host, which grants them in arrival order;
// the last request wins and no rollback happens on the losing peer.
package ownership

import (
	"fmt"
	"time"

	"github.com/zeusync/courtsync/internal/core/clock"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
)

const (
	MethodRequest = "ownership.request"
	MethodChanged = "ownership.changed"
)

const (
	DefaultMinTimeout = 25 * time.Millisecond
	DefaultMaxTimeout = 5 * time.Second
)

// RoundTripper reports the current round trip to the host.
type RoundTripper interface {
	RoundTripTime() time.Duration
}

// Flags exposes the replicated object flags that block transfers.
type Flags interface {
	SpawnLocked() bool
	ResetInProgress() bool
}

type Options struct {
	InitialOwner      protocol.PeerID
	CollisionExchange bool
	MinTimeout        time.Duration
	MaxTimeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		InitialOwner:      protocol.ServerPeerID,
		CollisionExchange: true,
		MinTimeout:        DefaultMinTimeout,
		MaxTimeout:        DefaultMaxTimeout,
	}
}

type changePayload struct {
	Owner    protocol.PeerID `json:"owner"`
	Previous protocol.PeerID `json:"previous"`
}

// Coordinator runs the ownership state machine of one object on one peer.
// It is driven from the logic goroutine only.
type Coordinator struct {
	object protocol.ObjectID
	rpc    *protocol.Dispatcher
	sched  *clock.Scheduler
	rtt    RoundTripper
	flags  Flags
	opts   Options
	logger log.Log

	owner    protocol.PeerID
	state    State
	pending  bool
	selected bool
	spawned  bool
	timeout  *clock.Timer

	gained      []func()
	lost        []func()
	transitions []func(Transition)
}

func New(object protocol.ObjectID, rpc *protocol.Dispatcher, sched *clock.Scheduler, rtt RoundTripper, opts Options, logger log.Log) *Coordinator {
	if logger == nil {
		logger = log.Provide()
	}
	if opts.MinTimeout <= 0 {
		opts.MinTimeout = DefaultMinTimeout
	}
	if opts.MaxTimeout < opts.MinTimeout {
		opts.MaxTimeout = DefaultMaxTimeout
	}
	return &Coordinator{
		object: object,
		rpc:    rpc,
		sched:  sched,
		rtt:    rtt,
		opts:   opts,
		owner:  opts.InitialOwner,
		logger: logger.With(log.String("object", string(object)), log.String("component", "ownership")),
	}
}

// SetFlags wires the replicated flags consulted by TransferBlocked.
func (c *Coordinator) SetFlags(flags Flags) { c.flags = flags }

func (c *Coordinator) Object() protocol.ObjectID { return c.object }

// Owner implements replication.Owned.
func (c *Coordinator) Owner() protocol.PeerID { return c.owner }

func (c *Coordinator) IsOwner() bool { return c.owner == c.rpc.LocalID() }

func (c *Coordinator) State() State { return c.state }

// Pending reports whether a transfer request awaits a grant.
func (c *Coordinator) Pending() bool { return c.pending }

func (c *Coordinator) Spawned() bool { return c.spawned }

func (c *Coordinator) CollisionExchange() bool { return c.opts.CollisionExchange }

// SetCollisionExchange toggles collision based exchange at runtime.
func (c *Coordinator) SetCollisionExchange(enabled bool) { c.opts.CollisionExchange = enabled }

// OnGainedOwnership registers fn to run when the local peer becomes owner.
func (c *Coordinator) OnGainedOwnership(fn func()) { c.gained = append(c.gained, fn) }

// OnLostOwnership registers fn to run when the local peer stops being owner.
func (c *Coordinator) OnLostOwnership(fn func()) { c.lost = append(c.lost, fn) }

// OnTransition registers fn to observe every state change.
func (c *Coordinator) OnTransition(fn func(Transition)) { c.transitions = append(c.transitions, fn) }

// Spawn makes the object network-active and binds its RPCs.
func (c *Coordinator) Spawn() error {
	if c.spawned {
		return nil
	}
	if err := c.rpc.Register(c.object, MethodRequest, c.handleRequest); err != nil {
		return err
	}
	if err := c.rpc.Register(c.object, MethodChanged, c.handleChanged); err != nil {
		c.rpc.Unregister(c.object, MethodRequest)
		return err
	}
	c.spawned = true
	return nil
}

// Despawn unbinds the RPCs and abandons any pending request.
func (c *Coordinator) Despawn() {
	if !c.spawned {
		return
	}
	c.rpc.Unregister(c.object, MethodRequest)
	c.rpc.Unregister(c.object, MethodChanged)
	c.clearPending()
	c.spawned = false
}

// TransferBlocked reports whether a request for the given reason would be
// refused right now.
func (c *Coordinator) TransferBlocked(reason Reason) bool {
	return c.blockedBy(reason) != ""
}

func (c *Coordinator) blockedBy(reason Reason) string {
	switch {
	case c.IsOwner():
		return "already owner"
	case c.pending:
		return "request pending"
	case !c.spawned:
		return "not spawned"
	case c.flags != nil && c.flags.ResetInProgress():
		return "reset in progress"
	}
	if reason == ReasonGrab {
		return ""
	}
	switch {
	case c.state == Interacting || c.selected:
		return "interacting"
	case c.flags != nil && c.flags.SpawnLocked():
		return "spawn locked"
	case !c.opts.CollisionExchange:
		return "collision exchange disabled"
	}
	return ""
}

// Timeout is how long a request waits for its grant.
func (c *Coordinator) Timeout() time.Duration {
	var rtt time.Duration
	if c.rtt != nil {
		rtt = c.rtt.RoundTripTime()
	}
	wait := 2 * rtt
	if wait < c.opts.MinTimeout {
		return c.opts.MinTimeout
	}
	if wait > c.opts.MaxTimeout {
		return c.opts.MaxTimeout
	}
	return wait
}

// RequestOwnership asks the host to make the local peer the owner. A blocked
// request changes nothing and returns ErrTransferBlocked.
func (c *Coordinator) RequestOwnership(reason Reason) error {
	if why := c.blockedBy(reason); why != "" {
		c.logger.Debug("Ownership request blocked", log.String("reason", reason.String()), log.String("blocked_by", why))
		return fmt.Errorf("%w: %s", ErrTransferBlocked, why)
	}

	c.pending = true
	c.setState(TransferRequested)
	wait := c.Timeout()
	c.timeout = c.sched.After(wait, c.expire)

	c.logger.Debug("Requesting ownership",
		log.String("reason", reason.String()),
		log.Duration("timeout", wait))

	if err := c.rpc.Call(c.object, MethodRequest, protocol.Server(), nil); err != nil {
		c.logger.Warn("Ownership request could not be sent", log.Error(err))
		c.clearPending()
		return err
	}
	return nil
}

func (c *Coordinator) expire() {
	c.timeout = nil
	if !c.pending {
		return
	}
	if !c.IsOwner() {
		c.logger.Warn("Ownership request timed out", log.Duration("timeout", c.Timeout()))
	}
	c.clearPending()
}

func (c *Coordinator) clearPending() {
	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}
	c.pending = false
	if c.state == TransferRequested {
		c.setState(Idle)
	}
}

func (c *Coordinator) handleRequest(call protocol.Call) error {
	return c.Grant(call.From)
}

// Grant makes requester the owner and tells every peer. Host only.
func (c *Coordinator) Grant(requester protocol.PeerID) error {
	if !c.rpc.IsServer() {
		return ErrNotServer
	}
	if requester == c.owner {
		return nil
	}
	c.logger.Info("Granting ownership",
		log.Uint64("from", uint64(c.owner)),
		log.Uint64("to", uint64(requester)))
	return c.rpc.Call(c.object, MethodChanged, protocol.Everyone(), changePayload{Owner: requester, Previous: c.owner})
}

func (c *Coordinator) handleChanged(call protocol.Call) error {
	if call.From != protocol.ServerPeerID {
		c.logger.Warn("Ignoring ownership change not sent by the host", log.Uint64("from", uint64(call.From)))
		return ErrNotServer
	}
	var change changePayload
	if err := call.Decode(&change); err != nil {
		return err
	}
	c.ApplyOwnerChange(change.Owner)
	return nil
}

// ApplyOwnerChange installs the owner announced by the host.
func (c *Coordinator) ApplyOwnerChange(owner protocol.PeerID) {
	local := c.rpc.LocalID()
	previous := c.owner
	if previous == owner {
		return
	}
	c.owner = owner

	switch {
	case owner == local:
		if c.timeout != nil {
			c.timeout.Stop()
			c.timeout = nil
		}
		c.pending = false
		if c.selected {
			c.setState(Interacting)
		} else {
			c.setState(Idle)
		}
		c.logger.Debug("Ownership gained", log.Uint64("previous", uint64(previous)))
		for _, fn := range c.gained {
			fn()
		}
	case previous == local:
		c.clearPending()
		c.setState(Idle)
		c.logger.Debug("Ownership lost", log.Uint64("owner", uint64(owner)))
		for _, fn := range c.lost {
			fn()
		}
	}
}

// BeginInteraction marks the object as grabbed locally. It reports whether
// the local peer now drives the object.
func (c *Coordinator) BeginInteraction() bool {
	c.selected = true
	if c.IsOwner() && c.state == Idle {
		c.setState(Interacting)
	}
	return c.state == Interacting
}

// EndInteraction marks the object as released locally.
func (c *Coordinator) EndInteraction() {
	c.selected = false
	if c.state == Interacting {
		c.setState(Idle)
	}
}

// Selected reports whether a local interactor holds the object.
func (c *Coordinator) Selected() bool { return c.selected }

func (c *Coordinator) setState(next State) {
	if c.state == next {
		return
	}
	t := Transition{From: c.state, To: next, Owner: c.owner}
	c.state = next
	for _, fn := range c.transitions {
		fn(t)
	}
}
