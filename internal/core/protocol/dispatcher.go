package protocol

import (
	"fmt"

	"github.com/zeusync/courtsync/internal/core/observability/log"
)

// Sender is the outbound half of a transport.
type Sender interface {
	LocalID() PeerID
	IsServer() bool
	Send(env *Envelope) error
}

// Call is an RPC invocation as seen by its handler.
type Call struct {
	From   PeerID
	Object ObjectID
	Method string
	env    *Envelope
}

// Decode unmarshals the call arguments into v.
func (c Call) Decode(v any) error {
	return c.env.Decode(v)
}

// Handler serves one RPC method of one object.
type Handler func(call Call) error

type handlerKey struct {
	object ObjectID
	method MethodID
}

type registration struct {
	name    string
	handler Handler
}

// Dispatcher routes RPCs between the local logic goroutine and the transport.
// Calls whose target includes the local peer run synchronously in place, the
// rest go out as KindRPC envelopes. Not safe for concurrent use.
type Dispatcher struct {
	sender   Sender
	handlers map[handlerKey]registration
	logger   log.Log
}

func NewDispatcher(sender Sender, logger log.Log) *Dispatcher {
	if logger == nil {
		logger = log.Provide()
	}
	return &Dispatcher{
		sender:   sender,
		handlers: make(map[handlerKey]registration),
		logger:   logger.With(log.String("component", "rpc")),
	}
}

// LocalID returns the id of the peer this dispatcher runs on.
func (d *Dispatcher) LocalID() PeerID { return d.sender.LocalID() }

// IsServer reports whether the local peer is the host.
func (d *Dispatcher) IsServer() bool { return d.sender.IsServer() }

// Register binds handler to method on object.
func (d *Dispatcher) Register(object ObjectID, method string, handler Handler) error {
	key := handlerKey{object: object, method: MethodHash(method)}
	if existing, ok := d.handlers[key]; ok {
		return fmt.Errorf("%w: %s.%s (hash shared with %s)", ErrDuplicateHandler, object, method, existing.name)
	}
	d.handlers[key] = registration{name: method, handler: handler}
	return nil
}

// Unregister removes the handler, if any.
func (d *Dispatcher) Unregister(object ObjectID, method string) {
	delete(d.handlers, handlerKey{object: object, method: MethodHash(method)})
}

// UnregisterObject drops every handler of object, used on despawn.
func (d *Dispatcher) UnregisterObject(object ObjectID) {
	for key := range d.handlers {
		if key.object == object {
			delete(d.handlers, key)
		}
	}
}

// Call invokes method on object at target. The local invocation, if any,
// happens after the envelope has been handed to the transport so remote
// peers observe the same order as the caller.
func (d *Dispatcher) Call(object ObjectID, method string, target Target, args any) error {
	local := d.sender.LocalID()
	env, err := NewEnvelope(KindRPC, local, target).WithPayload(args)
	if err != nil {
		return err
	}
	env.Object = object
	env.Method = MethodHash(method)

	if target.Remote(local) {
		if err = d.sender.Send(env); err != nil {
			return fmt.Errorf("send %s.%s: %w", object, method, err)
		}
	}
	if target.Includes(local, local) {
		return d.invoke(env)
	}
	return nil
}

// Handle serves an inbound KindRPC envelope.
func (d *Dispatcher) Handle(env *Envelope) error {
	if env.Kind != KindRPC {
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, env.Kind)
	}
	return d.invoke(env)
}

func (d *Dispatcher) invoke(env *Envelope) error {
	reg, ok := d.handlers[handlerKey{object: env.Object, method: env.Method}]
	if !ok {
		d.logger.Warn("No handler for RPC",
			log.String("object", string(env.Object)),
			log.Uint64("method", uint64(env.Method)),
			log.Uint64("from", uint64(env.From)))
		return fmt.Errorf("%w: %s#%d", ErrUnknownMethod, env.Object, env.Method)
	}
	return reg.handler(Call{
		From:   env.From,
		Object: env.Object,
		Method: reg.name,
		env:    env,
	})
}
