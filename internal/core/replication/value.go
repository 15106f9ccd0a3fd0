package replication

import (
	"github.com/google/uuid"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
)

// Observer is called with the previous and the new value after each change.
type Observer[T comparable] func(previous, current T)

type subscription[T comparable] struct {
	id uuid.UUID
	fn Observer[T]
}

// Value is a replicated variable of one networked object.
type Value[T comparable] struct {
	reg    *Registry
	object protocol.ObjectID
	name   string
	perm   Permission
	owner  Owned
	logger log.Log

	value     T
	seq       uint64
	observers []subscription[T]
	detached  bool
}

// New registers a value. owner is consulted for WriteOwner values and may be
// nil for WriteServer values.
func New[T comparable](reg *Registry, object protocol.ObjectID, name string, perm Permission, owner Owned, initial T) (*Value[T], error) {
	v := &Value[T]{
		reg:    reg,
		object: object,
		name:   name,
		perm:   perm,
		owner:  owner,
		value:  initial,
		logger: reg.logger.With(log.String("object", string(object)), log.String("field", name)),
	}
	if err := reg.add(fieldKey{object: object, name: name}, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the last applied value.
func (v *Value[T]) Get() T { return v.value }

// Writer is the peer whose writes are authoritative right now.
func (v *Value[T]) Writer() protocol.PeerID {
	if v.perm == WriteOwner && v.owner != nil {
		return v.owner.Owner()
	}
	return protocol.ServerPeerID
}

// CanWrite reports whether the local peer is the writer.
func (v *Value[T]) CanWrite() bool {
	return v.Writer() == v.reg.LocalID()
}

// Set publishes a new value. Only the writer applies it; other peers follow
// the registry write policy and never change their local copy.
func (v *Value[T]) Set(value T) error {
	if !v.CanWrite() {
		if v.reg.policy == Redirect {
			return v.redirect(value)
		}
		v.logger.Warn("Rejected write from non-writer",
			log.Uint64("local", uint64(v.reg.LocalID())),
			log.Uint64("writer", uint64(v.Writer())))
		return ErrNotAuthority
	}
	if value == v.value {
		return nil
	}

	v.seq++
	previous := v.value
	v.value = value

	// Remote peers receive the update before anything the observers send.
	if !v.detached {
		env, err := protocol.NewEnvelope(protocol.KindValue, v.reg.LocalID(), protocol.Others()).WithPayload(value)
		if err != nil {
			return err
		}
		env.Object = v.object
		env.Field = v.name
		env.Seq = v.seq
		if err = v.reg.sender.Send(env); err != nil {
			v.logger.Warn("Failed to replicate value", log.Error(err))
		}
	}

	v.notify(previous, value)
	return nil
}

func (v *Value[T]) redirect(value T) error {
	writer := v.Writer()
	env, err := protocol.NewEnvelope(protocol.KindWriteRequest, v.reg.LocalID(), protocol.Peer(writer)).WithPayload(value)
	if err != nil {
		return err
	}
	env.Object = v.object
	env.Field = v.name
	v.logger.Debug("Redirecting write to writer", log.Uint64("writer", uint64(writer)))
	return v.reg.sender.Send(env)
}

// Subscribe adds an observer and returns its handle for Unsubscribe.
func (v *Value[T]) Subscribe(fn Observer[T]) uuid.UUID {
	id := uuid.New()
	v.observers = append(v.observers, subscription[T]{id: id, fn: fn})
	return id
}

// Unsubscribe removes an observer; it reports whether it was present.
func (v *Value[T]) Unsubscribe(id uuid.UUID) bool {
	for i, sub := range v.observers {
		if sub.id == id {
			v.observers = append(v.observers[:i], v.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Observers is the number of live subscriptions.
func (v *Value[T]) Observers() int { return len(v.observers) }

func (v *Value[T]) notify(previous, current T) {
	observers := append([]subscription[T](nil), v.observers...)
	for _, sub := range observers {
		sub.fn(previous, current)
	}
}

func (v *Value[T]) applyUpdate(env *protocol.Envelope) error {
	if writer := v.Writer(); env.From != writer {
		v.logger.Warn("Dropped update from non-writer",
			log.Uint64("from", uint64(env.From)),
			log.Uint64("writer", uint64(writer)))
		return ErrNotAuthority
	}
	if env.Seq <= v.seq {
		v.logger.Debug("Dropped stale update", log.Uint64("seq", env.Seq), log.Uint64("applied", v.seq))
		return nil
	}

	var value T
	if err := env.Decode(&value); err != nil {
		return err
	}
	v.seq = env.Seq
	if value == v.value {
		return nil
	}
	previous := v.value
	v.value = value
	v.notify(previous, value)
	return nil
}

func (v *Value[T]) applyWriteRequest(env *protocol.Envelope) error {
	if !v.CanWrite() {
		v.logger.Warn("Write request reached a non-writer", log.Uint64("from", uint64(env.From)))
		return ErrNotAuthority
	}
	var value T
	if err := env.Decode(&value); err != nil {
		return err
	}
	return v.Set(value)
}

func (v *Value[T]) detach() {
	v.detached = true
	v.observers = nil
}
