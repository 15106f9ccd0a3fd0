// Package replication implements single-writer values mirrored on every peer.
// The writer is either the host or the current owner of an object; everyone
// else reads the last value it published and may observe changes.
package replication

import (
	"fmt"
	"strings"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
)

// Permission names who may write a value.
type Permission uint8

const (
	// WriteOwner lets the current owner of the object write.
	WriteOwner Permission = iota
	// WriteServer lets only the host write.
	WriteServer
)

func (p Permission) String() string {
	if p == WriteServer {
		return "server"
	}
	return "owner"
}

// Owned reports the current owner of an object.
type Owned interface {
	Owner() protocol.PeerID
}

// WritePolicy decides what happens when a peer that is not the writer calls Set.
type WritePolicy uint8

const (
	// Reject fails the write with ErrNotAuthority.
	Reject WritePolicy = iota
	// Redirect forwards the value to the writer, which applies it as its own.
	Redirect
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return Reject, nil
	case "redirect":
		return Redirect, nil
	default:
		return Reject, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

func (p WritePolicy) String() string {
	if p == Redirect {
		return "redirect"
	}
	return "reject"
}

type fieldKey struct {
	object protocol.ObjectID
	name   string
}

type field interface {
	applyUpdate(env *protocol.Envelope) error
	applyWriteRequest(env *protocol.Envelope) error
	detach()
}

// Registry routes value updates between the transport and the values of one
// peer. It must only be used from the logic goroutine.
type Registry struct {
	sender protocol.Sender
	policy WritePolicy
	logger log.Log
	fields map[fieldKey]field
}

func NewRegistry(sender protocol.Sender, policy WritePolicy, logger log.Log) *Registry {
	if logger == nil {
		logger = log.Provide()
	}
	return &Registry{
		sender: sender,
		policy: policy,
		logger: logger.With(log.String("component", "replication")),
		fields: make(map[fieldKey]field),
	}
}

// LocalID is the id of the peer the registry runs on.
func (r *Registry) LocalID() protocol.PeerID { return r.sender.LocalID() }

// Policy returns the configured non-writer policy.
func (r *Registry) Policy() WritePolicy { return r.policy }

func (r *Registry) add(key fieldKey, f field) error {
	if _, ok := r.fields[key]; ok {
		return fmt.Errorf("%w: %s.%s", ErrDuplicate, key.object, key.name)
	}
	r.fields[key] = f
	return nil
}

// Handle applies an inbound KindValue or KindWriteRequest envelope.
func (r *Registry) Handle(env *protocol.Envelope) error {
	f, ok := r.fields[fieldKey{object: env.Object, name: env.Field}]
	if !ok {
		r.logger.Debug("Update for unknown field",
			log.String("object", string(env.Object)),
			log.String("field", env.Field))
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, env.Object, env.Field)
	}

	switch env.Kind {
	case protocol.KindValue:
		return f.applyUpdate(env)
	case protocol.KindWriteRequest:
		return f.applyWriteRequest(env)
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnexpectedMessage, env.Kind)
	}
}

// Remove detaches every value of object; used when the object despawns.
func (r *Registry) Remove(object protocol.ObjectID) {
	for key, f := range r.fields {
		if key.object == object {
			f.detach()
			delete(r.fields, key)
		}
	}
}

// Len is the number of registered values.
func (r *Registry) Len() int { return len(r.fields) }
