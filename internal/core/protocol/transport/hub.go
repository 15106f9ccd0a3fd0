package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/courtsync/internal/core/protocol"
)

var _ Transport = (*Endpoint)(nil)

// Hub connects in-process peers in a star around the host endpoint. It is
// used by tests and local sessions; latency is only reported, never applied,
// so delivery happens when the receiver drains its inbox.
type Hub struct {
	mu        sync.Mutex
	endpoints map[protocol.PeerID]*Endpoint
	order     []protocol.PeerID
	nextID    protocol.PeerID
	rtt       time.Duration
	inboxSize int
}

func NewHub(rtt time.Duration) *Hub {
	return &Hub{
		endpoints: make(map[protocol.PeerID]*Endpoint),
		nextID:    protocol.ServerPeerID + 1,
		rtt:       rtt,
		inboxSize: 1024,
	}
}

// Host returns the host endpoint, creating it on first use.
func (h *Hub) Host() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.endpoints[protocol.ServerPeerID]; ok {
		return ep
	}
	return h.addLocked(protocol.ServerPeerID)
}

// Join adds a client endpoint with the next free peer id.
func (h *Hub) Join() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	return h.addLocked(id)
}

func (h *Hub) addLocked(id protocol.PeerID) *Endpoint {
	ep := &Endpoint{
		hub:   h,
		id:    id,
		inbox: make(chan *protocol.Envelope, h.inboxSize),
		done:  make(chan struct{}),
	}
	ep.rtt.Store(int64(h.rtt))
	h.endpoints[id] = ep
	h.order = append(h.order, id)
	return ep
}

func (h *Hub) route(env *protocol.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.order {
		if id == env.From || !env.Target.Includes(id, env.From) {
			continue
		}
		ep := h.endpoints[id]
		if ep == nil || ep.closed.Load() || ep.partitioned.Load() {
			continue
		}
		select {
		case ep.inbox <- env:
		default:
			return protocol.ErrInboxFull
		}
	}
	return nil
}

func (h *Hub) remove(id protocol.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, id)
	for i, other := range h.order {
		if other == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Endpoint is one peer attached to a Hub.
type Endpoint struct {
	hub   *Hub
	id    protocol.PeerID
	inbox chan *protocol.Envelope
	rtt   atomic.Int64

	partitioned atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}
}

func (e *Endpoint) LocalID() protocol.PeerID { return e.id }

func (e *Endpoint) IsServer() bool { return e.id == protocol.ServerPeerID }

func (e *Endpoint) Inbox() <-chan *protocol.Envelope { return e.inbox }

func (e *Endpoint) RoundTripTime() time.Duration { return time.Duration(e.rtt.Load()) }

// SetRoundTripTime overrides the reported round trip.
func (e *Endpoint) SetRoundTripTime(d time.Duration) { e.rtt.Store(int64(d)) }

// SetPartitioned silently drops all traffic to and from the endpoint while set.
func (e *Endpoint) SetPartitioned(partitioned bool) { e.partitioned.Store(partitioned) }

func (e *Endpoint) Send(env *protocol.Envelope) error {
	if e.closed.Load() {
		return protocol.ErrClosed
	}
	if e.partitioned.Load() {
		return nil
	}
	env.From = e.id
	return e.hub.route(env)
}

func (e *Endpoint) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-e.done:
		return nil
	}
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.hub.remove(e.id)
		close(e.done)
	})
	return nil
}
