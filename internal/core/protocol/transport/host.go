package transport

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
)

var _ Transport = (*Host)(nil)

type remotePeer struct {
	id   protocol.PeerID
	conn Conn
	rtt  atomic.Int64
}

// Host is the server side of a star session over real connections. Each
// attached connection gets its own read goroutine; envelopes are stamped with
// the connection's peer id and relayed to the other clients in arrival order.
type Host struct {
	opts   Options
	logger log.Log

	mu     sync.RWMutex
	peers  map[protocol.PeerID]*remotePeer
	nextID protocol.PeerID

	inbox     chan *protocol.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func NewHost(opts Options, logger log.Log) *Host {
	if logger == nil {
		logger = log.Provide()
	}
	opts = opts.withDefaults()
	return &Host{
		opts:   opts,
		logger: logger.With(log.String("component", "host_transport")),
		peers:  make(map[protocol.PeerID]*remotePeer),
		nextID: protocol.ServerPeerID + 1,
		inbox:  make(chan *protocol.Envelope, opts.InboxSize),
		closed: make(chan struct{}),
	}
}

func (h *Host) LocalID() protocol.PeerID { return protocol.ServerPeerID }

func (h *Host) IsServer() bool { return true }

func (h *Host) Inbox() <-chan *protocol.Envelope { return h.inbox }

// Attach greets conn with its peer id and starts serving it.
func (h *Host) Attach(conn Conn) (protocol.PeerID, error) {
	select {
	case <-h.closed:
		return 0, protocol.ErrClosed
	default:
	}

	h.mu.Lock()
	peer := &remotePeer{id: h.nextID, conn: conn}
	h.nextID++
	h.mu.Unlock()

	hello := protocol.NewEnvelope(protocol.KindHello, protocol.ServerPeerID, protocol.Peer(peer.id))
	if err := conn.WriteEnvelope(hello); err != nil {
		_ = conn.Close()
		return 0, protocol.NewProtocolError(protocol.ErrorCodeHandshakeFailed, "send hello", err)
	}

	h.mu.Lock()
	h.peers[peer.id] = peer
	h.mu.Unlock()

	h.logger.Info("Peer attached",
		log.Uint64("peer", uint64(peer.id)),
		log.String("remote_addr", conn.RemoteAddr()))

	go h.serve(peer)
	return peer.id, nil
}

// Peers lists the attached client ids in ascending order.
func (h *Host) Peers() []protocol.PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]protocol.PeerID, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Host) serve(peer *remotePeer) {
	defer h.detach(peer)
	for {
		env, err := peer.conn.ReadEnvelope()
		if err != nil {
			select {
			case <-h.closed:
			default:
				h.logger.Warn("Peer connection lost",
					log.Uint64("peer", uint64(peer.id)),
					log.Error(err))
			}
			return
		}
		env.From = peer.id

		switch env.Kind {
		case protocol.KindPing:
			if err = peer.conn.WriteEnvelope(protocol.Pong(protocol.ServerPeerID, env)); err != nil {
				return
			}
		case protocol.KindPong:
			peer.rtt.Store(int64(env.RoundTrip(time.Now())))
		default:
			h.route(env)
		}
	}
}

func (h *Host) route(env *protocol.Envelope) {
	if env.Target.Includes(protocol.ServerPeerID, env.From) {
		select {
		case h.inbox <- env:
		case <-h.closed:
			return
		}
	}
	h.broadcast(env)
}

// broadcast writes env to every attached client it targets, sender excluded.
func (h *Host) broadcast(env *protocol.Envelope) {
	h.mu.RLock()
	targets := make([]*remotePeer, 0, len(h.peers))
	for id, peer := range h.peers {
		if id != env.From && env.Target.Includes(id, env.From) {
			targets = append(targets, peer)
		}
	}
	h.mu.RUnlock()

	for _, peer := range targets {
		if err := peer.conn.WriteEnvelope(env); err != nil {
			h.logger.Warn("Failed to relay envelope",
				log.Uint64("peer", uint64(peer.id)),
				log.String("kind", env.Kind.String()),
				log.Error(err))
			_ = peer.conn.Close()
		}
	}
}

func (h *Host) detach(peer *remotePeer) {
	h.mu.Lock()
	delete(h.peers, peer.id)
	h.mu.Unlock()
	_ = peer.conn.Close()
	h.logger.Info("Peer detached", log.Uint64("peer", uint64(peer.id)))
}

func (h *Host) Send(env *protocol.Envelope) error {
	select {
	case <-h.closed:
		return protocol.ErrClosed
	default:
	}
	env.From = protocol.ServerPeerID
	h.broadcast(env)
	return nil
}

func (h *Host) RoundTripTime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var worst time.Duration
	for _, peer := range h.peers {
		if rtt := time.Duration(peer.rtt.Load()); rtt > worst {
			worst = rtt
		}
	}
	return worst
}

// Run pings every attached client until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.closed:
			return nil
		case <-ticker.C:
			h.broadcast(protocol.Ping(protocol.ServerPeerID, protocol.Others()))
		}
	}
}

func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		for _, peer := range h.peers {
			_ = peer.conn.Close()
		}
		h.mu.Unlock()
	})
	return nil
}
