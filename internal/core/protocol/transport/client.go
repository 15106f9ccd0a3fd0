package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
)

var _ Transport = (*Client)(nil)

// Client is the joining side of a star session. All of its traffic goes to
// the host, which relays whatever is addressed to other clients.
type Client struct {
	id     protocol.PeerID
	conn   Conn
	opts   Options
	logger log.Log
	rtt    atomic.Int64

	inbox chan *protocol.Envelope

	errMu     sync.Mutex
	err       error
	failed    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient waits for the host greeting on conn and starts reading.
func NewClient(conn Conn, opts Options, logger log.Log) (*Client, error) {
	if logger == nil {
		logger = log.Provide()
	}
	opts = opts.withDefaults()

	hello, err := conn.ReadEnvelope()
	if err != nil {
		_ = conn.Close()
		return nil, protocol.NewProtocolError(protocol.ErrorCodeHandshakeFailed, "read hello", err)
	}
	if hello.Kind != protocol.KindHello || hello.Target.Kind != protocol.TargetPeer {
		_ = conn.Close()
		return nil, errors.Wrapf(protocol.ErrHandshakeFailed, "unexpected %s", hello.Kind)
	}

	c := &Client{
		id:     hello.Target.Peer,
		conn:   conn,
		opts:   opts,
		inbox:  make(chan *protocol.Envelope, opts.InboxSize),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
	c.logger = logger.With(
		log.String("component", "client_transport"),
		log.Uint64("peer", uint64(c.id)),
	)
	c.logger.Info("Joined host", log.String("remote_addr", conn.RemoteAddr()))

	go c.serve()
	return c, nil
}

func (c *Client) LocalID() protocol.PeerID { return c.id }

func (c *Client) IsServer() bool { return false }

func (c *Client) Inbox() <-chan *protocol.Envelope { return c.inbox }

func (c *Client) RoundTripTime() time.Duration { return time.Duration(c.rtt.Load()) }

func (c *Client) Send(env *protocol.Envelope) error {
	select {
	case <-c.closed:
		return protocol.ErrClosed
	case <-c.failed:
		return c.Err()
	default:
	}
	env.From = c.id
	return c.conn.WriteEnvelope(env)
}

// Err returns the failure that ended the link, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) serve() {
	for {
		env, err := c.conn.ReadEnvelope()
		if err != nil {
			c.fail(err)
			return
		}
		switch env.Kind {
		case protocol.KindPing:
			if err = c.Send(protocol.Pong(c.id, env)); err != nil {
				c.fail(err)
				return
			}
		case protocol.KindPong:
			c.rtt.Store(int64(env.RoundTrip(time.Now())))
		default:
			select {
			case c.inbox <- env:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Client) fail(err error) {
	select {
	case <-c.closed:
		return
	default:
	}
	c.errMu.Lock()
	if c.err == nil {
		c.err = protocol.NewProtocolError(protocol.ErrorCodeConnectionLost, "host link", err)
		close(c.failed)
	}
	c.errMu.Unlock()
	c.logger.Warn("Host connection lost", log.Error(err))
}

// Run pings the host until ctx is done, and returns the link failure if the
// host goes away first.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		case <-c.failed:
			return c.Err()
		case <-ticker.C:
			if err := c.Send(protocol.Ping(c.id, protocol.Server())); err != nil {
				c.fail(err)
			}
		}
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
