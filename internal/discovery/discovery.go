// Package discovery finds the host on the local network. The host
// broadcasts a fixed UDP payload; clients listen for it and remember the
// sender address.
package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/zeusync/courtsync/internal/core/observability/log"
)

const (
	DefaultPort     = 47777
	DefaultPayload  = "NGO_HOST"
	DefaultInterval = time.Second
)

// AnyPort binds a listener to a free port.
const AnyPort = -1

var ErrStopped = errors.New("discovery: listener stopped")

type Options struct {
	Port     int
	Payload  string
	Interval time.Duration
	// Target overrides the broadcast address, mostly for tests.
	Target string
}

func DefaultOptions() Options {
	return Options{Port: DefaultPort, Payload: DefaultPayload, Interval: DefaultInterval}
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Payload == "" {
		o.Payload = DefaultPayload
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Target == "" {
		o.Target = net.IPv4bcast.String()
	}
	return o
}

// Broadcaster announces the host.
type Broadcaster struct {
	conn    *net.UDPConn
	target  *net.UDPAddr
	payload []byte
	every   time.Duration
	logger  log.Log
}

func NewBroadcaster(opts Options, logger log.Log) (*Broadcaster, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = log.Provide()
	}
	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.Target, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolve broadcast address")
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open broadcast socket")
	}
	return &Broadcaster{
		conn:    conn,
		target:  target,
		payload: []byte(opts.Payload),
		every:   opts.Interval,
		logger:  logger.With(log.String("component", "discovery")),
	}, nil
}

// Broadcast sends one announcement.
func (b *Broadcaster) Broadcast() error {
	if _, err := b.conn.WriteToUDP(b.payload, b.target); err != nil {
		return pkgerrors.Wrap(err, "broadcast")
	}
	b.logger.Debug("Broadcasting host", log.String("to", b.target.String()))
	return nil
}

// Run broadcasts every interval until ctx is done. Send failures are logged
// and retried on the next tick.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.every)
	defer ticker.Stop()
	for {
		if err := b.Broadcast(); err != nil {
			b.logger.Warn("Broadcast failed", log.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) Close() error { return b.conn.Close() }

// Listener waits for host announcements. FoundAddress may be read from any
// goroutine.
type Listener struct {
	conn    *net.UDPConn
	payload string
	logger  log.Log

	found     atomic.Value
	stopped   atomic.Bool
	foundOnce sync.Once
	foundCh   chan struct{}
	stopCh    chan struct{}
}

func Listen(opts Options, logger log.Log) (*Listener, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = log.Provide()
	}
	port := opts.Port
	if port == AnyPort {
		port = 0
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listen for host broadcasts")
	}
	l := &Listener{
		conn:    conn,
		payload: opts.Payload,
		logger:  logger.With(log.String("component", "discovery")),
		foundCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
	l.found.Store("")
	return l, nil
}

// Port is the UDP port the listener is bound to.
func (l *Listener) Port() int { return l.conn.LocalAddr().(*net.UDPAddr).Port }

// FoundAddress is the IP of the last host heard, or "" before any.
func (l *Listener) FoundAddress() string { return l.found.Load().(string) }

// Found is closed once the first host has been heard.
func (l *Listener) Found() <-chan struct{} { return l.foundCh }

// StopListening closes the socket and ends Run.
func (l *Listener) StopListening() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stopCh)
		_ = l.conn.Close()
	}
}

// Run receives announcements until StopListening is called or ctx is done.
// Malformed packets are ignored.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			l.StopListening()
		case <-l.stopCh:
		}
	}()

	buf := make([]byte, 512)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if l.stopped.Load() {
				return nil
			}
			l.logger.Debug("Discovery read failed", log.Error(err))
			continue
		}
		if string(buf[:n]) != l.payload {
			continue
		}
		addr := from.IP.String()
		if l.FoundAddress() != addr {
			l.logger.Info("Found host", log.String("address", addr))
		}
		l.found.Store(addr)
		l.foundOnce.Do(func() { close(l.foundCh) })
	}
}

// Wait blocks until a host is found, ctx is done or the listener stops.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	select {
	case <-l.foundCh:
		return l.FoundAddress(), nil
	case <-l.stopCh:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
