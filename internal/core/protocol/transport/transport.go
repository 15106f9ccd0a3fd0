// Package transport moves protocol envelopes between the peers of a session.
// Every implementation keeps per-sender FIFO order; client traffic addressed
// to other clients is relayed by the host in arrival order.
package transport

import (
	"context"
	"time"

	"github.com/zeusync/courtsync/internal/core/protocol"
)

// Transport is the link of one peer to the rest of the session.
type Transport interface {
	protocol.Sender

	// Inbox delivers inbound envelopes to the logic goroutine.
	Inbox() <-chan *protocol.Envelope
	// RoundTripTime is the latest measured round trip to the host, or the
	// worst one over all clients when called on the host.
	RoundTripTime() time.Duration
	// Run keeps the link alive until ctx is done or the link fails.
	Run(ctx context.Context) error
	Close() error
}

// Options tune the network transports.
type Options struct {
	InboxSize    int
	PingInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		InboxSize:    256,
		PingInterval: time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.InboxSize <= 0 {
		o.InboxSize = def.InboxSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	return o
}
