package transport

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/courtsync/internal/core/protocol"
)

// Conn is a bidirectional envelope stream to a single remote peer.
// ReadEnvelope is called from one goroutine only; WriteEnvelope may be
// called concurrently.
type Conn interface {
	ReadEnvelope() (*protocol.Envelope, error)
	WriteEnvelope(env *protocol.Envelope) error
	RemoteAddr() string
	Close() error
}

var _ Conn = (*StreamConn)(nil)

// StreamConn frames envelopes over a byte stream with a length prefix.
type StreamConn struct {
	rwc     io.ReadWriteCloser
	remote  string
	codec   protocol.Codec
	writeMu sync.Mutex
}

func NewStreamConn(rwc io.ReadWriteCloser, remote string) *StreamConn {
	return &StreamConn{
		rwc:    rwc,
		remote: remote,
		codec:  protocol.JSONCodec{},
	}
}

func (c *StreamConn) ReadEnvelope() (*protocol.Envelope, error) {
	frame, err := protocol.ReadFrame(c.rwc)
	if err != nil {
		return nil, errors.Wrap(err, "read frame")
	}
	return c.codec.Decode(frame)
}

func (c *StreamConn) WriteEnvelope(env *protocol.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrap(protocol.WriteFrame(c.rwc, data), "write frame")
}

func (c *StreamConn) RemoteAddr() string { return c.remote }

func (c *StreamConn) Close() error { return c.rwc.Close() }
