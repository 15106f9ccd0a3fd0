// Package quic carries session envelopes over a single bidirectional QUIC
// stream per peer, framed with the shared length-prefixed codec.
package quic

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
)

const handshakeTimeout = 5 * time.Second

func defaultConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      5 * time.Second,
		HandshakeIdleTimeout: handshakeTimeout,
	}
}

type streamRWC struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func (s *streamRWC) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *streamRWC) Write(p []byte) (int, error) { return s.stream.Write(p) }

func (s *streamRWC) Close() error {
	_ = s.stream.Close()
	return s.conn.CloseWithError(0, "closed")
}

// Server accepts QUIC peers and attaches them to the host transport.
type Server struct {
	host   *transport.Host
	tls    *tls.Config
	logger log.Log
}

func NewServer(host *transport.Host, tlsConfig *tls.Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	return &Server{
		host:   host,
		tls:    tlsConfig,
		logger: logger.With(log.String("protocol", "quic")),
	}
}

// Listen opens the UDP listener without serving it yet.
func (s *Server) Listen(addr string) (*quic.Listener, error) {
	listener, err := quic.ListenAddr(addr, s.tls, defaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to start QUIC listener")
	}
	return listener, nil
}

// ListenAndServe serves QUIC peers on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := s.Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener *quic.Listener) error {
	defer listener.Close()
	s.logger.Info("QUIC host listening", log.String("address", listener.Addr().String()))

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept QUIC connection")
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn *quic.Conn) {
	acceptCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(acceptCtx)
	if err != nil {
		s.logger.Warn("Peer opened no stream", log.String("remote_addr", conn.RemoteAddr().String()), log.Error(err))
		_ = conn.CloseWithError(1, "no stream")
		return
	}

	framed := transport.NewStreamConn(&streamRWC{conn: conn, stream: stream}, conn.RemoteAddr().String())
	hello, err := framed.ReadEnvelope()
	if err != nil || hello.Kind != protocol.KindHello {
		s.logger.Warn("Peer skipped hello", log.String("remote_addr", conn.RemoteAddr().String()))
		_ = framed.Close()
		return
	}

	if _, err = s.host.Attach(framed); err != nil {
		s.logger.Warn("Failed to attach QUIC peer", log.Error(err))
	}
}

// Dial joins the QUIC host at addr. The client speaks first so the host's
// stream accept returns.
func Dial(ctx context.Context, addr string, opts transport.Options, logger log.Log) (*transport.Client, error) {
	conn, err := quic.DialAddr(ctx, addr, clientTLS(), defaultConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream")
		return nil, errors.Wrap(err, "open stream")
	}

	framed := transport.NewStreamConn(&streamRWC{conn: conn, stream: stream}, conn.RemoteAddr().String())
	if err = framed.WriteEnvelope(protocol.NewEnvelope(protocol.KindHello, 0, protocol.Server())); err != nil {
		_ = framed.Close()
		return nil, err
	}
	return transport.NewClient(framed, opts, logger)
}
