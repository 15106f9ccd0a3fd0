// Package websocket carries session envelopes over gorilla/websocket.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
)

// Path is the upgrade endpoint served by the host.
const Path = "/ws"

const writeTimeout = 5 * time.Second

var _ transport.Conn = (*conn)(nil)

type conn struct {
	ws      *websocket.Conn
	codec   protocol.Codec
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *conn {
	ws.SetReadLimit(protocol.MaxFrameSize)
	return &conn{ws: ws, codec: protocol.JSONCodec{}}
}

func (c *conn) ReadEnvelope() (*protocol.Envelope, error) {
	messageType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read websocket message")
	}
	if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
		return nil, errors.Wrapf(protocol.ErrInvalidMessage, "websocket message type %d", messageType)
	}
	return c.codec.Decode(data)
}

func (c *conn) WriteEnvelope(env *protocol.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return errors.Wrap(c.ws.WriteMessage(websocket.TextMessage, data), "write websocket message")
}

func (c *conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *conn) Close() error { return c.ws.Close() }

// Server upgrades HTTP requests and attaches them to the host transport.
type Server struct {
	host     *transport.Host
	upgrader websocket.Upgrader
	logger   log.Log
}

func NewServer(host *transport.Host, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	return &Server{
		host: host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// LAN only; any origin may join.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(log.String("protocol", "websocket")),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}
	if _, err = s.host.Attach(newConn(ws)); err != nil {
		s.logger.Warn("Failed to attach websocket peer", log.Error(err))
	}
}

// Handler serves Path on a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

// ListenAndServe serves websocket peers on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen websocket")
	}
	return s.Serve(ctx, listener)
}

// Serve serves websocket peers on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Websocket host listening", log.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve websocket")
	}
	return nil
}

// Dial joins the host at url, e.g. "ws://192.168.0.10:7777/ws".
func Dial(ctx context.Context, url string, opts transport.Options, logger log.Log) (*transport.Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return transport.NewClient(newConn(ws), opts, logger)
}
