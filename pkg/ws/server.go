package ws

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultMaxMessageSize is the default cap on an assembled message's total
// size (across all of its fragments), per §4.4's bounded-allocation rule and
// §9's "maximum message size" design note.
const defaultMaxMessageSize = 16 << 20 // 16 MiB

// Server is a handle that owns one WebSocket endpoint's callback set and
// connection table. Unlike the reference implementation's process-wide
// callback slot (§9), nothing here is package-global: a process may run any
// number of independent Servers.
type Server struct {
	callbacks Callbacks
	logger    zerolog.Logger

	maxMessageSize int64
	readTimeout    time.Duration
	writeTimeout   time.Duration

	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[ConnID]*conn
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger installs a zerolog.Logger for the server and every connection
// it accepts. The default is the package-level github.com/rs/zerolog/log
// logger; tests typically install zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMaxMessageSize overrides the default 16 MiB cap on a single frame's
// declared length and on an assembled message's accumulated size (§4.2,
// §4.4). A message or frame exceeding this closes the connection with
// StatusMessageTooBig (1009).
func WithMaxMessageSize(n int64) Option {
	return func(s *Server) { s.maxMessageSize = n }
}

// WithReadTimeout sets a deadline applied before every frame read; exceeding
// it closes the connection with StatusInternalError (1011) (§5's
// "configurable read/write timeouts").
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets a deadline applied before every frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// NewServer constructs a Server with the given callbacks installed (§6).
// callbacks.OnOpen/OnMessage/OnClose/OnError may be nil individually; a nil
// Server-wide callback is simply skipped when its event fires.
func NewServer(callbacks Callbacks, opts ...Option) *Server {
	s := &Server{
		callbacks:      callbacks,
		logger:         log.Logger,
		maxMessageSize: defaultMaxMessageSize,
		conns:          make(map[ConnID]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe binds to addr (host:port, or ":port" for a dual-stack
// wildcard bind) and blocks, accepting connections forever (§4.5/§6's
// listen). Each accepted connection's handshake and frame loop run on their
// own goroutine; ListenAndServe itself never returns a worker's error — per
// §7, acceptor-level errors are logged and the acceptor continues, while
// per-connection errors are local to that connection's worker.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", addr, err)
	}
	defer ln.Close()

	return s.Serve(ln)
}

// Serve accepts connections from an already-bound listener until the
// listener is closed, dispatching each to its own worker goroutine (§4.5).
// Any other accept error is logged and accepting continues.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("websocket server listening")

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("websocket: accept: %w", err)
			}
			s.logger.Error().Err(err).Msg("accept failed")
			continue
		}
		go s.serveConn(netConn)
	}
}

// serveConn is the per-connection worker: handshake, then the frame loop,
// then teardown (§4.5).
func (s *Server) serveConn(netConn net.Conn) {
	traceID := shortuuid.New()
	logger := s.logger.With().Str("conn_trace", traceID).Str("remote_addr", netConn.RemoteAddr().String()).Logger()

	req, br, err := doHandshake(netConn)
	if err != nil {
		logger.Debug().Err(err).Msg("handshake failed")
		_ = netConn.Close()
		return
	}
	logger.Info().Str("request_uri", req.RequestURI).Msg("handshake completed")

	id := ConnID(s.nextID.Add(1))
	c := &conn{
		id:      id,
		server:  s,
		netConn: netConn,
		br:      br,
		traceID: traceID,
		logger:  logger,
	}

	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	c.run()
}

// SendText sends one complete, unfragmented Text message to the connection
// identified by id. It returns ErrConnNotFound if id does not name a
// currently open connection (§6's send_text).
func (s *Server) SendText(id ConnID, data []byte) error {
	return s.send(id, OpcodeText, data)
}

// SendBinary sends one complete, unfragmented Binary message to the
// connection identified by id (§6's send_binary).
func (s *Server) SendBinary(id ConnID, data []byte) error {
	return s.send(id, OpcodeBinary, data)
}

func (s *Server) send(id ConnID, opcode Opcode, data []byte) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return ErrConnNotFound
	}

	if d := s.writeTimeout; d > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(d))
	}

	if err := c.send(opcode, data); err != nil {
		c.reportError(err)
		return err
	}
	return nil
}
