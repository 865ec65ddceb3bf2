package ws

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnID opaquely identifies a connection for the lifetime of its worker. It
// is generated by an atomic counter owned by the Server, never derived from
// the underlying net.Conn or file descriptor, so identity is decoupled from
// resource ownership (§9's "raw stream handles as identifiers" design note).
type ConnID uint64

// Callbacks are the four user hooks the connection loop dispatches to (§6).
// Any nil callback is simply skipped. Callbacks may be invoked concurrently
// from different connections' workers; callers own synchronization of any
// shared state they touch from inside a callback (§5).
type Callbacks struct {
	// OnOpen fires once, after a successful opening handshake.
	OnOpen func(id ConnID)
	// OnMessage fires once per assembled application message. isText
	// distinguishes a Text message from a Binary one. Empty messages are
	// still delivered.
	OnMessage func(id ConnID, isText bool, data []byte)
	// OnClose fires exactly once per connection whose OnOpen fired, after
	// the worker's loop exits for any reason.
	OnClose func(id ConnID)
	// OnError is optional; it may fire on send or protocol errors.
	OnError func(id ConnID, err error)
}

// assembling holds the in-progress state of a fragmented message, per the
// Message data model in §3: non-nil iff the last processed data frame had
// Fin=false or more fragments are still expected.
type assembling struct {
	opcode Opcode
	data   []byte
}

// conn is one accepted, handshaken connection and its worker state.
type conn struct {
	id      ConnID
	server  *Server
	netConn net.Conn
	br      *bufio.Reader

	traceID string
	logger  zerolog.Logger

	writeMu   sync.Mutex
	closeSent bool

	assembling *assembling
}

// deliver invokes OnMessage for a completed message, per §4.4's
// deliver_message step. Called with the connection's accumulated bytes
// (possibly zero-length) and whether it is a Text (vs Binary) message.
func (c *conn) deliver(isText bool, data []byte) {
	if c.server.callbacks.OnMessage != nil {
		c.server.callbacks.OnMessage(c.id, isText, data)
	}
}

// send writes a single frame to the wire, serialized against any other
// concurrent sender for this connection (§5's "wrap per-connection write
// with a mutex" recommendation). Once closeSent is true, only a Close frame
// is written and anything else is silently dropped (§3 invariant); the
// server's own Close frame is written by sendClose.
func (c *conn) send(opcode Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closeSent && opcode != OpcodeClose {
		return nil
	}
	if d := c.server.writeTimeout; d > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(d))
	}
	return writeFrame(c.netConn, opcode, payload)
}

// sendClose writes a Close frame with the given status and marks closeSent,
// so that no further data frames are emitted (§3 invariant, §4.4 tail). It is
// safe to call more than once; only the first call writes anything.
func (c *conn) sendClose(status StatusCode) {
	c.writeMu.Lock()
	alreadySent := c.closeSent
	c.closeSent = true
	c.writeMu.Unlock()
	if alreadySent {
		return
	}

	var payload [2]byte
	payload[0] = byte(status >> 8)
	payload[1] = byte(status)
	if d := c.server.writeTimeout; d > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(d))
	}
	if err := writeFrame(c.netConn, OpcodeClose, payload[:]); err != nil {
		c.reportError(err)
	}
}

// run drives the connection loop (§4.4) until the connection closes for any
// reason, then fires OnClose exactly once. It assumes the opening handshake
// has already completed successfully.
func (c *conn) run() {
	if c.server.callbacks.OnOpen != nil {
		c.server.callbacks.OnOpen(c.id)
	}

	status, shouldReply := c.loop()
	if shouldReply {
		c.sendClose(status)
	}
	_ = c.netConn.Close()

	if c.server.callbacks.OnClose != nil {
		c.server.callbacks.OnClose(c.id)
	}
}

// loop implements §4.4's pseudocode: read one frame, classify its opcode,
// react, repeat until an error, a protocol violation, or a Close frame ends
// the connection. It returns the status that should be sent in the server's
// own Close frame, and whether a Close frame should be sent at all (it is
// skipped when the peer's stream is already gone).
func (c *conn) loop() (status StatusCode, shouldReply bool) {
	maxMessage := c.server.maxMessageSize

	for {
		if d := c.server.readTimeout; d > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(d))
		}

		frame, err := readFrame(c.br, maxMessage)
		if err != nil {
			return c.handleReadError(err)
		}

		switch {
		case frame.Opcode == OpcodeContinuation:
			status, done := c.handleContinuation(frame)
			if done {
				return status, true
			}
		case frame.Opcode == OpcodeText || frame.Opcode == OpcodeBinary:
			status, done := c.handleDataStart(frame)
			if done {
				return status, true
			}
		case frame.Opcode == OpcodePing:
			if err := c.send(OpcodePong, frame.Payload); err != nil {
				c.reportError(err)
				return StatusInternalError, false
			}
		case frame.Opcode == OpcodePong:
			// No keepalive timer in the core; pongs are simply acknowledged by ignoring them.
		case frame.Opcode == OpcodeClose:
			return c.handleClose(frame), true
		}
	}
}

// handleReadError maps a read failure to the close status the server would
// report, per §7's error-kind table, and whether a Close frame reply makes
// sense at all (it doesn't, if the peer's stream is already gone).
func (c *conn) handleReadError(err error) (status StatusCode, shouldReply bool) {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		c.logger.Debug().Str("conn_trace", c.traceID).Str("reason", protoErr.Reason).Msg("protocol violation, closing")
		return protoErr.Status, true
	}
	if errors.Is(err, ErrMessageTooLarge) {
		c.logger.Debug().Str("conn_trace", c.traceID).Msg("message too large, closing")
		return StatusMessageTooBig, true
	}
	if errors.Is(err, ErrPeerClosed) {
		c.logger.Debug().Str("conn_trace", c.traceID).Msg("peer closed connection")
		return StatusGoingAway, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Debug().Str("conn_trace", c.traceID).Msg("read timeout, closing")
		return StatusInternalError, true
	}
	c.reportError(err)
	return StatusInternalError, false
}

// handleContinuation processes a Continuation frame (§4.4). done is true
// when the loop should stop and return status as the final close status.
func (c *conn) handleContinuation(frame Frame) (status StatusCode, done bool) {
	if c.assembling == nil {
		c.logger.Debug().Str("conn_trace", c.traceID).Msg("continuation with nothing to continue")
		return StatusProtocolError, true
	}
	if err := c.appendFragment(frame.Payload); err != nil {
		return StatusMessageTooBig, true
	}
	if frame.Fin {
		c.deliver(c.assembling.opcode == OpcodeText, c.assembling.data)
		c.assembling = nil
	}
	return 0, false
}

// handleDataStart processes a Text or Binary frame that starts (and
// possibly completes) a message (§4.4).
func (c *conn) handleDataStart(frame Frame) (status StatusCode, done bool) {
	if c.assembling != nil {
		c.logger.Debug().Str("conn_trace", c.traceID).Msg("data frame received mid-fragmentation")
		return StatusProtocolError, true
	}
	if frame.Fin {
		c.deliver(frame.Opcode == OpcodeText, frame.Payload)
		return 0, false
	}
	c.assembling = &assembling{opcode: frame.Opcode, data: append([]byte(nil), frame.Payload...)}
	return 0, false
}

// appendFragment grows the in-progress assembled message with a new
// fragment, enforcing the bounded-allocation rule of §4.4: the running
// total plus the incoming fragment must not exceed the server's configured
// message cap.
func (c *conn) appendFragment(payload []byte) error {
	total := int64(len(c.assembling.data)) + int64(len(payload))
	if total > c.server.maxMessageSize {
		return ErrMessageTooLarge
	}
	c.assembling.data = append(c.assembling.data, payload...)
	return nil
}

// handleClose processes an incoming Close frame (§4.4): it determines the
// status code, and either echoes it verbatim (if allowed) or replaces it
// with 1002. The connection loop always terminates after a Close frame.
func (c *conn) handleClose(frame Frame) StatusCode {
	status := closeStatusFromPayload(frame.Payload)
	if allowedCloseStatus(status) {
		return status
	}
	return StatusProtocolError
}

// closeStatusFromPayload extracts the status code from a Close frame's
// payload, per §4.4: 1000 if the payload is empty, otherwise the first two
// bytes parsed big-endian (the spec's deliberate correction of the source's
// swapped-byte-order bug, §9).
func closeStatusFromPayload(payload []byte) StatusCode {
	if len(payload) == 0 {
		return StatusNormalClosure
	}
	return StatusCode(uint16(payload[0])<<8 | uint16(payload[1]))
}

// reportError funnels an unexpected error to both the structured logger and
// the optional OnError callback (§6/§7's SendFailed surfacing).
func (c *conn) reportError(err error) {
	c.logger.Warn().Err(err).Str("conn_trace", c.traceID).Msg("connection error")
	if c.server.callbacks.OnError != nil {
		c.server.callbacks.OnError(c.id, err)
	}
}
