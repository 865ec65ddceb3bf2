package ws

import (
	"errors"
	"fmt"
)

// ErrPeerClosed indicates the peer closed the TCP stream (EOF) while a
// frame was expected, i.e. an abnormal closure rather than a close handshake.
var ErrPeerClosed = errors.New("websocket: peer closed the connection")

// ErrHandshakeFailed indicates the opening handshake (§4.1) could not be
// completed: the request was malformed, too large, or lacked a
// Sec-WebSocket-Key header. No on_open or on_close callback fires for it.
var ErrHandshakeFailed = errors.New("websocket: opening handshake failed")

// ErrMessageTooLarge indicates a frame or an in-progress assembled message
// exceeded the server's configured maximum message size.
var ErrMessageTooLarge = errors.New("websocket: message exceeds maximum size")

// ErrConnNotFound indicates SendText/SendBinary was called with a ConnID
// that is not (or is no longer) open on this server.
var ErrConnNotFound = errors.New("websocket: connection not found")

// ProtocolError is returned whenever a peer's frame violates RFC 6455
// framing or sequencing rules (§4.2/§4.4). Status carries the close code
// that the connection loop sends in response before shutting the stream down.
type ProtocolError struct {
	Status StatusCode
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("websocket: protocol violation (%s): %s", e.Status, e.Reason)
}

func newProtocolError(reason string) *ProtocolError {
	return &ProtocolError{Status: StatusProtocolError, Reason: reason}
}
