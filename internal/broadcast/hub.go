// Package broadcast implements a minimal in-memory fan-out collaborator for
// wsd: every connected client's Text messages are relayed to every other
// connected client. It is a demonstration wired to the ws.Callbacks surface,
// not part of the protocol core.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/quietloop/gwss/pkg/ws"
)

// Sender is the subset of *ws.Server a Hub needs to push messages back out.
// ws.Server satisfies it.
type Sender interface {
	SendText(id ws.ConnID, data []byte) error
}

// Hub tracks every currently open connection behind its own mutex, per the
// shared-resource policy that callbacks must synchronize any state they
// touch themselves.
type Hub struct {
	sender Sender
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[ws.ConnID]struct{}
}

// NewHub builds a Hub that pushes outbound messages through sender. sender
// may be nil at construction time and set later with SetSender, since a
// ws.Server typically doesn't exist yet until after its callbacks (which the
// Hub supplies) are built.
func NewHub(sender Sender, logger zerolog.Logger) *Hub {
	return &Hub{
		sender:  sender,
		logger:  logger,
		clients: make(map[ws.ConnID]struct{}),
	}
}

// SetSender installs the sender used by Broadcast. It must be called before
// any client connects.
func (h *Hub) SetSender(sender Sender) {
	h.mu.Lock()
	h.sender = sender
	h.mu.Unlock()
}

// OnOpen is a ws.Callbacks.OnOpen hook: it registers the new connection.
func (h *Hub) OnOpen(id ws.ConnID) {
	h.mu.Lock()
	h.clients[id] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Uint64("conn_id", uint64(id)).Int("clients", n).Msg("client connected")
}

// OnClose is a ws.Callbacks.OnClose hook: it forgets the connection.
func (h *Hub) OnClose(id ws.ConnID) {
	h.mu.Lock()
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Uint64("conn_id", uint64(id)).Int("clients", n).Msg("client disconnected")
}

// OnMessage is a ws.Callbacks.OnMessage hook: Text messages are broadcast to
// every other connected client; Binary messages are dropped.
func (h *Hub) OnMessage(id ws.ConnID, isText bool, data []byte) {
	if !isText {
		return
	}
	h.Broadcast(id, data)
}

// OnError is a ws.Callbacks.OnError hook: it logs the failure.
func (h *Hub) OnError(id ws.ConnID, err error) {
	h.logger.Warn().Err(err).Uint64("conn_id", uint64(id)).Msg("connection error")
}

// Broadcast relays data to every connected client except from.
func (h *Hub) Broadcast(from ws.ConnID, data []byte) {
	h.mu.Lock()
	sender := h.sender
	ids := make([]ws.ConnID, 0, len(h.clients))
	for id := range h.clients {
		if id != from {
			ids = append(ids, id)
		}
	}
	h.mu.Unlock()

	for _, id := range ids {
		if err := sender.SendText(id, data); err != nil {
			h.logger.Warn().Err(err).Uint64("conn_id", uint64(id)).Msg("broadcast send failed")
		}
	}
}
