package broadcast

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quietloop/gwss/pkg/ws"
)

// fakeSender records every SendText call instead of touching the network.
type fakeSender struct {
	mu   sync.Mutex
	sent map[ws.ConnID][][]byte
	fail ws.ConnID
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[ws.ConnID][][]byte)}
}

func (f *fakeSender) SendText(id ws.ConnID, data []byte) error {
	if id == f.fail {
		return ws.ErrConnNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = append(f.sent[id], data)
	return nil
}

func TestBroadcastExcludesSender(t *testing.T) {
	sender := newFakeSender()
	hub := NewHub(sender, zerolog.Nop())

	hub.OnOpen(1)
	hub.OnOpen(2)
	hub.OnOpen(3)

	hub.OnMessage(1, true, []byte("hi"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent[1]) != 0 {
		t.Fatalf("sender should not receive its own broadcast")
	}
	if len(sender.sent[2]) != 1 || len(sender.sent[3]) != 1 {
		t.Fatalf("expected both other clients to receive the broadcast, got %+v", sender.sent)
	}
}

func TestBroadcastIgnoresBinaryMessages(t *testing.T) {
	sender := newFakeSender()
	hub := NewHub(sender, zerolog.Nop())

	hub.OnOpen(1)
	hub.OnOpen(2)
	hub.OnMessage(1, false, []byte{0x01, 0x02})

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent[2]) != 0 {
		t.Fatalf("binary messages should not be broadcast")
	}
}

func TestOnCloseForgetsClient(t *testing.T) {
	sender := newFakeSender()
	hub := NewHub(sender, zerolog.Nop())

	hub.OnOpen(1)
	hub.OnOpen(2)
	hub.OnClose(2)

	hub.OnMessage(1, true, []byte("hi"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent[2]) != 0 {
		t.Fatalf("closed client should not receive further broadcasts")
	}
}

func TestSendFailureIsLoggedNotFatal(t *testing.T) {
	sender := newFakeSender()
	sender.fail = 2
	hub := NewHub(sender, zerolog.Nop())

	hub.OnOpen(1)
	hub.OnOpen(2)
	hub.OnOpen(3)

	hub.OnMessage(1, true, []byte("hi"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent[3]) != 1 {
		t.Fatalf("a failed send to one client should not prevent delivery to others")
	}
}

func TestSetSender(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sender := newFakeSender()
	hub.SetSender(sender)

	hub.OnOpen(1)
	hub.OnOpen(2)
	hub.OnMessage(1, true, []byte("hi"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent[2]) != 1 {
		t.Fatalf("expected broadcast after SetSender, got %+v", sender.sent)
	}
}
