package channel

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory Channel for tests. Sends are recorded instead of
// transmitted, and Deliver injects inbound events synchronously, which mirrors
// the real Conn dispatching handlers one at a time on the reader goroutine.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	sent     []SentEvent
}

// SentEvent is one recorded outbound event.
type SentEvent struct {
	Event string
	Data  json.RawMessage
}

// NewFake returns an empty fake channel.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

func (f *Fake) Send(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = buf
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentEvent{Event: event, Data: data})
	return nil
}

func (f *Fake) On(event string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *Fake) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

// Deliver invokes the registered handler for event with the marshalled
// payload. Returns false when no handler is registered, so tests can assert
// that a torn-down subscriber no longer listens.
func (f *Fake) Deliver(event string, payload any) bool {
	var data json.RawMessage
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("fake channel: marshal %s: %v", event, err))
		}
		data = buf
	}
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Sent returns a copy of every recorded outbound event, oldest first.
func (f *Fake) Sent() []SentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentNames returns just the event names of recorded sends, oldest first.
func (f *Fake) SentNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.sent))
	for i, s := range f.sent {
		names[i] = s.Event
	}
	return names
}

// Handles reports whether a handler is currently registered for event.
func (f *Fake) Handles(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[event] != nil
}
