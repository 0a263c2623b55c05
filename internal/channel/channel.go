// Package channel provides the long-lived bidirectional event connection to
// the game server. The connection is process-wide and outlives any single
// view; state machines attach to it through scoped Subscriptions so that a
// torn-down view can never keep mutating state through a stale handler.
package channel

import "encoding/json"

// Handler consumes one inbound event's raw payload. Handlers run sequentially
// on the reader goroutine; the next event is not dispatched until the handler
// returns.
type Handler func(data json.RawMessage)

// Channel is a bidirectional, ordered event connection. Send is
// fire-and-forget: results arrive later as inbound events, never as a return
// value. At most one handler is registered per event name.
type Channel interface {
	Send(event string, payload any) error
	On(event string, h Handler)
	Off(event string)
}

// Subscription tracks every handler one owner registered so they can all be
// deregistered in one call when the owner's lifetime ends.
type Subscription struct {
	ch     Channel
	events []string
}

// Subscribe returns an empty subscription bound to ch.
func Subscribe(ch Channel) *Subscription {
	return &Subscription{ch: ch}
}

// On registers h for event and remembers the registration.
func (s *Subscription) On(event string, h Handler) {
	s.ch.On(event, h)
	s.events = append(s.events, event)
}

// Close deregisters everything this subscription registered. Safe to call
// more than once.
func (s *Subscription) Close() {
	for _, ev := range s.events {
		s.ch.Off(ev)
	}
	s.events = nil
}
