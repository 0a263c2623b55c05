// Package room owns the live roster of the room the player currently
// occupies. A Session exists only between a join_room_success and the
// matching leave or abandonment; there is never more than one.
package room

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ccr-game/client/internal/channel"
	"github.com/ccr-game/client/pkg/protocol"
)

// UnloadWarning is the prompt shown when the player tries to close or reload
// while in a room.
const UnloadWarning = "If you refresh this page, you will automatically leave the room. Continue?"

// Phase is the session's lifecycle state.
type Phase int

const (
	Joining Phase = iota
	Active
	Leaving
	Destroyed
)

func (p Phase) String() string {
	switch p {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ExitReason tells the glue layer which teardown path ran.
type ExitReason int

const (
	// ExitLeft: the player left on purpose; navigate back to the lobby.
	ExitLeft ExitReason = iota
	// ExitAbandoned: membership torn down locally only (identity lost or
	// replaced by a newer join_room_success). No leave_room was sent.
	ExitAbandoned
)

// Guard is the unload-confirmation resource. Acquired on session entry and
// released on every exit path, so the prompt can never leak to another view.
type Guard interface {
	Acquire(message string)
	Release()
}

type Msg interface{ isSessionMsg() }

// Leave requests departure: leave_room is emitted and the session is
// destroyed immediately, without waiting for acknowledgment.
type Leave struct{}

// Abandon destroys the session locally without notifying the server.
type Abandon struct{}

// GetState asks the loop to report its current view. Test and UI use only.
type GetState struct{ Reply chan View }

func (Leave) isSessionMsg()    {}
func (Abandon) isSessionMsg()  {}
func (GetState) isSessionMsg() {}

type rosterReplaced struct {
	players []protocol.Player
}

type refreshRoster struct{}

func (rosterReplaced) isSessionMsg() {}
func (refreshRoster) isSessionMsg()  {}

// View is a race-free copy of the session's state.
type View struct {
	Phase  Phase
	Room   string
	Roster []protocol.Player
}

// Session is an actor, same shape as the lobby: one loop goroutine owns all
// state behind the inbox.
type Session struct {
	inbox chan Msg
	ch    channel.Channel
	sub   *channel.Subscription
	room  string
	self  protocol.Identity
	guard Guard
	log   *zap.Logger

	phase  Phase
	roster []protocol.Player

	done chan ExitReason

	ctx    context.Context
	cancel context.CancelFunc
}

// Start enters the room named by a join_room_success: it acquires the unload
// guard, subscribes to the roster events, and requests the authoritative
// initial snapshot. The join acknowledgment itself carries no roster.
func Start(parent context.Context, ch channel.Channel, roomName string, self protocol.Identity, guard Guard, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:  make(chan Msg, 64),
		ch:     ch,
		sub:    channel.Subscribe(ch),
		room:   roomName,
		self:   self,
		guard:  guard,
		log:    log,
		phase:  Joining,
		done:   make(chan ExitReason, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	// All three roster events carry a full replacement snapshot; any
	// interleaving is fine because the latest payload always wins.
	s.sub.On(protocol.EventPlayersInRoom, s.rosterHandler(protocol.EventPlayersInRoom))
	s.sub.On(protocol.EventPlayerJoined, s.rosterHandler(protocol.EventPlayerJoined))
	s.sub.On(protocol.EventPlayerLeft, s.rosterHandler(protocol.EventPlayerLeft))
	s.sub.On(protocol.EventConnect, func(json.RawMessage) {
		// A reconnect may have missed roster broadcasts; re-request the
		// snapshot once the identity has been re-announced.
		select {
		case s.inbox <- refreshRoster{}:
		case <-s.ctx.Done():
		}
	})

	s.guard.Acquire(UnloadWarning)

	go s.loop()

	if err := s.ch.Send(protocol.EventGetRoomPlayers, protocol.RosterRequest{RoomName: roomName}); err != nil {
		s.log.Warn("get_room_players failed", zap.Error(err))
	}
	return s
}

func (s *Session) rosterHandler(event string) channel.Handler {
	return func(data json.RawMessage) {
		var players []protocol.Player
		if err := json.Unmarshal(data, &players); err != nil {
			s.log.Warn("bad roster payload", zap.String("event", event), zap.Error(err))
			return
		}
		select {
		case s.inbox <- rosterReplaced{players: players}:
		case <-s.ctx.Done():
		}
	}
}

// Inbox exposes the message inbox for user operations.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Room returns the room this session occupies.
func (s *Session) Room() string { return s.room }

// Done reports the exit reason once the session is destroyed, then closes.
func (s *Session) Done() <-chan ExitReason { return s.done }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown(ExitAbandoned)
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case rosterReplaced:
				// Full replacement: no accumulation, no stale entries.
				s.roster = append([]protocol.Player(nil), msg.players...)
				if s.phase == Joining {
					s.phase = Active
				}

			case refreshRoster:
				if err := s.ch.Send(protocol.EventGetRoomPlayers, protocol.RosterRequest{RoomName: s.room}); err != nil {
					s.log.Warn("get_room_players after reconnect failed", zap.Error(err))
				}

			case Leave:
				s.phase = Leaving
				if s.self.PlayerID != "" {
					req := protocol.LeaveRequest{RoomName: s.room, PlayerID: s.self.PlayerID}
					if err := s.ch.Send(protocol.EventLeaveRoom, req); err != nil {
						s.log.Warn("leave_room failed", zap.Error(err))
					}
					// Optimistic exit: do not wait for acknowledgment.
					s.teardown(ExitLeft)
					return
				}
				// No playerId to report; best-effort departure only.
				s.teardown(ExitAbandoned)
				return

			case Abandon:
				s.teardown(ExitAbandoned)
				return

			case GetState:
				msg.Reply <- View{
					Phase:  s.phase,
					Room:   s.room,
					Roster: append([]protocol.Player(nil), s.roster...),
				}
			}
		}
	}
}

// teardown releases the guard and the subscription regardless of which exit
// path ran, then reports the reason.
func (s *Session) teardown(reason ExitReason) {
	if s.phase == Destroyed {
		return
	}
	s.phase = Destroyed
	s.sub.Close()
	s.guard.Release()
	s.cancel()
	s.done <- reason
	close(s.done)
}
