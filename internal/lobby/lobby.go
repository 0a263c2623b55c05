// Package lobby owns the client's view of the room directory and the
// host/join request flow while the player is not yet in a room.
package lobby

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ccr-game/client/internal/channel"
	"github.com/ccr-game/client/pkg/protocol"
)

// State is the lobby's primary state. A pending host/join request is tracked
// orthogonally; see View.Pending.
type State int

const (
	Idle State = iota
	AwaitingDirectory
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDirectory:
		return "awaiting_directory"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

type Msg interface{ isLobbyMsg() }

// Refresh re-requests the room directory.
type Refresh struct{}

// Host asks the server to create Room guarded by Secret. Both fields are
// required; an empty field makes the message inert.
type Host struct {
	Room   string
	Secret string
}

// OpenJoin opens a join attempt against Room. The secret follows in a
// SubmitJoin, mirroring the two-step join modal.
type OpenJoin struct{ Room string }

// SubmitJoin completes the open join attempt with the room password.
type SubmitJoin struct{ Secret string }

// CancelRequest abandons the open host/join attempt without sending anything.
type CancelRequest struct{}

// GetState asks the loop to report its current view. Test and UI use only.
type GetState struct{ Reply chan View }

// Shutdown tears the lobby down and deregisters its event handlers. Done, if
// non-nil, is closed once deregistration has happened, so the next view can
// safely register handlers for the same event names.
type Shutdown struct{ Done chan struct{} }

func (Refresh) isLobbyMsg()       {}
func (Host) isLobbyMsg()          {}
func (OpenJoin) isLobbyMsg()      {}
func (SubmitJoin) isLobbyMsg()    {}
func (CancelRequest) isLobbyMsg() {}
func (GetState) isLobbyMsg()      {}
func (Shutdown) isLobbyMsg()      {}

// Inbound events, posted by the channel handlers.
type roomsUpdated struct{ rooms []protocol.RoomSummary }
type previewUpdated struct{ players []protocol.Player }
type roomFailed struct{ message string }
type reconnected struct{}

func (roomsUpdated) isLobbyMsg()   {}
func (previewUpdated) isLobbyMsg() {}
func (roomFailed) isLobbyMsg()     {}
func (reconnected) isLobbyMsg()    {}

type requestKind int

const (
	requestHost requestKind = iota
	requestJoin
)

// pendingRequest is the transient host/join attempt. Discarded on success,
// cancellation, or error; never retried.
type pendingRequest struct {
	kind      requestKind
	room      string
	submitted bool
}

// View is a race-free copy of the lobby's state.
type View struct {
	State       State
	Pending     bool
	PendingRoom string
	Rooms       []protocol.RoomSummary
	Preview     []protocol.Player
}

// CredentialSaver remembers the last-used room credentials. May be nil.
type CredentialSaver interface {
	SaveRoomCredentials(room, password string) error
}

// Lobby is an actor: all state lives behind the inbox and is touched only by
// the loop goroutine.
type Lobby struct {
	inbox chan Msg
	ch    channel.Channel
	sub   *channel.Subscription
	self  protocol.Identity
	creds CredentialSaver
	log   *zap.Logger

	state   State
	pending *pendingRequest
	rooms   []protocol.RoomSummary
	preview []protocol.Player

	notices chan string

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a lobby for an authenticated player: it subscribes to directory
// and preview events and immediately requests the room list. The caller must
// have verified the identity; the lobby never runs without one.
func New(parent context.Context, ch channel.Channel, self protocol.Identity, creds CredentialSaver, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		inbox:   make(chan Msg, 64),
		ch:      ch,
		sub:     channel.Subscribe(ch),
		self:    self,
		creds:   creds,
		log:     log,
		state:   Idle,
		notices: make(chan string, 8),
		ctx:     ctx,
		cancel:  cancel,
	}

	l.sub.On(protocol.EventUpdateRooms, func(data json.RawMessage) {
		var rooms []protocol.RoomSummary
		if err := json.Unmarshal(data, &rooms); err != nil {
			l.log.Warn("bad update_rooms payload", zap.Error(err))
			return
		}
		l.post(roomsUpdated{rooms: rooms})
	})
	l.sub.On(protocol.EventPlayerJoined, l.previewHandler)
	l.sub.On(protocol.EventPlayerLeft, l.previewHandler)
	l.sub.On(protocol.EventRoomError, func(data json.RawMessage) {
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Warn("bad room_error payload", zap.Error(err))
			return
		}
		l.post(roomFailed{message: msg})
	})
	l.sub.On(protocol.EventConnect, func(json.RawMessage) {
		l.post(reconnected{})
	})

	go l.loop()
	l.inbox <- Refresh{}
	return l
}

// previewHandler feeds the pre-join roster preview. Display nicety only; it
// never changes membership.
func (l *Lobby) previewHandler(data json.RawMessage) {
	var players []protocol.Player
	if err := json.Unmarshal(data, &players); err != nil {
		l.log.Warn("bad roster preview payload", zap.Error(err))
		return
	}
	l.post(previewUpdated{players: players})
}

// Inbox exposes the message inbox for user operations.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Notices delivers server-reported failures (room_error) for the UI to
// surface. The attempt they refer to is already abandoned.
func (l *Lobby) Notices() <-chan string { return l.notices }

func (l *Lobby) post(m Msg) {
	select {
	case l.inbox <- m:
	case <-l.ctx.Done():
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Refresh:
				if l.state == Idle {
					l.state = AwaitingDirectory
				}
				if err := l.ch.Send(protocol.EventGetRooms, nil); err != nil {
					l.log.Warn("get_rooms failed", zap.Error(err))
				}

			case reconnected:
				// The channel re-registered the playerId already; the
				// directory may have moved while we were gone.
				if err := l.ch.Send(protocol.EventGetRooms, nil); err != nil {
					l.log.Warn("get_rooms after reconnect failed", zap.Error(err))
				}

			case Host:
				l.host(msg)

			case OpenJoin:
				if msg.Room == "" {
					break
				}
				l.pending = &pendingRequest{kind: requestJoin, room: msg.Room}

			case SubmitJoin:
				l.submitJoin(msg)

			case CancelRequest:
				l.pending = nil

			case roomsUpdated:
				// Last write wins, no merge by room name.
				l.rooms = msg.rooms
				l.state = Ready

			case previewUpdated:
				l.preview = msg.players

			case roomFailed:
				l.pending = nil
				select {
				case l.notices <- msg.message:
				default:
					l.log.Warn("notice dropped, consumer too slow", zap.String("message", msg.message))
				}

			case GetState:
				msg.Reply <- View{
					State:       l.state,
					Pending:     l.pending != nil,
					PendingRoom: l.pendingRoom(),
					Rooms:       append([]protocol.RoomSummary(nil), l.rooms...),
					Preview:     append([]protocol.Player(nil), l.preview...),
				}

			case Shutdown:
				l.shutdown()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

func (l *Lobby) host(msg Host) {
	// Local validation gate: empty fields mean the request never leaves the
	// client.
	if msg.Room == "" || msg.Secret == "" {
		l.log.Debug("host request inert, missing field", zap.String("room", msg.Room))
		return
	}
	req := protocol.RoomRequest{RoomName: msg.Room, Password: msg.Secret, PlayerID: l.self.PlayerID}
	if err := l.ch.Send(protocol.EventHostRoom, req); err != nil {
		l.log.Warn("host_room failed", zap.Error(err))
		return
	}
	l.pending = &pendingRequest{kind: requestHost, room: msg.Room, submitted: true}
	l.saveCredentials(msg.Room, msg.Secret)
}

func (l *Lobby) submitJoin(msg SubmitJoin) {
	if l.pending == nil || l.pending.kind != requestJoin || l.pending.submitted {
		return
	}
	if msg.Secret == "" {
		return
	}
	req := protocol.RoomRequest{RoomName: l.pending.room, Password: msg.Secret, PlayerID: l.self.PlayerID}
	if err := l.ch.Send(protocol.EventJoinRoom, req); err != nil {
		l.log.Warn("join_room failed", zap.Error(err))
		return
	}
	l.pending.submitted = true
	l.saveCredentials(l.pending.room, msg.Secret)
}

func (l *Lobby) saveCredentials(room, secret string) {
	if l.creds == nil {
		return
	}
	if err := l.creds.SaveRoomCredentials(room, secret); err != nil {
		l.log.Warn("saving room credentials failed", zap.Error(err))
	}
}

func (l *Lobby) pendingRoom() string {
	if l.pending == nil {
		return ""
	}
	return l.pending.room
}

func (l *Lobby) shutdown() {
	l.sub.Close()
	l.cancel()
}
