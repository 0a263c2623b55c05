// Package app wires the identity store, the channel, and the lobby and room
// state machines together, and drives the navigator from their outcomes.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ccr-game/client/internal/channel"
	"github.com/ccr-game/client/internal/lobby"
	"github.com/ccr-game/client/internal/room"
	"github.com/ccr-game/client/pkg/protocol"
)

// ErrNoIdentity is returned by Run when the identity gate fails. The
// navigator has already been pointed at the login view by then.
var ErrNoIdentity = errors.New("app: no identity, login required")

// Navigator executes the cross-view transitions the state machines decide.
// It never decides anything itself.
type Navigator interface {
	ToLogin()
	ToLobby()
	ToRoom(roomName string)
}

// IdentityStore is the durable identity source plus the credential memory the
// lobby writes through.
type IdentityStore interface {
	Identity() (protocol.Identity, bool, error)
	SaveRoomCredentials(room, password string) error
}

// sessionExit tags a session's exit so a stale session (already replaced)
// cannot trigger navigation meant for the current one.
type sessionExit struct {
	sess   *room.Session
	reason room.ExitReason
}

// App is the session controller for one client process.
type App struct {
	ch    channel.Channel
	store IdentityStore
	nav   Navigator
	guard room.Guard
	log   *zap.Logger

	mu      sync.Mutex
	self    protocol.Identity
	lobby   *lobby.Lobby
	session *room.Session

	joins chan protocol.JoinSuccess
	exits chan sessionExit
}

// New builds the controller. Nothing runs until Run.
func New(ch channel.Channel, store IdentityStore, nav Navigator, guard room.Guard, log *zap.Logger) *App {
	return &App{
		ch:    ch,
		store: store,
		nav:   nav,
		guard: guard,
		log:   log,
		joins: make(chan protocol.JoinSuccess, 4),
		exits: make(chan sessionExit, 4),
	}
}

// Run gates on identity, enters the lobby, and then reacts to join successes
// and session exits until ctx is cancelled. With no identity it points the
// navigator at the login view and returns ErrNoIdentity; no request has been
// emitted by then.
func (a *App) Run(ctx context.Context) error {
	id, ok, err := a.store.Identity()
	if err != nil {
		a.log.Warn("identity store read failed", zap.Error(err))
		ok = false
	}
	if !ok {
		a.nav.ToLogin()
		return ErrNoIdentity
	}
	a.mu.Lock()
	a.self = id
	a.mu.Unlock()

	// join_room_success is owned here for the whole run: it is the sole
	// source of truth for membership, even when it arrives unrequested.
	sub := channel.Subscribe(a.ch)
	defer sub.Close()
	sub.On(protocol.EventJoinSuccess, func(data json.RawMessage) {
		var js protocol.JoinSuccess
		if err := json.Unmarshal(data, &js); err != nil {
			a.log.Warn("bad join_room_success payload", zap.Error(err))
			return
		}
		select {
		case a.joins <- js:
		case <-ctx.Done():
		}
	})

	a.enterLobby(ctx)
	a.nav.ToLobby()

	for {
		select {
		case <-ctx.Done():
			// Lobby and session run on child contexts and tear themselves
			// down (handlers deregistered, guard released) on cancellation.
			return ctx.Err()

		case js := <-a.joins:
			a.handleJoin(ctx, js.RoomName)

		case exit := <-a.exits:
			a.handleExit(ctx, exit)
		}
	}
}

func (a *App) enterLobby(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lobby != nil {
		return
	}
	a.lobby = lobby.New(ctx, a.ch, a.self, a.store, a.log.Named("lobby"))
}

// handleJoin honors a join_room_success: the lobby view ends and a room
// session starts. A success arriving while already in a room replaces the
// membership; the old session is abandoned without a leave_room, because the
// server has already moved this player.
func (a *App) handleJoin(ctx context.Context, roomName string) {
	a.mu.Lock()
	if a.session != nil {
		if a.session.Room() == roomName {
			a.mu.Unlock()
			return
		}
		old := a.session
		a.session = nil
		a.mu.Unlock()
		a.log.Info("membership replaced", zap.String("room", roomName))
		select {
		case old.Inbox() <- room.Abandon{}:
		case <-old.Done():
		}
		// Wait for the old session to deregister before the new one claims
		// the same roster event names. Done is signaled after teardown.
		<-old.Done()
		a.mu.Lock()
	}
	if a.lobby != nil {
		// Wait for the lobby to deregister before the session registers
		// handlers for the same roster event names.
		done := make(chan struct{})
		a.lobby.Inbox() <- lobby.Shutdown{Done: done}
		select {
		case <-done:
		case <-ctx.Done():
			// The lobby tears itself down on cancellation instead.
		}
		a.lobby = nil
	}
	sess := room.Start(ctx, a.ch, roomName, a.self, a.guard, a.log.Named("room"))
	a.session = sess
	a.mu.Unlock()

	go func() {
		reason, ok := <-sess.Done()
		if !ok {
			return
		}
		select {
		case a.exits <- sessionExit{sess: sess, reason: reason}:
		case <-ctx.Done():
		}
	}()

	a.nav.ToRoom(roomName)
}

func (a *App) handleExit(ctx context.Context, exit sessionExit) {
	a.mu.Lock()
	current := a.session == exit.sess
	if current {
		a.session = nil
	}
	a.mu.Unlock()
	if !current || exit.reason != room.ExitLeft {
		// Replaced or abandoned sessions navigate elsewhere (or not at all).
		return
	}
	a.enterLobby(ctx)
	a.nav.ToLobby()
}

// Lobby returns the active lobby machine, if the player is in the lobby view.
func (a *App) Lobby() (*lobby.Lobby, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lobby, a.lobby != nil
}

// Session returns the active room session, if the player is in a room.
func (a *App) Session() (*room.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, a.session != nil
}

// LeaveRoom requests departure from the current room. With identity lost in
// the meantime the membership is abandoned best-effort and the player is sent
// back to login.
func (a *App) LeaveRoom() {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()
	if sess == nil {
		return
	}
	if _, ok, err := a.store.Identity(); err != nil || !ok {
		select {
		case sess.Inbox() <- room.Abandon{}:
		case <-sess.Done():
		}
		a.nav.ToLogin()
		return
	}
	select {
	case sess.Inbox() <- room.Leave{}:
	case <-sess.Done():
	}
}
