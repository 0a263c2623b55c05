package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ccr-game/client/internal/channel"
	"github.com/ccr-game/client/pkg/protocol"
)

var alice = protocol.Identity{PlayerID: "u1", PlayerName: "Alice"}

// state round-trips a GetState through the loop. Because the inbox is FIFO
// and one goroutine drains it, the reply also proves every earlier message
// was processed.
func state(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for lobby state")
		return View{} // unreachable
	}
}

func recvNotice(t *testing.T, l *Lobby, within time.Duration) string {
	t.Helper()
	select {
	case msg := <-l.Notices():
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for notice")
		return "" // unreachable
	}
}

type fakeSaver struct {
	mu    sync.Mutex
	rooms map[string]string
}

func (f *fakeSaver) SaveRoomCredentials(room, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms == nil {
		f.rooms = make(map[string]string)
	}
	f.rooms[room] = password
	return nil
}

func (f *fakeSaver) get(room string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rooms[room]
	return p, ok
}

func newLobby(t *testing.T) (*Lobby, *channel.Fake, *fakeSaver) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fake := channel.NewFake()
	saver := &fakeSaver{}
	l := New(ctx, fake, alice, saver, zap.NewNop())
	return l, fake, saver
}

func sentOfType(t *testing.T, fake *channel.Fake, event string) []protocol.RoomRequest {
	t.Helper()
	var out []protocol.RoomRequest
	for _, s := range fake.Sent() {
		if s.Event != event {
			continue
		}
		var req protocol.RoomRequest
		if err := json.Unmarshal(s.Data, &req); err != nil {
			t.Fatalf("decode %s payload: %v", event, err)
		}
		out = append(out, req)
	}
	return out
}

func TestLobby_StartRequestsDirectory(t *testing.T) {
	l, fake, _ := newLobby(t)

	v := state(t, l)
	if v.State != AwaitingDirectory {
		t.Fatalf("want awaiting_directory, got %v", v.State)
	}
	names := fake.SentNames()
	if len(names) != 1 || names[0] != protocol.EventGetRooms {
		t.Fatalf("want a single get_rooms, got %v", names)
	}
}

func TestLobby_DirectoryReplacementLastWriteWins(t *testing.T) {
	l, fake, _ := newLobby(t)

	fake.Deliver(protocol.EventUpdateRooms, []protocol.RoomSummary{
		{Name: "alpha", PlayerCount: 2},
		{Name: "beta", PlayerCount: 1},
	})
	v := state(t, l)
	if v.State != Ready || len(v.Rooms) != 2 {
		t.Fatalf("after first update: want ready with 2 rooms, got %v with %d", v.State, len(v.Rooms))
	}

	// Back-to-back update: the later snapshot wins outright, no merge.
	fake.Deliver(protocol.EventUpdateRooms, []protocol.RoomSummary{
		{Name: "gamma", PlayerCount: 4},
	})
	v = state(t, l)
	if len(v.Rooms) != 1 || v.Rooms[0].Name != "gamma" || v.Rooms[0].PlayerCount != 4 {
		t.Fatalf("after second update: want [gamma:4], got %+v", v.Rooms)
	}
}

func TestLobby_HostValidationGateHolds(t *testing.T) {
	l, fake, _ := newLobby(t)

	for _, msg := range []Host{
		{Room: "", Secret: ""},
		{Room: "beta", Secret: ""},
		{Room: "", Secret: "p"},
	} {
		l.Inbox() <- msg
	}
	v := state(t, l)
	if v.Pending {
		t.Fatalf("invalid host attempts must not open a pending request")
	}
	if got := sentOfType(t, fake, protocol.EventHostRoom); len(got) != 0 {
		t.Fatalf("invalid host attempts must never be emitted, got %+v", got)
	}
}

func TestLobby_HostEmitsRequestAndSavesCredentials(t *testing.T) {
	l, fake, saver := newLobby(t)

	l.Inbox() <- Host{Room: "beta", Secret: "p"}
	v := state(t, l)
	if !v.Pending || v.PendingRoom != "beta" {
		t.Fatalf("want pending host request for beta, got %+v", v)
	}

	reqs := sentOfType(t, fake, protocol.EventHostRoom)
	if len(reqs) != 1 {
		t.Fatalf("want one host_room, got %d", len(reqs))
	}
	want := protocol.RoomRequest{RoomName: "beta", Password: "p", PlayerID: "u1"}
	if reqs[0] != want {
		t.Fatalf("host_room payload: want %+v, got %+v", want, reqs[0])
	}
	if p, ok := saver.get("beta"); !ok || p != "p" {
		t.Fatalf("credentials not saved: %q %v", p, ok)
	}
}

func TestLobby_JoinFlow(t *testing.T) {
	l, fake, _ := newLobby(t)

	l.Inbox() <- OpenJoin{Room: "alpha"}
	v := state(t, l)
	if !v.Pending || v.PendingRoom != "alpha" {
		t.Fatalf("open join should set pending for alpha, got %+v", v)
	}
	if got := sentOfType(t, fake, protocol.EventJoinRoom); len(got) != 0 {
		t.Fatalf("opening the modal must not emit, got %+v", got)
	}

	// Empty secret: inert, the modal stays open.
	l.Inbox() <- SubmitJoin{Secret: ""}
	v = state(t, l)
	if !v.Pending {
		t.Fatalf("empty secret must keep the request pending")
	}
	if got := sentOfType(t, fake, protocol.EventJoinRoom); len(got) != 0 {
		t.Fatalf("empty secret must never be emitted, got %+v", got)
	}

	l.Inbox() <- SubmitJoin{Secret: "p"}
	// A duplicate submit after sending is ignored.
	l.Inbox() <- SubmitJoin{Secret: "p"}
	state(t, l)

	reqs := sentOfType(t, fake, protocol.EventJoinRoom)
	if len(reqs) != 1 {
		t.Fatalf("want exactly one join_room, got %d", len(reqs))
	}
	want := protocol.RoomRequest{RoomName: "alpha", Password: "p", PlayerID: "u1"}
	if reqs[0] != want {
		t.Fatalf("join_room payload: want %+v, got %+v", want, reqs[0])
	}
}

func TestLobby_SubmitWithoutOpenIsInert(t *testing.T) {
	l, fake, _ := newLobby(t)

	l.Inbox() <- SubmitJoin{Secret: "p"}
	state(t, l)
	if got := sentOfType(t, fake, protocol.EventJoinRoom); len(got) != 0 {
		t.Fatalf("submit without an open request must not emit, got %+v", got)
	}
}

func TestLobby_RoomErrorAbandonsAttempt(t *testing.T) {
	l, fake, _ := newLobby(t)

	fake.Deliver(protocol.EventUpdateRooms, []protocol.RoomSummary{{Name: "alpha", PlayerCount: 1}})
	l.Inbox() <- OpenJoin{Room: "alpha"}
	l.Inbox() <- SubmitJoin{Secret: "wrong"}
	state(t, l)

	fake.Deliver(protocol.EventRoomError, "Incorrect password")
	if msg := recvNotice(t, l, time.Second); msg != "Incorrect password" {
		t.Fatalf("want the server message verbatim, got %q", msg)
	}
	v := state(t, l)
	if v.State != Ready {
		t.Fatalf("a room_error leaves the lobby ready, got %v", v.State)
	}
	if v.Pending {
		t.Fatalf("a room_error abandons the pending request")
	}
}

func TestLobby_RosterPreviewIsReplaced(t *testing.T) {
	l, fake, _ := newLobby(t)

	fake.Deliver(protocol.EventPlayerJoined, []protocol.Player{{Name: "Alice"}, {Name: "Bob"}})
	v := state(t, l)
	if len(v.Preview) != 2 {
		t.Fatalf("want 2 preview players, got %+v", v.Preview)
	}

	fake.Deliver(protocol.EventPlayerLeft, []protocol.Player{{Name: "Alice"}})
	v = state(t, l)
	if len(v.Preview) != 1 || v.Preview[0].Name != "Alice" {
		t.Fatalf("preview must be the latest snapshot, got %+v", v.Preview)
	}
}

func TestLobby_ReconnectRefreshesDirectory(t *testing.T) {
	l, fake, _ := newLobby(t)
	state(t, l)

	fake.Deliver(protocol.EventConnect, nil)
	state(t, l)

	var refreshes int
	for _, name := range fake.SentNames() {
		if name == protocol.EventGetRooms {
			refreshes++
		}
	}
	if refreshes != 2 {
		t.Fatalf("want a directory refresh per connect, got %d get_rooms", refreshes)
	}
}

func TestLobby_ShutdownDeregistersHandlers(t *testing.T) {
	l, fake, _ := newLobby(t)

	done := make(chan struct{})
	l.Inbox() <- Shutdown{Done: done}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for shutdown")
	}

	for _, ev := range []string{
		protocol.EventUpdateRooms,
		protocol.EventPlayerJoined,
		protocol.EventPlayerLeft,
		protocol.EventRoomError,
		protocol.EventConnect,
	} {
		if fake.Handles(ev) {
			t.Fatalf("handler for %s survived shutdown", ev)
		}
		if fake.Deliver(ev, nil) {
			t.Fatalf("delivery of %s reached a stale handler", ev)
		}
	}
}
