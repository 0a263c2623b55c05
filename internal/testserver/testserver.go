// Package testserver is a protocol-faithful, in-memory stand-in for the game
// server. Integration tests and the devserver binary use it; it is not the
// server of record and implements no game logic beyond the room protocol.
package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccr-game/client/pkg/protocol"
)

const writeTimeout = 3 * time.Second

// Server holds the room registry and every live connection.
type Server struct {
	log *zap.Logger

	mu     sync.Mutex
	guests map[string]string // playerID -> display name
	rooms  map[string]*gameRoom
	conns  map[*conn]struct{}
}

type gameRoom struct {
	password string
	scores   map[string]int // playerID -> score
}

type conn struct {
	ws       *websocket.Conn
	wmu      sync.Mutex
	playerID string
	room     string
}

// New returns an empty server.
func New(log *zap.Logger) *Server {
	return &Server{
		log:    log,
		guests: make(map[string]string),
		rooms:  make(map[string]*gameRoom),
		conns:  make(map[*conn]struct{}),
	}
}

// Handler builds the HTTP surface: guest auth, health, and the websocket
// endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/auth/guest", s.handleGuest)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "a name is required", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.guests[id] = req.Name
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
	}{PlayerID: id, Name: req.Name})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer s.drop(c)

	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			return
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.handle(c, f)
	}
}

func (s *Server) handle(c *conn, f protocol.Frame) {
	switch f.Event {
	case protocol.EventRegisterPlayerID:
		var id string
		if err := json.Unmarshal(f.Data, &id); err != nil {
			return
		}
		s.mu.Lock()
		c.playerID = id
		s.mu.Unlock()

	case protocol.EventGetRooms:
		s.mu.Lock()
		dir := s.directoryLocked()
		s.mu.Unlock()
		c.send(s.log, protocol.EventUpdateRooms, dir)

	case protocol.EventHostRoom:
		var req protocol.RoomRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			return
		}
		s.hostRoom(c, req)

	case protocol.EventJoinRoom:
		var req protocol.RoomRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			return
		}
		s.joinRoom(c, req)

	case protocol.EventGetRoomPlayers:
		var req protocol.RosterRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			return
		}
		s.mu.Lock()
		roster := s.rosterLocked(req.RoomName)
		s.mu.Unlock()
		c.send(s.log, protocol.EventPlayersInRoom, roster)

	case protocol.EventLeaveRoom:
		var req protocol.LeaveRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			return
		}
		s.leaveRoom(c, req.RoomName, req.PlayerID)

	default:
		s.log.Debug("unhandled event", zap.String("event", f.Event))
	}
}

func (s *Server) hostRoom(c *conn, req protocol.RoomRequest) {
	s.mu.Lock()
	if _, exists := s.rooms[req.RoomName]; exists {
		s.mu.Unlock()
		c.send(s.log, protocol.EventRoomError, "Room already exists")
		return
	}
	s.rooms[req.RoomName] = &gameRoom{
		password: req.Password,
		scores:   map[string]int{req.PlayerID: 0},
	}
	c.room = req.RoomName
	roster := s.rosterLocked(req.RoomName)
	members := s.roomConnsLocked(req.RoomName)
	dir := s.directoryLocked()
	all := s.allConnsLocked()
	s.mu.Unlock()

	for _, m := range members {
		m.send(s.log, protocol.EventPlayerJoined, roster)
	}
	for _, a := range all {
		a.send(s.log, protocol.EventUpdateRooms, dir)
	}
	c.send(s.log, protocol.EventJoinSuccess, protocol.JoinSuccess{RoomName: req.RoomName})
}

func (s *Server) joinRoom(c *conn, req protocol.RoomRequest) {
	s.mu.Lock()
	rm, exists := s.rooms[req.RoomName]
	if !exists {
		s.mu.Unlock()
		c.send(s.log, protocol.EventRoomError, "Room does not exist")
		return
	}
	if rm.password != req.Password {
		s.mu.Unlock()
		c.send(s.log, protocol.EventRoomError, "Incorrect password")
		return
	}
	if _, member := rm.scores[req.PlayerID]; !member {
		rm.scores[req.PlayerID] = 0
	}
	c.room = req.RoomName
	roster := s.rosterLocked(req.RoomName)
	members := s.roomConnsLocked(req.RoomName)
	dir := s.directoryLocked()
	all := s.allConnsLocked()
	s.mu.Unlock()

	for _, m := range members {
		m.send(s.log, protocol.EventPlayerJoined, roster)
	}
	for _, a := range all {
		a.send(s.log, protocol.EventUpdateRooms, dir)
	}
	c.send(s.log, protocol.EventJoinSuccess, protocol.JoinSuccess{RoomName: req.RoomName})
}

func (s *Server) leaveRoom(c *conn, roomName, playerID string) {
	s.mu.Lock()
	rm, exists := s.rooms[roomName]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(rm.scores, playerID)
	if c.room == roomName {
		c.room = ""
	}
	if len(rm.scores) == 0 {
		delete(s.rooms, roomName)
	}
	roster := s.rosterLocked(roomName)
	members := s.roomConnsLocked(roomName)
	dir := s.directoryLocked()
	all := s.allConnsLocked()
	s.mu.Unlock()

	for _, m := range members {
		m.send(s.log, protocol.EventPlayerLeft, roster)
	}
	for _, a := range all {
		a.send(s.log, protocol.EventUpdateRooms, dir)
	}
}

// drop removes a closed connection; a member that vanishes without a
// leave_room still leaves its room.
func (s *Server) drop(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	roomName, playerID := c.room, c.playerID
	s.mu.Unlock()
	if roomName != "" && playerID != "" {
		s.leaveRoom(c, roomName, playerID)
	}
}

func (s *Server) directoryLocked() []protocol.RoomSummary {
	dir := make([]protocol.RoomSummary, 0, len(s.rooms))
	for name, rm := range s.rooms {
		dir = append(dir, protocol.RoomSummary{Name: name, PlayerCount: len(rm.scores)})
	}
	sort.Slice(dir, func(i, j int) bool { return dir[i].Name < dir[j].Name })
	return dir
}

func (s *Server) rosterLocked(roomName string) []protocol.Player {
	rm, exists := s.rooms[roomName]
	if !exists {
		return []protocol.Player{}
	}
	roster := make([]protocol.Player, 0, len(rm.scores))
	for id, score := range rm.scores {
		name := s.guests[id]
		if name == "" {
			name = id
		}
		roster = append(roster, protocol.Player{Name: name, Score: score})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })
	return roster
}

func (s *Server) roomConnsLocked(roomName string) []*conn {
	var out []*conn
	for c := range s.conns {
		if c.room == roomName {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) allConnsLocked() []*conn {
	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (c *conn) send(log *zap.Logger, event string, payload any) {
	f := protocol.Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Warn("marshal payload", zap.String("event", event), zap.Error(err))
			return
		}
		f.Data = data
	}
	buf, err := json.Marshal(f)
	if err != nil {
		log.Warn("marshal frame", zap.String("event", event), zap.Error(err))
		return
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, buf); err != nil {
		log.Debug("write failed", zap.String("event", event), zap.Error(err))
	}
}
