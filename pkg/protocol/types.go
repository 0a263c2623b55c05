package protocol

import "encoding/json"

// Frame is the wire envelope for every event in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is the durable player identity issued at login. Both fields must be
// non-empty before any lobby or room operation may proceed.
type Identity struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// Valid reports whether the identity is usable, i.e. both fields are set.
func (id Identity) Valid() bool {
	return id.PlayerID != "" && id.PlayerName != ""
}

// RoomSummary is one entry of the room directory.
type RoomSummary struct {
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
}

// Player is one roster entry of an active room.
type Player struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// JoinSuccess acknowledges a host or join request, or announces an
// out-of-band membership the server decided on.
type JoinSuccess struct {
	RoomName string `json:"roomName"`
}

// RoomRequest asks the server to create (host_room) or enter (join_room) a
// password-protected room.
type RoomRequest struct {
	RoomName string `json:"roomName"`
	Password string `json:"password"`
	PlayerID string `json:"playerId"`
}

// RosterRequest asks for the full roster of a room (get_room_players).
type RosterRequest struct {
	RoomName string `json:"roomName"`
}

// LeaveRequest announces departure from a room (leave_room).
type LeaveRequest struct {
	RoomName string `json:"roomName"`
	PlayerID string `json:"playerId"`
}
