package protocol

// Server -> Client
//
// connect:           (synthetic, no payload) channel (re)established
// update_rooms:      RoomSummary[] — full directory snapshot
// players_in_room:   Player[] — full roster snapshot
// player_joined:     Player[] — full roster snapshot, someone arrived
// player_left:       Player[] — full roster snapshot, someone left
// join_room_success: { roomName } — sole trigger for entering a room
// room_error:        string — human-readable failure message
const (
	EventConnect       = "connect"
	EventUpdateRooms   = "update_rooms"
	EventPlayersInRoom = "players_in_room"
	EventPlayerJoined  = "player_joined"
	EventPlayerLeft    = "player_left"
	EventJoinSuccess   = "join_room_success"
	EventRoomError     = "room_error"
)

// Client -> Server
//
// register_playerId: string — sent on every (re)connect
// get_rooms:         (no payload)
// host_room:         { roomName, password, playerId }
// join_room:         { roomName, password, playerId }
// get_room_players:  { roomName }
// leave_room:        { roomName, playerId }
const (
	EventRegisterPlayerID = "register_playerId"
	EventGetRooms         = "get_rooms"
	EventHostRoom         = "host_room"
	EventJoinRoom         = "join_room"
	EventGetRoomPlayers   = "get_room_players"
	EventLeaveRoom        = "leave_room"
)
