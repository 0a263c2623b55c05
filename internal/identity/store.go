// Package identity holds the durable client-local state: the player identity
// issued at login and the last-used room credentials. It is the Go analog of
// the browser client's localStorage.
//
// Credentials are stored in plain text, matching the original client. They
// live in their own table so a later encryption pass only touches this
// package.
package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ccr-game/client/pkg/protocol"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	player_id   TEXT NOT NULL,
	player_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS room_credentials (
	room_name  TEXT PRIMARY KEY,
	password   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store persists identity and room credentials in a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply identity schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Identity returns the stored identity. ok is false when no identity has been
// saved or either field is empty; an empty field means re-authentication is
// required, same as no row at all.
func (s *Store) Identity() (protocol.Identity, bool, error) {
	var id protocol.Identity
	row := s.db.QueryRow(`SELECT player_id, player_name FROM identity WHERE id = 1`)
	if err := row.Scan(&id.PlayerID, &id.PlayerName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return protocol.Identity{}, false, nil
		}
		return protocol.Identity{}, false, fmt.Errorf("read identity: %w", err)
	}
	return id, id.Valid(), nil
}

// SaveIdentity stores id, replacing any previous identity. Only the login
// flow calls this.
func (s *Store) SaveIdentity(id protocol.Identity) error {
	if !id.Valid() {
		return errors.New("save identity: playerId and playerName are required")
	}
	_, err := s.db.Exec(`
		INSERT INTO identity (id, player_id, player_name) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET player_id = excluded.player_id, player_name = excluded.player_name`,
		id.PlayerID, id.PlayerName)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// SaveRoomCredentials remembers the password last used for a room so a
// rejoin after reload can be prefilled.
func (s *Store) SaveRoomCredentials(room, password string) error {
	_, err := s.db.Exec(`
		INSERT INTO room_credentials (room_name, password, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (room_name) DO UPDATE SET password = excluded.password, updated_at = excluded.updated_at`,
		room, password, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save room credentials: %w", err)
	}
	return nil
}

// RoomCredentials returns the stored password for room, if any.
func (s *Store) RoomCredentials(room string) (string, bool, error) {
	var password string
	row := s.db.QueryRow(`SELECT password FROM room_credentials WHERE room_name = ?`, room)
	if err := row.Scan(&password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read room credentials: %w", err)
	}
	return password, true, nil
}

// LastRoom returns the most recently used room credentials, if any.
func (s *Store) LastRoom() (room, password string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT room_name, password FROM room_credentials ORDER BY updated_at DESC LIMIT 1`)
	if err := row.Scan(&room, &password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("read last room: %w", err)
	}
	return room, password, true, nil
}
