package identity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccr-game/client/pkg/protocol"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_IdentityAbsentByDefault(t *testing.T) {
	s := openStore(t)

	id, ok, err := s.Identity()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, protocol.Identity{}, id)
}

func TestStore_SaveAndReadIdentity(t *testing.T) {
	s := openStore(t)

	want := protocol.Identity{PlayerID: "u1", PlayerName: "Alice"}
	require.NoError(t, s.SaveIdentity(want))

	id, ok, err := s.Identity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, id)

	// A later login replaces, never merges.
	replacement := protocol.Identity{PlayerID: "u2", PlayerName: "Bob"}
	require.NoError(t, s.SaveIdentity(replacement))
	id, ok, err = s.Identity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, replacement, id)
}

func TestStore_SaveIdentityRejectsEmptyFields(t *testing.T) {
	s := openStore(t)

	require.Error(t, s.SaveIdentity(protocol.Identity{PlayerID: "u1"}))
	require.Error(t, s.SaveIdentity(protocol.Identity{PlayerName: "Alice"}))

	_, ok, err := s.Identity()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_RoomCredentials(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.RoomCredentials("beta")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SaveRoomCredentials("beta", "p"))
	pw, ok, err := s.RoomCredentials("beta")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "p", pw)

	require.NoError(t, s.SaveRoomCredentials("beta", "q"))
	pw, _, err = s.RoomCredentials("beta")
	require.NoError(t, err)
	require.Equal(t, "q", pw)
}

func TestStore_LastRoom(t *testing.T) {
	s := openStore(t)

	_, _, ok, err := s.LastRoom()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SaveRoomCredentials("alpha", "a"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.SaveRoomCredentials("beta", "b"))

	room, pw, ok, err := s.LastRoom()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "beta", room)
	require.Equal(t, "b", pw)
}
