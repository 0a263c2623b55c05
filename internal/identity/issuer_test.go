package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccr-game/client/pkg/protocol"
)

func TestIssuer_Guest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/guest", r.URL.Path)

		var req struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Alice", req.Name)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"playerId": "u1", "name": req.Name})
	}))
	defer srv.Close()

	id, err := NewIssuer(srv.URL).Guest(context.Background(), "Alice")
	require.NoError(t, err)
	require.Equal(t, protocol.Identity{PlayerID: "u1", PlayerName: "Alice"}, id)
}

func TestIssuer_GuestRequiresName(t *testing.T) {
	_, err := NewIssuer("http://localhost:0").Guest(context.Background(), "   ")
	require.Error(t, err)
}

func TestIssuer_GuestSurfacesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "guest creation disabled", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewIssuer(srv.URL).Guest(context.Background(), "Alice")
	require.ErrorContains(t, err, "guest creation disabled")
}

func TestIssuer_GuestRejectsIncompleteIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"playerId": "", "name": "Alice"})
	}))
	defer srv.Close()

	_, err := NewIssuer(srv.URL).Guest(context.Background(), "Alice")
	require.Error(t, err)
}

func TestIssuer_LoginIsStubbed(t *testing.T) {
	_, err := NewIssuer("http://localhost:0").Login(context.Background(), "a@b.c", "pw")
	require.ErrorIs(t, err, ErrNotImplemented)
}
