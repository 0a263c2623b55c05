package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", cfg.ServerURL)
	require.NotEmpty(t, cfg.DataDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CCR_SERVER_URL", "https://play.example.com")
	t.Setenv("CCR_DATA_DIR", "/tmp/ccr-test")
	t.Setenv("CCR_PLAYER_NAME", "Alice")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://play.example.com", cfg.ServerURL)
	require.Equal(t, "/tmp/ccr-test", cfg.DataDir)
	require.Equal(t, "Alice", cfg.PlayerName)
}

func TestWebsocketURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:5000":    "ws://localhost:5000/ws",
		"https://play.example.com": "wss://play.example.com/ws",
		"ws://localhost:5000":      "ws://localhost:5000/ws",
	} {
		got, err := Config{ServerURL: in}.WebsocketURL()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := Config{ServerURL: "ftp://nope"}.WebsocketURL()
	require.Error(t, err)
}
