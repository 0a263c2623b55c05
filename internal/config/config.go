// Package config loads client configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the client's runtime configuration.
type Config struct {
	// ServerURL is the HTTP base of the game server; the websocket endpoint
	// is derived from it.
	ServerURL string `env:"CCR_SERVER_URL" envDefault:"http://localhost:5000"`
	// DataDir holds the identity database. Defaults to the user config dir.
	DataDir string `env:"CCR_DATA_DIR"`
	// PlayerName, when set, is used for guest login without prompting.
	PlayerName string `env:"CCR_PLAYER_NAME"`
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "ccr-client")
	}
	return cfg, nil
}

// WebsocketURL derives the ws:// endpoint from ServerURL.
func (c Config) WebsocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// StorePath is the identity database location inside DataDir.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "identity.db")
}
