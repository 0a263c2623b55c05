package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccr-game/client/pkg/protocol"
)

// ErrNotImplemented is returned by Login; credential login is a stub the
// product has not committed to yet.
var ErrNotImplemented = errors.New("identity: credential login is not implemented")

// Issuer is the client of the identity-issuance collaborator.
type Issuer struct {
	base string
	http *http.Client
}

// NewIssuer builds an Issuer against the server's HTTP base URL.
func NewIssuer(baseURL string) *Issuer {
	return &Issuer{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Guest requests a guest identity for the given display name. Failure leaves
// identity absent; nothing is persisted here.
func (i *Issuer) Guest(ctx context.Context, name string) (protocol.Identity, error) {
	if strings.TrimSpace(name) == "" {
		return protocol.Identity{}, errors.New("identity: a player name is required")
	}

	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: name})
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("marshal guest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.base+"/api/auth/guest", bytes.NewReader(body))
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("build guest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.http.Do(req)
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("guest request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return protocol.Identity{}, fmt.Errorf("guest request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var issued struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return protocol.Identity{}, fmt.Errorf("decode guest response: %w", err)
	}
	id := protocol.Identity{PlayerID: issued.PlayerID, PlayerName: issued.Name}
	if !id.Valid() {
		return protocol.Identity{}, errors.New("identity: server issued an incomplete identity")
	}
	return id, nil
}

// Login is the credential-based flow. The original client ships it as a
// placeholder only.
func (i *Issuer) Login(ctx context.Context, email, password string) (protocol.Identity, error) {
	return protocol.Identity{}, ErrNotImplemented
}
