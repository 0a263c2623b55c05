package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ccr-game/client/pkg/protocol"
)

const (
	writeTimeout   = 3 * time.Second
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 15 * time.Second
)

// ErrNotConnected is returned by Send while no websocket is established.
// Requests are fire-and-forget, so callers generally just log it and move on.
var ErrNotConnected = errors.New("channel: not connected")

// IdentityFunc supplies the playerId announced on every (re)connect. ok is
// false while no identity has been issued yet.
type IdentityFunc func() (playerID string, ok bool)

// Conn is the websocket-backed Channel. It reconnects with capped backoff and
// re-announces the player identity after every successful dial, not just the
// first one.
type Conn struct {
	url      string
	identity IdentityFunc
	log      *zap.Logger

	hmu      sync.Mutex
	handlers map[string]Handler

	wmu sync.Mutex
	ws  *websocket.Conn
}

// New builds a Conn for the given websocket URL. Run must be called before
// any traffic flows.
func New(url string, identity IdentityFunc, log *zap.Logger) *Conn {
	return &Conn{
		url:      url,
		identity: identity,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Run dials and services the connection until ctx is cancelled or the server
// closes cleanly. Dial failures and dropped connections are retried with
// capped exponential backoff.
func (c *Conn) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		ws, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.setWS(ws)
		c.announce()
		c.dispatch(protocol.EventConnect, nil)

		err = c.readLoop(ctx, ws)
		c.setWS(nil)
		_ = ws.Close(websocket.StatusNormalClosure, "bye")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil
		}
		c.log.Warn("connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

// Send marshals payload into a frame and writes it. Ordered relative to other
// sends on this Conn; no acknowledgment beyond that.
func (c *Conn) Send(event string, payload any) error {
	f := protocol.Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		f.Data = data
	}
	buf, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, buf); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// On registers h for event, replacing any previous handler for that name.
func (c *Conn) On(event string, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = h
}

// Off deregisters the handler for event.
func (c *Conn) Off(event string) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	delete(c.handlers, event)
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.hmu.Lock()
	h := c.handlers[event]
	c.hmu.Unlock()
	if h == nil {
		c.log.Debug("no handler for event", zap.String("event", event))
		return
	}
	h(data)
}

// announce sends register_playerId so the server can bind the identity to
// this connection. Skipped while no identity exists; the login flow has not
// run yet in that case.
func (c *Conn) announce() {
	id, ok := c.identity()
	if !ok {
		c.log.Debug("identity absent, register_playerId skipped")
		return
	}
	if err := c.Send(protocol.EventRegisterPlayerID, id); err != nil {
		c.log.Warn("register_playerId failed", zap.Error(err))
	}
}

func (c *Conn) setWS(ws *websocket.Conn) {
	c.wmu.Lock()
	c.ws = ws
	c.wmu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
