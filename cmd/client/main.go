package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ccr-game/client/internal/app"
	"github.com/ccr-game/client/internal/channel"
	"github.com/ccr-game/client/internal/config"
	"github.com/ccr-game/client/internal/identity"
	"github.com/ccr-game/client/internal/lobby"
	"github.com/ccr-game/client/internal/room"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath()), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := identity.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdin := bufio.NewReader(os.Stdin)
	if err := ensureIdentity(ctx, cfg, store, stdin); err != nil {
		return err
	}

	wsURL, err := cfg.WebsocketURL()
	if err != nil {
		return err
	}
	conn := channel.New(wsURL, func() (string, bool) {
		id, ok, err := store.Identity()
		if err != nil || !ok {
			return "", false
		}
		return id.PlayerID, true
	}, log.Named("channel"))

	guard := &promptGuard{}
	a := app.New(conn, store, &printNavigator{}, guard, log.Named("app"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(ctx) })
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return noticeLoop(ctx, a) })
	g.Go(func() error {
		defer cancel()
		return commandLoop(ctx, a, guard, stdin)
	})
	err = g.Wait()
	if errors.Is(err, app.ErrNoIdentity) {
		fmt.Println("No identity on file; restart and log in again.")
		return nil
	}
	return err
}

func ensureIdentity(ctx context.Context, cfg config.Config, store *identity.Store, stdin *bufio.Reader) error {
	if _, ok, err := store.Identity(); err == nil && ok {
		return nil
	}

	name := cfg.PlayerName
	for strings.TrimSpace(name) == "" {
		fmt.Print("Enter a username to play as guest: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		name = strings.TrimSpace(line)
	}

	issuer := identity.NewIssuer(cfg.ServerURL)
	id, err := issuer.Guest(ctx, name)
	if err != nil {
		return fmt.Errorf("guest login: %w", err)
	}
	if err := store.SaveIdentity(id); err != nil {
		return err
	}
	fmt.Printf("Welcome, %s!\n", id.PlayerName)
	return nil
}

// noticeLoop surfaces room_error messages from whichever lobby is active.
func noticeLoop(ctx context.Context, a *app.App) error {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l, ok := a.Lobby()
			if !ok {
				continue
			}
			select {
			case msg := <-l.Notices():
				fmt.Println("!", msg)
			default:
			}
		}
	}
}

func commandLoop(ctx context.Context, a *app.App, guard *promptGuard, stdin *bufio.Reader) error {
	fmt.Println("commands: rooms | refresh | host <room> <password> | join <room> <password> | players | leave | quit")
	for {
		line, err := stdin.ReadString('\n')
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch fields[0] {
		case "rooms":
			printRooms(a)
		case "refresh":
			if l, ok := a.Lobby(); ok {
				l.Inbox() <- lobby.Refresh{}
			}
		case "host":
			if len(fields) != 3 {
				fmt.Println("usage: host <room> <password>")
				continue
			}
			if l, ok := a.Lobby(); ok {
				l.Inbox() <- lobby.Host{Room: fields[1], Secret: fields[2]}
			}
		case "join":
			if len(fields) != 3 {
				fmt.Println("usage: join <room> <password>")
				continue
			}
			if l, ok := a.Lobby(); ok {
				l.Inbox() <- lobby.OpenJoin{Room: fields[1]}
				l.Inbox() <- lobby.SubmitJoin{Secret: fields[2]}
			}
		case "players":
			printRoster(a)
		case "leave":
			a.LeaveRoom()
		case "quit":
			if !guard.confirm(stdin) {
				continue
			}
			return nil
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func printRooms(a *app.App) {
	l, ok := a.Lobby()
	if !ok {
		fmt.Println("not in the lobby")
		return
	}
	reply := make(chan lobby.View, 1)
	l.Inbox() <- lobby.GetState{Reply: reply}
	v := <-reply
	if len(v.Rooms) == 0 {
		fmt.Println("no rooms yet")
		return
	}
	for _, r := range v.Rooms {
		fmt.Printf("  %s (%d players)\n", r.Name, r.PlayerCount)
	}
}

func printRoster(a *app.App) {
	s, ok := a.Session()
	if !ok {
		fmt.Println("not in a room")
		return
	}
	reply := make(chan room.View, 1)
	s.Inbox() <- room.GetState{Reply: reply}
	v := <-reply
	fmt.Printf("room %s (%s):\n", v.Room, v.Phase)
	for _, p := range v.Roster {
		fmt.Printf("  %s: %d\n", p.Name, p.Score)
	}
}

// printNavigator announces view transitions on the terminal.
type printNavigator struct{}

func (printNavigator) ToLogin() { fmt.Println("-> login") }
func (printNavigator) ToLobby() { fmt.Println("-> lobby") }
func (printNavigator) ToRoom(roomName string) {
	fmt.Printf("-> room %s\n", roomName)
}

// promptGuard is the terminal stand-in for the browser unload guard: while
// held, quitting asks for confirmation first.
type promptGuard struct {
	mu      sync.Mutex
	held    bool
	message string
}

func (g *promptGuard) Acquire(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = true
	g.message = message
}

func (g *promptGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	g.message = ""
}

func (g *promptGuard) confirm(stdin *bufio.Reader) bool {
	g.mu.Lock()
	held, message := g.held, g.message
	g.mu.Unlock()
	if !held {
		return true
	}
	fmt.Printf("%s [y/N] ", message)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
