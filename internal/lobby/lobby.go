// Package lobby matches connecting players into games: a FIFO queue of games
// still accepting players, and a set of games that have filled up and run on
// their own until they complete.
package lobby

import (
	"context"
	"log/slog"
	"sync"

	"github.com/victornm/livetrivia/internal/game"
)

// Factory creates a fresh game with a fresh identity and seat pool.
type Factory func() *game.Game

type Config struct {
	NewGame Factory
}

type Lobby struct {
	newGame Factory

	mu      sync.Mutex
	waiting []*game.Game
	active  map[string]*game.Game
}

func New(c Config) *Lobby {
	return &Lobby{
		newGame: c.NewGame,
		active:  make(map[string]*game.Game),
	}
}

// Join places the connection into the longest-waiting game with a free seat,
// creating a new game when none is accepting. The caller binds the
// connection's lifetime to the returned game: it must call RemovePlayer on
// disconnect.
func (l *Lobby) Join(ctx context.Context, connectionID string, p game.Player) *game.Game {
	for {
		g := l.peek()
		if g == nil {
			l.enqueue(l.newGame())
			continue
		}

		if g.AddPlayer(connectionID, p) {
			return g
		}

		// The head filled up under us: retire it and retry against the next.
		l.retire(ctx, g)
	}
}

func (l *Lobby) peek() *game.Game {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiting) == 0 {
		return nil
	}
	return l.waiting[0]
}

func (l *Lobby) enqueue(g *game.Game) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.waiting = append(l.waiting, g)
}

// retire moves a full game from the waiting queue to the active set. Racing
// callers may all observe the game as full; only the first performs the move.
// The game is pruned from the active set once it completes.
func (l *Lobby) retire(ctx context.Context, g *game.Game) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[g.Name()]; ok {
		return
	}
	l.active[g.Name()] = g

	if len(l.waiting) > 0 && l.waiting[0] == g {
		l.waiting = l.waiting[1:]
	}

	go func() {
		<-g.Completed()

		l.mu.Lock()
		delete(l.active, g.Name())
		l.mu.Unlock()

		slog.InfoContext(ctx, "lobby: pruned completed game", "game", g.Name())
	}()
}

// Stats reports how many games are waiting for players and how many are
// running.
func (l *Lobby) Stats() (waiting, active int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.waiting), len(l.active)
}
