// Package hub is the websocket transport for players: it upgrades incoming
// connections, hands each one to the lobby as a player, and unbinds it from
// its game when the socket drops.
package hub

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/victornm/livetrivia/internal/game"
)

// Joiner is the matchmaking side the hub talks to.
type Joiner interface {
	Join(ctx context.Context, connectionID string, p game.Player) *game.Game
}

type Config struct {
	Lobby Joiner
}

type Hub struct {
	lobby    Joiner
	upgrader websocket.Upgrader
}

func New(c Config) *Hub {
	return &Hub{
		lobby: c.Lobby,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and binds the connection's lifetime to the
// game the lobby picks: join on connect, leave on disconnect. It returns
// when the connection is gone.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "hub: upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	slog.InfoContext(ctx, "hub: player connected", "connection", c.ID())

	go c.writePump()

	// The game outlives this request's context.
	g := h.lobby.Join(context.WithoutCancel(ctx), c.ID(), c)

	c.readPump(ctx, func() {
		g.RemovePlayer(c.ID())
		slog.InfoContext(ctx, "hub: player disconnected", "connection", c.ID(), "game", g.Name())
	})
}
