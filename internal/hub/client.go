package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/livetrivia/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection acting as a player. Outbound frames go
// through a buffered send channel drained by the write pump; answers come in
// on the read pump and are routed to the ask that is waiting for them.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Message

	mu      sync.Mutex
	pending map[string]chan *int

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan Message, 64),
		pending: make(map[string]chan *int),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// AskQuestion sends the question frame and waits for the matching answer
// frame, the deadline, or the connection going away.
func (c *Client) AskQuestion(ctx context.Context, q domain.GameQuestion, timeout time.Duration) (domain.GameAnswer, error) {
	askID := uuid.NewString()

	ch := make(chan *int, 1)
	c.mu.Lock()
	c.pending[askID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, askID)
		c.mu.Unlock()
	}()

	err := c.push(Message{Type: MessageTypeQuestion, Payload: QuestionPayload{
		AskID:          askID,
		Question:       q.Question,
		Choices:        q.Choices,
		TimeoutSeconds: int(timeout.Seconds()),
	}})
	if err != nil {
		return domain.GameAnswer{}, err
	}

	select {
	case choice := <-ch:
		return domain.GameAnswer{Choice: choice}, nil
	case <-ctx.Done():
		return domain.GameAnswer{}, ctx.Err()
	case <-c.done:
		return domain.GameAnswer{}, fmt.Errorf("connection %s closed", c.id)
	}
}

func (c *Client) WriteMessage(msg string) error {
	return c.push(Message{Type: MessageTypeMessage, Payload: TextPayload{Text: msg}})
}

func (c *Client) GameStarted(game string, rounds int, timeout time.Duration) error {
	return c.push(Message{Type: MessageTypeGameStarted, Payload: GameStartedPayload{
		Game:           game,
		Rounds:         rounds,
		TimeoutSeconds: int(timeout.Seconds()),
	}})
}

func (c *Client) GameCompleted(game string, correct, incorrect int) error {
	return c.push(Message{Type: MessageTypeGameCompleted, Payload: GameCompletedPayload{
		Game:      game,
		Correct:   correct,
		Incorrect: incorrect,
	}})
}

func (c *Client) push(m Message) error {
	select {
	case c.send <- m:
		return nil
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.id)
	}
}

// readPump consumes inbound frames until the connection drops, then runs
// onClose. Unknown or malformed frames are skipped, not fatal.
func (c *Client) readPump(ctx context.Context, onClose func()) {
	defer func() {
		c.close()
		onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.ErrorContext(ctx, "hub: read failed", "connection", c.id, "error", err)
			}
			return
		}

		var m inboundMessage
		if err := json.Unmarshal(data, &m); err != nil {
			slog.WarnContext(ctx, "hub: malformed frame", "connection", c.id, "error", err)
			continue
		}

		if m.Type != MessageTypeAnswer {
			continue
		}

		var a AnswerPayload
		if err := json.Unmarshal(m.Payload, &a); err != nil {
			slog.WarnContext(ctx, "hub: malformed answer", "connection", c.id, "error", err)
			continue
		}

		c.resolve(a)
	}
}

// resolve hands the answer to the pending ask it belongs to. Answers for
// settled or unknown asks are dropped.
func (c *Client) resolve(a AnswerPayload) {
	c.mu.Lock()
	ch, ok := c.pending[a.AskID]
	if ok {
		delete(c.pending, a.AskID)
	}
	c.mu.Unlock()

	if ok {
		ch <- a.Choice
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
