// Package game runs one trivia session: a fixed-size group of players driven
// through a sequence of timed question rounds. A game never touches sockets
// or HTTP; it talks to its players through the Player contract and pulls
// content through the QuestionSource contract.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livetrivia/internal/domain"
	"github.com/victornm/livetrivia/internal/event"
)

// Player is the proxy for one connected player. Implementations may fail or
// time out on any call; the game downgrades every AskQuestion failure to
// "no answer" and treats the notification calls as best effort.
type Player interface {
	// AskQuestion prompts the player and waits for a reply. The timeout is
	// the player-facing answer window; ctx carries the server-side deadline.
	AskQuestion(ctx context.Context, q domain.GameQuestion, timeout time.Duration) (domain.GameAnswer, error)
	WriteMessage(msg string) error
	GameStarted(game string, rounds int, timeout time.Duration) error
	GameCompleted(game string, correct, incorrect int) error
}

// QuestionSource supplies the trivia content for a game.
type QuestionSource interface {
	GetQuestions(ctx context.Context, n int) ([]domain.TriviaQuestion, error)
}

// Options configure a game. They are read once at construction.
type Options struct {
	MaxPlayers      int
	Rounds          int
	QuestionTimeout time.Duration
	// AnswerGrace extends the server-side wait past QuestionTimeout, giving
	// clients some buffer before the server stops waiting for a reply.
	AnswerGrace time.Duration
	// PhaseDelay is the fixed pause between game phases, letting clients
	// render what they just received.
	PhaseDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = 4
	}
	if o.Rounds <= 0 {
		o.Rounds = 5
	}
	if o.QuestionTimeout <= 0 {
		o.QuestionTimeout = 20 * time.Second
	}
	if o.AnswerGrace <= 0 {
		o.AnswerGrace = 5 * time.Second
	}
	if o.PhaseDelay <= 0 {
		o.PhaseDelay = 3 * time.Second
	}

	return o
}

type Config struct {
	Source   QuestionSource
	EventBus *event.Bus
	Options  Options
}

// Game is one trivia session. Its phases are waiting (accepting players),
// running (rounds in progress) and completed; the transition to running
// happens at most once, exactly when the last seat is taken.
type Game struct {
	name   string
	opts   Options
	source QuestionSource
	eb     *event.Bus

	slots slotPool

	mu      sync.Mutex
	players map[string]*playerState

	completeOnce sync.Once
	completed    chan struct{}
}

// playerState owns the proxy for one connection plus its running tallies.
// The tallies are written only by the round loop.
type playerState struct {
	player    Player
	correct   int
	incorrect int
}

func New(c Config) *Game {
	opts := c.Options.withDefaults()

	return &Game{
		name:      GenerateName(),
		opts:      opts,
		source:    c.Source,
		eb:        c.EventBus,
		slots:     slotPool{free: opts.MaxPlayers},
		players:   make(map[string]*playerState),
		completed: make(chan struct{}),
	}
}

func (g *Game) Name() string { return g.name }

// Completed returns a channel closed exactly once when the game has run to
// completion, whether it finished its rounds, emptied out, or failed.
// The channel never closes for a game that never started.
func (g *Game) Completed() <-chan struct{} { return g.completed }

// AddPlayer seats the connection and registers its proxy. It returns false
// when the game is full; the caller must treat the game as ineligible and
// move on. Taking the last seat starts the round loop, unless a concurrent
// leave frees a seat first, in which case the game keeps accepting.
func (g *Game) AddPlayer(connectionID string, p Player) bool {
	if !g.slots.tryAcquire() {
		return false
	}

	g.mu.Lock()
	g.players[connectionID] = &playerState{player: p}
	g.mu.Unlock()

	g.broadcast(fmt.Sprintf("A new player joined game %s", g.name))

	if g.slots.closeIfEmpty() {
		go g.play()
		return true
	}

	if n := g.slots.remaining(); n > 0 {
		g.broadcast(fmt.Sprintf("Waiting for %d player(s) to join.", n))
	}

	return true
}

// RemovePlayer drops the connection from the game, mid-round or not. The
// seat frees up again only while the game is still waiting for players.
func (g *Game) RemovePlayer(connectionID string) {
	g.mu.Lock()
	_, ok := g.players[connectionID]
	delete(g.players, connectionID)
	g.mu.Unlock()

	if !ok {
		return
	}

	g.slots.release()
	g.broadcast("A player has left the game")
}

// play drives the whole game and guarantees the completed signal fires on
// every exit path, including a panicking round loop.
func (g *Game) play() {
	ctx := context.Background()

	var scores []domain.PlayerScore
	defer func() {
		g.completeOnce.Do(func() {
			g.eb.Publish(ctx, domain.EventGameCompleted{Game: g.name, Scores: scores})

			slog.InfoContext(ctx, "game: run to completion", "game", g.name)
			close(g.completed)
		})
	}()

	var err error
	scores, err = g.run(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "game: run failed", "game", g.name, "error", err)
		g.broadcast(fmt.Sprintf("Game %s ran into an unexpected problem and cannot continue.", g.name))
	}
}

func (g *Game) run(ctx context.Context) ([]domain.PlayerScore, error) {
	questions, err := g.source.GetQuestions(ctx, g.opts.Rounds)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	players := g.snapshot()
	for _, ps := range players {
		_ = ps.player.GameStarted(g.name, len(questions), g.opts.QuestionTimeout)
	}
	g.eb.Publish(ctx, domain.EventGameStarted{Game: g.name, Players: len(players), Rounds: len(questions)})

	g.broadcast(fmt.Sprintf("Retrieved %d questions...", len(questions)))
	g.pause()

	empty := false
	for round, tq := range questions {
		q, correctIndex := buildRound(tq)

		players = g.snapshot()
		if len(players) == 0 {
			// Everyone quit and nobody can join mid-game, so there is no
			// point asking more questions.
			empty = true
			break
		}

		slog.InfoContext(ctx, "game: asking question", "game", g.name, "round", round)

		type settled struct {
			id     string
			answer domain.GameAnswer
		}

		// One shared deadline for the whole round: a slow player cannot
		// stretch anyone else's time, and a fast one cannot shrink it.
		roundCtx, cancel := context.WithTimeout(ctx, g.opts.QuestionTimeout+g.opts.AnswerGrace)

		var (
			amu     sync.Mutex
			answers = make([]settled, 0, len(players))
			eg      errgroup.Group
		)
		for id, ps := range players {
			id, p := id, ps.player
			eg.Go(func() error {
				a := g.askPlayer(roundCtx, p, q)

				amu.Lock()
				answers = append(answers, settled{id: id, answer: a})
				amu.Unlock()
				return nil
			})
		}

		// The round advances only once every ask has settled, as an answer
		// or as "no answer".
		_ = eg.Wait()
		cancel()

		slog.InfoContext(ctx, "game: received all answers", "game", g.name, "round", round)

		for _, s := range answers {
			g.scoreAnswer(ctx, round, s.id, s.answer, q, correctIndex, tq.CorrectAnswer)
		}

		if round+1 < len(questions) {
			g.broadcast(fmt.Sprintf("Moving to the next question in %d seconds...", int(g.opts.PhaseDelay.Seconds())))
			g.pause()
		}
	}

	if empty {
		slog.InfoContext(ctx, "game: every player left, ending early", "game", g.name)
		return nil, nil
	}

	g.broadcast("Tallying scores...")
	g.pause()

	var scores []domain.PlayerScore
	for id, ps := range g.snapshot() {
		correct, incorrect := g.tally(id)
		_ = ps.player.GameCompleted(g.name, correct, incorrect)
		scores = append(scores, domain.PlayerScore{ConnectionID: id, Correct: correct, Incorrect: incorrect})
	}

	return scores, nil
}

// askPlayer asks one player the round's question, re-prompting while the
// answer index is out of range. Every failure mode (timeout, disconnect,
// transport error, even a panicking proxy) settles as "no answer" and never
// disturbs the asks running for other players.
func (g *Game) askPlayer(ctx context.Context, p Player, q domain.GameQuestion) (answer domain.GameAnswer) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "game: ask player panic", "game", g.name, "error", fmt.Errorf("%v", r))
			answer = domain.GameAnswer{}
		}
	}()

	for {
		a, err := p.AskQuestion(ctx, q, g.opts.QuestionTimeout)
		if err != nil {
			return domain.GameAnswer{}
		}

		if a.Choice != nil && *a.Choice >= 0 && *a.Choice < len(q.Choices) {
			_ = p.WriteMessage("Answer received. Waiting for other players to answer.")
			return a
		}

		select {
		case <-ctx.Done():
			return domain.GameAnswer{}
		default:
		}
	}
}

// scoreAnswer updates the player's tallies and sends the private feedback:
// correct, incorrect (with the right answer disclosed), or no answer (also
// with the right answer disclosed). Players who left mid-round are skipped.
func (g *Game) scoreAnswer(ctx context.Context, round int, id string, a domain.GameAnswer, q domain.GameQuestion, correctIndex int, correctAnswer string) {
	correct := a.Choice != nil && q.Choices[*a.Choice] == correctAnswer

	g.mu.Lock()
	ps, ok := g.players[id]
	var totalCorrect, totalIncorrect int
	if ok {
		if correct {
			ps.correct++
		} else {
			ps.incorrect++
		}
		totalCorrect, totalIncorrect = ps.correct, ps.incorrect
	}
	g.mu.Unlock()

	if !ok {
		return
	}

	switch {
	case correct:
		_ = ps.player.WriteMessage("That answer is correct!")
	case a.Choice != nil:
		_ = ps.player.WriteMessage(fmt.Sprintf("That answer is incorrect! The correct answer is %d. %s.", correctIndex, correctAnswer))
	default:
		_ = ps.player.WriteMessage(fmt.Sprintf("Time's up! The correct answer is %d. %s.", correctIndex, correctAnswer))
	}

	g.eb.Publish(ctx, domain.EventScoreUpdated{
		Game:  g.name,
		Round: round,
		Score: domain.PlayerScore{ConnectionID: id, Correct: totalCorrect, Incorrect: totalIncorrect},
	})
}

func (g *Game) tally(id string) (correct, incorrect int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ps, ok := g.players[id]; ok {
		return ps.correct, ps.incorrect
	}
	return 0, 0
}

func (g *Game) snapshot() map[string]*playerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]*playerState, len(g.players))
	for id, ps := range g.players {
		out[id] = ps
	}
	return out
}

func (g *Game) broadcast(msg string) {
	for _, ps := range g.snapshot() {
		_ = ps.player.WriteMessage(msg)
	}
}

func (g *Game) pause() {
	time.Sleep(g.opts.PhaseDelay)
}
