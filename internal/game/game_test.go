package game_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livetrivia/internal/domain"
	"github.com/victornm/livetrivia/internal/event"
	"github.com/victornm/livetrivia/internal/game"
)

const (
	correctAnswer = "right"
)

func TestGame_SlotExclusivity(t *testing.T) {
	t.Parallel()

	const (
		capacity = 4
		joiners  = 16
	)

	g := makeGame(t, withOptions(game.Options{MaxPlayers: capacity, Rounds: 1}))

	players := make([]*fakePlayer, joiners)
	results := make([]bool, joiners)

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		i := i
		players[i] = newFakePlayer(answerCorrectly())
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = g.AddPlayer(fmt.Sprintf("conn-%d", i), players[i])
		}()
	}
	wg.Wait()

	joined := 0
	for _, ok := range results {
		if ok {
			joined++
		}
	}
	require.Equal(t, capacity, joined, "exactly one join per seat")

	require.False(t, g.AddPlayer("late", newFakePlayer(answerCorrectly())), "a full game accepts nobody")

	waitCompleted(t, g)
}

func TestGame_StartsExactlyOnce(t *testing.T) {
	t.Parallel()

	src := &fakeSource{questions: questions(1)}
	g := makeGame(t,
		withSource(src),
		withOptions(game.Options{MaxPlayers: 3, Rounds: 1}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.AddPlayer(fmt.Sprintf("conn-%d", i), newFakePlayer(answerCorrectly()))
		}()
	}
	wg.Wait()

	waitCompleted(t, g)

	// Each activation of the round loop fetches questions once.
	require.Equal(t, 1, src.calls())
}

// Capacity 2, one round: player A answers correctly within time, player B
// never answers. A hears "correct", B hears "time's up" with the right
// answer disclosed, and the final tallies are 1/0 and 0/1.
func TestGame_ScoresAndFeedback(t *testing.T) {
	t.Parallel()

	g := makeGame(t, withOptions(game.Options{MaxPlayers: 2, Rounds: 1}))

	a := newFakePlayer(answerCorrectly())
	b := newFakePlayer(neverAnswer())

	require.True(t, g.AddPlayer("a", a))
	require.True(t, g.AddPlayer("b", b))

	waitCompleted(t, g)

	require.Equal(t, []completion{{game: g.Name(), correct: 1, incorrect: 0}}, a.completions())
	require.Equal(t, []completion{{game: g.Name(), correct: 0, incorrect: 1}}, b.completions())

	assert.True(t, a.sawMessage("That answer is correct!"))
	assert.True(t, b.sawMessage("Time's up! The correct answer is"))
	assert.True(t, b.sawMessage(correctAnswer), "the right answer is disclosed on a non-answer")

	require.Len(t, a.starts(), 1)
	require.Equal(t, 1, a.starts()[0].rounds)
}

func TestGame_ScoringAcrossRounds(t *testing.T) {
	t.Parallel()

	g := makeGame(t, withOptions(game.Options{MaxPlayers: 2, Rounds: 3}))

	// A: correct, wrong, no answer. B: correct every round.
	a := newFakePlayer(answerScript(
		answerCorrectly(),
		answerWrong(),
		neverAnswer(),
	))
	b := newFakePlayer(answerCorrectly())

	require.True(t, g.AddPlayer("a", a))
	require.True(t, g.AddPlayer("b", b))

	waitCompleted(t, g)

	require.Equal(t, []completion{{game: g.Name(), correct: 1, incorrect: 2}}, a.completions())
	require.Equal(t, []completion{{game: g.Name(), correct: 3, incorrect: 0}}, b.completions())

	assert.True(t, a.sawMessage("That answer is incorrect! The correct answer is"))
}

func TestGame_RetriesOutOfRangeAnswer(t *testing.T) {
	t.Parallel()

	g := makeGame(t, withOptions(game.Options{MaxPlayers: 1, Rounds: 1}))

	// First reply is out of range; the game re-prompts the same player.
	p := newFakePlayer(answerScript(
		answerIndex(99),
		answerCorrectly(),
	))

	require.True(t, g.AddPlayer("a", p))

	waitCompleted(t, g)

	require.Equal(t, 2, p.askCount(), "the invalid answer triggered a re-prompt")
	require.Equal(t, []completion{{game: g.Name(), correct: 1, incorrect: 0}}, p.completions())
}

func TestGame_LeaveMidRoundDoesNotDisturbOthers(t *testing.T) {
	t.Parallel()

	g := makeGame(t, withOptions(game.Options{MaxPlayers: 2, Rounds: 1}))

	b := newFakePlayer(neverAnswer())
	a := newFakePlayer(func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		// Leaving b mid-round must not abort a's ask or the round.
		g.RemovePlayer("b")
		return pickAnswer(q, correctAnswer)
	})

	require.True(t, g.AddPlayer("a", a))
	require.True(t, g.AddPlayer("b", b))

	waitCompleted(t, g)

	require.Equal(t, []completion{{game: g.Name(), correct: 1, incorrect: 0}}, a.completions())
	require.Empty(t, b.completions(), "a player who left gets no final tally")
}

func TestGame_SourceFailureStillCompletes(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()

	var (
		mu        sync.Mutex
		completed []domain.EventGameCompleted
	)
	eb.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		completed = append(completed, e.(domain.EventGameCompleted))
		mu.Unlock()
		return nil
	})

	g := makeGame(t,
		withEventBus(eb),
		withSource(&fakeSource{err: errors.New("upstream down")}),
		withOptions(game.Options{MaxPlayers: 2, Rounds: 1}),
	)

	a := newFakePlayer(answerCorrectly())
	b := newFakePlayer(answerCorrectly())
	require.True(t, g.AddPlayer("a", a))
	require.True(t, g.AddPlayer("b", b))

	waitCompleted(t, g)
	eb.Stop()

	assert.True(t, a.sawMessage("cannot continue"), "players get a failure notice instead of scores")
	require.Empty(t, a.completions())
	require.Empty(t, b.completions())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1, "the completed event still fires on failure")
	require.Empty(t, completed[0].Scores)
}

func TestGame_EmptyGameEndsEarly(t *testing.T) {
	t.Parallel()

	src := &fakeSource{questions: questions(3), gate: make(chan struct{})}
	g := makeGame(t,
		withSource(src),
		withOptions(game.Options{MaxPlayers: 2, Rounds: 3}),
	)

	a := newFakePlayer(answerCorrectly())
	b := newFakePlayer(answerCorrectly())
	require.True(t, g.AddPlayer("a", a))
	require.True(t, g.AddPlayer("b", b))

	// Both players quit while the fetch is still in flight.
	g.RemovePlayer("a")
	g.RemovePlayer("b")
	close(src.gate)

	waitCompleted(t, g)

	require.Zero(t, a.askCount(), "no round runs in an empty game")
	require.Zero(t, b.askCount())
	require.Empty(t, a.completions())
	require.Empty(t, b.completions())
}

// Capacity 3 with 2 joined: both leave before the game fills. The round loop
// never runs, the completed signal never fires, and later joins can still
// fill the game and start it.
func TestGame_LeavesWhileWaitingReopenSeats(t *testing.T) {
	t.Parallel()

	g := makeGame(t, withOptions(game.Options{MaxPlayers: 3, Rounds: 1}))

	require.True(t, g.AddPlayer("a", newFakePlayer(answerCorrectly())))
	require.True(t, g.AddPlayer("b", newFakePlayer(answerCorrectly())))
	g.RemovePlayer("a")
	g.RemovePlayer("b")

	select {
	case <-g.Completed():
		t.Fatal("a game that never started must not complete")
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, g.AddPlayer("c", newFakePlayer(answerCorrectly())))
	require.True(t, g.AddPlayer("d", newFakePlayer(answerCorrectly())))
	require.True(t, g.AddPlayer("e", newFakePlayer(answerCorrectly())))

	waitCompleted(t, g)
}

// --- helpers ---

func makeGame(t *testing.T, opts ...option) *game.Game {
	t.Helper()

	c := game.Config{
		Source:   &fakeSource{questions: questions(5)},
		EventBus: event.NewBus(),
		Options: game.Options{
			QuestionTimeout: 100 * time.Millisecond,
			AnswerGrace:     50 * time.Millisecond,
			PhaseDelay:      time.Millisecond,
		},
	}

	for _, opt := range opts {
		opt(&c)
	}

	return game.New(c)
}

type option func(*game.Config)

func withSource(src game.QuestionSource) option {
	return func(c *game.Config) {
		c.Source = src
	}
}

func withEventBus(eb *event.Bus) option {
	return func(c *game.Config) {
		c.EventBus = eb
	}
}

// withOptions overrides player/round counts while keeping the fast test timings.
func withOptions(o game.Options) option {
	return func(c *game.Config) {
		o.QuestionTimeout = c.Options.QuestionTimeout
		o.AnswerGrace = c.Options.AnswerGrace
		o.PhaseDelay = c.Options.PhaseDelay
		c.Options = o
	}
}

func waitCompleted(t *testing.T, g *game.Game) {
	t.Helper()

	select {
	case <-g.Completed():
	case <-time.After(5 * time.Second):
		t.Fatal("game did not complete in time")
	}
}

func questions(n int) []domain.TriviaQuestion {
	out := make([]domain.TriviaQuestion, n)
	for i := range out {
		out[i] = domain.TriviaQuestion{
			Question:         fmt.Sprintf("question %d", i),
			CorrectAnswer:    correctAnswer,
			IncorrectAnswers: []string{"wrong1", "wrong2", "wrong3"},
		}
	}
	return out
}

type fakeSource struct {
	questions []domain.TriviaQuestion
	err       error
	gate      chan struct{}

	mu    sync.Mutex
	calln int
}

func (s *fakeSource) GetQuestions(ctx context.Context, n int) ([]domain.TriviaQuestion, error) {
	s.mu.Lock()
	s.calln++
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.questions) {
		n = len(s.questions)
	}
	return s.questions[:n], nil
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calln
}

// answerFunc decides one reply; ask is the 1-based count of prompts this
// player has received.
type answerFunc func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error)

func answerCorrectly() answerFunc {
	return func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		return pickAnswer(q, correctAnswer)
	}
}

func answerWrong() answerFunc {
	return func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		return pickAnswer(q, "wrong1")
	}
}

func answerIndex(i int) answerFunc {
	return func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		return domain.GameAnswer{Choice: &i}, nil
	}
}

func neverAnswer() answerFunc {
	return func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		<-ctx.Done()
		return domain.GameAnswer{}, ctx.Err()
	}
}

// answerScript replies with the i-th func on the i-th prompt, sticking to the
// last one once the script runs out.
func answerScript(script ...answerFunc) answerFunc {
	return func(ctx context.Context, q domain.GameQuestion, ask int) (domain.GameAnswer, error) {
		i := ask - 1
		if i >= len(script) {
			i = len(script) - 1
		}
		return script[i](ctx, q, ask)
	}
}

func pickAnswer(q domain.GameQuestion, text string) (domain.GameAnswer, error) {
	for i, c := range q.Choices {
		if c == text {
			i := i
			return domain.GameAnswer{Choice: &i}, nil
		}
	}
	return domain.GameAnswer{}, fmt.Errorf("choice %q not offered", text)
}

type start struct {
	game    string
	rounds  int
	timeout time.Duration
}

type completion struct {
	game               string
	correct, incorrect int
}

type fakePlayer struct {
	answer answerFunc

	mu        sync.Mutex
	asks      int
	messages  []string
	started   []start
	completed []completion
}

func newFakePlayer(f answerFunc) *fakePlayer {
	return &fakePlayer{answer: f}
}

func (p *fakePlayer) AskQuestion(ctx context.Context, q domain.GameQuestion, timeout time.Duration) (domain.GameAnswer, error) {
	p.mu.Lock()
	p.asks++
	ask := p.asks
	p.mu.Unlock()

	return p.answer(ctx, q, ask)
}

func (p *fakePlayer) WriteMessage(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePlayer) GameStarted(game string, rounds int, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, start{game: game, rounds: rounds, timeout: timeout})
	return nil
}

func (p *fakePlayer) GameCompleted(game string, correct, incorrect int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, completion{game: game, correct: correct, incorrect: incorrect})
	return nil
}

func (p *fakePlayer) askCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asks
}

func (p *fakePlayer) sawMessage(substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (p *fakePlayer) starts() []start {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]start(nil), p.started...)
}

func (p *fakePlayer) completions() []completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]completion(nil), p.completed...)
}
