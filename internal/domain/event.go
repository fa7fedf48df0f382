package domain

const (
	EventNameGameStarted   = "game.started"
	EventNameScoreUpdated  = "game.score.updated"
	EventNameGameCompleted = "game.completed"
)

type EventGameStarted struct {
	Game    string
	Players int
	Rounds  int
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventScoreUpdated struct {
	Game  string
	Round int
	Score PlayerScore
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventGameCompleted struct {
	Game string
	// Scores holds the tallies of the players still present when the game
	// ended. Empty when every player left or the game failed mid-stream.
	Scores []PlayerScore
}

func (EventGameCompleted) Name() string { return EventNameGameCompleted }
