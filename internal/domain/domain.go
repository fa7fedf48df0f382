package domain

// TriviaQuestion is one raw item from the question bank. Only Question,
// CorrectAnswer and IncorrectAnswers matter to a game; the rest is metadata
// the source adapter uses for filtering.
type TriviaQuestion struct {
	ID               string   `json:"id"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Tags             []string `json:"tags"`
	IsNiche          bool     `json:"isNiche"`
}

// GameQuestion is the shape of a question as sent to a player: the correct
// choice is shuffled into Choices and its index is never part of the payload.
type GameQuestion struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
}

// GameAnswer is a player's reply to one question. A nil Choice means the
// player gave no answer (timeout, disconnect, or transport error).
type GameAnswer struct {
	Choice *int `json:"choice"`
}

// PlayerScore is one player's running tally within a game.
type PlayerScore struct {
	ConnectionID string
	Correct      int
	Incorrect    int
}

// Standings ranks the players of one game by correct answers, in descending
// order. Standings live only as long as their game.
type Standings struct {
	Game    string
	Entries []StandingsEntry
}

type StandingsEntry struct {
	ConnectionID string
	Correct      int
}
