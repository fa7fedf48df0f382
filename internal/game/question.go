package game

import (
	"math/rand"
	"slices"

	"github.com/victornm/livetrivia/internal/domain"
)

// buildRound shuffles the correct answer in with the incorrect ones and
// returns the question to send to players plus the index of the correct
// choice. The index is server-side knowledge only.
func buildRound(tq domain.TriviaQuestion) (domain.GameQuestion, int) {
	choices := make([]string, 0, len(tq.IncorrectAnswers)+1)
	choices = append(choices, tq.IncorrectAnswers...)
	choices = append(choices, tq.CorrectAnswer)

	rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})

	return domain.GameQuestion{
		Question: tq.Question,
		Choices:  choices,
	}, slices.Index(choices, tq.CorrectAnswer)
}
