package game

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

var (
	adjectives = []string{"adorable", "amazing", "brave", "charming", "clever", "dashing", "dazzling", "elegant", "fierce", "friendly", "funny", "gentle", "glorious", "handsome", "happy", "helpful", "jolly", "kind", "lively", "lovely", "loyal", "nice", "perfect", "polite", "powerful", "proud", "silly", "talented", "thoughtful", "trustworthy", "wise"}
	nouns      = []string{"ant", "bird", "cat", "chicken", "cow", "dog", "dolphin", "duck", "elephant", "fish", "giraffe", "goat", "hamster", "horse", "kangaroo", "lion", "monkey", "otter", "panda", "pig", "rabbit", "snake", "tiger", "turtle", "wolf"}
)

// GenerateName returns a human-readable game identifier such as
// "brave_otter_3f2c". The random tail keeps names unique across games that
// draw the same word pair.
func GenerateName() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	id := uuid.NewString()[:4]

	return fmt.Sprintf("%s_%s_%s", adjective, noun, id)
}
