package hub

import "encoding/json"

type MessageType string

const (
	// Server -> Client
	MessageTypeMessage       MessageType = "message"
	MessageTypeQuestion      MessageType = "question"
	MessageTypeGameStarted   MessageType = "game_started"
	MessageTypeGameCompleted MessageType = "game_completed"

	// Client -> Server
	MessageTypeAnswer MessageType = "answer"
)

// Message is one websocket frame. The payload shape depends on Type; these
// shapes cross the process boundary to clients and must stay stable.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type inboundMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type TextPayload struct {
	Text string `json:"text"`
}

type QuestionPayload struct {
	AskID          string   `json:"ask_id"`
	Question       string   `json:"question"`
	Choices        []string `json:"choices"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

type AnswerPayload struct {
	AskID  string `json:"ask_id"`
	Choice *int   `json:"choice"`
}

type GameStartedPayload struct {
	Game           string `json:"game"`
	Rounds         int    `json:"rounds"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type GameCompletedPayload struct {
	Game      string `json:"game"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
}
