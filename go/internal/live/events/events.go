package events

import (
	"encoding/json"
	"time"
)

// Name identifies an event on the real-time channel.
type Name string

// Client to server events
const (
	JoinGame        Name = "join_game"
	StartGame       Name = "start_game"
	SubmitAnswer    Name = "submit_answer"
	AdvanceQuestion Name = "advance_question"
	EndGame         Name = "end_game"
	LeaveGame       Name = "leave_game"
)

// Server to client events
const (
	Joined           Name = "joined"
	PlayerJoined     Name = "player_joined"
	PlayerLeft       Name = "player_left"
	GameStarted      Name = "game_started"
	AnswerReceived   Name = "answer_received"
	QuestionAdvanced Name = "question_advanced"
	GameFinished     Name = "game_finished"
	Error            Name = "error"
)

// Inbound is the envelope every client message arrives in.
type Inbound struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope delivered to clients.
type Outbound struct {
	ID        string          `json:"id"`
	PIN       string          `json:"pin,omitempty"`
	Event     Name            `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Encode marshals the envelope for the wire.
func (o *Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}
