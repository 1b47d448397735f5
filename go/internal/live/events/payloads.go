package events

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedPayload is returned when an inbound payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// JoinGamePayload is sent by a client to join, or implicitly create, a room.
type JoinGamePayload struct {
	PIN      string `json:"pin"`
	Username string `json:"username"`
	Mode     string `json:"mode,omitempty"`
	QuizID   string `json:"quizId,omitempty"`
}

// HostCommandPayload carries a PIN plus the host capability token.
//
// start_game also accepts a bare JSON string holding only the PIN.
type HostCommandPayload struct {
	PIN       string `json:"pin"`
	HostToken string `json:"hostToken,omitempty"`
}

// SubmitAnswerPayload relays an answer. Answer is passed through verbatim.
type SubmitAnswerPayload struct {
	PIN      string          `json:"pin"`
	Answer   json.RawMessage `json:"answer"`
	Username string          `json:"username"`
}

// LeaveGamePayload removes the sender from a room without disconnecting.
type LeaveGamePayload struct {
	PIN string `json:"pin"`
}

// JoinedPayload acknowledges a join to the joining connection only.
type JoinedPayload struct {
	PIN          string `json:"pin"`
	ConnectionID string `json:"connectionId"`
	IsHost       bool   `json:"isHost"`
	HostToken    string `json:"hostToken,omitempty"`
	State        string `json:"state"`
	Mode         string `json:"mode"`
	QuizID       string `json:"quizId,omitempty"`
}

// PlayerJoinedPayload notifies the room of a membership change.
type PlayerJoinedPayload struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// PlayerLeftPayload notifies the room that a member left or disconnected.
type PlayerLeftPayload struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// GameStartedPayload is empty on the wire.
type GameStartedPayload struct{}

// AnswerReceivedPayload is broadcast for every relayed answer.
type AnswerReceivedPayload struct {
	Username      string          `json:"username"`
	Answer        json.RawMessage `json:"answer"`
	QuestionIndex *int            `json:"questionIndex,omitempty"`
}

// QuestionView is the part of a question players may see.
type QuestionView struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Image   string   `json:"image,omitempty"`
}

// QuestionAdvancedPayload is broadcast in host paced rooms.
type QuestionAdvancedPayload struct {
	Index    int           `json:"index"`
	Total    int           `json:"total,omitempty"`
	Question *QuestionView `json:"question,omitempty"`
}

// GameFinishedPayload is broadcast once when the host ends the session.
type GameFinishedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload is sent back to the originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   Name   `json:"event,omitempty"`
}

// DecodeJoinGame parses a join_game payload.
func DecodeJoinGame(data json.RawMessage) (JoinGamePayload, error) {
	var p JoinGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, errors.Join(ErrMalformedPayload, err)
	}
	p.PIN = strings.TrimSpace(p.PIN)
	p.Username = strings.TrimSpace(p.Username)
	if p.PIN == "" || p.Username == "" {
		return p, errors.Join(ErrMalformedPayload, errors.New("pin and username are required"))
	}
	return p, nil
}

// DecodeHostCommand parses start_game, advance_question and end_game payloads.
func DecodeHostCommand(data json.RawMessage) (HostCommandPayload, error) {
	var p HostCommandPayload
	var pin string
	if err := json.Unmarshal(data, &pin); err == nil {
		p.PIN = strings.TrimSpace(pin)
	} else if err := json.Unmarshal(data, &p); err != nil {
		return p, errors.Join(ErrMalformedPayload, err)
	}
	p.PIN = strings.TrimSpace(p.PIN)
	if p.PIN == "" {
		return p, errors.Join(ErrMalformedPayload, errors.New("pin is required"))
	}
	return p, nil
}

// DecodeSubmitAnswer parses a submit_answer payload.
func DecodeSubmitAnswer(data json.RawMessage) (SubmitAnswerPayload, error) {
	var p SubmitAnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, errors.Join(ErrMalformedPayload, err)
	}
	p.PIN = strings.TrimSpace(p.PIN)
	if p.PIN == "" {
		return p, errors.Join(ErrMalformedPayload, errors.New("pin is required"))
	}
	if len(p.Answer) == 0 {
		p.Answer = json.RawMessage("null")
	}
	return p, nil
}

// DecodeLeaveGame parses a leave_game payload.
func DecodeLeaveGame(data json.RawMessage) (LeaveGamePayload, error) {
	var p LeaveGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, errors.Join(ErrMalformedPayload, err)
	}
	p.PIN = strings.TrimSpace(p.PIN)
	if p.PIN == "" {
		return p, errors.Join(ErrMalformedPayload, errors.New("pin is required"))
	}
	return p, nil
}

// PeekPIN returns the PIN an inbound payload targets without validating the
// rest of it. It returns "" when there is none.
func PeekPIN(data json.RawMessage) string {
	var pin string
	if err := json.Unmarshal(data, &pin); err == nil {
		return strings.TrimSpace(pin)
	}
	var p struct {
		PIN string `json:"pin"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	return strings.TrimSpace(p.PIN)
}
