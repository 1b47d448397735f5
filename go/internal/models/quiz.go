package models

import (
	"encoding/json"
	"time"
)

// Question is a single multiple choice question of a quiz.
type Question struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Image        string   `json:"image,omitempty"`
}

// Quiz is the read model served by the quiz content gateway.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subject   string     `json:"subject"`
	Grade     string     `json:"grade,omitempty"`
	Questions []Question `json:"questions"`
}

// QuizResult is one finished attempt recorded by the score persistence gateway.
type QuizResult struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	QuizID     string          `json:"quiz_id"`
	Score      int             `json:"score"`
	Details    json.RawMessage `json:"details,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
