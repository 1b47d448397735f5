package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// ErrNotFound is returned when no quiz has the requested id
var ErrNotFound = errors.New("quiz not found")

//go:generate mockgen -package=mocks -destination=mocks/mock_gateway.go github.com/mcdev12/quizlive/go/internal/quiz Gateway

// Gateway is the read-only source of quiz content.
type Gateway interface {
	GetQuiz(ctx context.Context, id string) (*models.Quiz, error)
}

// rowQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresGateway reads quizzes from the quizzes table.
type PostgresGateway struct {
	db rowQuerier
}

// NewPostgresGateway creates a new Postgres backed quiz gateway
func NewPostgresGateway(db rowQuerier) *PostgresGateway {
	return &PostgresGateway{db: db}
}

var _ Gateway = (*PostgresGateway)(nil)

const getQuizSQL = `
SELECT id::text, title, subject, grade, questions
FROM quizzes
WHERE id = $1`

// GetQuiz loads a quiz with its questions.
func (g *PostgresGateway) GetQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	quizID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var (
		q         models.Quiz
		grade     *string
		questions []byte
	)
	err = g.db.QueryRow(ctx, getQuizSQL, quizID).Scan(&q.ID, &q.Title, &q.Subject, &grade, &questions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get quiz %s: %w", id, err)
	}
	if grade != nil {
		q.Grade = *grade
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &q.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions of quiz %s: %w", id, err)
		}
	}
	return &q, nil
}
