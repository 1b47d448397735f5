package scores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/quizlive/go/internal/models"
)

var (
	// ErrInvalidResult is returned for results missing required fields.
	ErrInvalidResult = errors.New("invalid quiz result")
	// ErrUnknownReference is returned when the user or quiz does not exist.
	ErrUnknownReference = errors.New("unknown user or quiz")
)

// Recorder is the write sink for finished attempts.
type Recorder interface {
	RecordScore(ctx context.Context, result models.QuizResult) (*models.QuizResult, error)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresRecorder inserts results into quiz_results.
type PostgresRecorder struct {
	db    execer
	clock clockwork.Clock
}

// NewPostgresRecorder creates a new Postgres backed score recorder
func NewPostgresRecorder(db execer, clock clockwork.Clock) *PostgresRecorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PostgresRecorder{db: db, clock: clock}
}

var _ Recorder = (*PostgresRecorder)(nil)

const insertResultSQL = `
INSERT INTO quiz_results (id, user_id, quiz_id, score, details, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// RecordScore validates and stores one result.
func (r *PostgresRecorder) RecordScore(ctx context.Context, result models.QuizResult) (*models.QuizResult, error) {
	result.UserID = strings.TrimSpace(result.UserID)
	result.QuizID = strings.TrimSpace(result.QuizID)
	if result.UserID == "" || result.QuizID == "" {
		return nil, fmt.Errorf("%w: user_id and quiz_id are required", ErrInvalidResult)
	}
	quizID, err := uuid.Parse(result.QuizID)
	if err != nil {
		return nil, fmt.Errorf("%w: quiz_id must be a UUID", ErrInvalidResult)
	}
	result.QuizID = quizID.String()
	if result.Score < 0 {
		return nil, fmt.Errorf("%w: score must not be negative", ErrInvalidResult)
	}
	if len(result.Details) > 0 && !json.Valid(result.Details) {
		return nil, fmt.Errorf("%w: details must be valid JSON", ErrInvalidResult)
	}

	result.ID = uuid.New().String()
	result.RecordedAt = r.clock.Now().UTC()

	details := pqtype.NullRawMessage{RawMessage: result.Details, Valid: len(result.Details) > 0}
	_, err = r.db.ExecContext(ctx, insertResultSQL,
		result.ID, result.UserID, quizID, result.Score, details, result.RecordedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReference, pqErr.Detail)
		}
		return nil, fmt.Errorf("failed to record score: %w", err)
	}
	return &result, nil
}
