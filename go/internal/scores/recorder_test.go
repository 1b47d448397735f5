package scores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/suite"

	"github.com/mcdev12/quizlive/go/internal/models"
)

const testQuizID = "5f1c2a52-8a57-4f3e-9c1e-6f0a2b7d9e11"

type fakeExecer struct {
	err   error
	query string
	args  []any
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

type RecorderTestSuite struct {
	suite.Suite
	db       *fakeExecer
	clock    *clockwork.FakeClock
	recorder *PostgresRecorder
	ctx      context.Context
}

func (s *RecorderTestSuite) SetupTest() {
	s.db = &fakeExecer{}
	s.clock = clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	s.recorder = NewPostgresRecorder(s.db, s.clock)
	s.ctx = context.Background()
}

func TestRecorderTestSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}

func (s *RecorderTestSuite) TestRecordScore() {
	result, err := s.recorder.RecordScore(s.ctx, models.QuizResult{
		UserID:  "user-1",
		QuizID:  testQuizID,
		Score:   300,
		Details: json.RawMessage(`[{"question":"2+2","isCorrect":true}]`),
	})
	s.Require().NoError(err)

	s.NotEmpty(result.ID)
	s.Equal(s.clock.Now(), result.RecordedAt)
	s.Contains(s.db.query, "INSERT INTO quiz_results")
	s.Require().Len(s.db.args, 6)
	s.Equal(uuid.MustParse(testQuizID), s.db.args[2])
	s.Equal(300, s.db.args[3])

	details, ok := s.db.args[4].(pqtype.NullRawMessage)
	s.Require().True(ok)
	s.True(details.Valid)
}

func (s *RecorderTestSuite) TestRecordScoreWithoutDetails() {
	_, err := s.recorder.RecordScore(s.ctx, models.QuizResult{UserID: "user-1", QuizID: testQuizID, Score: 0})
	s.Require().NoError(err)

	details := s.db.args[4].(pqtype.NullRawMessage)
	s.False(details.Valid)
}

func (s *RecorderTestSuite) TestRecordScoreValidation() {
	cases := []models.QuizResult{
		{QuizID: testQuizID, Score: 1},
		{UserID: "user-1", Score: 1},
		{UserID: "user-1", QuizID: testQuizID, Score: -5},
		{UserID: "user-1", QuizID: testQuizID, Details: json.RawMessage(`{broken`)},
		{UserID: "user-1", QuizID: "quiz-1", Score: 1},
	}
	for _, c := range cases {
		_, err := s.recorder.RecordScore(s.ctx, c)
		s.ErrorIs(err, ErrInvalidResult)
	}
	s.Empty(s.db.query)
}

func (s *RecorderTestSuite) TestRecordScoreUnknownReference() {
	s.db.err = &pq.Error{Code: "23503", Detail: "Key (quiz_id)=(9b0d4a6e-3c1f-4e2a-8d5b-7f6e1c2a3b4d) is not present"}

	_, err := s.recorder.RecordScore(s.ctx, models.QuizResult{UserID: "user-1", QuizID: "9b0d4a6e-3c1f-4e2a-8d5b-7f6e1c2a3b4d", Score: 1})
	s.ErrorIs(err, ErrUnknownReference)
}

func (s *RecorderTestSuite) TestHandler() {
	handler := NewHandler(s.recorder)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := `{"userId":"user-1","quizId":"` + testQuizID + `","score":200,"details":[]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scores", strings.NewReader(body)))
	s.Equal(http.StatusCreated, rec.Code)

	var result models.QuizResult
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &result))
	s.Equal(200, result.Score)
	s.Equal(testQuizID, result.QuizID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scores", strings.NewReader(`{"score":1}`)))
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scores", nil))
	s.Equal(http.StatusMethodNotAllowed, rec.Code)

	s.db.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scores", strings.NewReader(body)))
	s.Equal(http.StatusInternalServerError, rec.Code)
}
