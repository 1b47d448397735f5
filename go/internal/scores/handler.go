package scores

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// maxBodyBytes bounds the request body; details carry per-question breakdowns.
const maxBodyBytes = 1 << 20

// recordScoreRequest mirrors what finishing clients post.
type recordScoreRequest struct {
	UserID  string          `json:"userId"`
	QuizID  string          `json:"quizId"`
	Score   int             `json:"score"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Handler exposes the recorder over HTTP.
type Handler struct {
	recorder Recorder
}

// NewHandler creates a new score handler
func NewHandler(recorder Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// HandleRecordScore handles POST /api/scores
func (h *Handler) HandleRecordScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recordScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.recorder.RecordScore(r.Context(), models.QuizResult{
		UserID:  req.UserID,
		QuizID:  req.QuizID,
		Score:   req.Score,
		Details: req.Details,
	})
	switch {
	case errors.Is(err, ErrInvalidResult):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrUnknownReference):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		log.Error().Err(err).Str("quiz_id", req.QuizID).Str("user_id", req.UserID).Msg("failed to record score")
		http.Error(w, "Failed to record score", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("result_id", result.ID).
		Str("quiz_id", result.QuizID).
		Str("user_id", result.UserID).
		Int("score", result.Score).
		Msg("score recorded")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("failed to encode score response")
	}
}

// RegisterRoutes registers score routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/scores", h.HandleRecordScore)
}
