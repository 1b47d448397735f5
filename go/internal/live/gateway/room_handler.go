package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/room"
	"github.com/mcdev12/quizlive/go/internal/models"
)

// RoomStateResponse is the public view of one room
type RoomStateResponse struct {
	PIN                  string       `json:"pin"`
	State                string       `json:"state"`
	Mode                 string       `json:"mode"`
	QuizID               string       `json:"quiz_id,omitempty"`
	Members              []MemberInfo `json:"members"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	LastActivityAt       time.Time    `json:"last_activity_at"`
	Source               string       `json:"source"`
}

// MemberInfo is a room member as shown to API clients
type MemberInfo struct {
	ConnectionID string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
	IsHost       bool   `json:"is_host"`
}

// RoomSummary represents a summary of an active room
type RoomSummary struct {
	PIN     string `json:"pin"`
	State   string `json:"state"`
	Mode    string `json:"mode"`
	Members int    `json:"members"`
}

// RoomHandler serves room snapshots over HTTP
type RoomHandler struct {
	registry *room.Registry
	mirror   room.Mirror
}

// NewRoomHandler creates a new room handler. mirror may be nil.
func NewRoomHandler(registry *room.Registry, mirror room.Mirror) *RoomHandler {
	return &RoomHandler{registry: registry, mirror: mirror}
}

// HandleGetRoom handles GET /api/rooms/{pin}. Rooms owned by another instance
// are served from the mirror.
func (h *RoomHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	if !room.ValidPIN(pin) {
		http.Error(w, room.ErrInvalidPIN.Error(), http.StatusBadRequest)
		return
	}

	session, source, err := h.lookup(r.Context(), pin)
	if errors.Is(err, room.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("pin", pin).Msg("failed to load room")
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, newRoomStateResponse(session, source))
}

// HandleListRooms handles GET /api/rooms
func (h *RoomHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Sessions()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].PIN < sessions[j].PIN })

	summaries := make([]RoomSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, RoomSummary{
			PIN:     s.PIN,
			State:   string(s.State),
			Mode:    string(s.Mode),
			Members: len(s.Members),
		})
	}
	writeJSON(w, map[string]interface{}{
		"rooms": summaries,
		"count": len(summaries),
	})
}

func (h *RoomHandler) lookup(ctx context.Context, pin string) (*models.Session, string, error) {
	session, err := h.registry.Find(pin)
	if err == nil {
		return session, "local", nil
	}
	if h.mirror == nil {
		return nil, "", err
	}
	session, err = h.mirror.Load(ctx, pin)
	if err != nil {
		return nil, "", err
	}
	return session, "mirror", nil
}

func newRoomStateResponse(s *models.Session, source string) RoomStateResponse {
	members := make([]MemberInfo, len(s.Members))
	for i, m := range s.Members {
		members[i] = MemberInfo{
			ConnectionID: m.ConnectionID,
			DisplayName:  m.DisplayName,
			IsHost:       s.IsHost(m.ConnectionID),
		}
	}
	return RoomStateResponse{
		PIN:                  s.PIN,
		State:                string(s.State),
		Mode:                 string(s.Mode),
		QuizID:               s.QuizID,
		Members:              members,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		StartedAt:            s.StartedAt,
		LastActivityAt:       s.LastActivityAt,
		Source:               source,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RegisterRoutes registers room routes with an HTTP mux
func (h *RoomHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms", h.HandleListRooms)
	mux.HandleFunc("GET /api/rooms/{pin}", h.HandleGetRoom)
}
