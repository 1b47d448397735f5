package models

import "time"

// SessionState defines the lifecycle state of a live quiz session.
type SessionState string

const (
	SessionStateLobby      SessionState = "LOBBY"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStateFinished   SessionState = "FINISHED"
)

// rank orders states so transitions can only move forward.
func (s SessionState) rank() int {
	switch s {
	case SessionStateLobby:
		return 0
	case SessionStateInProgress:
		return 1
	case SessionStateFinished:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether next is the state directly after s.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	return s.rank() >= 0 && next.rank() == s.rank()+1
}

// QuizMode defines how question progression is driven in a session.
type QuizMode string

const (
	// QuizModeSelfPaced lets every client track its own question pointer.
	QuizModeSelfPaced QuizMode = "self_paced"
	// QuizModeHostPaced keeps the current question on the server, advanced by the host.
	QuizModeHostPaced QuizMode = "host_paced"
)

// ParseQuizMode maps a client supplied mode, defaulting to self paced.
func ParseQuizMode(s string) QuizMode {
	if QuizMode(s) == QuizModeHostPaced {
		return QuizModeHostPaced
	}
	return QuizModeSelfPaced
}

// Member is a live connection bound to a session.
type Member struct {
	ConnectionID string    `json:"connection_id"`
	DisplayName  string    `json:"display_name"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Session represents a PIN addressed live quiz room.
type Session struct {
	PIN                  string       `json:"pin"`
	State                SessionState `json:"state"`
	Mode                 QuizMode     `json:"mode"`
	QuizID               string       `json:"quiz_id,omitempty"`
	HostConnectionID     string       `json:"host_connection_id"`
	Members              []Member     `json:"members"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	CreatedAt            time.Time    `json:"created_at"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	FinishedAt           *time.Time   `json:"finished_at,omitempty"`
	LastActivityAt       time.Time    `json:"last_activity_at"`
}

// IsHost reports whether connectionID created the session.
func (s *Session) IsHost(connectionID string) bool {
	return s.HostConnectionID != "" && s.HostConnectionID == connectionID
}

// Member returns the member bound to connectionID.
func (s *Session) Member(connectionID string) (Member, bool) {
	for _, m := range s.Members {
		if m.ConnectionID == connectionID {
			return m, true
		}
	}
	return Member{}, false
}

// ConnectionIDs returns member connection ids in join order.
func (s *Session) ConnectionIDs() []string {
	ids := make([]string, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.ConnectionID
	}
	return ids
}

// Clone returns a deep copy safe to hand out of the registry.
func (s *Session) Clone() *Session {
	c := *s
	c.Members = append([]Member(nil), s.Members...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
