package room

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// HostCommand identifies the caller of a host only transition.
type HostCommand struct {
	PIN          string
	ConnectionID string
	HostToken    string
}

// Start moves a room from Lobby to InProgress.
func (r *Registry) Start(ctx context.Context, cmd HostCommand) (*models.Session, error) {
	return r.transition(ctx, cmd, func(session *models.Session) error {
		if !session.State.CanTransitionTo(models.SessionStateInProgress) {
			return ErrInvalidState
		}
		now := r.clock.Now()
		session.State = models.SessionStateInProgress
		session.StartedAt = &now
		return nil
	})
}

// AdvanceResult is returned by Advance.
type AdvanceResult struct {
	Session *models.Session
	// Finished is set when the advance moved past the last question.
	Finished bool
}

// Advance moves a host paced room to its next question. questionCount is the
// number of questions in the quiz, or zero when unknown. Advancing past the last
// question finishes the session.
func (r *Registry) Advance(ctx context.Context, cmd HostCommand, questionCount int) (*AdvanceResult, error) {
	result := &AdvanceResult{}
	session, err := r.transition(ctx, cmd, func(session *models.Session) error {
		if session.Mode != models.QuizModeHostPaced {
			return ErrNotHostPaced
		}
		if session.State != models.SessionStateInProgress {
			return ErrInvalidState
		}
		next := session.CurrentQuestionIndex + 1
		if questionCount > 0 && next >= questionCount {
			now := r.clock.Now()
			session.State = models.SessionStateFinished
			session.FinishedAt = &now
			result.Finished = true
			return nil
		}
		session.CurrentQuestionIndex = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Session = session
	return result, nil
}

// Finish moves an InProgress room to its terminal state.
func (r *Registry) Finish(ctx context.Context, cmd HostCommand) (*models.Session, error) {
	return r.transition(ctx, cmd, func(session *models.Session) error {
		if !session.State.CanTransitionTo(models.SessionStateFinished) {
			return ErrInvalidState
		}
		now := r.clock.Now()
		session.State = models.SessionStateFinished
		session.FinishedAt = &now
		return nil
	})
}

// CheckAnswer verifies that connectionID may submit an answer to pin and
// returns the room snapshot the answer should be relayed to.
func (r *Registry) CheckAnswer(pin, connectionID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	session := r.liveRoomLocked(pin, now)
	if session == nil {
		return nil, ErrRoomNotFound
	}
	if _, ok := session.Member(connectionID); !ok {
		return nil, ErrNotMember
	}
	if session.IsHost(connectionID) {
		return nil, ErrUnauthorized
	}
	switch session.State {
	case models.SessionStateInProgress:
	case models.SessionStateFinished:
		return nil, ErrSessionFinished
	default:
		return nil, ErrInvalidState
	}
	session.LastActivityAt = now
	return session.Clone(), nil
}

// transition applies fn to the room after authorizing the host. fn mutates the
// room in place; on error nothing is saved.
func (r *Registry) transition(ctx context.Context, cmd HostCommand, fn func(*models.Session) error) (*models.Session, error) {
	r.mu.Lock()
	now := r.clock.Now()
	session := r.liveRoomLocked(cmd.PIN, now)
	if session == nil {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if err := r.authorizeHostLocked(session, cmd); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	before := session.Clone()
	if err := fn(session); err != nil {
		*session = *before
		r.mu.Unlock()
		return nil, err
	}
	session.LastActivityAt = now

	snapshot := session.Clone()
	version := r.nextVersionLocked(now)
	r.mu.Unlock()

	log.Info().
		Str("pin", snapshot.PIN).
		Str("from", string(before.State)).
		Str("to", string(snapshot.State)).
		Int("question_index", snapshot.CurrentQuestionIndex).
		Msg("room transition")

	r.save(ctx, snapshot, version)
	return snapshot, nil
}

func (r *Registry) authorizeHostLocked(session *models.Session, cmd HostCommand) error {
	if !session.IsHost(cmd.ConnectionID) {
		return ErrUnauthorized
	}
	if r.tokens == nil {
		return nil
	}
	return r.tokens.Verify(cmd.HostToken, cmd.PIN, cmd.ConnectionID)
}
