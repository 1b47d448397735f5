package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/broadcast"
	"github.com/mcdev12/quizlive/go/internal/live/events"
	"github.com/mcdev12/quizlive/go/internal/live/room"
	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz"
)

// Error codes that do not come from the registry.
const (
	CodeBadRequest   = "bad_request"
	CodeUnknownEvent = "unknown_event"
	CodeQuizNotFound = "quiz_not_found"
	CodeInternal     = "internal"
)

// Game finished reasons
const (
	ReasonEndedByHost = "ended_by_host"
	ReasonCompleted   = "completed"
)

// Coordinator runs the handler for every inbound event. Each handler mutates
// the registry once and then fans the result out, so a failure in one handler
// only ever produces an error event for the sender.
type Coordinator struct {
	registry    *room.Registry
	broadcaster broadcast.Broadcaster
	quizzes     quiz.Gateway
	clock       clockwork.Clock

	remoteMu  sync.Mutex
	owners    Ownership
	forwarder Forwarder
	// remote maps a local connection to the rooms it joined on other
	// instances, pin to owner.
	remote map[string]map[string]string
}

// New creates a coordinator. quizzes may be nil, in which case host paced
// rooms advance without question content.
func New(registry *room.Registry, broadcaster broadcast.Broadcaster, quizzes quiz.Gateway, clock clockwork.Clock) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		registry:    registry,
		broadcaster: broadcaster,
		quizzes:     quizzes,
		clock:       clock,
	}
}

// HandleMessage decodes a raw client frame and dispatches it.
func (c *Coordinator) HandleMessage(ctx context.Context, connectionID string, data []byte) {
	var msg events.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("dropping malformed message")
		c.replyError(ctx, connectionID, "", CodeBadRequest, "message must be a JSON object with an event field")
		return
	}
	c.Handle(ctx, connectionID, msg)
}

// Handle dispatches one inbound event from connectionID, forwarding it when
// its room is owned by another instance.
func (c *Coordinator) Handle(ctx context.Context, connectionID string, msg events.Inbound) {
	if c.forwardIfRemote(ctx, connectionID, msg) {
		return
	}
	c.dispatch(ctx, connectionID, msg)
}

func (c *Coordinator) dispatch(ctx context.Context, connectionID string, msg events.Inbound) {
	var err error
	switch msg.Event {
	case events.JoinGame:
		err = c.handleJoinGame(ctx, connectionID, msg.Data)
	case events.StartGame:
		err = c.handleStartGame(ctx, connectionID, msg.Data)
	case events.SubmitAnswer:
		err = c.handleSubmitAnswer(ctx, connectionID, msg.Data)
	case events.AdvanceQuestion:
		err = c.handleAdvanceQuestion(ctx, connectionID, msg.Data)
	case events.EndGame:
		err = c.handleEndGame(ctx, connectionID, msg.Data)
	case events.LeaveGame:
		err = c.handleLeaveGame(ctx, connectionID, msg.Data)
	default:
		log.Warn().Str("connection_id", connectionID).Str("event", string(msg.Event)).Msg("unknown event")
		c.replyError(ctx, connectionID, msg.Event, CodeUnknownEvent, fmt.Sprintf("unknown event %q", msg.Event))
		return
	}

	if err != nil {
		c.fail(ctx, connectionID, msg.Event, err)
	}
}

func (c *Coordinator) handleJoinGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeJoinGame(data)
	if err != nil {
		return err
	}

	result, err := c.registry.CreateOrJoin(ctx, room.JoinInput{
		PIN:          p.PIN,
		ConnectionID: connectionID,
		DisplayName:  p.Username,
		Mode:         models.ParseQuizMode(p.Mode),
		QuizID:       p.QuizID,
	})
	if err != nil {
		return err
	}
	session := result.Session
	if result.Replaced != nil {
		c.HandleReaped(ctx, *result.Replaced)
	}

	log.Info().
		Str("pin", session.PIN).
		Str("connection_id", connectionID).
		Str("username", p.Username).
		Bool("created", result.Created).
		Int("members", len(session.Members)).
		Msg("player joined room")

	c.send(ctx, connectionID, session.PIN, events.Joined, events.JoinedPayload{
		PIN:          session.PIN,
		ConnectionID: connectionID,
		IsHost:       session.IsHost(connectionID),
		HostToken:    result.HostToken,
		State:        string(session.State),
		Mode:         string(session.Mode),
		QuizID:       session.QuizID,
	})

	c.broadcast(ctx, session, events.PlayerJoined, events.PlayerJoinedPayload{
		Username:     p.Username,
		ConnectionID: connectionID,
	})
	return nil
}

func (c *Coordinator) handleStartGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeHostCommand(data)
	if err != nil {
		return err
	}

	session, err := c.registry.Start(ctx, room.HostCommand{PIN: p.PIN, ConnectionID: connectionID, HostToken: p.HostToken})
	if err != nil {
		return err
	}

	c.broadcast(ctx, session, events.GameStarted, events.GameStartedPayload{})

	if session.Mode == models.QuizModeHostPaced {
		q, err := c.loadQuiz(ctx, session)
		if err != nil {
			log.Warn().Err(err).Str("pin", session.PIN).Msg("started without first question")
			return nil
		}
		c.broadcast(ctx, session, events.QuestionAdvanced, questionAdvanced(q, session.CurrentQuestionIndex))
	}
	return nil
}

func (c *Coordinator) handleSubmitAnswer(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeSubmitAnswer(data)
	if err != nil {
		return err
	}

	session, err := c.registry.CheckAnswer(p.PIN, connectionID)
	if err != nil {
		return err
	}

	username := p.Username
	if username == "" {
		member, _ := session.Member(connectionID)
		username = member.DisplayName
	}
	payload := events.AnswerReceivedPayload{Username: username, Answer: p.Answer}
	if session.Mode == models.QuizModeHostPaced {
		idx := session.CurrentQuestionIndex
		payload.QuestionIndex = &idx
	}

	c.broadcast(ctx, session, events.AnswerReceived, payload)
	return nil
}

func (c *Coordinator) handleAdvanceQuestion(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeHostCommand(data)
	if err != nil {
		return err
	}

	// quiz content is fetched before taking the registry lock
	current, err := c.registry.Find(p.PIN)
	if err != nil {
		return err
	}
	var q *models.Quiz
	if current.Mode == models.QuizModeHostPaced && current.IsHost(connectionID) {
		q, err = c.loadQuiz(ctx, current)
		if err != nil {
			return err
		}
	}

	total := 0
	if q != nil {
		total = len(q.Questions)
	}
	result, err := c.registry.Advance(ctx, room.HostCommand{PIN: p.PIN, ConnectionID: connectionID, HostToken: p.HostToken}, total)
	if err != nil {
		return err
	}

	if result.Finished {
		c.broadcast(ctx, result.Session, events.GameFinished, events.GameFinishedPayload{Reason: ReasonCompleted})
		return nil
	}
	c.broadcast(ctx, result.Session, events.QuestionAdvanced, questionAdvanced(q, result.Session.CurrentQuestionIndex))
	return nil
}

func (c *Coordinator) handleEndGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeHostCommand(data)
	if err != nil {
		return err
	}

	session, err := c.registry.Finish(ctx, room.HostCommand{PIN: p.PIN, ConnectionID: connectionID, HostToken: p.HostToken})
	if err != nil {
		return err
	}

	c.broadcast(ctx, session, events.GameFinished, events.GameFinishedPayload{Reason: ReasonEndedByHost})
	return nil
}

func (c *Coordinator) handleLeaveGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	p, err := events.DecodeLeaveGame(data)
	if err != nil {
		return err
	}

	result, err := c.registry.Leave(ctx, p.PIN, connectionID)
	if err != nil {
		return err
	}

	log.Info().
		Str("pin", p.PIN).
		Str("connection_id", connectionID).
		Int("members", len(result.Session.Members)).
		Msg("player left room")

	// the leaver gets the notice too, as confirmation
	recipients := append(result.Session.ConnectionIDs(), connectionID)
	c.broadcastTo(ctx, result.Session.PIN, recipients, events.PlayerLeft, events.PlayerLeftPayload{
		Username:     result.Member.DisplayName,
		ConnectionID: connectionID,
	})
	return nil
}

// Disconnect removes connectionID from every room and tells the remaining members.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	c.leaveAll(ctx, connectionID)
	c.forwardDisconnect(ctx, connectionID)
}

func (c *Coordinator) leaveAll(ctx context.Context, connectionID string) {
	for _, left := range c.registry.LeaveAll(ctx, connectionID) {
		log.Info().
			Str("pin", left.Session.PIN).
			Str("connection_id", connectionID).
			Int("members", len(left.Session.Members)).
			Msg("player disconnected from room")

		c.broadcast(ctx, left.Session, events.PlayerLeft, events.PlayerLeftPayload{
			Username:     left.Member.DisplayName,
			ConnectionID: connectionID,
		})
	}
}

// HandleReaped tells members still attached to a reaped room that it is gone.
// Rooms that already finished have sent game_finished and are skipped.
func (c *Coordinator) HandleReaped(ctx context.Context, reaped room.Reaped) {
	if reaped.Session.State == models.SessionStateFinished || len(reaped.Session.Members) == 0 {
		return
	}
	c.broadcast(ctx, reaped.Session, events.GameFinished, events.GameFinishedPayload{Reason: reaped.Reason})
}

func (c *Coordinator) loadQuiz(ctx context.Context, session *models.Session) (*models.Quiz, error) {
	if c.quizzes == nil || session.QuizID == "" {
		return nil, nil
	}
	q, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz for room %s: %w", session.PIN, err)
	}
	return q, nil
}

func questionAdvanced(q *models.Quiz, index int) events.QuestionAdvancedPayload {
	payload := events.QuestionAdvancedPayload{Index: index}
	if q == nil {
		return payload
	}
	payload.Total = len(q.Questions)
	if index >= 0 && index < len(q.Questions) {
		question := q.Questions[index]
		payload.Question = &events.QuestionView{
			Text:    question.Text,
			Options: question.Options,
			Image:   question.Image,
		}
	}
	return payload
}

func (c *Coordinator) fail(ctx context.Context, connectionID string, event events.Name, err error) {
	code := room.Code(err)
	message := err.Error()
	switch {
	case errors.Is(err, events.ErrMalformedPayload):
		code = CodeBadRequest
	case errors.Is(err, quiz.ErrNotFound):
		code = CodeQuizNotFound
	case code == CodeInternal:
		log.Error().Err(err).Str("connection_id", connectionID).Str("event", string(event)).Msg("event handler failed")
		message = "internal error"
	}

	log.Debug().
		Err(err).
		Str("connection_id", connectionID).
		Str("event", string(event)).
		Str("code", code).
		Msg("event rejected")

	c.replyError(ctx, connectionID, event, code, message)
}

func (c *Coordinator) replyError(ctx context.Context, connectionID string, event events.Name, code, message string) {
	c.send(ctx, connectionID, "", events.Error, events.ErrorPayload{Code: code, Message: message, Event: event})
}

func (c *Coordinator) newEvent(pin string, name events.Name, payload any) (*events.Outbound, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return &events.Outbound{
		ID:        uuid.New().String(),
		PIN:       pin,
		Event:     name,
		Timestamp: c.clock.Now().UTC(),
		Data:      data,
	}, nil
}

func (c *Coordinator) send(ctx context.Context, connectionID, pin string, name events.Name, payload any) {
	evt, err := c.newEvent(pin, name, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build event")
		return
	}
	if err := c.broadcaster.Send(ctx, connectionID, evt); err != nil {
		log.Debug().Err(err).Str("connection_id", connectionID).Str("event", string(name)).Msg("reply not delivered")
	}
}

func (c *Coordinator) broadcast(ctx context.Context, session *models.Session, name events.Name, payload any) {
	c.broadcastTo(ctx, session.PIN, session.ConnectionIDs(), name, payload)
}

func (c *Coordinator) broadcastTo(ctx context.Context, pin string, recipients []string, name events.Name, payload any) {
	evt, err := c.newEvent(pin, name, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build event")
		return
	}
	if err := c.broadcaster.Broadcast(ctx, pin, recipients, evt); err != nil {
		log.Warn().Err(err).Str("pin", pin).Str("event", string(name)).Msg("broadcast failed")
	}
}
