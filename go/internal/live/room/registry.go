package room

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/models"
)

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidPIN reports whether pin is a 6-digit numeric string.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Config holds registry limits and collaborators.
type Config struct {
	// MaxMembers caps room size. Zero means unlimited.
	MaxMembers int
	// IdleTimeout is how long a room may go without accepted events before it is reaped.
	IdleTimeout time.Duration
	// FinishedGrace keeps finished rooms around so late messages get a clear error.
	FinishedGrace time.Duration
	// ReapInterval is the period of the background sweep.
	ReapInterval time.Duration

	Clock  clockwork.Clock
	Tokens *HostTokens
	Mirror Mirror
}

// DefaultConfig returns default registry settings
func DefaultConfig() Config {
	return Config{
		MaxMembers:    200,
		IdleTimeout:   30 * time.Minute,
		FinishedGrace: 2 * time.Minute,
		ReapInterval:  time.Minute,
	}
}

// Registry owns every live session keyed by PIN.
//
// Every method runs to completion under a single lock, so handlers for the
// same room never interleave. Mirror writes happen after the lock is released.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*models.Session
	version int64

	config Config
	clock  clockwork.Clock
	tokens *HostTokens
	mirror Mirror
}

// NewRegistry creates an empty registry
func NewRegistry(config Config) *Registry {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		rooms:  make(map[string]*models.Session),
		config: config,
		clock:  clock,
		tokens: config.Tokens,
		mirror: config.Mirror,
	}
}

// JoinInput describes a join_game request.
type JoinInput struct {
	PIN          string
	ConnectionID string
	DisplayName  string
	Mode         models.QuizMode
	QuizID       string
}

// JoinResult is returned by CreateOrJoin.
type JoinResult struct {
	Session   *models.Session
	Created   bool
	Rejoined  bool
	HostToken string
	// Replaced is the expired room the new one took the PIN from, if any.
	Replaced *Reaped
}

// CreateOrJoin creates the room for pin if it does not exist, otherwise adds the
// connection as a member. A connection that is already a member is updated in place.
func (r *Registry) CreateOrJoin(ctx context.Context, in JoinInput) (*JoinResult, error) {
	if !ValidPIN(in.PIN) {
		return nil, ErrInvalidPIN
	}

	r.mu.Lock()
	now := r.clock.Now()
	result := &JoinResult{}
	session, ok := r.rooms[in.PIN]
	if ok {
		if reason := r.expiryReason(session, now); reason != "" {
			delete(r.rooms, in.PIN)
			result.Replaced = &Reaped{Session: session.Clone(), Reason: reason}
			session = nil
		}
	}

	if session == nil {
		mode := in.Mode
		if mode == "" {
			mode = models.QuizModeSelfPaced
		}
		session = &models.Session{
			PIN:              in.PIN,
			State:            models.SessionStateLobby,
			Mode:             mode,
			QuizID:           in.QuizID,
			HostConnectionID: in.ConnectionID,
			CreatedAt:        now,
		}
		if r.tokens != nil {
			token, err := r.tokens.Issue(in.PIN, in.ConnectionID)
			if err != nil {
				r.mu.Unlock()
				return nil, err
			}
			result.HostToken = token
		}
		r.rooms[in.PIN] = session
		result.Created = true
	} else if session.State == models.SessionStateFinished {
		r.mu.Unlock()
		return nil, ErrSessionFinished
	}

	if idx := memberIndex(session, in.ConnectionID); idx >= 0 {
		session.Members[idx].DisplayName = in.DisplayName
		result.Rejoined = true
	} else {
		if r.config.MaxMembers > 0 && len(session.Members) >= r.config.MaxMembers {
			r.mu.Unlock()
			return nil, ErrRoomFull
		}
		session.Members = append(session.Members, models.Member{
			ConnectionID: in.ConnectionID,
			DisplayName:  in.DisplayName,
			JoinedAt:     now,
		})
	}
	session.LastActivityAt = now

	result.Session = session.Clone()
	version := r.nextVersionLocked(now)
	r.mu.Unlock()

	if result.Replaced != nil {
		log.Info().
			Str("pin", in.PIN).
			Str("reason", result.Replaced.Reason).
			Msg("expired room replaced on join")
	}
	r.save(ctx, result.Session, version)
	return result, nil
}

// LeaveResult describes a removed membership.
type LeaveResult struct {
	Session *models.Session
	Member  models.Member
}

// Leave removes connectionID from the room. The room itself is left for the reaper.
func (r *Registry) Leave(ctx context.Context, pin, connectionID string) (*LeaveResult, error) {
	r.mu.Lock()
	now := r.clock.Now()
	session := r.liveRoomLocked(pin, now)
	if session == nil {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	member, ok := removeMember(session, connectionID)
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotMember
	}
	session.LastActivityAt = now

	result := &LeaveResult{Session: session.Clone(), Member: member}
	version := r.nextVersionLocked(now)
	r.mu.Unlock()

	r.save(ctx, result.Session, version)
	return result, nil
}

// LeaveAll removes connectionID from every room it belongs to. Expired rooms
// lose the member without reporting it or counting it as activity.
func (r *Registry) LeaveAll(ctx context.Context, connectionID string) []*LeaveResult {
	r.mu.Lock()
	now := r.clock.Now()
	var results []*LeaveResult
	for _, session := range r.rooms {
		expired := r.expiryReason(session, now) != ""
		member, ok := removeMember(session, connectionID)
		if !ok || expired {
			continue
		}
		session.LastActivityAt = now
		results = append(results, &LeaveResult{Session: session.Clone(), Member: member})
	}
	versions := make([]int64, len(results))
	for i := range results {
		versions[i] = r.nextVersionLocked(now)
	}
	r.mu.Unlock()

	for i, res := range results {
		r.save(ctx, res.Session, versions[i])
	}
	return results
}

// Find returns a snapshot of the room for pin.
func (r *Registry) Find(pin string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.liveRoomLocked(pin, r.clock.Now())
	if session == nil {
		return nil, ErrRoomNotFound
	}
	return session.Clone(), nil
}

// Len returns the number of tracked rooms, including expired rooms not yet reaped.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Sessions returns snapshots of all live rooms.
func (r *Registry) Sessions() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	out := make([]*models.Session, 0, len(r.rooms))
	for _, session := range r.rooms {
		if r.expiryReason(session, now) != "" {
			continue
		}
		out = append(out, session.Clone())
	}
	return out
}

// Shutdown drops every room.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	pins := make([]string, 0, len(r.rooms))
	for pin := range r.rooms {
		pins = append(pins, pin)
	}
	r.rooms = make(map[string]*models.Session)
	r.mu.Unlock()

	for _, pin := range pins {
		r.remove(ctx, pin)
	}
	log.Info().Int("rooms", len(pins)).Msg("room registry shut down")
}

// liveRoomLocked returns the room for pin, or nil if it is missing or expired.
// Expired rooms stay in the map until Reap or a replacing join removes them.
func (r *Registry) liveRoomLocked(pin string, now time.Time) *models.Session {
	session, ok := r.rooms[pin]
	if !ok || r.expiryReason(session, now) != "" {
		return nil
	}
	return session
}

// nextVersionLocked returns a strictly increasing mutation version for the mirror.
func (r *Registry) nextVersionLocked(now time.Time) int64 {
	v := now.UnixNano()
	if v <= r.version {
		v = r.version + 1
	}
	r.version = v
	return v
}

func (r *Registry) save(ctx context.Context, session *models.Session, version int64) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Save(ctx, session, version); err != nil {
		log.Warn().Err(err).Str("pin", session.PIN).Msg("failed to mirror room")
	}
}

func (r *Registry) remove(ctx context.Context, pin string) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Delete(ctx, pin); err != nil {
		log.Warn().Err(err).Str("pin", pin).Msg("failed to delete mirrored room")
	}
}

func memberIndex(session *models.Session, connectionID string) int {
	for i, m := range session.Members {
		if m.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}

func removeMember(session *models.Session, connectionID string) (models.Member, bool) {
	idx := memberIndex(session, connectionID)
	if idx < 0 {
		return models.Member{}, false
	}
	member := session.Members[idx]
	session.Members = append(session.Members[:idx], session.Members[idx+1:]...)
	return member, true
}
