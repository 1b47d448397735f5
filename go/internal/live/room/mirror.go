package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// Mirror publishes room snapshots to shared storage so other instances and
// the state API can read them.
type Mirror interface {
	Save(ctx context.Context, session *models.Session, version int64) error
	Delete(ctx context.Context, pin string) error
	Load(ctx context.Context, pin string) (*models.Session, error)
}

// saveScript writes the snapshot only if its version is newer than the stored one.
// Versions are zero padded so string comparison orders them.
var saveScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and current >= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1],
  'version', ARGV[1],
  'state', ARGV[2],
  'mode', ARGV[3],
  'quiz_id', ARGV[4],
  'host', ARGV[5],
  'members', ARGV[6],
  'question_index', ARGV[7],
  'updated_at', ARGV[8])
if tonumber(ARGV[9]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[9])
end
return 1
`)

// claimScript records ARGV[1] as the room owner unless one is set, and returns
// the owner. A fresh claim gets the snapshot TTL so a dead owner lapses.
var claimScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'owner', ARGV[1]) == 1 and tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return redis.call('HGET', KEYS[1], 'owner')
`)

// RedisMirrorConfig holds configuration for the Redis mirror
type RedisMirrorConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string
	TTL       time.Duration
}

// RedisMirror stores room snapshots as Redis hashes with last-writer-wins semantics.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a Redis backed mirror
func NewRedisMirror(cfg RedisMirrorConfig) (*RedisMirror, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "quizlive:room:"
	}
	return &RedisMirror{client: cfg.Client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (m *RedisMirror) key(pin string) string {
	return m.prefix + pin
}

// Save writes session if version is newer than what is stored.
func (m *RedisMirror) Save(ctx context.Context, session *models.Session, version int64) error {
	members, err := json.Marshal(session.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}

	err = saveScript.Run(ctx, m.client, []string{m.key(session.PIN)},
		fmt.Sprintf("%020d", version),
		string(session.State),
		string(session.Mode),
		session.QuizID,
		session.HostConnectionID,
		string(members),
		session.CurrentQuestionIndex,
		session.LastActivityAt.UTC().Format(time.RFC3339Nano),
		m.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("save room %s: %w", session.PIN, err)
	}
	return nil
}

// Delete removes the snapshot for pin.
func (m *RedisMirror) Delete(ctx context.Context, pin string) error {
	if err := m.client.Del(ctx, m.key(pin)).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", pin, err)
	}
	return nil
}

// Claim makes instance the owner of pin if no instance owns it yet, and
// returns the owner either way. The claim is released by Delete.
func (m *RedisMirror) Claim(ctx context.Context, pin, instance string) (string, error) {
	owner, err := claimScript.Run(ctx, m.client, []string{m.key(pin)}, instance, m.ttl.Milliseconds()).Text()
	if err != nil {
		return "", fmt.Errorf("claim room %s: %w", pin, err)
	}
	return owner, nil
}

// Owner returns the instance that owns pin, or "" if none does.
func (m *RedisMirror) Owner(ctx context.Context, pin string) (string, error) {
	owner, err := m.client.HGet(ctx, m.key(pin), "owner").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load owner of room %s: %w", pin, err)
	}
	return owner, nil
}

// Load reads the snapshot for pin. It returns ErrRoomNotFound when absent.
func (m *RedisMirror) Load(ctx context.Context, pin string) (*models.Session, error) {
	fields, err := m.client.HGetAll(ctx, m.key(pin)).Result()
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", pin, err)
	}
	if fields["state"] == "" {
		// missing, or claimed but not saved yet
		return nil, ErrRoomNotFound
	}

	session := &models.Session{
		PIN:              pin,
		State:            models.SessionState(fields["state"]),
		Mode:             models.QuizMode(fields["mode"]),
		QuizID:           fields["quiz_id"],
		HostConnectionID: fields["host"],
	}
	if err := json.Unmarshal([]byte(fields["members"]), &session.Members); err != nil {
		return nil, fmt.Errorf("decode members of room %s: %w", pin, err)
	}
	if idx, err := strconv.Atoi(fields["question_index"]); err == nil {
		session.CurrentQuestionIndex = idx
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		session.LastActivityAt = ts
	}
	return session, nil
}
