package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_ADDR", "NATS_URL", "DB_ENABLED", "ROOM_MAX_MEMBERS", "ROOM_IDLE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Server.Port)
	assert.Equal(t, 200, c.Rooms.MaxMembers)
	assert.Equal(t, 30*time.Minute, c.Rooms.IdleTimeout)
	assert.Empty(t, c.Redis.Addr)
	assert.Empty(t, c.NATS.URL)
	assert.False(t, c.Database.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizlive.yaml")
	yaml := `
server:
  port: "9090"
  allowed_origins: ["https://quiz.example.com"]
rooms:
  max_members: 40
  idle_timeout: 5m
  finished_grace: 30s
redis:
  addr: localhost:6379
nats:
  url: nats://localhost:4222
database:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("ROOM_MAX_MEMBERS", "25")
	t.Setenv("ROOM_REAP_INTERVAL", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("HOST_TOKEN_SECRET", "s3cret")
	t.Setenv("DB_ENABLED", "false")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", c.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.Server.AllowedOrigins)
	assert.Equal(t, 25, c.Rooms.MaxMembers)
	assert.Equal(t, 5*time.Minute, c.Rooms.IdleTimeout)
	assert.Equal(t, 30*time.Second, c.Rooms.FinishedGrace)
	assert.Equal(t, 15*time.Second, c.Rooms.ReapInterval)
	assert.Equal(t, "s3cret", c.Rooms.HostTokenSecret)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, "quizlive:room:", c.Redis.KeyPrefix)
	assert.Equal(t, "nats://localhost:4222", c.NATS.URL)
	assert.False(t, c.Database.Enabled)
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("ROOM_IDLE_TIMEOUT", "soon")
	t.Setenv("ROOM_MAX_MEMBERS", "many")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, c.Rooms.IdleTimeout)
	assert.Equal(t, 200, c.Rooms.MaxMembers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms: [oops"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("ROOM_MAX_MEMBERS", "-1")
	_, err = Load("")
	assert.Error(t, err)
}
