package room

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostTokens(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	tokens, err := NewHostTokens([]byte("secret"), time.Hour, clock)
	require.NoError(t, err)

	token, err := tokens.Issue("123456", "conn-host")
	require.NoError(t, err)

	assert.NoError(t, tokens.Verify(token, "123456", "conn-host"))
	assert.ErrorIs(t, tokens.Verify(token, "123456", "conn-other"), ErrInvalidHostToken)
	assert.ErrorIs(t, tokens.Verify(token, "654321", "conn-host"), ErrInvalidHostToken)
	assert.ErrorIs(t, tokens.Verify("not-a-token", "123456", "conn-host"), ErrInvalidHostToken)

	other, err := NewHostTokens([]byte("other-secret"), time.Hour, clock)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(token, "123456", "conn-host"), ErrInvalidHostToken)

	clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, tokens.Verify(token, "123456", "conn-host"), ErrInvalidHostToken)
}

func TestHostTokensRandomSecret(t *testing.T) {
	tokens, err := NewHostTokens(nil, time.Hour, nil)
	require.NoError(t, err)

	token, err := tokens.Issue("123456", "conn-host")
	require.NoError(t, err)
	assert.NoError(t, tokens.Verify(token, "123456", "conn-host"))
}
