package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHostCommand(t *testing.T) {
	p, err := DecodeHostCommand(json.RawMessage(`"123456"`))
	require.NoError(t, err)
	assert.Equal(t, HostCommandPayload{PIN: "123456"}, p)

	p, err = DecodeHostCommand(json.RawMessage(`{"pin":" 123456 ","hostToken":"tok"}`))
	require.NoError(t, err)
	assert.Equal(t, HostCommandPayload{PIN: "123456", HostToken: "tok"}, p)

	for _, raw := range []string{`""`, `{}`, `42`, `[`} {
		_, err := DecodeHostCommand(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
}

func TestDecodeJoinGame(t *testing.T) {
	p, err := DecodeJoinGame(json.RawMessage(`{"pin":"123456","username":" Aysel ","mode":"host_paced","quizId":"q1"}`))
	require.NoError(t, err)
	assert.Equal(t, JoinGamePayload{PIN: "123456", Username: "Aysel", Mode: "host_paced", QuizID: "q1"}, p)

	_, err = DecodeJoinGame(json.RawMessage(`{"pin":"123456"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeSubmitAnswerKeepsAnswerVerbatim(t *testing.T) {
	p, err := DecodeSubmitAnswer(json.RawMessage(`{"pin":"123456","answer":{"choice":[1,2]},"username":"Aysel"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"choice":[1,2]}`, string(p.Answer))

	p, err = DecodeSubmitAnswer(json.RawMessage(`{"pin":"123456"}`))
	require.NoError(t, err)
	assert.Equal(t, "null", string(p.Answer))

	_, err = DecodeSubmitAnswer(json.RawMessage(`{"answer":1}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeLeaveGame(t *testing.T) {
	p, err := DecodeLeaveGame(json.RawMessage(`{"pin":"123456"}`))
	require.NoError(t, err)
	assert.Equal(t, "123456", p.PIN)

	_, err = DecodeLeaveGame(json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPeekPIN(t *testing.T) {
	assert.Equal(t, "123456", PeekPIN(json.RawMessage(`"123456"`)))
	assert.Equal(t, "123456", PeekPIN(json.RawMessage(`{"pin":" 123456","answer":2}`)))
	assert.Empty(t, PeekPIN(json.RawMessage(`{"username":"Aysel"}`)))
	assert.Empty(t, PeekPIN(json.RawMessage(`42`)))
	assert.Empty(t, PeekPIN(nil))
}
