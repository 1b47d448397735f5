package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcdev12/quizlive/go/internal/live/events"
	"github.com/mcdev12/quizlive/go/internal/live/room"
	"github.com/mcdev12/quizlive/go/internal/models"
)

type ServiceTestSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	client  *redis.Client
	mirror  *room.RedisMirror
	service *Service
	server  *httptest.Server
}

func (s *ServiceTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s.mirror, err = room.NewRedisMirror(room.RedisMirrorConfig{Client: s.client, TTL: time.Hour})
	s.Require().NoError(err)

	tokens, err := room.NewHostTokens([]byte("test-secret"), time.Hour, nil)
	s.Require().NoError(err)

	config := DefaultConfig()
	config.RegistryConfig.Tokens = tokens
	config.RegistryConfig.Mirror = s.mirror

	s.service, err = NewService(config, nil, nil)
	s.Require().NoError(err)

	mux := http.NewServeMux()
	s.service.RegisterRoutes(mux)
	s.server = httptest.NewServer(mux)
}

func (s *ServiceTestSuite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.service.Stop())
	s.client.Close()
	s.mr.Close()
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *ServiceTestSuite) emit(conn *websocket.Conn, name events.Name, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(events.Inbound{Event: name, Data: raw}))
}

// expect reads frames until one named name arrives.
func (s *ServiceTestSuite) expect(conn *websocket.Conn, name events.Name) events.Outbound {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		var evt events.Outbound
		s.Require().NoError(conn.ReadJSON(&evt), "waiting for %s", name)
		if evt.Event == name {
			return evt
		}
	}
}

func (s *ServiceTestSuite) getJSON(path string, v any) int {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (s *ServiceTestSuite) TestLiveQuizOverWebSocket() {
	host := s.dial()
	aysel := s.dial()

	s.emit(host, events.JoinGame, map[string]string{"pin": "123456", "username": "HOST"})
	var ack events.JoinedPayload
	s.Require().NoError(json.Unmarshal(s.expect(host, events.Joined).Data, &ack))
	s.True(ack.IsHost)
	s.Require().NotEmpty(ack.HostToken)

	s.emit(aysel, events.JoinGame, map[string]string{"pin": "123456", "username": "Aysel"})
	s.expect(aysel, events.Joined)

	joined := s.expect(host, events.PlayerJoined)
	var p events.PlayerJoinedPayload
	s.Require().NoError(json.Unmarshal(joined.Data, &p))
	if p.Username == "HOST" {
		// the host's own join notice comes first
		s.Require().NoError(json.Unmarshal(s.expect(host, events.PlayerJoined).Data, &p))
	}
	s.Equal("Aysel", p.Username)

	s.emit(host, events.StartGame, events.HostCommandPayload{PIN: "123456", HostToken: ack.HostToken})
	s.expect(host, events.GameStarted)
	s.expect(aysel, events.GameStarted)

	s.emit(aysel, events.SubmitAnswer, map[string]any{"pin": "123456", "answer": 2, "username": "Aysel"})
	for _, conn := range []*websocket.Conn{host, aysel} {
		answer := s.expect(conn, events.AnswerReceived)
		s.JSONEq(`{"username":"Aysel","answer":2}`, string(answer.Data))
	}

	var state RoomStateResponse
	s.Equal(http.StatusOK, s.getJSON("/api/rooms/123456", &state))
	s.Equal("IN_PROGRESS", state.State)
	s.Equal("local", state.Source)
	s.Len(state.Members, 2)
}

func (s *ServiceTestSuite) TestErrorsGoToSenderOnly() {
	host := s.dial()

	s.emit(host, events.StartGame, "999999")
	var p events.ErrorPayload
	s.Require().NoError(json.Unmarshal(s.expect(host, events.Error).Data, &p))
	s.Equal("room_not_found", p.Code)

	s.Require().NoError(host.WriteMessage(websocket.TextMessage, []byte("{")))
	s.Require().NoError(json.Unmarshal(s.expect(host, events.Error).Data, &p))
	s.Equal("bad_request", p.Code)
}

func (s *ServiceTestSuite) TestDisconnectNotifiesRoom() {
	host := s.dial()
	aysel := s.dial()

	s.emit(host, events.JoinGame, map[string]string{"pin": "123456", "username": "HOST"})
	s.expect(host, events.Joined)
	s.emit(aysel, events.JoinGame, map[string]string{"pin": "123456", "username": "Aysel"})
	s.expect(aysel, events.Joined)

	s.Require().NoError(aysel.Close())

	var left events.PlayerLeftPayload
	s.Require().NoError(json.Unmarshal(s.expect(host, events.PlayerLeft).Data, &left))
	s.Equal("Aysel", left.Username)
	s.NotEmpty(left.ConnectionID)

	s.Eventually(func() bool {
		session, err := s.service.Registry().Find("123456")
		return err == nil && len(session.Members) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServiceTestSuite) TestRoomAPI() {
	s.Equal(http.StatusNotFound, s.getJSON("/api/rooms/999999", nil))
	s.Equal(http.StatusBadRequest, s.getJSON("/api/rooms/12ab", nil))

	// a room owned by another instance is served from the mirror
	remote := &models.Session{
		PIN:              "654321",
		State:            models.SessionStateLobby,
		Mode:             models.QuizModeSelfPaced,
		HostConnectionID: "conn-remote",
		Members:          []models.Member{{ConnectionID: "conn-remote", DisplayName: "Remote"}},
		LastActivityAt:   time.Now(),
	}
	s.Require().NoError(s.mirror.Save(s.T().Context(), remote, 1))

	var state RoomStateResponse
	s.Equal(http.StatusOK, s.getJSON("/api/rooms/654321", &state))
	s.Equal("mirror", state.Source)
	s.Require().Len(state.Members, 1)
	s.True(state.Members[0].IsHost)

	var list struct {
		Count int `json:"count"`
	}
	s.Equal(http.StatusOK, s.getJSON("/api/rooms", &list))
	s.Equal(0, list.Count)
}

func (s *ServiceTestSuite) TestStats() {
	conn := s.dial()
	s.emit(conn, events.JoinGame, map[string]string{"pin": "123456", "username": "HOST"})
	s.expect(conn, events.Joined)

	var stats map[string]interface{}
	s.Equal(http.StatusOK, s.getJSON("/ws/stats", &stats))
	s.EqualValues(1, stats["total_connections"])
	s.EqualValues(1, stats["active_rooms"])
}

func (s *ServiceTestSuite) TestStopClosesConnections() {
	conn := s.dial()
	s.emit(conn, events.JoinGame, map[string]string{"pin": "123456", "username": "HOST"})
	s.expect(conn, events.Joined)

	s.Require().NoError(s.service.Stop())
	s.Equal(0, s.service.Registry().Len())

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr net.Error
	s.False(errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed by the server")
}
