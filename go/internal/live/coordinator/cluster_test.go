package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcdev12/quizlive/go/internal/live/broadcast"
	"github.com/mcdev12/quizlive/go/internal/live/broadcast/bustest"
	"github.com/mcdev12/quizlive/go/internal/live/events"
	"github.com/mcdev12/quizlive/go/internal/live/room"
)

// instance is one gateway process: its own registry, hub and bus.
type instance struct {
	registry    *room.Registry
	hub         *broadcast.Hub
	bus         *broadcast.NATSBus
	coordinator *Coordinator
}

type ClusterTestSuite struct {
	suite.Suite
	ctx     context.Context
	mr      *miniredis.Miniredis
	client  *redis.Client
	network *bustest.Network

	a, b    *instance
	testPIN string
}

func (s *ClusterTestSuite) SetupTest() {
	s.ctx = context.Background()
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.network = bustest.NewNetwork()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	tokens, err := room.NewHostTokens([]byte("shared-secret"), time.Hour, clock)
	s.Require().NoError(err)

	s.a = s.newInstance("instance-a", clock, tokens)
	s.b = s.newInstance("instance-b", clock, tokens)
	s.testPIN = "123456"
}

func (s *ClusterTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestClusterTestSuite(t *testing.T) {
	suite.Run(t, new(ClusterTestSuite))
}

func (s *ClusterTestSuite) newInstance(id string, clock clockwork.Clock, tokens *room.HostTokens) *instance {
	mirror, err := room.NewRedisMirror(room.RedisMirrorConfig{Client: s.client, TTL: time.Hour})
	s.Require().NoError(err)

	registry := room.NewRegistry(room.Config{
		IdleTimeout: 10 * time.Minute,
		Clock:       clock,
		Tokens:      tokens,
		Mirror:      mirror,
	})
	hub := broadcast.NewHub()
	bus := broadcast.NewNATSBusWithConn(hub, s.network.Conn(), broadcast.NATSConfig{InstanceID: id, SubjectPrefix: "quiz.rooms"})

	c := New(registry, bus, nil, clock)
	c.EnableCluster(mirror, bus)
	bus.OnForward(c.HandleForwarded)
	s.Require().NoError(bus.Start(s.ctx))

	return &instance{registry: registry, hub: hub, bus: bus, coordinator: c}
}

func (s *ClusterTestSuite) connect(in *instance, id string) *client {
	c := &client{id: id}
	in.hub.Register(c)
	return c
}

func (s *ClusterTestSuite) emit(in *instance, c *client, name events.Name, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	in.coordinator.Handle(s.ctx, c.id, events.Inbound{Event: name, Data: raw})
}

func (s *ClusterTestSuite) ack(c *client) events.JoinedPayload {
	joined := c.named(events.Joined)
	s.Require().Len(joined, 1, c.id)
	var p events.JoinedPayload
	s.Require().NoError(json.Unmarshal(joined[0].Data, &p))
	return p
}

func (s *ClusterTestSuite) TestRoomSpansInstances() {
	host := s.connect(s.a, "conn-host")
	aysel := s.connect(s.b, "conn-aysel")

	s.emit(s.a, host, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "HOST"})
	s.emit(s.b, aysel, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "Aysel"})

	hostAck := s.ack(host)
	s.True(hostAck.IsHost)
	s.False(s.ack(aysel).IsHost)

	// one room, owned by the instance that created it
	s.Equal(0, s.b.registry.Len())
	session, err := s.a.registry.Find(s.testPIN)
	s.Require().NoError(err)
	s.Equal([]string{"conn-host", "conn-aysel"}, session.ConnectionIDs())

	joined := host.named(events.PlayerJoined)
	s.Require().Len(joined, 2)
	s.JSONEq(`{"username":"Aysel","connectionId":"conn-aysel"}`, string(joined[1].Data))
	s.Len(aysel.named(events.PlayerJoined), 1)

	s.emit(s.a, host, events.StartGame, events.HostCommandPayload{PIN: s.testPIN, HostToken: hostAck.HostToken})
	s.Len(host.named(events.GameStarted), 1)
	s.Len(aysel.named(events.GameStarted), 1)

	s.emit(s.b, aysel, events.SubmitAnswer, map[string]any{"pin": s.testPIN, "answer": 2, "username": "Aysel"})
	for _, c := range []*client{host, aysel} {
		answers := c.named(events.AnswerReceived)
		s.Require().Len(answers, 1, c.id)
		s.JSONEq(`{"username":"Aysel","answer":2}`, string(answers[0].Data))
	}
	s.Positive(s.network.Published())
}

func (s *ClusterTestSuite) TestRemoteErrorsReachOnlySender() {
	host := s.connect(s.a, "conn-host")
	aysel := s.connect(s.b, "conn-aysel")
	s.emit(s.a, host, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "HOST"})
	s.emit(s.b, aysel, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "Aysel"})

	s.emit(s.b, aysel, events.StartGame, events.HostCommandPayload{PIN: s.testPIN})

	errs := aysel.named(events.Error)
	s.Require().Len(errs, 1)
	var p events.ErrorPayload
	s.Require().NoError(json.Unmarshal(errs[0].Data, &p))
	s.Equal("unauthorized", p.Code)
	s.Empty(host.named(events.Error))
	s.Empty(host.named(events.GameStarted))

	// unknown rooms are answered locally
	s.emit(s.b, aysel, events.StartGame, "999999")
	errs = aysel.named(events.Error)
	s.Require().Len(errs, 2)
	s.Require().NoError(json.Unmarshal(errs[1].Data, &p))
	s.Equal("room_not_found", p.Code)
}

func (s *ClusterTestSuite) TestRemoteDisconnectLeavesRoom() {
	host := s.connect(s.a, "conn-host")
	aysel := s.connect(s.b, "conn-aysel")
	s.emit(s.a, host, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "HOST"})
	s.emit(s.b, aysel, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "Aysel"})

	s.b.hub.Unregister(aysel.id)
	s.b.coordinator.Disconnect(s.ctx, aysel.id)

	left := host.named(events.PlayerLeft)
	s.Require().Len(left, 1)
	s.JSONEq(`{"username":"Aysel","connectionId":"conn-aysel"}`, string(left[0].Data))

	session, err := s.a.registry.Find(s.testPIN)
	s.Require().NoError(err)
	s.Equal([]string{"conn-host"}, session.ConnectionIDs())
}

func (s *ClusterTestSuite) TestLeaveGameThroughOtherInstance() {
	host := s.connect(s.a, "conn-host")
	aysel := s.connect(s.b, "conn-aysel")
	s.emit(s.a, host, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "HOST"})
	s.emit(s.b, aysel, events.JoinGame, map[string]string{"pin": s.testPIN, "username": "Aysel"})

	s.emit(s.b, aysel, events.LeaveGame, events.LeaveGamePayload{PIN: s.testPIN})
	s.Len(host.named(events.PlayerLeft), 1)
	s.Len(aysel.named(events.PlayerLeft), 1)

	published := s.network.Published()
	// nothing left to tell the owner
	s.b.coordinator.Disconnect(s.ctx, aysel.id)
	s.Equal(published, s.network.Published())
}
