package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizlive/go/internal/config"
	"github.com/mcdev12/quizlive/go/internal/live/broadcast"
	"github.com/mcdev12/quizlive/go/internal/live/gateway"
	"github.com/mcdev12/quizlive/go/internal/live/room"
	"github.com/mcdev12/quizlive/go/internal/quiz"
	"github.com/mcdev12/quizlive/go/internal/scores"
)

type Services struct {
	Gateway *gateway.Service
}

func setupServices(cfg *config.Config, stores *Stores) (*Services, error) {
	// Wire up dependency injection chain
	// Stores → Gateways → Registry → Live gateway service
	clock := clockwork.NewRealClock()

	var quizzes quiz.Gateway
	var recorder scores.Recorder
	if stores.Pool != nil {
		quizzes = quiz.NewPostgresGateway(stores.Pool)
	}
	if stores.DB != nil {
		recorder = scores.NewPostgresRecorder(stores.DB, clock)
	}

	tokens, err := room.NewHostTokens([]byte(cfg.Rooms.HostTokenSecret), cfg.Rooms.HostTokenTTL, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create host tokens: %w", err)
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.RegistryConfig = room.Config{
		MaxMembers:    cfg.Rooms.MaxMembers,
		IdleTimeout:   cfg.Rooms.IdleTimeout,
		FinishedGrace: cfg.Rooms.FinishedGrace,
		ReapInterval:  cfg.Rooms.ReapInterval,
		Clock:         clock,
		Tokens:        tokens,
	}

	if stores.Redis != nil {
		mirror, err := room.NewRedisMirror(room.RedisMirrorConfig{
			Client:    stores.Redis,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Rooms.IdleTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create room mirror: %w", err)
		}
		gatewayConfig.RegistryConfig.Mirror = mirror
	}

	if cfg.NATS.URL != "" {
		natsConfig := broadcast.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		gatewayConfig.NATSConfig = &natsConfig
	}

	gatewayService, err := gateway.NewService(gatewayConfig, quizzes, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create live gateway: %w", err)
	}

	return &Services{Gateway: gatewayService}, nil
}
