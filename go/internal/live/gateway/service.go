package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/broadcast"
	"github.com/mcdev12/quizlive/go/internal/live/coordinator"
	"github.com/mcdev12/quizlive/go/internal/live/room"
	"github.com/mcdev12/quizlive/go/internal/quiz"
	"github.com/mcdev12/quizlive/go/internal/scores"
)

// Service is the live quiz gateway: WebSocket connections, room coordination
// and the HTTP endpoints around them.
type Service struct {
	registry          *room.Registry
	hub               *broadcast.Hub
	bus               *broadcast.NATSBus
	coordinator       *coordinator.Coordinator
	connectionManager *ConnectionManager

	wsHandler    *WebSocketHandler
	roomHandler  *RoomHandler
	scoreHandler *scores.Handler

	stopOnce sync.Once
}

// Config holds configuration for the live gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	RegistryConfig   room.Config
	// NATSConfig enables cross-instance rooms when set. It needs a
	// RegistryConfig.Mirror that records room ownership.
	NATSConfig *broadcast.NATSConfig
}

// DefaultConfig returns default configuration for the live gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RegistryConfig:   room.DefaultConfig(),
	}
}

// NewService creates a new live gateway service. quizzes and recorder may be nil.
func NewService(config Config, quizzes quiz.Gateway, recorder scores.Recorder) (*Service, error) {
	registry := room.NewRegistry(config.RegistryConfig)
	hub := broadcast.NewHub()

	s := &Service{
		registry:    registry,
		hub:         hub,
		roomHandler: NewRoomHandler(registry, config.RegistryConfig.Mirror),
	}

	var broadcaster broadcast.Broadcaster = hub
	if config.NATSConfig != nil {
		bus, err := broadcast.NewNATSBus(hub, *config.NATSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		s.bus = bus
		broadcaster = bus
	}

	s.coordinator = coordinator.New(registry, broadcaster, quizzes, config.RegistryConfig.Clock)
	if s.bus != nil {
		// rooms are shared across instances only when ownership is recorded centrally
		if owners, ok := config.RegistryConfig.Mirror.(coordinator.Ownership); ok {
			s.coordinator.EnableCluster(owners, s.bus)
			s.bus.OnForward(s.coordinator.HandleForwarded)
		} else {
			log.Warn().Msg("event bus enabled without a room mirror, rooms stay local to each instance")
		}
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, hub, s.coordinator)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, s.GetStats)
	if recorder != nil {
		s.scoreHandler = scores.NewHandler(recorder)
	}
	return s, nil
}

// Start runs the reaper and the event bus until ctx is cancelled, then stops the service.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting live gateway service")

	if s.bus != nil {
		if err := s.bus.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
	}

	go s.registry.RunReaper(ctx, s.coordinator.HandleReaped)

	<-ctx.Done()

	log.Info().Msg("live gateway service shutting down")
	return s.Stop()
}

// Stop closes every connection, drains the bus and clears the registry.
// It is safe to call more than once.
func (s *Service) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.connectionManager.CloseAll()

		if s.bus != nil {
			if stopErr := s.bus.Stop(); stopErr != nil {
				log.Error().Err(stopErr).Msg("failed to stop event bus")
				err = stopErr
			}
		}

		s.registry.Shutdown(context.Background())
		log.Info().Msg("live gateway service stopped")
	})
	return err
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomHandler.RegisterRoutes(mux)
	if s.scoreHandler != nil {
		s.scoreHandler.RegisterRoutes(mux)
	}
	log.Info().Msg("live gateway routes registered")
}

// Registry exposes the room registry
func (s *Service) Registry() *room.Registry {
	return s.registry
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":           "quizlive",
		"total_connections": s.connectionManager.Len(),
		"active_rooms":      s.registry.Len(),
		"cross_instance":    s.bus != nil,
	}
}
