package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match/events"
)

// Service is the gateway: websocket streams and state routes over a hub.
// In the API process the hub is the one the apps publish to. A standalone
// gateway fills its own hub from JetStream instead.
type Service struct {
	hub               *broadcast.Hub[events.Event]
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// JetStreamConfig is only used when UseJetStream is set.
	JetStreamConfig JetStreamConsumerConfig
	UseJetStream    bool
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a gateway over hub. Either state source may be nil,
// which leaves its routes unregistered.
func NewService(ctx context.Context, config Config, hub *broadcast.Hub[events.Event], matches MatchStateSource, sessions clocksession.StateFetcher) (*Service, error) {
	connectionManager := NewConnectionManager(hub, config.ConnectionConfig)
	stateHandler := NewStateHandler(matches, sessions)

	s := &Service{
		hub:               hub,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, stateHandler),
		stateHandler:      stateHandler,
	}

	if config.UseJetStream {
		ec, err := NewEventConsumer(ctx, hub, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = ec
	}
	return s, nil
}

// Start runs the JetStream consumer, if any, until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting match gateway service")

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("match gateway service shutting down")
	return s.Stop()
}

// Stop closes the consumer and every open stream.
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	s.hub.Close()
	log.Info().Msg("match gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("match gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
