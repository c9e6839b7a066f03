package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Service wires the connection manager, the JetStream consumer and the
// presence channel into one gateway process.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	presenceSub       *nats.Subscription
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(config Config) (*Service, error) {
	// The consumer owns the NATS connection; presence shares it.
	var connectionManager *ConnectionManager

	eventConsumer, err := NewEventConsumer(nil, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	presence := NewPresencePublisher(eventConsumer.Conn())
	connectionManager = NewConnectionManager(config.ConnectionConfig, presence)
	eventConsumer.connectionManager = connectionManager

	presenceSub, err := SubscribePresence(eventConsumer.Conn(), connectionManager)
	if err != nil {
		eventConsumer.Stop()
		return nil, fmt.Errorf("failed to subscribe presence: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		eventConsumer:     eventConsumer,
		presenceSub:       presenceSub,
	}, nil
}

// Start runs the gateway until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting election gateway service")

	go s.connectionManager.Start(ctx)
	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("election gateway shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.presenceSub != nil {
		if err := s.presenceSub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe presence")
		}
	}
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("election gateway stopped")
	return nil
}

// RegisterRoutes registers the websocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
}
