package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/metrics"
)

// StreamName is the JetStream stream holding all election events.
const StreamName = "PEMILU_EVENTS"

// SubjectPrefix is the per-election subject root: one subject per election
// keeps each event's channel addressable for consumers.
const SubjectPrefix = "pemilu.events"

// NATSPublisher publishes outbox events to JetStream.
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	// Idempotent: returns the existing stream when it is already there.
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &NATSPublisher{nc: nc, js: js}, nil
}

// Publish wraps the event in the wire envelope and publishes it on the
// election's subject.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	envelope := events.Envelope{
		EventID:    event.ID.String(),
		EventType:  event.EventType,
		ElectionID: event.ElectionID.String(),
		Timestamp:  event.CreatedAt,
		Payload:    json.RawMessage(event.Payload),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.ElectionID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		metrics.OutboxPublishFailures.Inc()
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	metrics.OutboxPublishedTotal.Inc()
	log.Debug().
		Str("subject", subject).
		Str("event_type", event.EventType).
		Str("event_id", event.ID.String()).
		Msg("published outbox event")
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
