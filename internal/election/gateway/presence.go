package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election/events"
)

// PresenceSubjectPrefix is the core-NATS subject root for membership
// events. Presence is fire-and-forget: it rides plain NATS, not JetStream,
// because a lost join/leave only leaves the online dot stale momentarily.
const PresenceSubjectPrefix = "pemilu.presence"

// PresencePublisher emits membership events when viewers connect and
// disconnect. It doubles as the subscriber side so every gateway instance
// fans remote membership changes out to its local connections.
type PresencePublisher struct {
	nc *nats.Conn
}

func NewPresencePublisher(nc *nats.Conn) *PresencePublisher {
	return &PresencePublisher{nc: nc}
}

func (p *PresencePublisher) Joined(electionID uuid.UUID, participantID, connectionID string) {
	p.publish(events.TypePresenceJoined, electionID, participantID, connectionID)
}

func (p *PresencePublisher) Left(electionID uuid.UUID, participantID, connectionID string) {
	p.publish(events.TypePresenceLeft, electionID, participantID, connectionID)
}

func (p *PresencePublisher) publish(eventType string, electionID uuid.UUID, participantID, connectionID string) {
	payload, err := json.Marshal(events.PresencePayload{
		ParticipantID: participantID,
		ConnectionID:  connectionID,
		At:            time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal presence payload")
		return
	}
	envelope, err := json.Marshal(events.Envelope{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		ElectionID: electionID.String(),
		Timestamp:  time.Now(),
		Payload:    payload,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal presence envelope")
		return
	}

	subject := fmt.Sprintf("%s.%s", PresenceSubjectPrefix, electionID)
	if err := p.nc.Publish(subject, envelope); err != nil {
		// Presence carries no correctness weight; log and move on.
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish presence event")
	}
}

// SubscribePresence fans membership events back out to local websocket
// viewers of the affected election.
func SubscribePresence(nc *nats.Conn, cm *ConnectionManager) (*nats.Subscription, error) {
	return nc.Subscribe(PresenceSubjectPrefix+".>", func(msg *nats.Msg) {
		var envelope events.Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal presence envelope")
			return
		}
		idStr := strings.TrimPrefix(msg.Subject, PresenceSubjectPrefix+".")
		electionID, err := uuid.Parse(idStr)
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("invalid presence subject")
			return
		}
		cm.BroadcastToElection(electionID, &envelope)
	})
}
