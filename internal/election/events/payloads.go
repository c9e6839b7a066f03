// Package events holds payload types shared between the election services,
// the outbox relay and the gateway, so none of them import each other.
package events

import (
	"time"

	"github.com/rumahkita/pemilu/internal/models"
)

// Event type names as they appear on the wire.
const (
	TypeTurnChanged      = "turn-changed"
	TypeSelectionCreated = "selection-created"
	TypePresenceJoined   = "presence-joined"
	TypePresenceLeft     = "presence-left"
)

// TurnChangedPayload is a full-state replacement, never a delta. Consumers
// overwrite their local turn view with it wholesale.
type TurnChangedPayload struct {
	ParticipantID    *string    `json:"participant_id"`
	RemainingSeconds *int       `json:"remaining_seconds"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// SelectionCreatedPayload carries the complete selection record. Delivery is
// at-least-once; consumers dedupe by selection ID.
type SelectionCreatedPayload struct {
	Selection models.Selection `json:"selection"`
}

// PresencePayload reflects a viewer session connecting or disconnecting.
// Display-only; it carries no correctness weight.
type PresencePayload struct {
	ParticipantID string    `json:"participant_id"`
	ConnectionID  string    `json:"connection_id"`
	At            time.Time `json:"at"`
}
