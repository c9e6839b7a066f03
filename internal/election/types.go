package election

import (
	"time"

	"github.com/google/uuid"

	"github.com/rumahkita/pemilu/internal/models"
)

// TurnStatus is the authoritative answer to "whose turn is it, and how much
// time is left". Both fields are nil when nobody holds an unexpired turn.
type TurnStatus struct {
	ActiveParticipantID *uuid.UUID `json:"active_participant_id"`
	RemainingSeconds    *int       `json:"remaining_seconds"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
}

// ActiveTurn identifies the turn state an advance was decided against.
// The conditional demote is keyed on both fields so a concurrent advance
// that already moved the turn makes the second call a no-op.
type ActiveTurn struct {
	ParticipantID uuid.UUID
	ExpiresAt     time.Time
}

// TurnChange is the committed result of one turn advance.
type TurnChange struct {
	ElectionID          uuid.UUID
	PreviousParticipant *uuid.UUID
	ActiveParticipantID *uuid.UUID // nil when no WAITING participants remain
	ExpiresAt           *time.Time
}

// CreateSelectionRequest carries a validated unit claim into the repository.
type CreateSelectionRequest struct {
	ElectionID    uuid.UUID
	ParticipantID uuid.UUID
	Unit          models.Unit
}

// NextDeadline is the soonest ACTIVE turn expiry across all elections,
// used by the sweeper to sleep until work is due.
type NextDeadline struct {
	ElectionID uuid.UUID
	Deadline   *time.Time
}

// Snapshot seeds a viewer's local state in one read: the election record,
// its participants, the selections so far and the current turn status.
type Snapshot struct {
	Election     models.Election      `json:"election"`
	Participants []models.Participant `json:"participants"`
	Selections   []models.Selection   `json:"selections"`
	Status       TurnStatus           `json:"status"`
}
