package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus defines where a participant is in the turn cycle.
type ParticipantStatus string

const (
	ParticipantStatusWaiting ParticipantStatus = "WAITING"
	ParticipantStatusActive  ParticipantStatus = "ACTIVE"
	ParticipantStatusDone    ParticipantStatus = "DONE"
)

// Participant is an agent registered into an election. At most one
// participant per election holds ACTIVE status at any time.
type Participant struct {
	ElectionID    uuid.UUID         `json:"election_id"`
	ParticipantID uuid.UUID         `json:"participant_id"`
	AgentName     string            `json:"agent_name"`
	SeqNo         *int              `json:"seq_no,omitempty"` // nil means not yet assigned a turn slot
	Status        ParticipantStatus `json:"status"`
	TurnExpiresAt *time.Time        `json:"turn_expires_at,omitempty"` // set only while ACTIVE
}

// Eligible reports whether the participant can ever take a turn.
// Participants without an assigned sequence number never become active.
func (p *Participant) Eligible() bool {
	return p.SeqNo != nil
}
