package models

import (
	"time"

	"github.com/google/uuid"
)

// Selection records one claimed unit. Rows are append-only and the
// auto-increment ID is the only ordering guarantee within an election.
// Unit display fields are denormalized at selection time so the history
// survives later edits to the listing.
type Selection struct {
	ID            int64     `json:"id"`
	ElectionID    uuid.UUID `json:"election_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	UnitID        uuid.UUID `json:"unit_id"`
	UnitTitle     string    `json:"unit_title"`
	UnitAddress   string    `json:"unit_address"`
	UnitPrice     int64     `json:"unit_price"`
	CreatedAt     time.Time `json:"created_at"`
}
