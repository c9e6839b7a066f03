package models

import (
	"time"

	"github.com/google/uuid"
)

// ElectionType defines the type of election event.
type ElectionType string

const (
	ElectionTypeUnitPick ElectionType = "UNIT_PICK"
	ElectionTypeLelang   ElectionType = "LELANG"
)

// DefaultTurnSeconds is used when an election has no per-turn duration set.
const DefaultTurnSeconds = 120

// Election represents a turn-based unit-picking event for registered agents.
type Election struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Type        ElectionType `json:"type"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	TurnSeconds *int         `json:"turn_seconds,omitempty"` // nil falls back to DefaultTurnSeconds
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TurnDuration returns the configured per-turn duration.
func (e *Election) TurnDuration() time.Duration {
	secs := DefaultTurnSeconds
	if e.TurnSeconds != nil && *e.TurnSeconds > 0 {
		secs = *e.TurnSeconds
	}
	return time.Duration(secs) * time.Second
}
