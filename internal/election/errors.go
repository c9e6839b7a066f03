package election

import "errors"

// Repository-level errors
var (
	ErrElectionNotFound    = errors.New("election not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrUnitNotAvailable    = errors.New("unit not available for selection")
)

// Turn-coordination errors
var (
	// ErrNotYourTurn rejects a selection attempted by a participant that
	// does not currently hold the floor.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrAlreadySelected rejects a claim on a unit another selection
	// already references within the same election.
	ErrAlreadySelected = errors.New("unit already selected")

	// ErrRaceLost means a concurrent advance changed the turn state first.
	// Callers treat it as a successful no-op and re-read current status.
	ErrRaceLost = errors.New("turn already advanced by concurrent call")
)
