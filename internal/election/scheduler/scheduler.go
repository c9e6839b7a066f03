// Package scheduler owns the authoritative notion of whose turn is active
// and advances it deterministically. Expiry is wall-clock based and
// evaluated lazily at read time; there are no long-held locks — correctness
// under races relies on the repository's conditional updates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/metrics"
	"github.com/rumahkita/pemilu/internal/models"
)

// TurnStore defines what the scheduler needs from election storage.
type TurnStore interface {
	GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error)
	GetActiveParticipant(ctx context.Context, electionID uuid.UUID) (*models.Participant, error)
	AdvanceTurn(ctx context.Context, electionID uuid.UUID, expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error)
	FetchNextTurnDeadline(ctx context.Context) (*election.NextDeadline, error)
	FetchElectionsDueForAdvance(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
}

// Service is the turn scheduler.
type Service struct {
	store TurnStore
	clock clockwork.Clock
}

func NewService(store TurnStore, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock}
}

// GetStatus reports the active participant and remaining seconds. Both are
// nil when nobody is active or the active turn has already expired. No side
// effects: an expired turn is only advanced by AdvanceTurn.
func (s *Service) GetStatus(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error) {
	if _, err := s.store.GetElection(ctx, electionID); err != nil {
		return election.TurnStatus{}, err
	}
	active, err := s.store.GetActiveParticipant(ctx, electionID)
	if err != nil {
		return election.TurnStatus{}, err
	}
	return s.statusOf(active), nil
}

func (s *Service) statusOf(active *models.Participant) election.TurnStatus {
	if active == nil || active.TurnExpiresAt == nil {
		return election.TurnStatus{}
	}
	remaining := int(active.TurnExpiresAt.Sub(s.clock.Now()).Seconds())
	if remaining <= 0 {
		return election.TurnStatus{}
	}
	id := active.ParticipantID
	expires := *active.TurnExpiresAt
	return election.TurnStatus{
		ActiveParticipantID: &id,
		RemainingSeconds:    &remaining,
		ExpiresAt:           &expires,
	}
}

// AdvanceTurn moves the floor to the next participant. It is idempotent
// under concurrent invocation: the demote is keyed on the exact turn state
// observed here, so the losing call sees ErrRaceLost from the store and
// returns the now-current status as a no-op.
//
// When the active turn has not expired, only the active participant itself
// (finishedBy) may end it early; any other caller gets the current status
// back unchanged.
func (s *Service) AdvanceTurn(ctx context.Context, electionID uuid.UUID, finishedBy *uuid.UUID) (election.TurnStatus, error) {
	e, err := s.store.GetElection(ctx, electionID)
	if err != nil {
		return election.TurnStatus{}, err
	}
	active, err := s.store.GetActiveParticipant(ctx, electionID)
	if err != nil {
		return election.TurnStatus{}, err
	}

	now := s.clock.Now()
	var expected *election.ActiveTurn
	if active != nil {
		if active.TurnExpiresAt == nil {
			return election.TurnStatus{}, fmt.Errorf("active participant %s has no turn expiry", active.ParticipantID)
		}
		expired := !active.TurnExpiresAt.After(now)
		finishing := finishedBy != nil && *finishedBy == active.ParticipantID
		if !expired && !finishing {
			// Still somebody's turn; nothing to advance.
			return s.statusOf(active), nil
		}
		expected = &election.ActiveTurn{
			ParticipantID: active.ParticipantID,
			ExpiresAt:     *active.TurnExpiresAt,
		}
	}

	change, err := s.store.AdvanceTurn(ctx, electionID, expected, e.TurnDuration(), now)
	if errors.Is(err, election.ErrRaceLost) {
		metrics.TurnAdvanceRacesLost.Inc()
		log.Debug().
			Str("election_id", electionID.String()).
			Msg("advance lost race, returning current status")
		current, err := s.store.GetActiveParticipant(ctx, electionID)
		if err != nil {
			return election.TurnStatus{}, err
		}
		return s.statusOf(current), nil
	}
	if err != nil {
		return election.TurnStatus{}, err
	}

	metrics.TurnAdvancesTotal.Inc()
	evt := log.Info().Str("election_id", electionID.String())
	if change.PreviousParticipant != nil {
		evt = evt.Str("previous_participant", change.PreviousParticipant.String())
	}
	if change.ActiveParticipantID != nil {
		evt = evt.Str("active_participant", change.ActiveParticipantID.String())
	} else {
		evt = evt.Bool("election_idle", true)
	}
	evt.Msg("turn advanced")

	return statusFromChange(change, s.clock.Now()), nil
}

func statusFromChange(change *election.TurnChange, now time.Time) election.TurnStatus {
	if change.ActiveParticipantID == nil {
		return election.TurnStatus{}
	}
	remaining := int(change.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return election.TurnStatus{
		ActiveParticipantID: change.ActiveParticipantID,
		RemainingSeconds:    &remaining,
		ExpiresAt:           change.ExpiresAt,
	}
}
