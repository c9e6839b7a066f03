// Package selection enforces that only the active participant can claim a
// unit, and that a unit is claimed at most once per election.
package selection

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/metrics"
	"github.com/rumahkita/pemilu/internal/models"
)

// StatusProvider supplies the authoritative turn status.
type StatusProvider interface {
	GetStatus(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error)
}

// SelectionStore persists claims.
type SelectionStore interface {
	CreateSelection(ctx context.Context, req election.CreateSelectionRequest) (*models.Selection, error)
}

// UnitCatalog is the read-only listings boundary, filtered to units that
// are currently offered.
type UnitCatalog interface {
	GetOfferedUnit(ctx context.Context, unitID uuid.UUID) (*models.Unit, error)
}

// Guard validates and records unit selections. It never advances the turn;
// a participant may claim any number of distinct units while they hold the
// floor.
type Guard struct {
	status  StatusProvider
	store   SelectionStore
	catalog UnitCatalog
}

func NewGuard(status StatusProvider, store SelectionStore, catalog UnitCatalog) *Guard {
	return &Guard{status: status, store: store, catalog: catalog}
}

// SelectUnit checks, in order: the caller holds the active turn, then the
// unit is not already claimed. Unit display fields are denormalized from
// the catalog at insert time. The selection-created broadcast is queued by
// the store in the same transaction as the insert.
func (g *Guard) SelectUnit(ctx context.Context, electionID, participantID, unitID uuid.UUID) (*models.Selection, error) {
	status, err := g.status.GetStatus(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if status.ActiveParticipantID == nil || *status.ActiveParticipantID != participantID {
		metrics.SelectionRejectionsTotal.WithLabelValues("not_your_turn").Inc()
		return nil, election.ErrNotYourTurn
	}

	unit, err := g.catalog.GetOfferedUnit(ctx, unitID)
	if err != nil {
		metrics.SelectionRejectionsTotal.WithLabelValues("unit_not_available").Inc()
		return nil, err
	}

	sel, err := g.store.CreateSelection(ctx, election.CreateSelectionRequest{
		ElectionID:    electionID,
		ParticipantID: participantID,
		Unit:          *unit,
	})
	if err != nil {
		if errors.Is(err, election.ErrAlreadySelected) {
			metrics.SelectionRejectionsTotal.WithLabelValues("already_selected").Inc()
		}
		return nil, err
	}

	metrics.SelectionsTotal.Inc()
	log.Info().
		Str("election_id", electionID.String()).
		Str("participant_id", participantID.String()).
		Str("unit_id", unitID.String()).
		Int64("selection_id", sel.ID).
		Msg("unit selected")
	return sel, nil
}
