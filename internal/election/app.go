package election

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rumahkita/pemilu/internal/models"
)

// ElectionRepository defines what the app layer needs from storage.
type ElectionRepository interface {
	GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error)
	GetParticipant(ctx context.Context, electionID, participantID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, electionID uuid.UUID) ([]models.Participant, error)
	GetActiveParticipant(ctx context.Context, electionID uuid.UUID) (*models.Participant, error)
	AdvanceTurn(ctx context.Context, electionID uuid.UUID, expected *ActiveTurn, turnDuration time.Duration, now time.Time) (*TurnChange, error)
	CreateSelection(ctx context.Context, req CreateSelectionRequest) (*models.Selection, error)
	ListSelections(ctx context.Context, electionID uuid.UUID) ([]models.Selection, error)
	FetchNextTurnDeadline(ctx context.Context) (*NextDeadline, error)
	FetchElectionsDueForAdvance(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
}

// App handles election state business logic shared by the scheduler, the
// selection guard and the HTTP layer.
type App struct {
	repo ElectionRepository
}

func NewApp(repo ElectionRepository) *App {
	return &App{repo: repo}
}

func (a *App) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	return a.repo.GetElection(ctx, id)
}

func (a *App) GetParticipant(ctx context.Context, electionID, participantID uuid.UUID) (*models.Participant, error) {
	return a.repo.GetParticipant(ctx, electionID, participantID)
}

func (a *App) ListParticipants(ctx context.Context, electionID uuid.UUID) ([]models.Participant, error) {
	return a.repo.ListParticipants(ctx, electionID)
}

func (a *App) ListSelections(ctx context.Context, electionID uuid.UUID) ([]models.Selection, error) {
	return a.repo.ListSelections(ctx, electionID)
}

// Snapshot assembles the initial view a client seeds its local state from.
func (a *App) Snapshot(ctx context.Context, electionID uuid.UUID, status TurnStatus) (*Snapshot, error) {
	e, err := a.repo.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	participants, err := a.repo.ListParticipants(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	selections, err := a.repo.ListSelections(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	return &Snapshot{
		Election:     *e,
		Participants: participants,
		Selections:   selections,
		Status:       status,
	}, nil
}
