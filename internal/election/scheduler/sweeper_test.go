package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

// sweepStore hands out one due election, then reports no pending deadlines.
type sweepStore struct {
	mu         sync.Mutex
	electionID uuid.UUID
	expiresAt  time.Time
	dispensed  bool
	advanced   chan uuid.UUID
}

func (f *sweepStore) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	return &models.Election{ID: id}, nil
}

func (f *sweepStore) GetActiveParticipant(ctx context.Context, electionID uuid.UUID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispensed {
		return nil, nil
	}
	expires := f.expiresAt
	return &models.Participant{
		ElectionID:    electionID,
		ParticipantID: uuid.New(),
		Status:        models.ParticipantStatusActive,
		TurnExpiresAt: &expires,
	}, nil
}

func (f *sweepStore) AdvanceTurn(ctx context.Context, electionID uuid.UUID, expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
	f.mu.Lock()
	f.dispensed = true
	f.mu.Unlock()
	f.advanced <- electionID
	return &election.TurnChange{ElectionID: electionID}, nil
}

func (f *sweepStore) FetchNextTurnDeadline(ctx context.Context) (*election.NextDeadline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispensed {
		return nil, nil
	}
	deadline := f.expiresAt
	return &election.NextDeadline{ElectionID: f.electionID, Deadline: &deadline}, nil
}

func (f *sweepStore) FetchElectionsDueForAdvance(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispensed || now.Before(f.expiresAt) {
		return nil, nil
	}
	return []uuid.UUID{f.electionID}, nil
}

func TestSweeperAdvancesExpiredTurn(t *testing.T) {
	clock := clockwork.NewRealClock()
	store := &sweepStore{
		electionID: uuid.New(),
		expiresAt:  clock.Now().Add(-1 * time.Second),
		advanced:   make(chan uuid.UUID, 1),
	}
	sweeper := NewSweeper(NewService(store, clock), store, clock, 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sweeper.Run(ctx)
	}()

	select {
	case got := <-store.advanced:
		require.Equal(t, store.electionID, got)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not advance the expired turn")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not shut down")
	}
}

func TestSweeperWakeIsNonBlocking(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &sweepStore{advanced: make(chan uuid.UUID, 1)}
	sweeper := NewSweeper(NewService(store, clock), store, clock, 10, 1)

	// Repeated wakes before the loop drains the channel must not block.
	for i := 0; i < 3; i++ {
		sweeper.Wake()
	}
}
