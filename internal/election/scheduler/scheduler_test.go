package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

type fakeStore struct {
	election *models.Election
	active   *models.Participant

	advanceFn    func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error)
	advanceCalls int
	lastExpected *election.ActiveTurn
}

func (f *fakeStore) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	if f.election == nil {
		return nil, election.ErrElectionNotFound
	}
	return f.election, nil
}

func (f *fakeStore) GetActiveParticipant(ctx context.Context, electionID uuid.UUID) (*models.Participant, error) {
	return f.active, nil
}

func (f *fakeStore) AdvanceTurn(ctx context.Context, electionID uuid.UUID, expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
	f.advanceCalls++
	f.lastExpected = expected
	return f.advanceFn(expected, turnDuration, now)
}

func (f *fakeStore) FetchNextTurnDeadline(ctx context.Context) (*election.NextDeadline, error) {
	return nil, nil
}

func (f *fakeStore) FetchElectionsDueForAdvance(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	return nil, nil
}

func activeParticipant(electionID uuid.UUID, expiresAt time.Time) *models.Participant {
	return &models.Participant{
		ElectionID:    electionID,
		ParticipantID: uuid.New(),
		AgentName:     "agent-a",
		Status:        models.ParticipantStatusActive,
		TurnExpiresAt: &expiresAt,
	}
}

func TestGetStatus(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()

	tests := []struct {
		name      string
		active    *models.Participant
		wantIdle  bool
		remaining int
	}{
		{
			name:     "no_active_participant",
			active:   nil,
			wantIdle: true,
		},
		{
			name:      "active_with_time_left",
			active:    activeParticipant(electionID, clock.Now().Add(45*time.Second)),
			remaining: 45,
		},
		{
			name:     "active_but_expired",
			active:   activeParticipant(electionID, clock.Now().Add(-1*time.Second)),
			wantIdle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				election: &models.Election{ID: electionID},
				active:   tt.active,
			}
			svc := NewService(store, clock)

			status, err := svc.GetStatus(context.Background(), electionID)
			require.NoError(t, err)

			if tt.wantIdle {
				require.Nil(t, status.ActiveParticipantID)
				require.Nil(t, status.RemainingSeconds)
				return
			}
			require.NotNil(t, status.ActiveParticipantID)
			require.Equal(t, tt.active.ParticipantID, *status.ActiveParticipantID)
			require.NotNil(t, status.RemainingSeconds)
			require.Equal(t, tt.remaining, *status.RemainingSeconds)
		})
	}
}

func TestGetStatusUnknownElection(t *testing.T) {
	svc := NewService(&fakeStore{}, clockwork.NewFakeClock())

	_, err := svc.GetStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, election.ErrElectionNotFound)
}

func TestAdvanceTurnNoOpWhileUnexpired(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	active := activeParticipant(electionID, clock.Now().Add(60*time.Second))

	store := &fakeStore{
		election: &models.Election{ID: electionID},
		active:   active,
	}
	svc := NewService(store, clock)

	// A bystander observing a stale countdown must not cut the turn short.
	other := uuid.New()
	status, err := svc.AdvanceTurn(context.Background(), electionID, &other)
	require.NoError(t, err)
	require.Zero(t, store.advanceCalls)
	require.Equal(t, active.ParticipantID, *status.ActiveParticipantID)
	require.Equal(t, 60, *status.RemainingSeconds)
}

func TestAdvanceTurnEarlyFinishByActiveParticipant(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	active := activeParticipant(electionID, clock.Now().Add(60*time.Second))
	nextID := uuid.New()
	nextExpiry := clock.Now().Add(120 * time.Second)

	store := &fakeStore{
		election: &models.Election{ID: electionID},
		active:   active,
	}
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		return &election.TurnChange{
			ElectionID:          electionID,
			PreviousParticipant: &active.ParticipantID,
			ActiveParticipantID: &nextID,
			ExpiresAt:           &nextExpiry,
		}, nil
	}
	svc := NewService(store, clock)

	status, err := svc.AdvanceTurn(context.Background(), electionID, &active.ParticipantID)
	require.NoError(t, err)
	require.Equal(t, 1, store.advanceCalls)
	require.NotNil(t, store.lastExpected)
	require.Equal(t, active.ParticipantID, store.lastExpected.ParticipantID)
	require.Equal(t, *active.TurnExpiresAt, store.lastExpected.ExpiresAt)
	require.Equal(t, nextID, *status.ActiveParticipantID)
	require.Equal(t, 120, *status.RemainingSeconds)
}

func TestAdvanceTurnAfterExpiry(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	active := activeParticipant(electionID, clock.Now().Add(-5*time.Second))
	nextID := uuid.New()
	nextExpiry := clock.Now().Add(120 * time.Second)

	store := &fakeStore{
		election: &models.Election{ID: electionID},
		active:   active,
	}
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		require.Equal(t, models.DefaultTurnSeconds*time.Second, turnDuration)
		return &election.TurnChange{
			ElectionID:          electionID,
			PreviousParticipant: &active.ParticipantID,
			ActiveParticipantID: &nextID,
			ExpiresAt:           &nextExpiry,
		}, nil
	}
	svc := NewService(store, clock)

	// Any caller may advance once the countdown has elapsed.
	status, err := svc.AdvanceTurn(context.Background(), electionID, nil)
	require.NoError(t, err)
	require.Equal(t, nextID, *status.ActiveParticipantID)
}

func TestAdvanceTurnRaceLostReturnsCurrentStatus(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	stale := activeParticipant(electionID, clock.Now().Add(-1*time.Second))

	store := &fakeStore{
		election: &models.Election{ID: electionID},
		active:   stale,
	}
	winner := activeParticipant(electionID, clock.Now().Add(100*time.Second))
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		// Another caller advanced first; re-reads now see the winner.
		store.active = winner
		return nil, election.ErrRaceLost
	}
	svc := NewService(store, clock)

	status, err := svc.AdvanceTurn(context.Background(), electionID, nil)
	require.NoError(t, err)
	require.Equal(t, winner.ParticipantID, *status.ActiveParticipantID)
	require.Equal(t, 100, *status.RemainingSeconds)
}

func TestAdvanceTurnIdleRaceLostReturnsWinner(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()

	// Both callers observed no active participant; the store reports the
	// lost promote race and the loser must surface the winner's turn, not
	// a false idle.
	store := &fakeStore{
		election: &models.Election{ID: electionID},
	}
	winner := activeParticipant(electionID, clock.Now().Add(90*time.Second))
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		require.Nil(t, expected)
		store.active = winner
		return nil, election.ErrRaceLost
	}
	svc := NewService(store, clock)

	status, err := svc.AdvanceTurn(context.Background(), electionID, nil)
	require.NoError(t, err)
	require.NotNil(t, status.ActiveParticipantID)
	require.Equal(t, winner.ParticipantID, *status.ActiveParticipantID)
	require.Equal(t, 90, *status.RemainingSeconds)
}

func TestAdvanceTurnFromIdlePromotesWaiting(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	nextID := uuid.New()
	nextExpiry := clock.Now().Add(120 * time.Second)

	store := &fakeStore{
		election: &models.Election{ID: electionID},
	}
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		require.Nil(t, expected)
		return &election.TurnChange{
			ElectionID:          electionID,
			ActiveParticipantID: &nextID,
			ExpiresAt:           &nextExpiry,
		}, nil
	}
	svc := NewService(store, clock)

	status, err := svc.AdvanceTurn(context.Background(), electionID, nil)
	require.NoError(t, err)
	require.Equal(t, nextID, *status.ActiveParticipantID)
}

func TestAdvanceTurnElectionDrained(t *testing.T) {
	electionID := uuid.New()
	clock := clockwork.NewFakeClock()
	active := activeParticipant(electionID, clock.Now().Add(-1*time.Second))

	store := &fakeStore{
		election: &models.Election{ID: electionID},
		active:   active,
	}
	store.advanceFn = func(expected *election.ActiveTurn, turnDuration time.Duration, now time.Time) (*election.TurnChange, error) {
		return &election.TurnChange{
			ElectionID:          electionID,
			PreviousParticipant: &active.ParticipantID,
		}, nil
	}
	svc := NewService(store, clock)

	status, err := svc.AdvanceTurn(context.Background(), electionID, nil)
	require.NoError(t, err)
	require.Nil(t, status.ActiveParticipantID)
	require.Nil(t, status.RemainingSeconds)
}
