package election_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/rumahkita/pemilu/internal/database"
	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/election/scheduler"
	"github.com/rumahkita/pemilu/internal/election/selection"
)

func TestRepositoryImplementsTurnStore(t *testing.T) {
	var _ scheduler.TurnStore = (*election.Repository)(nil)
}

func TestRepositoryImplementsSelectionStore(t *testing.T) {
	var _ selection.SelectionStore = (*election.Repository)(nil)
}

func TestRepositoryImplementsElectionRepository(t *testing.T) {
	var _ election.ElectionRepository = (*election.Repository)(nil)
}

// testPool connects to TEST_DATABASE_URL and applies migrations, or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, database.RunMigrations(dsn))
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedElection(t *testing.T, pool *pgxpool.Pool, participants int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	electionID := uuid.New()

	_, err := pool.Exec(ctx, `
		INSERT INTO elections (id, title) VALUES ($1, 'Tower A release')
	`, electionID)
	require.NoError(t, err)

	for i := 1; i <= participants; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO election_participants (election_id, participant_id, agent_name, seq_no, status)
			VALUES ($1, $2, $3, $4, 'WAITING')
		`, electionID, uuid.New(), "agent", i)
		require.NoError(t, err)
	}
	return electionID
}

// Concurrent advances of an idle election must elect exactly one new active
// participant; every losing call reports the race instead of committing a
// false idle turn-changed broadcast.
func TestAdvanceTurnConcurrentFromIdle(t *testing.T) {
	pool := testPool(t)
	repo := election.NewRepository(pool)
	ctx := context.Background()
	electionID := seedElection(t, pool, 3)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*election.TurnChange, callers)
	errs := make([]error, callers)

	now := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.AdvanceTurn(ctx, electionID, nil, 120*time.Second, now)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if errs[i] == nil {
			require.NotNil(t, results[i].ActiveParticipantID,
				"a winner with WAITING participants left must never report idle")
			winners++
		} else {
			require.ErrorIs(t, errs[i], election.ErrRaceLost)
		}
	}
	require.Equal(t, 1, winners)

	var activeCount int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT count(*) FROM election_participants
		WHERE election_id = $1 AND status = 'ACTIVE'
	`, electionID).Scan(&activeCount))
	require.Equal(t, 1, activeCount)

	// No committed broadcast may claim the election idles while a
	// participant holds the floor.
	rows, err := pool.Query(ctx, `
		SELECT payload FROM election_outbox
		WHERE election_id = $1 AND event_type = $2
	`, electionID, events.TypeTurnChanged)
	require.NoError(t, err)
	defer rows.Close()

	broadcasts := 0
	for rows.Next() {
		var raw []byte
		require.NoError(t, rows.Scan(&raw))
		var p events.TurnChangedPayload
		require.NoError(t, json.Unmarshal(raw, &p))
		require.NotNil(t, p.ParticipantID)
		broadcasts++
	}
	require.NoError(t, rows.Err())
	require.Equal(t, 1, broadcasts)
}
