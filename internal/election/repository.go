package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/models"
)

const uniqueViolationCode = "23505"

// Repository is the Postgres access layer for election turn state. The
// participant and selection tables are the only shared mutable resources;
// every mutation here runs in a short-lived transaction that also writes
// the matching outbox row, so a committed state change always has a
// broadcast queued.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	var e models.Election
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, election_type, starts_at, ends_at, turn_seconds, created_at, updated_at
		FROM elections WHERE id = $1
	`, id).Scan(&e.ID, &e.Title, &e.Type, &e.StartsAt, &e.EndsAt, &e.TurnSeconds, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrElectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	return &e, nil
}

func (r *Repository) GetParticipant(ctx context.Context, electionID, participantID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	err := r.pool.QueryRow(ctx, `
		SELECT election_id, participant_id, agent_name, seq_no, status, turn_expires_at
		FROM election_participants
		WHERE election_id = $1 AND participant_id = $2
	`, electionID, participantID).Scan(&p.ElectionID, &p.ParticipantID, &p.AgentName, &p.SeqNo, &p.Status, &p.TurnExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (r *Repository) ListParticipants(ctx context.Context, electionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT election_id, participant_id, agent_name, seq_no, status, turn_expires_at
		FROM election_participants
		WHERE election_id = $1
		ORDER BY seq_no NULLS LAST, participant_id
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ElectionID, &p.ParticipantID, &p.AgentName, &p.SeqNo, &p.Status, &p.TurnExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// GetActiveParticipant returns the participant currently holding ACTIVE
// status, or nil when nobody does. Expiry is not evaluated here; the
// scheduler compares turn_expires_at against its own clock.
func (r *Repository) GetActiveParticipant(ctx context.Context, electionID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	err := r.pool.QueryRow(ctx, `
		SELECT election_id, participant_id, agent_name, seq_no, status, turn_expires_at
		FROM election_participants
		WHERE election_id = $1 AND status = 'ACTIVE'
	`, electionID).Scan(&p.ElectionID, &p.ParticipantID, &p.AgentName, &p.SeqNo, &p.Status, &p.TurnExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active participant: %w", err)
	}
	return &p, nil
}

// AdvanceTurn performs one atomic turn transition: demote the expected
// active participant (conditional on the exact status and expiry the caller
// observed), promote the lowest-sequence WAITING participant, and queue the
// turn-changed broadcast — all in one transaction.
//
// A zero-row demote means a concurrent call advanced the turn first; the
// transaction rolls back and ErrRaceLost is returned. The partial unique
// index on (election_id) WHERE status='ACTIVE' backstops the single-active
// invariant, so a lost promote race surfaces as a unique violation and is
// mapped to ErrRaceLost as well.
func (r *Repository) AdvanceTurn(ctx context.Context, electionID uuid.UUID, expected *ActiveTurn, turnDuration time.Duration, now time.Time) (*TurnChange, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin advance transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	change := &TurnChange{ElectionID: electionID}

	if expected != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE election_participants
			SET status = 'DONE', turn_expires_at = NULL
			WHERE election_id = $1 AND participant_id = $2
			  AND status = 'ACTIVE' AND turn_expires_at = $3
		`, electionID, expected.ParticipantID, expected.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to demote active participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrRaceLost
		}
		prev := expected.ParticipantID
		change.PreviousParticipant = &prev
	}

	expiresAt := now.Add(turnDuration)
	var nextID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE election_participants p
		SET status = 'ACTIVE', turn_expires_at = $2
		FROM (
			SELECT participant_id
			FROM election_participants
			WHERE election_id = $1 AND status = 'WAITING' AND seq_no IS NOT NULL
			ORDER BY seq_no
			LIMIT 1
			FOR UPDATE
		) next
		WHERE p.election_id = $1 AND p.participant_id = next.participant_id
		RETURNING p.participant_id
	`, electionID, expiresAt).Scan(&nextID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Either no WAITING participants remain, or a concurrent advance
		// from idle won: its promoted row was locked during our inner
		// select and re-read as ACTIVE after it committed, leaving the
		// LIMIT 1 candidate set empty. Distinguish the two before
		// declaring the election idle: committing a null turn-changed
		// here would broadcast false idle state to every viewer.
		if expected == nil {
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM election_participants
					WHERE election_id = $1 AND status = 'ACTIVE'
				)
			`, electionID).Scan(&exists); err != nil {
				return nil, fmt.Errorf("failed to re-check active participant: %w", err)
			}
			if exists {
				return nil, ErrRaceLost
			}
		}
	case err != nil:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrRaceLost
		}
		return nil, fmt.Errorf("failed to promote next participant: %w", err)
	default:
		change.ActiveParticipantID = &nextID
		change.ExpiresAt = &expiresAt
	}

	payload, err := json.Marshal(turnChangedPayload(change, turnDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn-changed payload: %w", err)
	}
	if err := insertOutbox(ctx, tx, electionID, events.TypeTurnChanged, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrRaceLost
		}
		return nil, fmt.Errorf("failed to commit advance: %w", err)
	}
	return change, nil
}

func turnChangedPayload(change *TurnChange, turnDuration time.Duration) events.TurnChangedPayload {
	var p events.TurnChangedPayload
	if change.ActiveParticipantID != nil {
		id := change.ActiveParticipantID.String()
		remaining := int(turnDuration / time.Second)
		p.ParticipantID = &id
		p.RemainingSeconds = &remaining
		p.ExpiresAt = change.ExpiresAt
	}
	return p
}

// CreateSelection claims a unit for a participant. The conditional insert
// is the no-double-claim guard: a conflicting (election_id, unit_id) row
// makes the insert affect zero rows and the claim fails with
// ErrAlreadySelected. The selection-created broadcast is queued in the same
// transaction.
func (r *Repository) CreateSelection(ctx context.Context, req CreateSelectionRequest) (*models.Selection, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin selection transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sel := models.Selection{
		ElectionID:    req.ElectionID,
		ParticipantID: req.ParticipantID,
		UnitID:        req.Unit.ID,
		UnitTitle:     req.Unit.Title,
		UnitAddress:   req.Unit.Address,
		UnitPrice:     req.Unit.Price,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO election_selections
			(election_id, participant_id, unit_id, unit_title, unit_address, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (election_id, unit_id) DO NOTHING
		RETURNING id, created_at
	`, sel.ElectionID, sel.ParticipantID, sel.UnitID, sel.UnitTitle, sel.UnitAddress, sel.UnitPrice).
		Scan(&sel.ID, &sel.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadySelected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert selection: %w", err)
	}

	payload, err := json.Marshal(events.SelectionCreatedPayload{Selection: sel})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selection-created payload: %w", err)
	}
	if err := insertOutbox(ctx, tx, req.ElectionID, events.TypeSelectionCreated, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit selection: %w", err)
	}
	return &sel, nil
}

func (r *Repository) ListSelections(ctx context.Context, electionID uuid.UUID) ([]models.Selection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, election_id, participant_id, unit_id, unit_title, unit_address, unit_price, created_at
		FROM election_selections
		WHERE election_id = $1
		ORDER BY id
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	var selections []models.Selection
	for rows.Next() {
		var s models.Selection
		if err := rows.Scan(&s.ID, &s.ElectionID, &s.ParticipantID, &s.UnitID, &s.UnitTitle, &s.UnitAddress, &s.UnitPrice, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		selections = append(selections, s)
	}
	return selections, rows.Err()
}

// FetchNextTurnDeadline returns the soonest ACTIVE turn expiry across all
// elections, or nil when no turn is running. The sweeper sleeps until it.
func (r *Repository) FetchNextTurnDeadline(ctx context.Context) (*NextDeadline, error) {
	var nd NextDeadline
	err := r.pool.QueryRow(ctx, `
		SELECT election_id, turn_expires_at
		FROM election_participants
		WHERE status = 'ACTIVE' AND turn_expires_at IS NOT NULL
		ORDER BY turn_expires_at
		LIMIT 1
	`).Scan(&nd.ElectionID, &nd.Deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next turn deadline: %w", err)
	}
	return &nd, nil
}

// FetchElectionsDueForAdvance lists elections whose active turn expired at
// or before now.
func (r *Repository) FetchElectionsDueForAdvance(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT election_id
		FROM election_participants
		WHERE status = 'ACTIVE' AND turn_expires_at <= $1
		ORDER BY turn_expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due elections: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due election: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, electionID uuid.UUID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO election_outbox (id, election_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), electionID, eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}
