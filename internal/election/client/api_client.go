package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

// ErrConfirmationDeclined means the viewer backed out of the confirmation
// step before the selection request was sent.
var ErrConfirmationDeclined = errors.New("selection not confirmed")

// ConfirmFunc is the pre-condition confirmation step invoked before a
// selection request goes out. The server re-validates regardless of what
// this returns; it only exists to keep accidental clicks off the wire.
type ConfirmFunc func(unit models.Unit) bool

// APIClient talks to the coordination API on behalf of one participant.
type APIClient struct {
	baseURL       string
	participantID uuid.UUID
	client        *http.Client
	confirm       ConfirmFunc
}

func NewAPIClient(baseURL string, participantID uuid.UUID, confirm ConfirmFunc) *APIClient {
	return &APIClient{
		baseURL:       baseURL,
		participantID: participantID,
		client:        &http.Client{Timeout: 30 * time.Second},
		confirm:       confirm,
	}
}

// GetStatus polls the authoritative turn status.
func (c *APIClient) GetStatus(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error) {
	var status election.TurnStatus
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/elections/%s/status", electionID), nil, &status)
	return status, err
}

// GetSnapshot fetches the initial seed state.
func (c *APIClient) GetSnapshot(ctx context.Context, electionID uuid.UUID) (*election.Snapshot, error) {
	var snap election.Snapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/elections/%s", electionID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AdvanceTurn requests a turn advance, e.g. when the local countdown hits
// zero. The server treats a lost race as a successful no-op, so the
// returned status is always current.
func (c *APIClient) AdvanceTurn(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error) {
	var status election.TurnStatus
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/elections/%s/turn/advance", electionID), nil, &status)
	return status, err
}

// FinishTurn ends the caller's own turn early.
func (c *APIClient) FinishTurn(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error) {
	body := map[string]string{"participant_id": c.participantID.String()}
	var status election.TurnStatus
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/elections/%s/turn/advance", electionID), body, &status)
	return status, err
}

// SelectUnit runs the confirmation step, then claims the unit.
func (c *APIClient) SelectUnit(ctx context.Context, electionID uuid.UUID, unit models.Unit) (*models.Selection, error) {
	if c.confirm != nil && !c.confirm(unit) {
		return nil, ErrConfirmationDeclined
	}
	body := map[string]string{"unit_id": unit.ID.String()}
	var sel models.Selection
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/elections/%s/selections", electionID), body, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}

func (c *APIClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Participant-ID", c.participantID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError maps structured rejection responses back onto the shared
// error taxonomy so callers can branch the same way server code does.
func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)

	switch body.Error {
	case "not_your_turn":
		return election.ErrNotYourTurn
	case "already_selected":
		return election.ErrAlreadySelected
	case "unit_not_available":
		return election.ErrUnitNotAvailable
	case "election_not_found":
		return election.ErrElectionNotFound
	case "participant_not_found":
		return election.ErrParticipantNotFound
	}
	return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(data))
}
