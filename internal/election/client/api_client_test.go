package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

func TestSelectUnitConfirmationDeclined(t *testing.T) {
	requested := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, uuid.New(), func(unit models.Unit) bool { return false })

	_, err := c.SelectUnit(context.Background(), uuid.New(), models.Unit{ID: uuid.New()})
	require.ErrorIs(t, err, ErrConfirmationDeclined)
	// Declining must keep the request off the wire entirely.
	require.False(t, requested)
}

func TestSelectUnitSendsIdentityHeader(t *testing.T) {
	participantID := uuid.New()
	unitID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, participantID.String(), r.Header.Get("X-Participant-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, unitID.String(), body["unit_id"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Selection{ID: 1, UnitID: unitID, ParticipantID: participantID})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, participantID, nil)

	sel, err := c.SelectUnit(context.Background(), uuid.New(), models.Unit{ID: unitID})
	require.NoError(t, err)
	require.Equal(t, unitID, sel.UnitID)
}

func TestErrorTaxonomyRoundTrips(t *testing.T) {
	tests := []struct {
		code    string
		status  int
		wantErr error
	}{
		{"not_your_turn", http.StatusConflict, election.ErrNotYourTurn},
		{"already_selected", http.StatusConflict, election.ErrAlreadySelected},
		{"unit_not_available", http.StatusNotFound, election.ErrUnitNotAvailable},
		{"election_not_found", http.StatusNotFound, election.ErrElectionNotFound},
		{"participant_not_found", http.StatusNotFound, election.ErrParticipantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": tt.code})
			}))
			defer srv.Close()

			c := NewAPIClient(srv.URL, uuid.New(), nil)
			_, err := c.SelectUnit(context.Background(), uuid.New(), models.Unit{ID: uuid.New()})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFinishTurnSendsParticipantBody(t *testing.T) {
	participantID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, participantID.String(), body["participant_id"])
		json.NewEncoder(w).Encode(election.TurnStatus{})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, participantID, nil)
	status, err := c.FinishTurn(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, status.ActiveParticipantID)
}
