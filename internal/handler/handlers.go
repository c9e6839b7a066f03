package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

// ParticipantHeader carries the caller's participant identity, supplied by
// the session provider upstream of this service.
const ParticipantHeader = "X-Participant-ID"

// TurnScheduler is the scheduling surface the handlers need.
type TurnScheduler interface {
	GetStatus(ctx context.Context, electionID uuid.UUID) (election.TurnStatus, error)
	AdvanceTurn(ctx context.Context, electionID uuid.UUID, finishedBy *uuid.UUID) (election.TurnStatus, error)
}

// SelectionGuard validates and records unit claims.
type SelectionGuard interface {
	SelectUnit(ctx context.Context, electionID, participantID, unitID uuid.UUID) (*models.Selection, error)
}

// ElectionReader serves snapshot and history reads.
type ElectionReader interface {
	Snapshot(ctx context.Context, electionID uuid.UUID, status election.TurnStatus) (*election.Snapshot, error)
	ListSelections(ctx context.Context, electionID uuid.UUID) ([]models.Selection, error)
}

// UnitLister is the read-only listings boundary.
type UnitLister interface {
	ListOffered(ctx context.Context) ([]models.Unit, error)
}

type Handlers struct {
	scheduler TurnScheduler
	guard     SelectionGuard
	elections ElectionReader
	units     UnitLister
}

func NewHandlers(scheduler TurnScheduler, guard SelectionGuard, elections ElectionReader, units UnitLister) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		guard:     guard,
		elections: elections,
		units:     units,
	}
}

// GetStatus returns the active participant and remaining seconds.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.scheduler.GetStatus(r.Context(), electionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetSnapshot returns the full seed state for a viewer.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.scheduler.GetStatus(r.Context(), electionID)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.elections.Snapshot(r.Context(), electionID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AdvanceTurn moves the floor to the next participant. Any client may call
// it when it observes expiry; the active participant may call it to finish
// early. Lost races return the current status, not an error.
func (h *Handlers) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionIDParam(w, r)
	if !ok {
		return
	}

	var finishedBy *uuid.UUID
	if id, err := participantIdentity(r); err == nil {
		finishedBy = &id
	}

	status, err := h.scheduler.AdvanceTurn(r.Context(), electionID, finishedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SelectUnit claims a unit for the caller. The body is decoded once: the
// identity header wins when present, otherwise the body's participant_id
// stands in for it.
func (h *Handlers) SelectUnit(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		ParticipantID uuid.UUID `json:"participant_id"`
		UnitID        uuid.UUID `json:"unit_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UnitID == uuid.Nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	participantID := req.ParticipantID
	if header := r.Header.Get(ParticipantHeader); header != "" {
		id, err := uuid.Parse(header)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "missing_participant_identity")
			return
		}
		participantID = id
	}
	if participantID == uuid.Nil {
		writeErrorCode(w, http.StatusUnauthorized, "missing_participant_identity")
		return
	}

	sel, err := h.guard.SelectUnit(r.Context(), electionID, participantID, req.UnitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sel)
}

// ListSelections returns the election's selection history, ordered by
// selection ID.
func (h *Handlers) ListSelections(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	selections, err := h.elections.ListSelections(r.Context(), electionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if selections == nil {
		selections = []models.Selection{}
	}
	writeJSON(w, http.StatusOK, selections)
}

// ListUnits returns units currently offered for selection.
func (h *Handlers) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ListOffered(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if units == nil {
		units = []models.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// Healthz is a liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func electionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_election_id")
		return uuid.Nil, false
	}
	return id, true
}

// participantIdentity reads the caller identity for the advance endpoint:
// the session header when present, else an explicit participant_id body for
// the early-finish form.
func participantIdentity(r *http.Request) (uuid.UUID, error) {
	if header := r.Header.Get(ParticipantHeader); header != "" {
		return uuid.Parse(header)
	}
	var body struct {
		ParticipantID uuid.UUID `json:"participant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ParticipantID == uuid.Nil {
		return uuid.Nil, errors.New("no participant identity")
	}
	return body.ParticipantID, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeError maps the error taxonomy onto HTTP statuses. NotFound and the
// two guard rejections are user-visible; everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, election.ErrElectionNotFound):
		writeErrorCode(w, http.StatusNotFound, "election_not_found")
	case errors.Is(err, election.ErrParticipantNotFound):
		writeErrorCode(w, http.StatusNotFound, "participant_not_found")
	case errors.Is(err, election.ErrUnitNotAvailable):
		writeErrorCode(w, http.StatusNotFound, "unit_not_available")
	case errors.Is(err, election.ErrNotYourTurn):
		writeErrorCode(w, http.StatusConflict, "not_your_turn")
	case errors.Is(err, election.ErrAlreadySelected):
		writeErrorCode(w, http.StatusConflict, "already_selected")
	default:
		log.Error().Err(err).Msg("request failed")
		writeErrorCode(w, http.StatusInternalServerError, "internal_error")
	}
}
