// Package client keeps a viewer's local picture of an election consistent
// with server truth despite network gaps. Two independent consistency
// sources feed it: push events from the gateway and poll results from the
// status endpoint. Turn state reconciles by wholesale replacement (last
// write wins); selections reconcile by append-if-unseen, keyed on the
// selection ID, which also absorbs at-least-once redelivery.
package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/models"
)

// View is a copy of the reconciler's current local state.
type View struct {
	ActiveParticipantID *uuid.UUID
	RemainingSeconds    *int
	Selections          []models.Selection
	Online              map[string]bool
}

// Reconciler owns the local election view. The countdown it ticks is
// cosmetic; the authoritative expiry lives server-side.
type Reconciler struct {
	mu    sync.Mutex
	clock clockwork.Clock

	active    *uuid.UUID
	remaining *int

	selections []models.Selection
	seenIDs    map[int64]bool

	online map[string]bool

	// advanceRequested guards the countdown-zero advance call so the
	// client fires it at most once per turn; only the next authoritative
	// turn-changed re-arms it.
	advanceRequested bool

	lastSync time.Time
}

func NewReconciler(clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		clock:   clock,
		seenIDs: make(map[int64]bool),
		online:  make(map[string]bool),
	}
}

// Seed loads the server-rendered initial snapshot.
func (r *Reconciler) Seed(snap election.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selections = nil
	r.seenIDs = make(map[int64]bool)
	for _, s := range snap.Selections {
		r.selections = append(r.selections, s)
		r.seenIDs[s.ID] = true
	}
	r.setStatusLocked(snap.Status)
}

// ApplyStatus replaces the local turn view with a polled status. Wholesale,
// never a merge.
func (r *Reconciler) ApplyStatus(status election.TurnStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStatusLocked(status)
}

func (r *Reconciler) setStatusLocked(status election.TurnStatus) {
	r.active = status.ActiveParticipantID
	r.remaining = status.RemainingSeconds
	r.advanceRequested = false
	r.lastSync = r.clock.Now()
}

// Apply folds one pushed event into the local view.
func (r *Reconciler) Apply(envelope events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch envelope.EventType {
	case events.TypeTurnChanged:
		var p events.TurnChangedPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal turn-changed payload: %w", err)
		}
		status := election.TurnStatus{RemainingSeconds: p.RemainingSeconds}
		if p.ParticipantID != nil {
			id, err := uuid.Parse(*p.ParticipantID)
			if err != nil {
				return fmt.Errorf("invalid participant id in turn-changed: %w", err)
			}
			status.ActiveParticipantID = &id
		}
		r.setStatusLocked(status)

	case events.TypeSelectionCreated:
		var p events.SelectionCreatedPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal selection-created payload: %w", err)
		}
		if !r.seenIDs[p.Selection.ID] {
			r.seenIDs[p.Selection.ID] = true
			r.selections = append(r.selections, p.Selection)
		}

	case events.TypePresenceJoined, events.TypePresenceLeft:
		var p events.PresencePayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal presence payload: %w", err)
		}
		if envelope.EventType == events.TypePresenceJoined {
			r.online[p.ParticipantID] = true
		} else {
			delete(r.online, p.ParticipantID)
		}
	}
	return nil
}

// Tick decrements the cosmetic countdown by one second.
func (r *Reconciler) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remaining != nil && *r.remaining > 0 {
		v := *r.remaining - 1
		r.remaining = &v
	}
}

// ShouldAdvance reports, exactly once per turn, that the local countdown
// reached zero while a participant still appears active — the cue to call
// the advance endpoint and wait for the authoritative broadcast.
func (r *Reconciler) ShouldAdvance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.advanceRequested || r.active == nil {
		return false
	}
	if r.remaining == nil || *r.remaining > 0 {
		return false
	}
	r.advanceRequested = true
	return true
}

// NeedsResync reports whether the poll fallback should run: no active
// participant is known locally and the last sync is older than interval.
// The broadcast channel is best-effort, so a missed turn-changed is
// recovered by re-polling status.
func (r *Reconciler) NeedsResync(interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return false
	}
	return r.clock.Now().Sub(r.lastSync) >= interval
}

// View returns a copy of the current local state.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		Selections: make([]models.Selection, len(r.selections)),
		Online:     make(map[string]bool, len(r.online)),
	}
	copy(v.Selections, r.selections)
	for id := range r.online {
		v.Online[id] = true
	}
	if r.active != nil {
		id := *r.active
		v.ActiveParticipantID = &id
	}
	if r.remaining != nil {
		n := *r.remaining
		v.RemainingSeconds = &n
	}
	return v
}
