package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/models"
)

func turnChangedEnvelope(t *testing.T, participantID *uuid.UUID, remaining int) events.Envelope {
	t.Helper()
	p := events.TurnChangedPayload{RemainingSeconds: &remaining}
	if participantID != nil {
		s := participantID.String()
		p.ParticipantID = &s
	}
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	return events.Envelope{
		EventID:   uuid.New().String(),
		EventType: events.TypeTurnChanged,
		Payload:   payload,
	}
}

func selectionEnvelope(t *testing.T, sel models.Selection) events.Envelope {
	t.Helper()
	payload, err := json.Marshal(events.SelectionCreatedPayload{Selection: sel})
	require.NoError(t, err)
	return events.Envelope{
		EventID:   uuid.New().String(),
		EventType: events.TypeSelectionCreated,
		Payload:   payload,
	}
}

func presenceEnvelope(t *testing.T, eventType, participantID string) events.Envelope {
	t.Helper()
	payload, err := json.Marshal(events.PresencePayload{ParticipantID: participantID})
	require.NoError(t, err)
	return events.Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   payload,
	}
}

func TestTurnChangedReplacesWholesale(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, r.Apply(turnChangedEnvelope(t, &first, 120)))
	view := r.View()
	require.Equal(t, first, *view.ActiveParticipantID)
	require.Equal(t, 120, *view.RemainingSeconds)

	// A later turn-changed fully replaces the old view, even if the local
	// countdown had drifted.
	for i := 0; i < 30; i++ {
		r.Tick()
	}
	require.NoError(t, r.Apply(turnChangedEnvelope(t, &second, 120)))
	view = r.View()
	require.Equal(t, second, *view.ActiveParticipantID)
	require.Equal(t, 120, *view.RemainingSeconds)
}

func TestSelectionRedeliveryIsAbsorbed(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	sel := models.Selection{ID: 7, UnitID: uuid.New(), UnitTitle: "Tower A - 5F"}

	require.NoError(t, r.Apply(selectionEnvelope(t, sel)))
	require.NoError(t, r.Apply(selectionEnvelope(t, sel)))

	view := r.View()
	require.Len(t, view.Selections, 1)
	require.Equal(t, int64(7), view.Selections[0].ID)
}

func TestSeedThenPushDeduplicates(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	seeded := models.Selection{ID: 1, UnitTitle: "Tower A - 1F"}
	r.Seed(election.Snapshot{Selections: []models.Selection{seeded}})

	// The broadcast for a selection already in the snapshot must not
	// duplicate it.
	require.NoError(t, r.Apply(selectionEnvelope(t, seeded)))
	fresh := models.Selection{ID: 2, UnitTitle: "Tower A - 2F"}
	require.NoError(t, r.Apply(selectionEnvelope(t, fresh)))

	view := r.View()
	require.Len(t, view.Selections, 2)
}

func TestShouldAdvanceFiresOncePerTurn(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	active := uuid.New()

	require.NoError(t, r.Apply(turnChangedEnvelope(t, &active, 2)))
	require.False(t, r.ShouldAdvance())

	r.Tick()
	r.Tick()
	require.True(t, r.ShouldAdvance())
	// Repeated polls while waiting on the broadcast stay quiet.
	require.False(t, r.ShouldAdvance())

	// The next authoritative turn-changed re-arms the guard.
	next := uuid.New()
	require.NoError(t, r.Apply(turnChangedEnvelope(t, &next, 1)))
	r.Tick()
	require.True(t, r.ShouldAdvance())
}

func TestShouldAdvanceQuietWhenIdle(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	require.False(t, r.ShouldAdvance())

	require.NoError(t, r.Apply(turnChangedEnvelope(t, nil, 0)))
	require.False(t, r.ShouldAdvance())
}

func TestNeedsResync(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewReconciler(clock)
	active := uuid.New()

	r.ApplyStatus(election.TurnStatus{})
	require.False(t, r.NeedsResync(10*time.Second))

	clock.Advance(11 * time.Second)
	require.True(t, r.NeedsResync(10*time.Second))

	// Knowing an active participant suppresses the fallback poll.
	remaining := 60
	r.ApplyStatus(election.TurnStatus{ActiveParticipantID: &active, RemainingSeconds: &remaining})
	clock.Advance(time.Minute)
	require.False(t, r.NeedsResync(10*time.Second))
}

func TestPresenceTracking(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())

	require.NoError(t, r.Apply(presenceEnvelope(t, events.TypePresenceJoined, "agent-1")))
	require.NoError(t, r.Apply(presenceEnvelope(t, events.TypePresenceJoined, "agent-2")))
	require.NoError(t, r.Apply(presenceEnvelope(t, events.TypePresenceLeft, "agent-1")))

	view := r.View()
	require.False(t, view.Online["agent-1"])
	require.True(t, view.Online["agent-2"])
}

func TestTickStopsAtZero(t *testing.T) {
	r := NewReconciler(clockwork.NewFakeClock())
	active := uuid.New()
	require.NoError(t, r.Apply(turnChangedEnvelope(t, &active, 1)))

	r.Tick()
	r.Tick()
	require.Equal(t, 0, *r.View().RemainingSeconds)
}
