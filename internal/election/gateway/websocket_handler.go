package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves websocket upgrades and presence/stats reads.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleElectionConnection upgrades a viewer into an election's channel.
// The participant identity comes from the session layer upstream; here the
// query parameter stands in for it, and anonymous viewers are allowed
// (they watch, they cannot act).
func (h *WebSocketHandler) HandleElectionConnection(w http.ResponseWriter, r *http.Request) {
	electionIDStr := r.URL.Query().Get("election_id")
	if electionIDStr == "" {
		http.Error(w, "election_id is required", http.StatusBadRequest)
		return
	}
	electionID, err := uuid.Parse(electionIDStr)
	if err != nil {
		http.Error(w, "invalid election_id format", http.StatusBadRequest)
		return
	}

	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		participantID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, participantID, electionID); err != nil {
		log.Error().
			Err(err).
			Str("election_id", electionID.String()).
			Str("participant_id", participantID).
			Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// HandlePresence lists participants currently connected to an election.
func (h *WebSocketHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	electionID, err := uuid.Parse(r.URL.Query().Get("election_id"))
	if err != nil {
		http.Error(w, "invalid election_id format", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"election_id": electionID.String(),
		"online":      h.connectionManager.OnlineParticipants(electionID),
	})
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.connectionManager.ConnectionStats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RegisterRoutes registers the websocket routes on an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/election", h.HandleElectionConnection)
	mux.HandleFunc("/ws/presence", CORSHandler(h.HandlePresence))
	mux.HandleFunc("/ws/stats", CORSHandler(h.HandleConnectionStats))
}
