package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format every relayed event is wrapped in. Consumers
// identify duplicates by EventID (and, for selections, by the selection ID
// inside the payload) because delivery is at-least-once.
type Envelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	ElectionID string          `json:"electionId"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}
