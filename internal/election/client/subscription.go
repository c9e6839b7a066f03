package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election/events"
)

// Subscription is a channel handle scoped to its consumer's lifetime:
// acquire with Subscribe, feed a reconciler with Run, release with Close.
// Nothing about it is ambient or global.
type Subscription struct {
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe dials the gateway's websocket endpoint for one election.
func Subscribe(ctx context.Context, gatewayURL string) (*Subscription, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &Subscription{conn: conn, done: make(chan struct{})}, nil
}

// Run reads pushed envelopes into the reconciler until the subscription is
// closed, the context ends or the connection drops. A dropped connection is
// not fatal to the view: the reconciler's poll fallback re-syncs it.
func (s *Subscription) Run(ctx context.Context, r *Reconciler) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("subscription read failed: %w", err)
			}
			return nil
		}

		var envelope events.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		if err := r.Apply(envelope); err != nil {
			log.Warn().Err(err).Str("event_type", envelope.EventType).Msg("failed to apply event")
		}
	}
}

// Close releases the channel handle deterministically. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	})
}
