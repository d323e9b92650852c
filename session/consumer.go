package session

import (
	"context"

	"gobanserver/rules"
	"gobanserver/store"
)

// dispatch handles exactly one dequeued notification. It is the sole
// steady-state writer of a ClientRecord's cached fields, as required by
// the spec's single-writer rule for the update consumer.
func (m *Manager) dispatch(ctx context.Context, u store.Update) {
	rec := m.lookupKey(u.Key)
	if rec == nil {
		// Race with unsubscribe, or a notification for a channel we no
		// longer listen on; tolerate and drop.
		return
	}

	switch u.Kind {
	case store.UpdateGameStatus:
		m.dispatchGameStatus(ctx, rec)
	case store.UpdateChat:
		m.dispatchChat(ctx, rec)
	case store.UpdateOpponentConnected:
		m.dispatchOpponentConnected(ctx, rec, u.Payload)
	}
}

func (m *Manager) dispatchGameStatus(ctx context.Context, rec *ClientRecord) {
	blob, version, err := m.store.ReadGame(ctx, rec.Key)
	if err != nil {
		logf("reading game for %s: %v", rec.Key, err)
		return
	}

	rec.mu.Lock()
	if version <= rec.version {
		rec.mu.Unlock()
		return
	}
	state, err := rules.Decode(blob)
	if err != nil {
		rec.mu.Unlock()
		logf("decoding game blob for %s: %v", rec.Key, err)
		return
	}
	rec.state = state
	rec.version = version
	rec.mu.Unlock()

	rec.Socket.Send("game_status", state.Jsonifyable())
}

func (m *Manager) dispatchChat(ctx context.Context, rec *ClientRecord) {
	rec.mu.Lock()
	lastID := rec.chatLastID
	rec.mu.Unlock()

	rows, err := m.store.ChatSince(ctx, rec.Key, lastID)
	if err != nil {
		logf("reading chat for %s: %v", rec.Key, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	delta := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		delta = append(delta, map[string]any{
			"id":        r.ID,
			"timestamp": r.Ts,
			"color":     r.Color,
			"text":      r.Text,
		})
	}

	rec.mu.Lock()
	rec.chatLastID = rows[len(rows)-1].ID
	rec.mu.Unlock()

	rec.Socket.Send("chat", delta)
}

func (m *Manager) dispatchOpponentConnected(ctx context.Context, rec *ClientRecord, payload string) {
	var connected bool
	if payload == "" {
		var err error
		connected, err = m.store.OpponentConnected(ctx, rec.Key)
		if err != nil {
			logf("opponent_connected lookup for %s: %v", rec.Key, err)
			return
		}
	} else {
		connected = payload != "0" && payload != "false"
	}

	rec.mu.Lock()
	if connected == rec.opponentConnected {
		rec.mu.Unlock()
		return
	}
	rec.opponentConnected = connected
	rec.mu.Unlock()

	rec.Socket.Send("opponent_connected", map[string]bool{"opponentConnected": connected})
}
