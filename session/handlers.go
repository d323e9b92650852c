package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gobanserver/genkey"
	"gobanserver/rules"
	"gobanserver/store"
)

// NewGame implements the Store Adapter's new_game contract: unsubscribe
// any existing binding on this socket, construct a fresh game, generate
// both keys, and persist it. vs selects whether an AI opponent is
// spawned for the color the caller did not request.
func (m *Manager) NewGame(ctx context.Context, sock Socket, vs, color string, size int, komi float64) {
	if rec := m.lookupSocket(sock); rec != nil {
		m.unbindAndRelease(ctx, sock, rec)
	}

	if vs != "human" && vs != "computer" {
		sock.Send("new_game_response", responseFailure("vs must be 'human' or 'computer'"))
		return
	}
	requestedColor, err := parseColor(color)
	if err != nil {
		sock.Send("new_game_response", responseFailure(err.Error()))
		return
	}
	if size < 1 {
		sock.Send("new_game_response", responseFailure("size must be at least 1"))
		return
	}

	state := rules.NewState(size, komi)
	blob, err := rules.Encode(state)
	if err != nil {
		logf("encoding new game: %v", err)
		sock.Send("new_game_response", responseFailure("internal error"))
		return
	}

	var aiSecretPlain, aiSecretHash string
	if vs == "computer" {
		plain, err := genkey.NewSecret()
		if err != nil {
			logf("generating ai secret: %v", err)
			sock.Send("new_game_response", responseFailure("internal error"))
			return
		}
		hash, err := hashSecret(plain)
		if err != nil {
			logf("%v", err)
			sock.Send("new_game_response", responseFailure("internal error"))
			return
		}
		aiSecretPlain, aiSecretHash = plain, hash
	}

	keyW, keyB, err := m.createGameRow(ctx, blob, requestedColor, aiSecretHash)
	if err != nil {
		logf("new_game failed: %v", err)
		sock.Send("new_game_response", responseFailure("could not create game, please retry"))
		return
	}

	var ownKey, opponentKey string
	if requestedColor == rules.White {
		ownKey, opponentKey = keyW, keyB
	} else {
		ownKey, opponentKey = keyB, keyW
	}

	rec := &ClientRecord{
		Socket:      sock,
		Key:         ownKey,
		OpponentKey: opponentKey,
		Color:       requestedColor,
		version:     unseenVersion,
	}
	m.bind(sock, ownKey, rec)
	if err := m.store.Subscribe(ctx, ownKey); err != nil {
		logf("subscribing %s: %v", ownKey, err)
	}

	sock.Send("new_game_response", map[string]any{
		"success":     true,
		"explanation": "",
		"keys":        map[string]string{"white": keyW, "black": keyB},
		"your_color":  color,
	})

	if err := m.store.TriggerUpdateAll(ctx, ownKey); err != nil {
		logf("trigger_update_all(%s): %v", ownKey, err)
	}

	if vs == "computer" {
		go m.startAIOpponent(opponentKey, aiSecretPlain)
	}
}

// createGameRow generates a key pair and persists the game, retrying the
// key generation once on a collision before giving up — a colliding
// insert against a 62^10 keyspace is treated as a fatal programmer
// error upstream, but a single retry costs nothing.
func (m *Manager) createGameRow(ctx context.Context, blob []byte, requestedColor rules.Color, aiSecretHash string) (keyW, keyB string, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		keyW, keyB, err = newPlayerKeyPair()
		if err != nil {
			return "", "", err
		}
		err = m.store.NewGame(ctx, blob, keyW, keyB, requestedColor.String(), aiSecretHash)
		if err == nil {
			return keyW, keyB, nil
		}
		if err != store.ErrKeyConflict {
			return "", "", err
		}
	}
	return "", "", fmt.Errorf("exhausted retries on key conflict: %w", err)
}

// JoinGame implements the join_game contract, including the ai_secret
// check for AI-bridge joins: a key that was minted with an ai_secret
// hash must present the matching plaintext to join as that color.
func (m *Manager) JoinGame(ctx context.Context, sock Socket, key, aiSecret string) {
	if rec := m.lookupSocket(sock); rec != nil {
		sock.Send("join_game_response", responseFailure("already playing"))
		return
	}

	result, keyW, keyB, err := m.store.JoinGame(ctx, key)
	if err != nil {
		logf("join_game failed: %v", err)
		sock.Send("join_game_response", responseFailure("transient store error"))
		return
	}

	switch result {
	case store.JoinDNE:
		sock.Send("join_game_response", responseFailure("not found"))
		return
	case store.JoinInUse:
		sock.Send("join_game_response", responseFailure("someone already connected"))
		return
	}

	color := rules.White
	opponentKey := keyB
	if key != keyW {
		color = rules.Black
		opponentKey = keyW
	}

	if hash, err := m.store.AISecretHash(ctx, key); err != nil {
		logf("reading ai secret hash: %v", err)
	} else if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(aiSecret)); err != nil {
			_, _ = m.store.Unsubscribe(ctx, key)
			sock.Send("join_game_response", responseFailure("invalid ai secret"))
			return
		}
	}

	rec := &ClientRecord{
		Socket:      sock,
		Key:         key,
		OpponentKey: opponentKey,
		Color:       color,
		version:     unseenVersion,
	}
	m.bind(sock, key, rec)
	if err := m.store.Subscribe(ctx, key); err != nil {
		logf("subscribing %s: %v", key, err)
	}

	colorName := "white"
	if color == rules.Black {
		colorName = "black"
	}
	sock.Send("join_game_response", map[string]any{
		"success":     true,
		"explanation": "",
		"keys":        map[string]string{"white": keyW, "black": keyB},
		"your_color":  colorName,
	})

	if err := m.store.TriggerUpdateAll(ctx, key); err != nil {
		logf("trigger_update_all(%s): %v", key, err)
	}
}

// RouteAction validates an action against the cached state and, if
// legal, performs the CAS write. A preemption drops the cache and
// refetches synchronously, per the spec's explicit route_action
// carve-out to the "consumer is the only cache writer" rule.
func (m *Manager) RouteAction(ctx context.Context, sock Socket, actionType string, coords []int) {
	rec := m.lookupSocket(sock)
	if rec == nil {
		sock.Send("game_action_response", responseFailure("no active game"))
		return
	}

	at, err := parseActionType(actionType)
	if err != nil {
		sock.Send("game_action_response", responseFailure(err.Error()))
		return
	}

	action := rules.Action{Type: at, Color: rec.Color}
	if len(coords) == 2 {
		action.Row, action.Col, action.HasPos = coords[0], coords[1], true
	}

	rec.mu.Lock()
	cur := rec.state
	rec.mu.Unlock()
	if cur == nil {
		sock.Send("game_action_response", responseFailure("no active game"))
		return
	}

	ok, reason, next := cur.Apply(action)
	if !ok {
		sock.Send("game_action_response", responseFailure(reason))
		return
	}

	blob, err := rules.Encode(next)
	if err != nil {
		logf("encoding next state: %v", err)
		sock.Send("game_action_response", responseFailure("internal error"))
		return
	}

	success, err := m.store.WriteGame(ctx, rec.Key, blob, next.Version())
	if err != nil {
		logf("write_game(%s): %v", rec.Key, err)
		sock.Send("game_action_response", responseFailure("transient store error"))
		return
	}

	if !success {
		blob, version, err := m.store.ReadGame(ctx, rec.Key)
		if err == nil {
			if fresh, derr := rules.Decode(blob); derr == nil {
				rec.mu.Lock()
				rec.state, rec.version = fresh, version
				rec.mu.Unlock()
			}
		}
		sock.Send("game_action_response", responseFailure("preempted; state refreshed"))
		return
	}

	sock.Send("game_action_response", map[string]any{"success": true, "explanation": ""})
}

// Chat persists a chat message; the sender (and the opponent) learn
// about it via the normal chat notification path.
func (m *Manager) Chat(ctx context.Context, sock Socket, text string, ts time.Time) {
	rec := m.lookupSocket(sock)
	if rec == nil {
		sock.Send("error", map[string]any{"explanation": "no active game"})
		return
	}

	ok, err := m.store.WriteChat(ctx, ts, text, rec.Key)
	if err != nil {
		logf("write_chat(%s): %v", rec.Key, err)
		sock.Send("error", map[string]any{"explanation": "transient store error"})
		return
	}
	if !ok {
		sock.Send("error", map[string]any{"explanation": "unknown key"})
	}
}

// Unsubscribe tears down the binding for sock, if any. Idempotent: a
// socket with no binding is a no-op, matching the spec's GONE state.
func (m *Manager) Unsubscribe(ctx context.Context, sock Socket) {
	rec := m.lookupSocket(sock)
	if rec == nil {
		return
	}
	m.unbindAndRelease(ctx, sock, rec)
}

func (m *Manager) unbindAndRelease(ctx context.Context, sock Socket, rec *ClientRecord) {
	if _, err := m.store.Unsubscribe(ctx, rec.Key); err != nil {
		logf("unsubscribe(%s): %v", rec.Key, err)
	}
	m.store.RemoveBinding(ctx, rec.Key)
	m.forget(sock, rec.Key)
}

// startAIOpponent POSTs to the AI admin HTTP server to spawn an AI
// client for opponentKey, following the documented GET-then-POST XSRF
// dance since that is the admin server's only entry point.
func (m *Manager) startAIOpponent(opponentKey, aiSecret string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.aiBaseURL+"/start", nil)
	if err != nil {
		logf("building ai start GET: %v", err)
		return
	}
	getResp, err := m.client.Do(getReq)
	if err != nil {
		logf("ai admin GET /start: %v", err)
		return
	}
	defer getResp.Body.Close()

	var xsrfCookie *http.Cookie
	for _, c := range getResp.Cookies() {
		if c.Name == "xsrf_token" {
			xsrfCookie = c
			break
		}
	}
	if xsrfCookie == nil {
		logf("ai admin GET /start returned no xsrf cookie")
		return
	}

	body, err := json.Marshal(map[string]string{
		"player_key": opponentKey,
		"ai_secret":  aiSecret,
	})
	if err != nil {
		logf("marshaling ai start body: %v", err)
		return
	}

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.aiBaseURL+"/start", bytes.NewReader(body))
	if err != nil {
		logf("building ai start POST: %v", err)
		return
	}
	postReq.Header.Set("Content-Type", "application/json")
	postReq.Header.Set("X-XSRF-Token", xsrfCookie.Value)
	postReq.AddCookie(xsrfCookie)

	postResp, err := m.client.Do(postReq)
	if err != nil {
		logf("ai admin POST /start: %v", err)
		return
	}
	defer postResp.Body.Close()
	if postResp.StatusCode != http.StatusOK {
		logf("ai admin POST /start returned %s", postResp.Status)
	}
}

func responseFailure(explanation string) map[string]any {
	return map[string]any{"success": false, "explanation": explanation}
}

func parseColor(s string) (rules.Color, error) {
	switch s {
	case "white":
		return rules.White, nil
	case "black":
		return rules.Black, nil
	default:
		return 0, fmt.Errorf("color must be 'white' or 'black'")
	}
}

func parseActionType(s string) (rules.ActionType, error) {
	switch s {
	case "place_stone":
		return rules.ActionPlaceStone, nil
	case "pass_move":
		return rules.ActionPass, nil
	case "mark_dead":
		return rules.ActionMarkDead, nil
	case "draw_game":
		return rules.ActionDrawGame, nil
	case "end_game":
		return rules.ActionEndGame, nil
	case "accept":
		return rules.ActionAccept, nil
	case "reject":
		return rules.ActionReject, nil
	default:
		return 0, fmt.Errorf("unknown action_type %q", s)
	}
}
