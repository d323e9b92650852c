// Package aiclient is the AI Client Bridge: a process-local component
// that, once spawned by the admin HTTP server, opens a WebSocket to the
// game server as an ordinary client — joining with an extra secret — and
// drives play via a pluggable policy.
//
// Grounded on igo/aiserver/http_server.py's client-spawn flow and on
// tests/aiserver/test_websocket_client.py for the read-loop/response
// handling this package mirrors, rewritten against gorilla/websocket.
package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"gobanserver/aiclient/policy"
)

// ErrorSleepPeriod is how long the bridge waits before resending the
// last action after a game_action_response(success=false).
const ErrorSleepPeriod = 2 * time.Second

type inboundFrame struct {
	MessageType string          `json:"message_type"`
	Data        json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Type       string `json:"type"`
	Key        string `json:"key,omitempty"`
	AISecret   string `json:"ai_secret,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	Coords     []int  `json:"coords,omitempty"`
}

type opponentConnectedData struct {
	OpponentConnected bool `json:"opponentConnected"`
}

type actionResponseData struct {
	Success     bool   `json:"success"`
	Explanation string `json:"explanation"`
}

// Client drives one AI-controlled player's connection for the lifetime
// of its game.
type Client struct {
	wsURL    string
	key      string
	aiSecret string
	color    string
	policy   policy.Policy

	conn       *websocket.Conn
	lastAction outboundFrame
}

// New constructs a bridge for the given player key, against the server
// reachable at wsURL (e.g. "ws://localhost:8080/ws").
func New(wsURL, key, aiSecret string, pol policy.Policy) *Client {
	return &Client{wsURL: wsURL, key: key, aiSecret: aiSecret, policy: pol}
}

// Run dials the server, joins the game, and loops on inbound frames
// until the game completes, the opponent disconnects, or ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("parsing ws url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", u.String(), err)
	}
	c.conn = conn
	defer conn.Close()

	if err := c.send(outboundFrame{Type: "join_game", Key: c.key, AISecret: c.aiSecret}); err != nil {
		return fmt.Errorf("sending join_game: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		done, err := c.handle(frame)
		if err != nil {
			log.Printf("aiclient(%s): %v", c.key, err)
		}
		if done {
			return nil
		}
	}
}

func (c *Client) handle(frame inboundFrame) (done bool, err error) {
	switch frame.MessageType {
	case "join_game_response":
		var data struct {
			Success    bool   `json:"success"`
			YourColor  string `json:"your_color"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return false, err
		}
		if !data.Success {
			return true, fmt.Errorf("join_game failed")
		}
		c.color = data.YourColor

	case "game_status":
		return c.onGameStatus(frame.Data)

	case "opponent_connected":
		var data opponentConnectedData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return false, err
		}
		if !data.OpponentConnected {
			return true, nil
		}

	case "game_action_response":
		var data actionResponseData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return false, err
		}
		if !data.Success {
			log.Printf("aiclient(%s): action rejected: %s", c.key, data.Explanation)
			time.Sleep(ErrorSleepPeriod)
			return false, c.send(c.lastAction)
		}

	case "chat", "error":
		// Log and continue, per spec.
		log.Printf("aiclient(%s): %s %s", c.key, frame.MessageType, string(frame.Data))

	default:
		log.Printf("aiclient(%s): unrecognized message_type %q", c.key, frame.MessageType)
	}

	return false, nil
}

// shouldComplete reports whether the bridge should close on this status.
func shouldComplete(status policy.GameStatus) bool {
	return status.Status == "complete"
}

// shouldAct reports whether it is this color's turn to move.
func shouldAct(status policy.GameStatus, color string) bool {
	return status.Status == "play" && status.Turn == color
}

func (c *Client) onGameStatus(raw json.RawMessage) (done bool, err error) {
	var status policy.GameStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return false, err
	}

	if shouldComplete(status) {
		return true, nil
	}
	if !shouldAct(status, c.color) {
		return false, nil
	}

	action := c.policy.SelectAction(status)
	frame := outboundFrame{
		Type:       "game_action",
		Key:        c.key,
		ActionType: action.Type,
		Coords:     action.Coords,
	}
	c.lastAction = frame
	return false, c.send(frame)
}

func (c *Client) send(frame outboundFrame) error {
	return c.conn.WriteJSON(frame)
}
