// Package wsapi is the Connection Frontend: it upgrades HTTP connections
// to WebSockets, deserializes inbound frames into typed requests, hands
// them to the Session Manager, and serializes outbound messages through
// a per-socket mailbox.
//
// Grounded on service/game_handler.go's GameWebSocketHandler (upgrade,
// read loop, type-switch dispatch) and GameRoom's broadcast channel,
// generalized here into one mailbox goroutine per connection rather than
// one hub per game room, since this spec keeps no in-process game
// sharing between two local clients (see session package).
package wsapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gobanserver/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Keepalive timings, carried over from service/chat.go's lobby socket.
const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// inboundFrame is the shape of every client->server message; fields
// unused by a given type are simply left zero.
type inboundFrame struct {
	Type       string  `json:"type"`
	Vs         string  `json:"vs"`
	Color      string  `json:"color"`
	Size       int     `json:"size"`
	Komi       float64 `json:"komi"`
	Key        string  `json:"key"`
	AISecret   string  `json:"ai_secret"`
	ActionType string  `json:"action_type"`
	Coords     []int   `json:"coords"`
	Text       string  `json:"text"`
	Timestamp  string  `json:"timestamp"`
}

// outboundFrame is the {message_type, data} envelope every server-sent
// message uses.
type outboundFrame struct {
	MessageType string `json:"message_type"`
	Data        any    `json:"data"`
}

// mailboxSocket adapts one *websocket.Conn into a session.Socket backed
// by a buffered channel so writes are serialized by one writer
// goroutine. Send returns immediately while the 64-frame outbox has
// room; when it is full, Send waits until the writer takes a frame or
// the socket is closed.
type mailboxSocket struct {
	conn    *websocket.Conn
	outbox  chan outboundFrame
	closeCh chan struct{}
}

func newMailboxSocket(conn *websocket.Conn) *mailboxSocket {
	s := &mailboxSocket{
		conn:    conn,
		outbox:  make(chan outboundFrame, 64),
		closeCh: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *mailboxSocket) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.outbox:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				log.Printf("wsapi: write error: %v", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *mailboxSocket) Send(messageType string, data any) {
	select {
	case s.outbox <- outboundFrame{MessageType: messageType, Data: data}:
	case <-s.closeCh:
	}
}

func (s *mailboxSocket) Close() {
	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	_ = s.conn.Close()
}

// Handler returns the http.HandlerFunc that upgrades a connection and
// runs its inbound read loop until the socket closes, at which point it
// schedules Unsubscribe on a background context so the cleanup does not
// race the dying request context.
func Handler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("wsapi: upgrade failed: %v", err)
			return
		}

		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		sock := newMailboxSocket(conn)
		defer func() {
			sock.Close()
			bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			manager.Unsubscribe(bg, sock)
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("wsapi: read error: %v", err)
				}
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				sock.Send("error", map[string]any{"explanation": "malformed message"})
				sock.Close()
				return
			}

			if !dispatch(r.Context(), manager, sock, frame) {
				sock.Close()
				return
			}
		}
	}
}

// dispatch validates and routes one inbound frame. It returns false on a
// protocol error, which per spec closes the socket.
func dispatch(ctx context.Context, manager *session.Manager, sock session.Socket, f inboundFrame) bool {
	switch f.Type {
	case "new_game":
		if f.Vs == "" || f.Color == "" || f.Size == 0 {
			sock.Send("error", map[string]any{"explanation": "new_game requires vs, color, size, komi"})
			return false
		}
		manager.NewGame(ctx, sock, f.Vs, f.Color, f.Size, f.Komi)

	case "join_game":
		if f.Key == "" {
			sock.Send("error", map[string]any{"explanation": "join_game requires key"})
			return false
		}
		manager.JoinGame(ctx, sock, f.Key, f.AISecret)

	case "game_action":
		if f.ActionType == "" {
			sock.Send("error", map[string]any{"explanation": "game_action requires action_type"})
			return false
		}
		manager.RouteAction(ctx, sock, f.ActionType, f.Coords)

	case "chat_message":
		if f.Text == "" || f.Timestamp == "" {
			sock.Send("error", map[string]any{"explanation": "chat_message requires text and timestamp"})
			return false
		}
		ts, err := time.Parse(time.RFC3339, f.Timestamp)
		if err != nil {
			sock.Send("error", map[string]any{"explanation": "timestamp must be RFC3339"})
			return false
		}
		manager.Chat(ctx, sock, f.Text, ts)

	default:
		sock.Send("error", map[string]any{"explanation": "unknown message type"})
		return false
	}

	return true
}
