// Package session is the Session Manager: the process-wide map of
// connected clients, the request handlers that turn inbound frames into
// Store Adapter calls, and the single update-consumer loop that turns
// store notifications into outbound frames.
//
// Grounded on service/game_handler.go's GameRoom (register/unregister/
// broadcast over channels, a map guarded by one mutex) generalized from
// a per-game room to the spec's per-player-key ClientRecord model, and
// on db_manager.py / game_manager_rewrite.py for the exact call sequence
// each operation must follow.
package session

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gobanserver/genkey"
	"gobanserver/rules"
	"gobanserver/store"
)

// Socket is the Connection Frontend's handle on one WebSocket client.
// Session never touches the underlying transport directly.
type Socket interface {
	Send(messageType string, data any)
	Close()
}

// unseenVersion seeds a freshly bound ClientRecord's version below any
// real game version (which starts at 0), so the first consumer dispatch
// for this key always passes the "version > rec.version" staleness
// check instead of being dropped as a re-delivery of state the handler
// already saw. The initial game_status/chat/opponent_connected frames
// must arrive through the normal consumer path, never pre-seeded by the
// handler that created the binding.
const unseenVersion = -1

// ClientRecord is the in-memory record for one bound socket, created on
// successful NewGame/JoinGame and destroyed on socket close or
// Unsubscribe. Cached fields are guarded by mu; steady-state, only the
// update consumer writes them, except the explicit CAS-preemption
// refetch in RouteAction.
type ClientRecord struct {
	Socket      Socket
	Key         string
	OpponentKey string
	Color       rules.Color

	mu                sync.Mutex
	state             *rules.State
	version           int
	chatLastID        int
	opponentConnected bool
}

// Store is the narrow seam Manager needs out of the Store Adapter. It
// exists so tests can substitute a fake backend for *store.Store, which
// talks to a real database and cannot be exercised in a unit test.
type Store interface {
	Updates() <-chan store.Update

	NewGame(ctx context.Context, blob []byte, keyW, keyB, requestedColor, aiSecretHash string) error
	AISecretHash(ctx context.Context, key string) (string, error)
	JoinGame(ctx context.Context, key string) (result store.JoinResult, keyW, keyB string, err error)
	ReadGame(ctx context.Context, key string) (blob []byte, version int, err error)
	WriteGame(ctx context.Context, key string, blob []byte, newVersion int) (bool, error)
	WriteChat(ctx context.Context, ts time.Time, text, key string) (bool, error)
	ChatSince(ctx context.Context, key string, afterID int) ([]store.ChatRow, error)
	OpponentConnected(ctx context.Context, key string) (bool, error)
	TriggerUpdateAll(ctx context.Context, key string) error
	Unsubscribe(ctx context.Context, key string) (bool, error)
	Subscribe(ctx context.Context, key string) error
	RemoveBinding(ctx context.Context, key string)
}

// Manager owns {socket -> ClientRecord} and its reverse {key ->
// ClientRecord}, and runs the update consumer. One Manager per server
// process.
type Manager struct {
	store     Store
	serverID  string
	aiBaseURL string
	client    *http.Client

	mu       sync.Mutex
	byKey    map[string]*ClientRecord
	bySocket map[Socket]*ClientRecord
}

// NewManager wires a Manager to its Store Adapter. aiBaseURL is the AI
// admin HTTP server's base URL, used to spawn an AI opponent for
// vs=computer games.
func NewManager(st Store, serverID, aiBaseURL string) *Manager {
	return &Manager{
		store:     st,
		serverID:  serverID,
		aiBaseURL: aiBaseURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		byKey:     make(map[string]*ClientRecord),
		bySocket:  make(map[Socket]*ClientRecord),
	}
}

func (m *Manager) bind(sock Socket, key string, rec *ClientRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[key] = rec
	m.bySocket[sock] = rec
}

func (m *Manager) lookupSocket(sock Socket) *ClientRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySocket[sock]
}

func (m *Manager) lookupKey(key string) *ClientRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[key]
}

func (m *Manager) forget(sock Socket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySocket, sock)
	delete(m.byKey, key)
}

// Shutdown best-effort releases every key this server currently manages
// by unsubscribing each active key. It does not drain the update
// consumer; updates still queued when Run returns are not dispatched.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	records := make([]*ClientRecord, 0, len(m.byKey))
	for _, rec := range m.byKey {
		records = append(records, rec)
	}
	m.mu.Unlock()

	for _, rec := range records {
		m.unbindAndRelease(ctx, rec.Socket, rec)
	}
}

// Run drains the store's notification channel until ctx is cancelled.
// This is the long-lived consumer task named in the spec's concurrency
// section; it must not be torn down mid-dispatch, so cancellation is
// observed only between updates.
func (m *Manager) Run(ctx context.Context) {
	updates := m.store.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			m.dispatch(ctx, u)
		}
	}
}

func hashSecret(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing ai secret: %w", err)
	}
	return string(hash), nil
}

func newPlayerKeyPair() (string, string, error) {
	keyW, err := genkey.New()
	if err != nil {
		return "", "", err
	}
	keyB, err := genkey.New()
	if err != nil {
		return "", "", err
	}
	return keyW, keyB, nil
}

func logf(format string, args ...any) {
	log.Printf("session: "+format, args...)
}
