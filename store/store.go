// Package store is the Store Adapter: a thin, typed wrapper over the
// relational database's stored procedures and its LISTEN/NOTIFY bus.
//
// Grounded on database/data_access.go's repository pattern (pgxpool,
// typed errors distinguished by Postgres error codes) and on
// db_manager.py, which this package's stored-procedure surface mirrors
// one-for-one: new_game, join_game, write_game, write_chat, unsubscribe,
// do_cleanup, trigger_update_all all exist as real CALL/SELECT targets
// in store/sql/procedures.sql, not reimplemented as Go transactions.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/tables.sql sql/indices.sql sql/procedures.sql
var schemaFS embed.FS

var (
	// ErrKeyConflict is returned by NewGame when a generated key already
	// exists; the caller is expected to retry once, then treat it fatal.
	ErrKeyConflict = errors.New("store: player key conflict")
	// ErrTransient signals the listen connection is mid-reconnect; callers
	// must fail fast rather than block.
	ErrTransient = errors.New("store: transient, reconnecting")
)

// JoinResult is the tri-state outcome of JoinGame.
type JoinResult int

const (
	JoinDNE JoinResult = iota
	JoinInUse
	JoinSuccess
)

// UpdateKind discriminates the three notification channel families.
type UpdateKind int

const (
	UpdateGameStatus UpdateKind = iota
	UpdateChat
	UpdateOpponentConnected
)

// Update is one dequeued notification, destined for the Session
// Manager's update consumer.
type Update struct {
	Kind    UpdateKind
	Key     string
	Payload string
}

// Store owns the connection pool used for request/response calls and a
// single dedicated connection used for LISTEN, since a LISTEN binds to
// one session for its lifetime and cannot live inside a pool.
type Store struct {
	connString string
	serverID   string
	pool       *pgxpool.Pool

	mu       sync.Mutex
	listenCn *pgx.Conn
	bindings map[string][]string // player key -> channel names currently LISTENed

	updates chan Update

	reconnecting bool
}

// Open connects the pool and the dedicated listen connection, optionally
// bootstraps the schema, and starts the notification-delivery loop.
func Open(ctx context.Context, connString, serverID string, bootstrapSchema bool) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting pool: %w", err)
	}

	s := &Store{
		connString: connString,
		serverID:   serverID,
		pool:       pool,
		bindings:   make(map[string][]string),
		updates:    make(chan Update, 256),
	}

	if bootstrapSchema {
		if err := s.bootstrap(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if err := s.Cleanup(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("startup cleanup: %w", err)
	}

	cn, err := s.dialListenConn(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.listenCn = cn

	go s.listenLoop(ctx)

	return s, nil
}

func (s *Store) dialListenConn(ctx context.Context) (*pgx.Conn, error) {
	cn, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return nil, fmt.Errorf("dialing listen connection: %w", err)
	}
	return cn, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	for _, name := range []string{"sql/tables.sql", "sql/indices.sql", "sql/procedures.sql"} {
		body, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("applying %s: %w", name, err)
		}
	}
	return nil
}

// Updates returns the channel the Session Manager's consumer drains.
func (s *Store) Updates() <-chan Update { return s.updates }

// Close releases the pool and the listen connection.
func (s *Store) Close() {
	s.pool.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenCn != nil {
		_ = s.listenCn.Close(context.Background())
	}
}

// Cleanup marks every key managed by this server id as unmanaged. Must
// complete before any other operation is accepted, and is safe to call
// repeatedly (idempotent across crashes).
func (s *Store) Cleanup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "CALL do_cleanup($1)", s.serverID)
	return err
}

// NewGame constructs a fresh game row and two player_key rows. aiSecretHash
// is non-empty only for vs=computer games and is recorded on the AI's key.
func (s *Store) NewGame(ctx context.Context, blob []byte, keyW, keyB, requestedColor, aiSecretHash string) error {
	var hash *string
	if aiSecretHash != "" {
		hash = &aiSecretHash
	}
	_, err := s.pool.Exec(ctx, "CALL new_game($1, $2, $3, $4, $5, $6)", blob, keyW, keyB, requestedColor, s.serverID, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrKeyConflict
		}
		return fmt.Errorf("new_game: %w", err)
	}
	return nil
}

// AISecretHash returns the bcrypt hash recorded for key's ai_secret
// column, or ("", nil) if the key has none.
func (s *Store) AISecretHash(ctx context.Context, key string) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, "SELECT ai_secret FROM player_key WHERE key = $1", key).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("reading ai_secret: %w", err)
	}
	if hash == nil {
		return "", nil
	}
	return *hash, nil
}

// JoinGame atomically claims a key for this server, returning both keys
// on success.
func (s *Store) JoinGame(ctx context.Context, key string) (result JoinResult, keyW, keyB string, err error) {
	var resultText string
	var w, b *string
	row := s.pool.QueryRow(ctx, "SELECT result, key_w, key_b FROM join_game($1, $2)", key, s.serverID)
	if err := row.Scan(&resultText, &w, &b); err != nil {
		return 0, "", "", fmt.Errorf("join_game: %w", err)
	}

	switch resultText {
	case "dne":
		return JoinDNE, "", "", nil
	case "in_use":
		return JoinInUse, "", "", nil
	default:
		return JoinSuccess, deref(w), deref(b), nil
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// WriteGame performs the CAS update; false means preemption, not error.
func (s *Store) WriteGame(ctx context.Context, key string, blob []byte, newVersion int) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT write_game($1, $2, $3)", key, blob, newVersion).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("write_game: %w", err)
	}
	return ok, nil
}

// ReadGame fetches the current blob and version for a key, used on cache
// miss and on refetch after a CAS preemption.
func (s *Store) ReadGame(ctx context.Context, key string) (blob []byte, version int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT g.blob, g.version FROM game g JOIN player_key pk ON pk.game_id = g.game_id WHERE pk.key = $1`,
		key).Scan(&blob, &version)
	if err != nil {
		return nil, 0, fmt.Errorf("reading game for key: %w", err)
	}
	return blob, version, nil
}

// ChatRow is one persisted chat message.
type ChatRow struct {
	ID    int
	Color string
	Ts    time.Time
	Text  string
}

// WriteChat inserts a chat row; false means key unknown.
func (s *Store) WriteChat(ctx context.Context, ts time.Time, text, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT write_chat($1, $2, $3)", ts, text, key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("write_chat: %w", err)
	}
	return ok, nil
}

// ChatSince returns messages for the game owning key with id > afterID,
// ascending.
func (s *Store) ChatSince(ctx context.Context, key string, afterID int) ([]ChatRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cm.id, cm.color, cm.ts, cm.text
		 FROM chat_message cm
		 JOIN player_key pk ON pk.game_id = cm.game_id
		 WHERE pk.key = $1 AND cm.id > $2
		 ORDER BY cm.id ASC`, key, afterID)
	if err != nil {
		return nil, fmt.Errorf("reading chat: %w", err)
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var r ChatRow
		if err := rows.Scan(&r.ID, &r.Color, &r.Ts, &r.Text); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OpponentConnected reports whether the opponent of key is currently
// connected, used when a notification payload is empty and must be
// resolved with a direct query.
func (s *Store) OpponentConnected(ctx context.Context, key string) (bool, error) {
	var connected bool
	err := s.pool.QueryRow(ctx,
		`SELECT pk2.connected FROM player_key pk1
		 JOIN player_key pk2 ON pk2.key = pk1.opponent_key
		 WHERE pk1.key = $1`, key).Scan(&connected)
	if err != nil {
		return false, fmt.Errorf("opponent_connected lookup: %w", err)
	}
	return connected, nil
}

// TriggerUpdateAll emits synthetic game/chat/opponent_connected
// notifications for key, used right after a successful join so the
// newly connected client receives initial state through the normal
// consumer path.
func (s *Store) TriggerUpdateAll(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, "CALL trigger_update_all($1)", key)
	if err != nil {
		return fmt.Errorf("trigger_update_all: %w", err)
	}
	return nil
}

// Unsubscribe releases ownership of key if still held by this server.
func (s *Store) Unsubscribe(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT unsubscribe($1, $2)", key, s.serverID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	return ok, nil
}

// Subscribe registers LISTEN on the three channels for key and remembers
// the binding so teardown and reconnection can replay it.
func (s *Store) Subscribe(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reconnecting {
		return ErrTransient
	}

	channels := channelNames(key)
	for _, ch := range channels {
		if _, err := s.listenCn.Exec(ctx, "LISTEN "+quoteIdent(ch)); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	s.bindings[key] = channels
	return nil
}

// RemoveBinding issues UNLISTEN for key's channels and forgets them.
// Called by unsubscribe handling; UNLISTEN errors are ignored and not
// reported, since the binding is removed from memory regardless.
func (s *Store) RemoveBinding(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, ok := s.bindings[key]
	if !ok {
		return
	}
	for _, ch := range channels {
		_, _ = s.listenCn.Exec(ctx, "UNLISTEN "+quoteIdent(ch))
	}
	delete(s.bindings, key)
}

func channelNames(key string) []string {
	return []string{
		"game_status_" + key,
		"chat_" + key,
		"opponent_connected_" + key,
	}
}

func quoteIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

// listenLoop drains notifications off the dedicated connection and
// translates each into an Update for the Session Manager's consumer. On
// connection loss it reconnects, re-runs Cleanup, and replays every
// remembered binding — resolving the reconnect-after-DB-restart open
// question explicitly rather than leaving it a TODO.
func (s *Store) listenLoop(ctx context.Context) {
	for {
		n, err := s.listenCn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.reconnect(ctx)
			continue
		}
		if u, ok := parseChannel(n.Channel, n.Payload); ok {
			select {
			case s.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Store) reconnect(ctx context.Context) {
	s.mu.Lock()
	s.reconnecting = true
	bindings := make(map[string][]string, len(s.bindings))
	for k, v := range s.bindings {
		bindings[k] = v
	}
	s.mu.Unlock()

	backoff := 500 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		cn, err := s.dialListenConn(ctx)
		if err != nil {
			time.Sleep(backoff)
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}

		if err := s.Cleanup(ctx); err != nil {
			_ = cn.Close(ctx)
			time.Sleep(backoff)
			continue
		}

		ok := true
		for _, channels := range bindings {
			for _, ch := range channels {
				if _, err := cn.Exec(ctx, "LISTEN "+quoteIdent(ch)); err != nil {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
		}
		if !ok {
			_ = cn.Close(ctx)
			time.Sleep(backoff)
			continue
		}

		s.mu.Lock()
		old := s.listenCn
		s.listenCn = cn
		s.reconnecting = false
		s.mu.Unlock()
		if old != nil {
			_ = old.Close(context.Background())
		}
		return
	}
}

func parseChannel(channel, payload string) (Update, bool) {
	switch {
	case strings.HasPrefix(channel, "game_status_"):
		return Update{Kind: UpdateGameStatus, Key: strings.TrimPrefix(channel, "game_status_"), Payload: payload}, true
	case strings.HasPrefix(channel, "chat_"):
		return Update{Kind: UpdateChat, Key: strings.TrimPrefix(channel, "chat_"), Payload: payload}, true
	case strings.HasPrefix(channel, "opponent_connected_"):
		return Update{Kind: UpdateOpponentConnected, Key: strings.TrimPrefix(channel, "opponent_connected_"), Payload: payload}, true
	default:
		return Update{}, false
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
