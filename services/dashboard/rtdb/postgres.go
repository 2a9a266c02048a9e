package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	notifyChannel = "rtdb_changes"
	readTimeout   = 5 * time.Second
	minBackoff    = 500 * time.Millisecond
	maxBackoff    = 30 * time.Second
)

const createNodesSQL = `
    CREATE TABLE IF NOT EXISTS rtdb_nodes (
        path       TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )
`

const selectSubtreeSQL = `
    SELECT path, value
    FROM rtdb_nodes
    WHERE $1 = '' OR path = $1 OR starts_with(path, $1 || '/')
`

const deleteSubtreeSQL = `
    DELETE FROM rtdb_nodes
    WHERE ($1 = '' OR path = $1 OR starts_with(path, $1 || '/')) OR path = ANY($2)
`

const upsertNodeSQL = `
    INSERT INTO rtdb_nodes (path, value, updated_at)
    VALUES ($1, $2, NOW())
    ON CONFLICT (path) DO UPDATE
    SET value = EXCLUDED.value,
        updated_at = NOW()
`

// PostgresStore keeps leaves in a Postgres table and fans out changes with
// LISTEN/NOTIFY, so several processes (dashboard, device bridge) share one tree.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	mu        sync.Mutex
	subs      map[uint64]*subscription
	connSubs  map[uint64]func(bool)
	nextID    uint64
	connected bool
}

// NewPostgresStore wraps an existing pool. Call Run to start receiving changes.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		log:      logger.Named("rtdb"),
		subs:     make(map[uint64]*subscription),
		connSubs: make(map[uint64]func(bool)),
	}
}

// EnsureSchema creates the node table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createNodesSQL); err != nil {
		return fmt.Errorf("create rtdb_nodes: %w", err)
	}
	return nil
}

// Get returns the subtree at path.
func (s *PostgresStore) Get(ctx context.Context, path string) (Snapshot, error) {
	path = CleanPath(path)
	rows, err := s.pool.Query(ctx, selectSubtreeSQL, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	defer rows.Close()

	leaves := make(map[string]any)
	for rows.Next() {
		var p string
		var raw []byte
		if err := rows.Scan(&p, &raw); err != nil {
			return Snapshot{}, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return Snapshot{}, fmt.Errorf("decode %q: %w", p, err)
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(path, BuildTree(path, leaves)), nil
}

// Set replaces the subtree at path in one transaction and notifies listeners on commit.
func (s *PostgresStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

// Update writes every path in one transaction. A single notification lists
// all changed paths, so each subscriber re-reads once per update.
func (s *PostgresStore) Update(ctx context.Context, values map[string]any) error {
	normalized, err := normalizeUpdate(values)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}

	paths := make([]string, 0, len(normalized))
	for p := range normalized {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range paths {
			if err := replaceSubtree(ctx, tx, p, normalized[p]); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, encodeChanged(paths)); err != nil {
			return fmt.Errorf("notify %v: %w", paths, err)
		}
		return nil
	})
}

func replaceSubtree(ctx context.Context, tx pgx.Tx, path string, value any) error {
	if _, err := tx.Exec(ctx, deleteSubtreeSQL, path, Ancestors(path)); err != nil {
		return fmt.Errorf("clear %q: %w", path, err)
	}

	leaves := Flatten(path, value)
	if len(leaves) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for p, v := range leaves {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %q: %w", p, err)
		}
		batch.Queue(upsertNodeSQL, p, raw)
	}
	res := tx.SendBatch(ctx, batch)
	for range leaves {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("write %q: %w", path, err)
		}
	}
	return res.Close()
}

// encodeChanged and decodeChanged carry the changed paths of one commit in a
// notification payload, one path per line.
func encodeChanged(paths []string) string {
	return strings.Join(paths, "\n")
}

func decodeChanged(payload string) []string {
	var out []string
	for _, p := range strings.Split(payload, "\n") {
		out = append(out, CleanPath(p))
	}
	return out
}

// Subscribe registers a listener and performs the initial read synchronously.
// The subscription stays registered when that read fails; it is re-delivered
// after the listener (re)connects.
func (s *PostgresStore) Subscribe(path string, onValue func(Snapshot), onError func(error)) CancelFunc {
	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, path: CleanPath(path), onValue: onValue, onError: onError}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	s.deliver(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
		})
	}
}

// SubscribeConnection reports whether the notification listener is connected.
func (s *PostgresStore) SubscribeConnection(fn func(bool)) CancelFunc {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.connSubs[id] = fn
	connected := s.connected
	s.mu.Unlock()

	fn(connected)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.connSubs, id)
			s.mu.Unlock()
		})
	}
}

// Run holds a LISTEN connection until ctx is cancelled, reconnecting with
// exponential backoff whenever it drops. The delay starts over after every
// connection that got as far as LISTEN.
func (s *PostgresStore) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		connected, err := s.listen(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = minBackoff
		}
		s.log.Warn("realtime listener disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// nextBackoff doubles d, capped at maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	if d < minBackoff {
		return minBackoff
	}
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// listen reports whether the connection was established before it failed.
func (s *PostgresStore) listen(ctx context.Context) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	s.setConnected(true)
	s.log.Info("realtime listener connected")

	// Changes made while disconnected were never notified.
	s.resync()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return true, err
			}
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		s.dispatch(decodeChanged(n.Payload))
	}
}

func (s *PostgresStore) dispatch(changed []string) {
	s.mu.Lock()
	var targets []*subscription
	for _, sub := range s.subs {
		if relatedToAny(sub.path, changed) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.deliver(sub)
	}
}

func (s *PostgresStore) resync() {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.deliver(sub)
	}
}

func (s *PostgresStore) deliver(sub *subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	snap, err := s.Get(ctx, sub.path)
	if err != nil {
		s.log.Warn("realtime read failed", zap.String("path", sub.path), zap.Error(err))
		if sub.onError != nil {
			sub.onError(err)
		}
		return
	}
	if sub.onValue != nil {
		sub.onValue(snap)
	}
}

func (s *PostgresStore) setConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	fns := make([]func(bool), 0, len(s.connSubs))
	for _, fn := range s.connSubs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
