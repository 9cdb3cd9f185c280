package eventgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, type, timestamp, source, task_id, content, hash, prev_hash`

// chainLockKey is the advisory lock held while appending to the chain.
const chainLockKey = 0x746f646f

// PgStore is a PostgreSQL-backed EventStore with hash-chained integrity.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ EventStore = (*PgStore)(nil)

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the events table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id        TEXT PRIMARY KEY,
			type      TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			source    TEXT NOT NULL,
			task_id   TEXT NOT NULL DEFAULT '',
			content   JSONB NOT NULL DEFAULT '{}',
			hash      TEXT NOT NULL,
			prev_hash TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id) WHERE task_id != ''`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_timestamp_id ON events(timestamp, id)`)
	return err
}

// Append creates and stores a new event, computing the hash chain. Appends
// are serialized so each one links to the committed head.
func (s *PgStore) Append(ctx context.Context, eventType, source, taskID string, content map[string]any) (*Event, error) {
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Held until commit, so every appender reads the committed head.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return nil, fmt.Errorf("lock chain: %w", err)
	}

	var (
		prevHash string
		headTime time.Time
	)
	err = tx.QueryRow(ctx, `SELECT hash, timestamp FROM events ORDER BY timestamp DESC, id DESC LIMIT 1`).Scan(&prevHash, &headTime)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	now := nextTimestamp(headTime)
	e := &Event{
		ID:        id,
		Type:      eventType,
		Timestamp: now,
		Source:    source,
		TaskID:    taskID,
		Content:   content,
		PrevHash:  prevHash,
	}
	e.Hash = computeHash(prevHash, id, eventType, source, taskID, now, contentJSON)

	_, err = tx.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		e.ID, e.Type, e.Timestamp, e.Source, e.TaskID, string(contentJSON), e.Hash, e.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}
	return e, nil
}

// Get retrieves a single event by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Event, error) {
	events, err := s.scanMany(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}

// Recent returns the most recent events in reverse chronological order.
func (s *PgStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+`
		FROM events ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
}

// ByType returns events of one type, newest first.
func (s *PgStore) ByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE type = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`, eventType, limit)
}

// ByTask returns the history of one task in chronological order.
func (s *PgStore) ByTask(ctx context.Context, taskID string, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE task_id = $1 ORDER BY timestamp ASC, id ASC LIMIT $2`, taskID, limit)
}

// Since returns events created after the given ID, for polling.
func (s *PgStore) Since(ctx context.Context, afterID string, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE (timestamp, id) > (SELECT timestamp, id FROM events WHERE id = $1)
		ORDER BY timestamp ASC, id ASC LIMIT $2`, afterID, limit)
}

// Count returns the total number of events.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// VerifyChain walks the entire chain chronologically and verifies hash integrity.
func (s *PgStore) VerifyChain(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("verify chain query: %w", err)
	}
	defer rows.Close()

	prevHash := ""
	i := 0
	for rows.Next() {
		var e Event
		var contentJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.Source, &e.TaskID, &contentJSON, &e.Hash, &e.PrevHash); err != nil {
			return fmt.Errorf("verify chain scan row %d: %w", i, err)
		}
		if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
			e.Content = map[string]any{"_raw": string(contentJSON)}
		}
		if err := verifyLink(i, &e, contentJSON, prevHash); err != nil {
			return err
		}
		prevHash = e.Hash
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("verify chain rows: %w", err)
	}
	return nil
}

func (s *PgStore) scanMany(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var contentJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.Source, &e.TaskID, &contentJSON, &e.Hash, &e.PrevHash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return events, nil
}
