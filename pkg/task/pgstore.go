package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, expiry_time, title, description, complete_percent, is_completed`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			expiry_time      TIMESTAMPTZ NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			complete_percent INTEGER NOT NULL DEFAULT 0,
			is_completed     BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_expiry_time ON tasks(expiry_time)`)
	return err
}

// Find retrieves a single task by ID.
func (s *PgStore) Find(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.ExpiryTime, &t.Title, &t.Description, &t.CompletePercent, &t.IsCompleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	t.ExpiryTime = t.ExpiryTime.UTC()
	return &t, nil
}

// Insert adds a new task row.
func (s *PgStore) Insert(ctx context.Context, t *Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ExpiryTime, t.Title, t.Description, t.CompletePercent, t.IsCompleted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// Save overwrites all mutable columns of an existing task.
func (s *PgStore) Save(ctx context.Context, t *Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET expiry_time = $2, title = $3, description = $4, complete_percent = $5, is_completed = $6
		WHERE id = $1`,
		t.ID, t.ExpiryTime, t.Title, t.Description, t.CompletePercent, t.IsCompleted)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes a task by ID.
func (s *PgStore) Remove(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("remove task %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAll returns every task.
func (s *PgStore) ListAll(ctx context.Context) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// ListDue returns tasks expiring in [from, to).
func (s *PgStore) ListDue(ctx context.Context, from, to time.Time) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE expiry_time >= $1 AND expiry_time < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// Count returns total task count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func scanTaskRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Task, error) {
	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ExpiryTime, &t.Title, &t.Description, &t.CompletePercent, &t.IsCompleted); err != nil {
			return nil, err
		}
		t.ExpiryTime = t.ExpiryTime.UTC()
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}
