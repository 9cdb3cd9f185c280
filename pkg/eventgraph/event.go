package eventgraph

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no event has the requested ID.
var ErrNotFound = errors.New("event not found")

// Event is a single entry in the hash-chained, append-only task audit log.
type Event struct {
	ID        string         `json:"id"`        // UUID v7 (time-ordered)
	Type      string         `json:"type"`      // e.g. "task.created", "task.percent_set"
	Timestamp time.Time      `json:"timestamp"` // when the event occurred
	Source    string         `json:"source"`    // boundary that caused it: "api", "cli"
	TaskID    string         `json:"taskId"`    // task the event is about
	Content   map[string]any `json:"content"`   // event payload
	Hash      string         `json:"hash"`      // SHA-256 of canonical form
	PrevHash  string         `json:"prevHash"`  // hash chain link
}

// EventStore is the contract for event persistence.
type EventStore interface {
	Append(ctx context.Context, eventType, source, taskID string, content map[string]any) (*Event, error)
	Get(ctx context.Context, id string) (*Event, error)
	Recent(ctx context.Context, limit int) ([]Event, error)
	ByType(ctx context.Context, eventType string, limit int) ([]Event, error)
	ByTask(ctx context.Context, taskID string, limit int) ([]Event, error)
	Since(ctx context.Context, afterID string, limit int) ([]Event, error)
	Count(ctx context.Context) (int, error)
	VerifyChain(ctx context.Context) error
	EnsureTable(ctx context.Context) error
}
