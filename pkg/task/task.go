package task

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when no task has the requested ID.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicateID is returned when a task with the same ID already exists.
	ErrDuplicateID = errors.New("a task with the same ID already exists")
	// ErrInvalidInput marks boundary validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// Task is a to-do item with a due time and completion state.
type Task struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	ExpiryTime      time.Time `json:"expiryTime" gorm:"not null;index"`
	Title           string    `json:"title" gorm:"not null"`
	Description     string    `json:"description" gorm:"not null"`
	CompletePercent int       `json:"completePercent" gorm:"not null"`
	IsCompleted     bool      `json:"isCompleted" gorm:"not null"`
}

// TableName pins the GORM table name to the one PgStore creates.
func (Task) TableName() string {
	return "tasks"
}

// Store is the contract for task persistence. Stores perform no validation.
type Store interface {
	// Find returns ErrNotFound when no task has the given ID.
	Find(ctx context.Context, id string) (*Task, error)
	// Insert returns ErrDuplicateID on a primary key conflict.
	Insert(ctx context.Context, t *Task) error
	// Save overwrites every mutable field of an existing task.
	Save(ctx context.Context, t *Task) error
	// Remove reports whether a row was deleted.
	Remove(ctx context.Context, id string) (bool, error)
	ListAll(ctx context.Context) ([]Task, error)
	// ListDue returns tasks with from <= expiry_time < to.
	ListDue(ctx context.Context, from, to time.Time) ([]Task, error)
	Count(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}

// normalizeTime drops the location and sub-microsecond precision so values
// round-trip identically through Postgres and SQLite.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
