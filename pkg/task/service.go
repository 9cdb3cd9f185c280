package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"todo-api/pkg/eventgraph"
)

// Lifecycle event types recorded in the event log.
const (
	EventCreated       = "task.created"
	EventUpdated       = "task.updated"
	EventDeleted       = "task.deleted"
	EventCompletionSet = "task.completion_set"
	EventPercentSet    = "task.percent_set"
)

// Service applies the task lifecycle rules on top of a Store. It holds no
// per-request state; every call is a direct read or write against the store.
type Service struct {
	store  Store
	events eventgraph.EventStore
	logger *log.Logger
	now    func() time.Time
	source string
}

// Option configures a Service.
type Option func(*Service)

// WithEvents records lifecycle events into the given event log.
func WithEvents(events eventgraph.EventStore) Option {
	return func(s *Service) { s.events = events }
}

// WithLogger sets the logger used for event log warnings.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source used by the date window queries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSource sets the source label attached to recorded events.
func WithSource(source string) Option {
	return func(s *Service) { s.source = source }
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.Default(),
		now:    time.Now,
		source: "api",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Create inserts t. It fails with ErrDuplicateID when the ID is taken and
// leaves the existing row untouched.
func (s *Service) Create(ctx context.Context, t *Task) error {
	existing, err := s.find(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("create task %s: %w", t.ID, ErrDuplicateID)
	}
	t.ExpiryTime = normalizeTime(t.ExpiryTime)
	if err := s.store.Insert(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return fmt.Errorf("create task %s: %w", t.ID, ErrDuplicateID)
		}
		return err
	}
	s.record(ctx, EventCreated, t.ID, snapshot(t))
	return nil
}

// Get returns the task with the given ID, or nil when there is none.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.find(ctx, id)
}

// List returns every stored task keyed by ID. The map is empty, never nil,
// for an empty store.
func (s *Service) List(ctx context.Context) (map[string]Task, error) {
	tasks, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

// Count returns the number of stored tasks.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Delete removes the task if present. Deleting an unknown ID is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if removed {
		s.record(ctx, EventDeleted, id, nil)
	}
	return nil
}

// Update overwrites the mutable fields of an existing task and returns it.
// It returns nil without error when the ID is unknown. Expiry is not
// validated here.
func (s *Service) Update(ctx context.Context, id string, expiry time.Time, title, description string, percent int) (*Task, error) {
	t, err := s.find(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	t.ExpiryTime = normalizeTime(expiry)
	t.Title = title
	t.Description = description
	t.CompletePercent = percent
	if ok, err := s.save(ctx, t); !ok {
		return nil, err
	}
	s.record(ctx, EventUpdated, t.ID, snapshot(t))
	return t, nil
}

// SetComplete marks the task done or not done. Done forces the percentage to
// 100, not done forces it to 0. Unknown IDs are a no-op and yield nil.
func (s *Service) SetComplete(ctx context.Context, id string, complete bool) (*Task, error) {
	t, err := s.find(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	t.IsCompleted = complete
	if complete {
		t.CompletePercent = 100
	} else {
		t.CompletePercent = 0
	}
	if ok, err := s.save(ctx, t); !ok {
		return nil, err
	}
	s.record(ctx, EventCompletionSet, t.ID, map[string]any{
		"isCompleted":     t.IsCompleted,
		"completePercent": t.CompletePercent,
	})
	return t, nil
}

// SetPercent sets the completion percentage. Reaching exactly 100 marks the
// task completed; any other value leaves IsCompleted as it was. Unknown IDs
// are a no-op and yield nil.
func (s *Service) SetPercent(ctx context.Context, id string, percent int) (*Task, error) {
	t, err := s.find(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	t.CompletePercent = percent
	if percent == 100 && !t.IsCompleted {
		t.IsCompleted = true
	}
	if ok, err := s.save(ctx, t); !ok {
		return nil, err
	}
	s.record(ctx, EventPercentSet, t.ID, map[string]any{
		"isCompleted":     t.IsCompleted,
		"completePercent": t.CompletePercent,
	})
	return t, nil
}

// ListForToday returns tasks due on the current UTC date.
func (s *Service) ListForToday(ctx context.Context) ([]Task, error) {
	return s.ListIn(ctx, TodayWindow(s.now()))
}

// ListForNextDay returns tasks due on the next UTC date.
func (s *Service) ListForNextDay(ctx context.Context) ([]Task, error) {
	return s.ListIn(ctx, NextDayWindow(s.now()))
}

// ListForCurrentWeek returns tasks due from this week's Sunday through the
// next Sunday inclusive.
func (s *Service) ListForCurrentWeek(ctx context.Context) ([]Task, error) {
	return s.ListIn(ctx, WeekWindow(s.now()))
}

// ListIn returns tasks whose expiry falls inside w.
func (s *Service) ListIn(ctx context.Context, w Window) ([]Task, error) {
	tasks, err := s.store.ListDue(ctx, w.From, w.To)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

func (s *Service) find(ctx context.Context, id string) (*Task, error) {
	t, err := s.store.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// save reports false without error when the row vanished between find and
// save, the same outcome as an unknown ID.
func (s *Service) save(ctx context.Context, t *Task) (bool, error) {
	err := s.store.Save(ctx, t)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) record(ctx context.Context, eventType, taskID string, content map[string]any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Append(ctx, eventType, s.source, taskID, content); err != nil {
		s.logger.Warn("failed to record event", "type", eventType, "task_id", taskID, "err", err)
	}
}

func snapshot(t *Task) map[string]any {
	return map[string]any{
		"expiryTime":      t.ExpiryTime.Format(time.RFC3339Nano),
		"title":           t.Title,
		"description":     t.Description,
		"completePercent": t.CompletePercent,
		"isCompleted":     t.IsCompleted,
	}
}
