package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormStore is a GORM-backed task store, used with the embedded SQLite driver.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureTable migrates the tasks table.
func (s *GormStore) EnsureTable(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Task{})
}

// Find retrieves a single task by ID.
func (s *GormStore) Find(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	t.ExpiryTime = t.ExpiryTime.UTC()
	return &t, nil
}

// Insert adds a new task row.
func (s *GormStore) Insert(ctx context.Context, t *Task) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// Save overwrites all mutable columns of an existing task. Naming the columns
// makes GORM write zero values such as IsCompleted=false and CompletePercent=0.
func (s *GormStore) Save(ctx context.Context, t *Task) error {
	result := s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", t.ID).
		Select("expiry_time", "title", "description", "complete_percent", "is_completed").
		Updates(t)
	if err := result.Error; err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes a task by ID.
func (s *GormStore) Remove(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Task{}, "id = ?", id)
	if err := result.Error; err != nil {
		return false, fmt.Errorf("remove task %s: %w", id, err)
	}
	return result.RowsAffected > 0, nil
}

// ListAll returns every task.
func (s *GormStore) ListAll(ctx context.Context) ([]Task, error) {
	tasks := []Task{}
	if err := s.db.WithContext(ctx).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return utcTasks(tasks), nil
}

// ListDue returns tasks expiring in [from, to).
func (s *GormStore) ListDue(ctx context.Context, from, to time.Time) ([]Task, error) {
	tasks := []Task{}
	err := s.db.WithContext(ctx).
		Where("expiry_time >= ? AND expiry_time < ?", from.UTC(), to.UTC()).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return utcTasks(tasks), nil
}

// Count returns total task count.
func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Task{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return int(n), nil
}

func utcTasks(tasks []Task) []Task {
	for i := range tasks {
		tasks[i].ExpiryTime = tasks[i].ExpiryTime.UTC()
	}
	return tasks
}
