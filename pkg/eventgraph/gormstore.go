package eventgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// eventRow is the GORM mapping of the events table. Content is kept as the
// exact JSON text that was hashed.
type eventRow struct {
	ID        string    `gorm:"primaryKey;size:36;index:idx_events_timestamp_id,priority:2"`
	Type      string    `gorm:"not null;index:idx_events_type"`
	Timestamp time.Time `gorm:"not null;index:idx_events_timestamp_id,priority:1"`
	Source    string    `gorm:"not null"`
	TaskID    string    `gorm:"not null;index:idx_events_task"`
	Content   string    `gorm:"not null"`
	Hash      string    `gorm:"not null"`
	PrevHash  string    `gorm:"not null"`
}

func (eventRow) TableName() string {
	return "events"
}

func (r *eventRow) toEvent() (Event, error) {
	e := Event{
		ID:        r.ID,
		Type:      r.Type,
		Timestamp: r.Timestamp.UTC(),
		Source:    r.Source,
		TaskID:    r.TaskID,
		Hash:      r.Hash,
		PrevHash:  r.PrevHash,
	}
	if err := json.Unmarshal([]byte(r.Content), &e.Content); err != nil {
		return Event{}, fmt.Errorf("unmarshal content: %w", err)
	}
	return e, nil
}

// GormStore is a GORM-backed EventStore, used with the embedded SQLite driver.
type GormStore struct {
	db *gorm.DB
}

var _ EventStore = (*GormStore)(nil)

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureTable migrates the events table.
func (s *GormStore) EnsureTable(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&eventRow{})
}

// Append creates and stores a new event. The ID and timestamp are minted
// after the chain head is read, inside the transaction, so chain order and
// timestamp order always agree.
func (s *GormStore) Append(ctx context.Context, eventType, source, taskID string, content map[string]any) (*Event, error) {
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	e := &Event{
		Type:    eventType,
		Source:  source,
		TaskID:  taskID,
		Content: content,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head eventRow
		err := tx.Select("hash", "timestamp").Order("timestamp DESC, id DESC").Take(&head).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("read chain head: %w", err)
		}
		e.ID = uuid.Must(uuid.NewV7()).String()
		e.Timestamp = nextTimestamp(head.Timestamp)
		e.PrevHash = head.Hash
		e.Hash = computeHash(e.PrevHash, e.ID, e.Type, e.Source, e.TaskID, e.Timestamp, contentJSON)

		row := eventRow{
			ID:        e.ID,
			Type:      e.Type,
			Timestamp: e.Timestamp,
			Source:    e.Source,
			TaskID:    e.TaskID,
			Content:   string(contentJSON),
			Hash:      e.Hash,
			PrevHash:  e.PrevHash,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Get retrieves a single event by ID.
func (s *GormStore) Get(ctx context.Context, id string) (*Event, error) {
	var row eventRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	e, err := row.toEvent()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Recent returns the most recent events in reverse chronological order.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.find(s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit))
}

// ByType returns events of one type, newest first.
func (s *GormStore) ByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	return s.find(s.db.WithContext(ctx).Where("type = ?", eventType).Order("timestamp DESC, id DESC").Limit(limit))
}

// ByTask returns the history of one task in chronological order.
func (s *GormStore) ByTask(ctx context.Context, taskID string, limit int) ([]Event, error) {
	return s.find(s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("timestamp ASC, id ASC").Limit(limit))
}

// Since returns events created after the given ID, for polling.
func (s *GormStore) Since(ctx context.Context, afterID string, limit int) ([]Event, error) {
	var anchor eventRow
	if err := s.db.WithContext(ctx).Select("timestamp", "id").First(&anchor, "id = ?", afterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("since %s: %w", afterID, err)
	}
	return s.find(s.db.WithContext(ctx).
		Where("timestamp > ? OR (timestamp = ? AND id > ?)", anchor.Timestamp, anchor.Timestamp, anchor.ID).
		Order("timestamp ASC, id ASC").
		Limit(limit))
}

// Count returns the total number of events.
func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&eventRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// VerifyChain walks the entire chain chronologically and verifies hash integrity.
func (s *GormStore) VerifyChain(ctx context.Context) error {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("timestamp ASC, id ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("verify chain query: %w", err)
	}
	prevHash := ""
	for i := range rows {
		e, err := rows[i].toEvent()
		if err != nil {
			e = Event{
				ID: rows[i].ID, Type: rows[i].Type, Timestamp: rows[i].Timestamp, Source: rows[i].Source,
				TaskID: rows[i].TaskID, Hash: rows[i].Hash, PrevHash: rows[i].PrevHash,
				Content: map[string]any{"_raw": rows[i].Content},
			}
		}
		if err := verifyLink(i, &e, []byte(rows[i].Content), prevHash); err != nil {
			return err
		}
		prevHash = e.Hash
	}
	return nil
}

func (s *GormStore) find(q *gorm.DB) ([]Event, error) {
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
