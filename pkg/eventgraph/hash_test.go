package eventgraph

import (
	"encoding/json"
	"testing"
	"time"
)

func TestComputeHash(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	content, _ := json.Marshal(map[string]any{"key": "value"})

	h1 := computeHash("", "id1", "task.created", "api", "", now, content)
	h2 := computeHash("", "id1", "task.created", "api", "", now, content)
	if h1 != h2 {
		t.Fatalf("same inputs should produce same hash: %s != %s", h1, h2)
	}

	h3 := computeHash("", "id2", "task.created", "api", "", now, content)
	if h1 == h3 {
		t.Fatalf("different ID should produce different hash")
	}

	h4 := computeHash("prevhash", "id1", "task.created", "api", "", now, content)
	if h1 == h4 {
		t.Fatalf("different prevHash should produce different hash")
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// JSON marshal of map sorts keys deterministically
	content1, _ := json.Marshal(map[string]any{"a": 1, "b": 2})
	content2, _ := json.Marshal(map[string]any{"b": 2, "a": 1})

	h1 := computeHash("", "id", "type", "src", "task", now, content1)
	h2 := computeHash("", "id", "type", "src", "task", now, content2)
	if h1 != h2 {
		t.Fatalf("json.Marshal sorts keys, so hashes should match: %s != %s", h1, h2)
	}
}

func TestComputeHashCoversTaskID(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	content := []byte(`{}`)

	h1 := computeHash("", "id", "task.created", "api", "task-a", now, content)
	h2 := computeHash("", "id", "task.created", "api", "task-b", now, content)
	if h1 == h2 {
		t.Fatalf("different task IDs should produce different hashes")
	}
}

func TestVerifyLink(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	content := map[string]any{"title": "buy milk", "completePercent": float64(0)}
	contentJSON, _ := json.Marshal(content)

	good := Event{
		ID: "e1", Type: "task.created", Timestamp: now, Source: "api", TaskID: "t1",
		Content: content, PrevHash: "prev",
	}
	good.Hash = computeHash("prev", good.ID, good.Type, good.Source, good.TaskID, good.Timestamp, contentJSON)

	tests := []struct {
		name     string
		mutate   func(e *Event)
		raw      []byte
		prevHash string
		wantErr  bool
	}{
		{"intact", func(*Event) {}, contentJSON, "prev", false},
		{"raw with other key order", func(*Event) {}, []byte(`{"completePercent":0,"title":"buy milk"}`), "prev", false},
		{"wrong prev hash", func(*Event) {}, contentJSON, "other", true},
		{"tampered content", func(e *Event) { e.Content = map[string]any{"title": "buy beer"} }, []byte(`{"title":"buy beer"}`), "prev", true},
		{"tampered type", func(e *Event) { e.Type = "task.deleted" }, contentJSON, "prev", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := good
			tc.mutate(&e)
			err := verifyLink(0, &e, tc.raw, tc.prevHash)
			if tc.wantErr && err == nil {
				t.Fatalf("expected verification error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
