package eventgraph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// computeHash computes a SHA-256 hash for chain integrity.
func computeHash(prevHash, id, eventType, source, taskID string, timestamp time.Time, contentJSON []byte) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s", prevHash, id, eventType, source, taskID, timestamp.UnixNano(), string(contentJSON))
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h)
}

// verifyLink checks one event against the expected previous hash. Content is
// checked both as stored and re-marshaled, since JSONB normalizes whitespace
// and key order.
func verifyLink(i int, e *Event, rawContent []byte, prevHash string) error {
	if e.PrevHash != prevHash {
		return fmt.Errorf("event %d (%s): prev_hash mismatch: got %s, want %s", i, e.ID, e.PrevHash, prevHash)
	}
	remarshaled, _ := json.Marshal(e.Content)
	expected := computeHash(prevHash, e.ID, e.Type, e.Source, e.TaskID, e.Timestamp, remarshaled)
	if e.Hash == expected {
		return nil
	}
	expectedRaw := computeHash(prevHash, e.ID, e.Type, e.Source, e.TaskID, e.Timestamp, rawContent)
	if e.Hash != expectedRaw {
		return fmt.Errorf("event %d (%s): hash mismatch: got %s, want remarshal=%s or raw=%s", i, e.ID, e.Hash, expected, expectedRaw)
	}
	return nil
}

// clock is replaced in tests.
var clock = time.Now

// nextTimestamp returns the current time, or one microsecond past the chain
// head when the clock has not moved past it.
func nextTimestamp(head time.Time) time.Time {
	now := clock().UTC().Truncate(time.Microsecond)
	if !head.IsZero() && !now.After(head) {
		return head.UTC().Add(time.Microsecond)
	}
	return now
}
