package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-api/pkg/task"
)

func TestDecodeCreateTask(t *testing.T) {
	req, err := DecodeCreateTask([]byte(`{"expiryTime":"2026-10-16T09:00:00+02:00","title":"t","description":"d","completePercent":5}`))
	require.NoError(t, err)
	assert.True(t, req.ExpiryTime.Equal(time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)))
	assert.Equal(t, "t", req.Title)
	assert.Equal(t, 5, req.CompletePercent)

	tk := req.Task("new-id")
	assert.Equal(t, "new-id", tk.ID)
	assert.False(t, tk.IsCompleted)
}

func TestDecodeErrorsWrapInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		raw    string
	}{
		{"create not an object", func(b []byte) error { _, err := DecodeCreateTask(b); return err }, `[]`},
		{"create title not a string", func(b []byte) error { _, err := DecodeCreateTask(b); return err }, `{"expiryTime":"2026-10-16T09:00:00Z","title":["x"]}`},
		{"update missing id", func(b []byte) error { _, err := DecodeUpdateTask(b); return err }, `{"expiryTime":"2026-10-16T09:00:00Z","title":"x"}`},
		{"complete missing field", func(b []byte) error { _, err := DecodeSetComplete(b); return err }, `{}`},
		{"percent as string", func(b []byte) error { _, err := DecodeSetPercent(b); return err }, `{"percent":"50"}`},
		{"empty body", func(b []byte) error { _, err := DecodeSetPercent(b); return err }, ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode([]byte(tc.raw))
			assert.ErrorIs(t, err, task.ErrInvalidInput)
		})
	}
}

func TestDecodeAcceptsAnyTitle(t *testing.T) {
	for _, raw := range []string{
		`{"expiryTime":"2026-10-16T09:00:00Z","title":""}`,
		`{"expiryTime":"2026-10-16T09:00:00Z"}`,
	} {
		req, err := DecodeCreateTask([]byte(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, req.Title)
	}
	_, err := DecodeUpdateTask([]byte(`{"id":"x","expiryTime":"2026-10-16T09:00:00Z","title":""}`))
	assert.NoError(t, err)
}

func TestUpdateValidateChecksExpiryFirst(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	req := UpdateTaskRequest{ID: "x", ExpiryTime: now.Add(-time.Hour), CompletePercent: 500}

	err := req.Validate(now)
	require.ErrorIs(t, err, task.ErrInvalidInput)
	assert.Contains(t, err.Error(), "expiryTime")
}

func TestSchemaMessageNamesField(t *testing.T) {
	_, err := DecodeCreateTask([]byte(`{"expiryTime":"not-a-date","title":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiryTime")
}
