package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-api/internal/config"
	"todo-api/internal/db"
	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

// Thursday.
var cliNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type cliEnv struct {
	backend *db.Backend
	ids     int
}

// newCLIEnv shares one in-memory database across every command run.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")

	gdb, err := db.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	shared := db.FromGorm(gdb)
	t.Cleanup(func() { shared.Close() })
	ctx := context.Background()
	require.NoError(t, shared.Tasks.EnsureTable(ctx))
	require.NoError(t, shared.Events.EnsureTable(ctx))

	// Commands close their backend when done; keep the shared one open.
	return &cliEnv{backend: db.NewBackend(shared.Driver, shared.Tasks, shared.Events, nil)}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &App{
		Out: &out,
		Err: &errOut,
		Open: func(context.Context, *config.Config) (*db.Backend, error) {
			return e.backend, nil
		},
		Now: func() time.Time { return cliNow },
		NewID: func() string {
			e.ids++
			return fmt.Sprintf("cli-%d", e.ids)
		},
	}
	cmd := NewRootCmd(app)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "todo %v", args)
	return out
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestTaskCreateAndGet(t *testing.T) {
	env := newCLIEnv(t)

	created := decodeJSON[task.Task](t, env.mustRun(t, "task", "create", "--title", "pay rent", "--description", "october", "--in", "30h", "--percent", "10"))
	assert.Equal(t, "cli-1", created.ID)
	assert.True(t, created.ExpiryTime.Equal(cliNow.Add(30*time.Hour)))

	got := decodeJSON[task.Task](t, env.mustRun(t, "task", "get", "cli-1"))
	assert.Equal(t, "pay rent", got.Title)
	assert.Equal(t, "october", got.Description)
	assert.Equal(t, 10, got.CompletePercent)
}

func TestTaskCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no expiry", []string{"--title", "x"}},
		{"past expiry", []string{"--title", "x", "--expiry", "2026-10-01T00:00:00Z"}},
		{"bad expiry", []string{"--title", "x", "--expiry", "friday"}},
		{"both expiry flags", []string{"--title", "x", "--expiry", "2026-10-20T00:00:00Z", "--in", "1h"}},
		{"percent out of range", []string{"--title", "x", "--in", "1h", "--percent", "120"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newCLIEnv(t)
			_, err := env.run(t, append([]string{"task", "create"}, tc.args...)...)
			assert.ErrorIs(t, err, task.ErrInvalidInput)
		})
	}
}

func TestTaskCreateAllowsEmptyTitle(t *testing.T) {
	env := newCLIEnv(t)
	got := decodeJSON[task.Task](t, env.mustRun(t, "task", "create", "--in", "1h"))
	assert.Empty(t, got.Title)

	got = decodeJSON[task.Task](t, env.mustRun(t, "task", "create", "--title", "", "--in", "1h"))
	assert.Equal(t, "cli-2", got.ID)
	assert.Empty(t, got.Title)
}

func TestTaskCreateDuplicateID(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--id", "fixed", "--title", "a", "--in", "1h")
	_, err := env.run(t, "task", "create", "--id", "fixed", "--title", "b", "--in", "1h")
	assert.ErrorIs(t, err, task.ErrDuplicateID)
}

func TestTaskGetMissing(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "task", "get", "nope")
	assert.ErrorContains(t, err, "task with id nope not found")
}

func TestTaskUpdateKeepsUnsetFields(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--title", "draft", "--description", "keep me", "--in", "2h")

	got := decodeJSON[task.Task](t, env.mustRun(t, "task", "update", "cli-1", "--title", "final", "--percent", "70"))
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, 70, got.CompletePercent)
	assert.True(t, got.ExpiryTime.Equal(cliNow.Add(2*time.Hour)))

	_, err := env.run(t, "task", "update", "missing", "--title", "x")
	assert.ErrorContains(t, err, "not found")
}

func TestTaskCompleteAndPercent(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--title", "t", "--in", "1h", "--percent", "30")

	got := decodeJSON[task.Task](t, env.mustRun(t, "task", "complete", "cli-1"))
	assert.True(t, got.IsCompleted)
	assert.Equal(t, 100, got.CompletePercent)

	got = decodeJSON[task.Task](t, env.mustRun(t, "task", "complete", "cli-1", "--undo"))
	assert.False(t, got.IsCompleted)
	assert.Equal(t, 0, got.CompletePercent)

	got = decodeJSON[task.Task](t, env.mustRun(t, "task", "percent", "cli-1", "100"))
	assert.True(t, got.IsCompleted)

	_, err := env.run(t, "task", "percent", "cli-1", "101")
	assert.ErrorIs(t, err, task.ErrInvalidInput)
	_, err = env.run(t, "task", "percent", "cli-1", "lots")
	assert.ErrorIs(t, err, task.ErrInvalidInput)
}

func TestTaskListAndDelete(t *testing.T) {
	env := newCLIEnv(t)
	assert.Equal(t, map[string]task.Task{}, decodeJSON[map[string]task.Task](t, env.mustRun(t, "task", "list")))

	env.mustRun(t, "task", "create", "--title", "one", "--in", "1h")
	env.mustRun(t, "task", "create", "--title", "two", "--in", "2h")

	all := decodeJSON[map[string]task.Task](t, env.mustRun(t, "task", "list"))
	assert.Len(t, all, 2)

	short := env.mustRun(t, "task", "list", "--format", "short")
	assert.Contains(t, short, "one")
	assert.Contains(t, short, "two")

	env.mustRun(t, "task", "delete", "cli-1")
	all = decodeJSON[map[string]task.Task](t, env.mustRun(t, "task", "list"))
	assert.Len(t, all, 1)

	_, err := env.run(t, "task", "delete", "cli-1")
	assert.ErrorContains(t, err, "not found")
}

func TestTaskWindows(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--id", "today", "--title", "today", "--expiry", "2026-10-15T23:59:59Z")
	env.mustRun(t, "task", "create", "--id", "tomorrow", "--title", "tomorrow", "--expiry", "2026-10-16T00:00:00Z")
	env.mustRun(t, "task", "create", "--id", "later", "--title", "later", "--expiry", "2026-10-25T00:00:00Z")

	ids := func(out string) []string {
		var list []string
		for _, tk := range decodeJSON[[]task.Task](t, out) {
			list = append(list, tk.ID)
		}
		return list
	}
	assert.ElementsMatch(t, []string{"today"}, ids(env.mustRun(t, "task", "today")))
	assert.ElementsMatch(t, []string{"tomorrow"}, ids(env.mustRun(t, "task", "next-day")))
	assert.ElementsMatch(t, []string{"today", "tomorrow"}, ids(env.mustRun(t, "task", "week")))
}

func TestEventCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--title", "t", "--in", "1h")
	env.mustRun(t, "task", "complete", "cli-1")

	events := decodeJSON[[]eventgraph.Event](t, env.mustRun(t, "event", "list", "--task", "cli-1"))
	require.Len(t, events, 2)
	assert.Equal(t, task.EventCreated, events[0].Type)
	assert.Equal(t, task.EventCompletionSet, events[1].Type)
	assert.Equal(t, "cli", events[0].Source)

	got := decodeJSON[eventgraph.Event](t, env.mustRun(t, "event", "get", events[1].ID))
	assert.Equal(t, events[1].Hash, got.Hash)

	_, err := env.run(t, "event", "get", "missing")
	assert.ErrorContains(t, err, "not found")

	assert.Contains(t, env.mustRun(t, "event", "verify"), "hash chain verified")
	assert.Contains(t, env.mustRun(t, "event", "list", "--format", "short"), task.EventCompletionSet)
}

func TestStatusAndInit(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--title", "t", "--in", "1h")

	status := decodeJSON[map[string]any](t, env.mustRun(t, "status"))
	assert.Equal(t, "sqlite", status["driver"])
	assert.Equal(t, float64(1), status["tasks"])
	assert.Equal(t, float64(1), status["events"])

	assert.Contains(t, env.mustRun(t, "init"), "all tables initialized")
}

func TestInitCreatesTables(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	gdb, err := db.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	fresh := db.FromGorm(gdb)
	t.Cleanup(func() { fresh.Close() })
	env := &cliEnv{backend: db.NewBackend(fresh.Driver, fresh.Tasks, fresh.Events, nil)}

	require.False(t, gdb.Migrator().HasTable("tasks"))
	assert.Contains(t, env.mustRun(t, "init"), "all tables initialized")
	assert.True(t, gdb.Migrator().HasTable("tasks"))
	assert.True(t, gdb.Migrator().HasTable("events"))
}

func TestEventListNonPositiveLimitUsesDefault(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "create", "--title", "t", "--in", "1h")
	env.mustRun(t, "task", "complete", "cli-1")

	for _, limit := range []string{"0", "-5"} {
		events := decodeJSON[[]eventgraph.Event](t, env.mustRun(t, "event", "list", "--limit="+limit))
		assert.Len(t, events, 2, "limit %s", limit)
	}
}

func TestRootRejectsBadConfig(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	_, err := env.run(t, "status")
	assert.ErrorContains(t, err, "unknown db_driver")
}
