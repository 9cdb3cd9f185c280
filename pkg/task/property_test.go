package task

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// --- In-memory task store ---

type memStore struct {
	tasks map[string]Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]Task)}
}

func (s *memStore) Find(_ context.Context, id string) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *memStore) Insert(_ context.Context, t *Task) error {
	if _, ok := s.tasks[t.ID]; ok {
		return ErrDuplicateID
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStore) Save(_ context.Context, t *Task) error {
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStore) Remove(_ context.Context, id string) (bool, error) {
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	return ok, nil
}

func (s *memStore) ListAll(_ context.Context) ([]Task, error) {
	out := []Task{}
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *memStore) ListDue(_ context.Context, from, to time.Time) ([]Task, error) {
	w := Window{From: from, To: to}
	out := []Task{}
	for _, t := range s.tasks {
		if w.Contains(t.ExpiryTime) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Count(_ context.Context) (int, error) {
	return len(s.tasks), nil
}

func (s *memStore) EnsureTable(_ context.Context) error {
	return nil
}

// TestCompletionCouplingProperty drives random SetComplete/SetPercent
// sequences and checks the completion rules after every step.
func TestCompletionCouplingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc := NewService(newMemStore(), WithLogger(quietLogger()))
		if err := svc.Create(ctx, &Task{ID: "p", ExpiryTime: refNow.Add(time.Hour), Title: "p"}); err != nil {
			rt.Fatalf("create: %v", err)
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			before, _ := svc.Get(ctx, "p")

			if rapid.Bool().Draw(rt, "setComplete") {
				complete := rapid.Bool().Draw(rt, "complete")
				got, err := svc.SetComplete(ctx, "p", complete)
				if err != nil {
					rt.Fatalf("SetComplete: %v", err)
				}
				want := 0
				if complete {
					want = 100
				}
				if got.IsCompleted != complete || got.CompletePercent != want {
					rt.Fatalf("SetComplete(%v) gave completed=%v percent=%d", complete, got.IsCompleted, got.CompletePercent)
				}
				continue
			}

			percent := rapid.IntRange(0, 100).Draw(rt, "percent")
			got, err := svc.SetPercent(ctx, "p", percent)
			if err != nil {
				rt.Fatalf("SetPercent: %v", err)
			}
			if got.CompletePercent != percent {
				rt.Fatalf("SetPercent(%d) stored %d", percent, got.CompletePercent)
			}
			if before.IsCompleted && !got.IsCompleted {
				rt.Fatalf("SetPercent(%d) cleared completion", percent)
			}
			if percent == 100 && !got.IsCompleted {
				rt.Fatalf("SetPercent(100) did not complete the task")
			}
			if percent != 100 && got.IsCompleted != before.IsCompleted {
				rt.Fatalf("SetPercent(%d) changed completion", percent)
			}
		}
	})
}

// TestCreateGetRoundTripProperty checks that whatever is created reads back
// unchanged, and that a second create with the same ID changes nothing.
func TestCreateGetRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc := NewService(newMemStore(), WithLogger(quietLogger()))

		in := Task{
			ID:              rapid.StringMatching(`[a-z0-9-]{1,36}`).Draw(rt, "id"),
			ExpiryTime:      refNow.Add(time.Duration(rapid.Int64Range(1, 1<<40).Draw(rt, "offset"))),
			Title:           rapid.String().Draw(rt, "title"),
			Description:     rapid.String().Draw(rt, "description"),
			CompletePercent: rapid.IntRange(0, 100).Draw(rt, "percent"),
		}
		created := in
		if err := svc.Create(ctx, &created); err != nil {
			rt.Fatalf("create: %v", err)
		}

		dup := in
		dup.Title = in.Title + "!"
		if err := svc.Create(ctx, &dup); err == nil {
			rt.Fatalf("duplicate create succeeded")
		}

		got, err := svc.Get(ctx, in.ID)
		if err != nil || got == nil {
			rt.Fatalf("get: %v, %v", got, err)
		}
		if got.Title != in.Title || got.Description != in.Description || got.CompletePercent != in.CompletePercent {
			rt.Fatalf("round trip mismatch: %+v vs %+v", *got, in)
		}
		if !got.ExpiryTime.Equal(in.ExpiryTime.Truncate(time.Microsecond)) {
			rt.Fatalf("expiry %s != %s", got.ExpiryTime, in.ExpiryTime)
		}
	})
}
