package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

func truncStr(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// printShortTasks prints one line per task, soonest due first.
func (a *App) printShortTasks(tasks []task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ExpiryTime.Before(tasks[j].ExpiryTime)
	})
	for _, t := range tasks {
		done := " "
		if t.IsCompleted {
			done = "x"
		}
		fmt.Fprintf(a.Out, "%-8s  [%s] %3d%%  %-16s  %s\n",
			truncStr(t.ID, 8), done, t.CompletePercent, t.ExpiryTime.Format("2006-01-02 15:04"), truncStr(t.Title, 60))
	}
}

func (a *App) printShortEvents(events []eventgraph.Event) {
	for _, e := range events {
		content := ""
		if b, err := json.Marshal(e.Content); err == nil {
			content = string(b)
		}
		fmt.Fprintf(a.Out, "%-8s  %-20s  %-8s  %s\n",
			e.Timestamp.Format(time.TimeOnly), truncStr(e.Type, 20), truncStr(e.TaskID, 8), truncStr(content, 80))
	}
}
