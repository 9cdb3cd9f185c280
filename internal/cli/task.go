package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"todo-api/internal/api"
	"todo-api/pkg/task"
)

func (a *App) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task operations",
	}
	cmd.AddCommand(
		a.taskCreateCmd(),
		a.taskGetCmd(),
		a.taskListCmd(),
		a.taskDeleteCmd(),
		a.taskUpdateCmd(),
		a.taskCompleteCmd(),
		a.taskPercentCmd(),
		a.taskWindowCmd("today", "List tasks due today (UTC)", func(ctx context.Context) ([]task.Task, error) {
			return a.tasks.ListForToday(ctx)
		}),
		a.taskWindowCmd("next-day", "List tasks due tomorrow (UTC)", func(ctx context.Context) ([]task.Task, error) {
			return a.tasks.ListForNextDay(ctx)
		}),
		a.taskWindowCmd("week", "List tasks due from this Sunday through next Sunday", func(ctx context.Context) ([]task.Task, error) {
			return a.tasks.ListForCurrentWeek(ctx)
		}),
	)
	return cmd
}

// expiryFlags resolves --expiry (RFC 3339) or --in (duration from now).
type expiryFlags struct {
	at string
	in time.Duration
}

func (f *expiryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.at, "expiry", "", "due time, RFC 3339 (e.g. 2026-10-16T17:00:00Z)")
	cmd.Flags().DurationVar(&f.in, "in", 0, "due time relative to now (e.g. 36h)")
}

func (f *expiryFlags) set() bool {
	return f.at != "" || f.in != 0
}

func (f *expiryFlags) resolve(now time.Time) (time.Time, error) {
	switch {
	case f.at != "" && f.in != 0:
		return time.Time{}, fmt.Errorf("%w: use only one of --expiry and --in", task.ErrInvalidInput)
	case f.at != "":
		t, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: --expiry: %v", task.ErrInvalidInput, err)
		}
		return t, nil
	case f.in != 0:
		return now.Add(f.in), nil
	default:
		return time.Time{}, fmt.Errorf("%w: --expiry or --in is required", task.ErrInvalidInput)
	}
}

func (a *App) taskCreateCmd() *cobra.Command {
	var (
		expiry expiryFlags
		req    api.CreateTaskRequest
		taskID string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.Now()
			at, err := expiry.resolve(now)
			if err != nil {
				return err
			}
			req.ExpiryTime = at
			if err := req.Validate(now); err != nil {
				return err
			}
			id := taskID
			if id == "" {
				id = a.NewID()
			}
			t := req.Task(id)
			if err := a.tasks.Create(cmd.Context(), t); err != nil {
				return err
			}
			return a.printJSON(t)
		},
	}
	expiry.register(cmd)
	cmd.Flags().StringVar(&req.Title, "title", "", "task title")
	cmd.Flags().StringVar(&req.Description, "description", "", "task description")
	cmd.Flags().IntVar(&req.CompletePercent, "percent", 0, "initial completion percentage")
	cmd.Flags().StringVar(&taskID, "id", "", "task ID (default: a new UUID)")
	return cmd
}

func (a *App) taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tasks.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("task with id %s not found", args[0])
			}
			return a.printJSON(t)
		},
	}
}

func (a *App) taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := a.tasks.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == "short" {
				list := make([]task.Task, 0, len(tasks))
				for _, t := range tasks {
					list = append(list, t)
				}
				a.printShortTasks(list)
				return nil
			}
			return a.printJSON(tasks)
		},
	}
}

func (a *App) taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.tasks.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("task with id %s not found", args[0])
			}
			if err := a.tasks.Delete(ctx, args[0]); err != nil {
				return err
			}
			return a.printJSON(map[string]string{"id": args[0], "status": "deleted"})
		},
	}
}

func (a *App) taskUpdateCmd() *cobra.Command {
	var (
		expiry      expiryFlags
		title       string
		description string
		percent     int
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Overwrite a task's fields",
		Long:  "Overwrite a task's due time, title, description and percentage. Flags that are not given keep their current values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := a.Now()
			current, err := a.tasks.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("task with id %s not found", args[0])
			}

			req := api.UpdateTaskRequest{
				ID:              current.ID,
				ExpiryTime:      current.ExpiryTime,
				Title:           current.Title,
				Description:     current.Description,
				CompletePercent: current.CompletePercent,
			}
			if expiry.set() {
				if req.ExpiryTime, err = expiry.resolve(now); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("title") {
				req.Title = title
			}
			if cmd.Flags().Changed("description") {
				req.Description = description
			}
			if cmd.Flags().Changed("percent") {
				req.CompletePercent = percent
			}
			if err := req.Validate(now); err != nil {
				return err
			}

			t, err := a.tasks.Update(ctx, req.ID, req.ExpiryTime, req.Title, req.Description, req.CompletePercent)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("task with id %s not found", req.ID)
			}
			return a.printJSON(t)
		},
	}
	expiry.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().IntVar(&percent, "percent", 0, "new completion percentage")
	return cmd
}

func (a *App) taskCompleteCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed (or not, with --undo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tasks.SetComplete(cmd.Context(), args[0], !undo)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("task with id %s not found", args[0])
			}
			return a.printJSON(t)
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task not completed")
	return cmd
}

func (a *App) taskPercentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "percent <id> <percent>",
		Short: "Set a task's completion percentage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: percent must be an integer", task.ErrInvalidInput)
			}
			if err := task.ValidatePercent(percent); err != nil {
				return err
			}
			t, err := a.tasks.SetPercent(cmd.Context(), args[0], percent)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("task with id %s not found", args[0])
			}
			return a.printJSON(t)
		},
	}
}

func (a *App) taskWindowCmd(use, short string, list func(context.Context) ([]task.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := list(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == "short" {
				a.printShortTasks(tasks)
				return nil
			}
			return a.printJSON(tasks)
		},
	}
}
