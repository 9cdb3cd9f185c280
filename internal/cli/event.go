package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"todo-api/pkg/eventgraph"
)

func (a *App) eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inspect the task event log",
	}
	cmd.AddCommand(a.eventListCmd(), a.eventGetCmd(), a.eventVerifyCmd())
	return cmd
}

// defaultEventLimit also replaces a --limit that is not positive.
const defaultEventLimit = 20

func (a *App) eventListCmd() *cobra.Command {
	var (
		taskID    string
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit <= 0 {
				limit = defaultEventLimit
			}
			var (
				events []eventgraph.Event
				err    error
			)
			switch {
			case taskID != "":
				events, err = a.events.ByTask(ctx, taskID, limit)
			case eventType != "":
				events, err = a.events.ByType(ctx, eventType, limit)
			default:
				events, err = a.events.Recent(ctx, limit)
			}
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			if a.format == "short" {
				a.printShortEvents(events)
				return nil
			}
			return a.printJSON(events)
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "only events for this task, oldest first")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type (e.g. task.created)")
	cmd.Flags().IntVar(&limit, "limit", defaultEventLimit, "maximum number of events")
	return cmd
}

func (a *App) eventGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.events.Get(cmd.Context(), args[0])
			if errors.Is(err, eventgraph.ErrNotFound) {
				return fmt.Errorf("event with id %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			return a.printJSON(e)
		},
	}
}

func (a *App) eventVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the event hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.events.VerifyChain(cmd.Context()); err != nil {
				return fmt.Errorf("chain verification failed: %w", err)
			}
			return a.printJSON(map[string]string{"status": "ok", "message": "hash chain verified"})
		},
	}
}
