// Package cli implements the todo command-line client. It drives the same task
// service as the HTTP server, directly against the configured database.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"todo-api/internal/config"
	"todo-api/internal/db"
	"todo-api/internal/logging"
	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

// Opener connects to a storage backend.
type Opener func(ctx context.Context, cfg *config.Config) (*db.Backend, error)

// App holds the dependencies of one CLI invocation. Zero fields get
// production defaults in NewRootCmd.
type App struct {
	Out   io.Writer
	Err   io.Writer
	Open  Opener
	Now   func() time.Time
	NewID func() string

	cfgPath string
	format  string
	backend *db.Backend
	tasks   *task.Service
	events  eventgraph.EventStore
}

// NewRootCmd builds the command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Err == nil {
		app.Err = os.Stderr
	}
	if app.Open == nil {
		app.Open = db.Open
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.NewID == nil {
		app.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	root := &cobra.Command{
		Use:   "todo",
		Short: "Manage to-do tasks",
		Long: `todo creates, updates and lists to-do tasks and inspects the
hash-chained event log recorded for every change.

Storage is selected with DB_DRIVER (sqlite or postgres) or a todo.yaml
config file, exactly as for the server.`,
		SilenceUsage:       true,
		PersistentPreRunE:  app.setup,
		PersistentPostRunE: app.teardown,
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	root.PersistentFlags().StringVar(&app.cfgPath, "config", "", "path to a config file (default ./todo.yaml)")
	root.PersistentFlags().StringVar(&app.format, "format", "json", "output format for lists: json or short")

	root.AddCommand(
		app.taskCmd(),
		app.eventCmd(),
		app.statusCmd(),
		app.initCmd(),
	)
	return root
}

// Execute runs the CLI with production defaults.
func Execute() error {
	return NewRootCmd(&App{}).Execute()
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Prefix: "cli",
		Output: a.Err,
	})
	backend, err := a.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.DBDriver, err)
	}
	a.backend = backend
	a.events = backend.Events
	a.tasks = task.NewService(backend.Tasks,
		task.WithEvents(backend.Events),
		task.WithLogger(logger),
		task.WithClock(a.Now),
		task.WithSource("cli"),
	)
	return nil
}

func (a *App) teardown(_ *cobra.Command, _ []string) error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend = nil
	return err
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task and event counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			taskCount, err := a.tasks.Count(ctx)
			if err != nil {
				return fmt.Errorf("count tasks: %w", err)
			}
			eventCount, err := a.events.Count(ctx)
			if err != nil {
				return fmt.Errorf("count events: %w", err)
			}
			return a.printJSON(map[string]any{
				"driver": a.backend.Driver,
				"tasks":  taskCount,
				"events": eventCount,
			})
		},
	}
}

func (a *App) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database tables",
		Long:  "Create the events and tasks tables if they do not exist.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.backend.Events.EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure events table: %w", err)
			}
			if err := a.backend.Tasks.EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure tasks table: %w", err)
			}
			return a.printJSON(map[string]string{"status": "ok", "message": "all tables initialized"})
		},
	}
}
