package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	gfshutdown "github.com/gelmium/graceful-shutdown"

	"todo-api/internal/api"
	"todo-api/internal/config"
	"todo-api/internal/db"
	"todo-api/internal/logging"
	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default ./todo.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	logger := logging.New(logging.Options{
		Level:           cfg.LogLevel,
		Format:          cfg.LogFormat,
		Prefix:          "todo-api",
		ReportTimestamp: true,
	})

	ctx := context.Background()
	backend, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open database", "driver", cfg.DBDriver, "err", err)
	}

	bus := eventgraph.NewBus(backend.Events)
	tasks := task.NewService(backend.Tasks,
		task.WithEvents(bus),
		task.WithLogger(logger.WithPrefix("task")),
		task.WithSource("api"),
	)

	handler := api.New(tasks, bus, logger.WithPrefix("api"))
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open event streams never finish on their own.
	srv.RegisterOnShutdown(handler.CloseStreams)

	go func() {
		logger.Info("listening", "addr", srv.Addr, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", "err", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"todo-api": func(ctx context.Context) error {
			logger.Info("shutting down http server")
			err := srv.Shutdown(ctx)
			if cerr := backend.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return err
		},
	})

	exitCode := <-wait
	logger.Info("exited", "code", exitCode)
	os.Exit(exitCode)
}
