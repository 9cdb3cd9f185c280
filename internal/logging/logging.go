// Package logging builds the charmbracelet/log loggers used across the service.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options holds configuration for a logger.
type Options struct {
	Level           string
	Format          string
	Prefix          string
	ReportTimestamp bool
	Output          io.Writer
}

// New creates a logger from string configuration values.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           ParseLevel(opts.Level),
		Formatter:       ParseFormatter(opts.Format),
		ReportTimestamp: opts.ReportTimestamp,
		Prefix:          opts.Prefix,
	})
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// ParseLevel parses a string log level. Unknown values mean info.
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ParseFormatter parses a formatter name. Unknown values mean text.
func ParseFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
