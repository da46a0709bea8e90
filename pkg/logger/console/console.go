// Package console writes log lines to a terminal or any other writer.
package console

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// ConsoleLogger is a logger.LoggerInstance backed by charmbracelet/log.
type ConsoleLogger struct {
	logger *log.Logger
}

// ConsoleLoggerParams configures a ConsoleLogger. JSON switches to one
// object per line, which the worker uses. Writer defaults to stderr.
type ConsoleLoggerParams struct {
	Debug  bool
	Prefix string
	JSON   bool
	Writer io.Writer
}

func NewConsoleLogger(params ConsoleLoggerParams) *ConsoleLogger {
	opts := log.Options{
		ReportTimestamp: true,
		Level:           log.InfoLevel,
		Prefix:          params.Prefix,
		Formatter:       log.TextFormatter,
	}
	if params.Debug {
		opts.Level = log.DebugLevel
	}
	if params.JSON {
		opts.Formatter = log.JSONFormatter
	}
	w := params.Writer
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleLogger{logger: log.NewWithOptions(w, opts)}
}

func (c *ConsoleLogger) Log(message string, keyvals ...any)   { c.logger.Print(message, keyvals...) }
func (c *ConsoleLogger) Debug(message string, keyvals ...any) { c.logger.Debug(message, keyvals...) }
func (c *ConsoleLogger) Info(message string, keyvals ...any)  { c.logger.Info(message, keyvals...) }
func (c *ConsoleLogger) Warn(message string, keyvals ...any)  { c.logger.Warn(message, keyvals...) }
func (c *ConsoleLogger) Error(message string, keyvals ...any) { c.logger.Error(message, keyvals...) }

// Fatal logs and exits with status 1.
func (c *ConsoleLogger) Fatal(message string, keyvals ...any) { c.logger.Fatal(message, keyvals...) }
