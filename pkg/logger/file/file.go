package file

import (
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements LoggerInstance by writing JSON lines to a rotating
// log file.
type FileLogger struct {
	logger *log.Logger
	writer *lumberjack.Logger
}

// FileLoggerParams contains configuration for creating a FileLogger.
//
// MaxSizeMB is the size at which the file is rotated, MaxBackups the number
// of rotated files kept.
type FileLoggerParams struct {
	Path       string
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileLogger creates a logger writing to params.Path.
func NewFileLogger(params FileLoggerParams) *FileLogger {
	if params.MaxSizeMB <= 0 {
		params.MaxSizeMB = 50
	}
	if params.MaxBackups <= 0 {
		params.MaxBackups = 5
	}

	w := &lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
		MaxAge:     params.MaxAgeDays,
		Compress:   true,
	}

	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       log.JSONFormatter,
	})

	return &FileLogger{logger: logger, writer: w}
}

// Close flushes and closes the underlying file.
func (f *FileLogger) Close() error {
	return f.writer.Close()
}

func (f *FileLogger) Log(message string, keyvals ...any) {
	f.logger.Print(message, keyvals...)
}

func (f *FileLogger) Info(message string, keyvals ...any) {
	f.logger.Info(message, keyvals...)
}

func (f *FileLogger) Warn(message string, keyvals ...any) {
	f.logger.Warn(message, keyvals...)
}

func (f *FileLogger) Error(message string, keyvals ...any) {
	f.logger.Error(message, keyvals...)
}

func (f *FileLogger) Debug(message string, keyvals ...any) {
	f.logger.Debug(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (f *FileLogger) Fatal(message string, keyvals ...any) {
	f.logger.Fatal(message, keyvals...)
}
