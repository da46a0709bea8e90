// Package logger is a process wide fan-out logger. Backends register once
// through Init; calls before Init are dropped.
package logger

import (
	"io"
	"sync/atomic"
)

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

var backends atomic.Pointer[[]LoggerInstance]

// Init replaces the configured backends.
func Init(instances ...LoggerInstance) {
	backends.Store(&instances)
}

// Close closes every backend that holds a resource, e.g. a log file.
func Close() error {
	var first error
	each(func(l LoggerInstance) {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}

func each(fn func(LoggerInstance)) {
	list := backends.Load()
	if list == nil {
		return
	}
	for _, l := range *list {
		fn(l)
	}
}

func Log(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Log(message, keyvals...) })
}

func Debug(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Error(message, keyvals...) })
}

// Fatal logs to all backends; the first backend that exits ends the
// process.
func Fatal(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Fatal(message, keyvals...) })
}
