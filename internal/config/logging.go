package config

import (
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/logger/console"
	"github.com/OFFIS-RIT/graphrag/pkg/logger/file"
)

// InitLogger sets up the console backend and, with a log file configured,
// a rotating file backend. prefix names the process, e.g. "worker".
func (c LogConfig) InitLogger(prefix string) {
	instances := []logger.LoggerInstance{
		console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  c.Debug,
			Prefix: prefix,
			JSON:   c.JSON,
		}),
	}
	if c.File != "" {
		instances = append(instances, file.NewFileLogger(file.FileLoggerParams{
			Path:  c.File,
			Debug: c.Debug,
		}))
	}
	logger.Init(instances...)
}
