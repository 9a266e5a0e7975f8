package logger

import (
	"io"
	"os"
)

// Format selects how log lines are rendered.
type Format string

const (
	ConsoleFormat Format = "console"
	JSONFormat    Format = "json"
)

// FileConfig enables a rotating log file alongside the configured outputs.
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// Config describes a logger.
type Config struct {
	Level     string
	Format    Format
	Outputs   []io.Writer
	Subsystem string
	File      *FileConfig
}

// DefaultConfig logs at info level to stderr in console format.
func DefaultConfig() *Config {
	return &Config{
		Level:   "info",
		Format:  ConsoleFormat,
		Outputs: []io.Writer{os.Stderr},
	}
}

// ProductionConfig logs JSON at info level to stdout and, when filename is
// set, to a rotating file.
func ProductionConfig(filename string) *Config {
	cfg := &Config{
		Level:   "info",
		Format:  JSONFormat,
		Outputs: []io.Writer{os.Stdout},
	}
	if filename != "" {
		cfg.File = &FileConfig{
			Filename:   filename,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		}
	}
	return cfg
}
