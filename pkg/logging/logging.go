// Package logging builds the application's root zerolog logger: structured
// JSON lines to a size-rotated file, optionally mirrored to the console.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the root logger's level and sinks.
type Config struct {
	// Level is a zerolog level name (debug, info, warn, error). Empty means info.
	Level string
	// File is the log file path. Empty disables the file sink.
	File string
	// MaxSizeMB is the size threshold at which the log file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files retained.
	MaxBackups int
	// Console mirrors log lines to stdout in human-readable form.
	Console bool
}

// New returns a logger configured per cfg. The returned logger is the single
// root; components derive their own via With().Str("component", ...).
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), err
		}
		level = parsed
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, nil
}
