package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log destinations and verbosity.
type Config struct {
	Level string // debug, info, warn, error
	Dir   string // rotating-file directory; empty disables file output
	File  string // file name inside Dir
}

// Setup builds the root logger: console on stderr, plus a rotating file
// (5 MB per file, 5 backups) when Dir is set.
func Setup(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}
	if cfg.Dir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, cfg.File),
			MaxSize:    5, // MB
			MaxBackups: 5,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component derives a sub-logger tagged with a component name.
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
