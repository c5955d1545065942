// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level          string // debug, info, warn, error
	Format         string // json, text (pretty console)
	FileEnabled    bool
	FilePath       string // log file; errors also go to <name>.error.log beside it
	RotationSize   int    // MB
	RetentionDays  int
	ServiceName    string
	ServiceVersion string
	Console        io.Writer // defaults to os.Stderr
}

// Init initializes the global logger
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Console
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	switch cfg.Format {
	case "json":
		writers = append(writers, out)
	default:
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	if cfg.FileEnabled {
		if cfg.FilePath == "" {
			return fmt.Errorf("file logging enabled without a file path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, rotating(cfg.FilePath, cfg.RotationSize, cfg.RetentionDays))

		// Error log (ERROR and above only)
		ext := filepath.Ext(cfg.FilePath)
		errPath := strings.TrimSuffix(cfg.FilePath, ext) + ".error" + ext
		writers = append(writers, &errorOnly{w: rotating(errPath, cfg.RotationSize, cfg.RetentionDays)})
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "" {
		ctx = ctx.Str("version", cfg.ServiceVersion)
	}
	log.Logger = ctx.Logger()

	log.Debug().
		Str("level", level.String()).
		Str("format", cfg.Format).
		Bool("file_enabled", cfg.FileEnabled).
		Msg("Logger initialized")
	return nil
}

// NewAccessLogger creates a logger for HTTP access logs. An empty path
// returns the global logger.
func NewAccessLogger(path string, rotationSize, retentionDays int) zerolog.Logger {
	if path == "" {
		return log.Logger
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn().Err(err).Msg("Failed to create access log directory, using default logger")
		return log.Logger
	}
	return zerolog.New(rotating(path, rotationSize, retentionDays)).With().
		Timestamp().
		Str("type", "access").
		Logger()
}

func rotating(path string, sizeMB, days int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    sizeMB,
		MaxAge:     days,
		MaxBackups: 10,
		Compress:   true,
	}
}

// errorOnly forwards only error-and-above events.
type errorOnly struct {
	w io.Writer
}

func (e *errorOnly) Write(p []byte) (int, error) { return e.w.Write(p) }

func (e *errorOnly) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.ErrorLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}
