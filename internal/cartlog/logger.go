// Package cartlog provides structured logging for the cartridge container.
package cartlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with cartridge-specific component loggers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "cartridge").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Noop returns a logger that discards everything, for callers (tests,
// library embedders) that don't want cartridge's logging.
func Noop() *Logger {
	return &Logger{zlog: zerolog.New(io.Discard)}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger { return &l.zlog }

func (l *Logger) Info(msg string) *zerolog.Event  { return l.zlog.Info().Str("msg", msg) }
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }
func (l *Logger) Warn(msg string) *zerolog.Event  { return l.zlog.Warn().Str("msg", msg) }
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }

// WithFields returns a logger with additional fields attached to every
// subsequent event.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// AllocatorLogger returns a logger scoped to the hybrid allocator.
func (l *Logger) AllocatorLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "allocator").Logger()}
}

// CatalogLogger returns a logger scoped to the catalog.
func (l *Logger) CatalogLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "catalog").Logger()}
}

// PagerLogger returns a logger scoped to the pager.
func (l *Logger) PagerLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "pager").Logger()}
}

// BufferPoolLogger returns a logger scoped to the ARC buffer pool.
func (l *Logger) BufferPoolLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "buffer_pool").Logger()}
}

// LogGrow logs an auto-grow event with the old and new container size.
func (l *Logger) LogGrow(oldTotalBlocks, newTotalBlocks uint64) {
	l.zlog.Info().
		Str("event", "container_grow").
		Uint64("old_total_blocks", oldTotalBlocks).
		Uint64("new_total_blocks", newTotalBlocks).
		Msg("container auto-grew")
}

// LogContainerOpen logs a container create/open event.
func (l *Logger) LogContainerOpen(path string, totalBlocks, freeBlocks uint64) {
	l.zlog.Info().
		Str("event", "container_open").
		Str("path", path).
		Uint64("total_blocks", totalBlocks).
		Uint64("free_blocks", freeBlocks).
		Msg("container opened")
}

// LogOperation logs a facade operation with its duration and outcome.
func (l *Logger) LogOperation(operation, path string, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "facade").
		Str("operation", operation).
		Str("path", path).
		Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().
			Str("component", "facade").
			Str("operation", operation).
			Str("path", path).
			Dur("duration_ms", duration).
			Err(err)
	}
	event.Msg("container operation completed")
}

// Global logger instance.
var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance, initializing it
// with sensible defaults if it has not been set up yet.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
