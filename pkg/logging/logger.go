// Package logging configures zerolog for the LRN resolver.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as read from LOG_LEVEL.
type LogLevel string

const (
	// LevelDebug logs per-attempt detail and cache hits.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs run progress and summaries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retried attempts and timeouts.
	LevelWarn LogLevel = "warn"

	// LevelError logs exhausted lookups and failed batches.
	LevelError LogLevel = "error"
)

// Component names attached to loggers as the "component" field.
const (
	ComponentResolver = "lrn-resolver"
	ComponentBatch    = "lrn-batch"
	ComponentCache    = "lrn-cache"
	ComponentServer   = "lrn-server"
	ComponentCLI      = "lrn-cli"
)

// Config selects the level and format of the global logger.
type Config struct {
	Level  LogLevel
	Pretty bool      // console output instead of JSON
	Output io.Writer // nil means stderr
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "fatal":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger tagged with component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hits inside a run
//   - Individual attempts and their outcome
//
// Info: Normal operation events
//   - Batch start with derived sub-batch size and concurrency
//   - Progress after each major batch
//   - Adaptive throttling snapshot every third sub-batch
//   - Run summary (hits, misses, successes, errors, rates)
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retried attempts with their backoff
//   - Sub-batch timeouts
//   - Throttle publish failures
//
// Error: Error conditions requiring attention
//   - Lookups that exhausted every attempt
//   - Major batches aborted (session open failure, panic)
//   - Cache load/save failures
//   - Configuration errors
//
// Context Fields:
//   - run_id: Batch run identifier
//   - number: Phone number being resolved
//   - attempt / max_attempts: Retry position
//   - backoff: Wait before the next attempt
//   - error_class: network, timeout, status, short_body
//   - major_batch: Index of the current major batch
//   - success_rate / pause: Throttle controller state
