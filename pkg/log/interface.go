// Package log provides a structured logging interface for the price
// estimation engine.
//
// The interface is slog-compatible so that the search, boosting and
// calibration stages can log through whatever backend the host process uses.
// Two backends ship with the package: a log/slog JSON handler (SetupLogger)
// and a zerolog logger (NewZerologLogger).
//
// Example usage:
//
//	logger := log.GetLoggerWithName("boost.trainer").With(
//	    log.ObjectiveKey, "asymmetric",
//	)
//	logger.Info("Training started",
//	    log.SamplesKey, 800,
//	    log.FeaturesKey, 13,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. With returns a child
// logger that includes the given fields in every record.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it is
	// attached under ErrAttrKey together with its stack trace.
	//
	//	logger.Error("Calibration failed", err, log.SamplesKey, 0)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
