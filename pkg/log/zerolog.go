package log

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	scierrors "github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// zerologLogger is a Logger backed by zerolog.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a zerolog-backed Logger writing JSON lines to w.
func NewZerologLogger(w io.Writer, level string) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &zerologLogger{zl: zl}
}

// NewConsoleLogger creates a human readable zerolog logger, used by the CLI.
func NewConsoleLogger(w io.Writer, level string) Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &zerologLogger{zl: zl}
}

func toZerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *zerologLogger) Debug(msg string, fields ...any) {
	z.zl.Debug().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...any) {
	z.zl.Info().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...any) {
	z.zl.Warn().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...any) {
	ev := z.zl.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			var m zerolog.LogObjectMarshaler
			if scierrors.As(err, &m) {
				ev = ev.EmbedObject(m)
			}
			fields = fields[1:]
		}
	}
	ev.Fields(fields).Msg(msg)
}

func (z *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: z.zl.With().Fields(fields).Logger()}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	var zlvl zerolog.Level
	switch {
	case level <= LevelDebug:
		zlvl = zerolog.DebugLevel
	case level <= LevelInfo:
		zlvl = zerolog.InfoLevel
	case level <= LevelWarn:
		zlvl = zerolog.WarnLevel
	default:
		zlvl = zerolog.ErrorLevel
	}
	return zlvl >= z.zl.GetLevel()
}

// BridgeWarnings routes errors.Warn through l. Warnings that implement
// zerolog.LogObjectMarshaler keep their structured fields when l is a
// zerolog logger.
func BridgeWarnings(l Logger) {
	if zl, ok := l.(*zerologLogger); ok {
		scierrors.SetZerologWarnFunc(func(w error) {
			ev := zl.zl.Warn()
			if m, ok := w.(zerolog.LogObjectMarshaler); ok {
				ev = ev.EmbedObject(m)
			}
			ev.Msg(w.Error())
		})
		return
	}
	scierrors.SetZerologWarnFunc(func(w error) {
		l.Warn(w.Error(), "warning", w)
	})
}
