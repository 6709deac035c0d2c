// Package mlog is the structured-logging adapter shared by every component
// of the performance core. It wraps github.com/joeycumines/logiface with the
// github.com/joeycumines/stumpy JSON backend, and defaults to a no-op so the
// core never writes anything unless a host opts in.
package mlog

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level mirrors the subset of logiface levels this core ever emits at.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields is a bag of structured attributes attached to a single log line.
type Fields map[string]any

// Logger is the narrow logging surface every component depends on. It is
// intentionally not generic over the logiface Event type, so that session,
// queryanalyzer, orchestrator, and mconfig never need to know which backend
// is in use.
type Logger interface {
	Log(level Level, category, message string, fields Fields)
	Enabled(level Level) bool
}

// Nop returns a Logger that discards everything. It is the default for
// every component constructor.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Log(Level, string, string, Fields) {}
func (nopLogger) Enabled(Level) bool                { return false }

// stumpyLogger adapts a logiface.Logger[*stumpy.Event] to Logger.
type stumpyLogger struct {
	logger *logiface.Logger[*stumpy.Event]
}

// NewJSON builds a Logger that writes newline-delimited JSON to w via the
// stumpy event backend. minLevel filters events before they reach the
// logiface pipeline.
func NewJSON(w io.Writer, minLevel Level) Logger {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(toLogifaceLevel(minLevel)),
	)
	return &stumpyLogger{logger: logger}
}

func (s *stumpyLogger) Enabled(level Level) bool {
	return s.logger.Level() >= toLogifaceLevel(level)
}

func (s *stumpyLogger) Log(level Level, category, message string, fields Fields) {
	b := s.builder(level)
	if b == nil || !b.Enabled() {
		return
	}
	if category != "" {
		b = b.Str("category", category)
	}
	for k, v := range fields {
		b = addField(b, k, v)
	}
	b.Log(message)
}

func (s *stumpyLogger) builder(level Level) *logiface.Builder[*stumpy.Event] {
	switch level {
	case LevelDebug:
		return s.logger.Debug()
	case LevelWarn:
		return s.logger.Warning()
	case LevelError:
		return s.logger.Err()
	default:
		return s.logger.Info()
	}
}

func addField(b *logiface.Builder[*stumpy.Event], key string, val any) *logiface.Builder[*stumpy.Event] {
	switch v := val.(type) {
	case string:
		return b.Str(key, v)
	case int:
		return b.Int(key, v)
	case int64:
		return b.Int64(key, v)
	case uint64:
		return b.Uint64(key, v)
	case float64:
		return b.Float64(key, v)
	case bool:
		return b.Bool(key, v)
	case error:
		return b.Err(v)
	default:
		return b.Any(key, v)
	}
}

func toLogifaceLevel(level Level) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
