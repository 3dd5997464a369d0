// Package logging is the leveled logger threaded through projmap. Every component takes a Logger
// and never writes to stdout directly, so the CLI decides where lines go: stderr, a rotating log
// file, or the test log.
package logging

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fallback serves callers that run before the CLI has built its logger.
var fallback = NewLoggerTo("projmap", INFO, NewWriterAppender(os.Stderr))

// Global returns the logger used when no other has been configured.
func Global() Logger {
	return fallback
}

// NewLoggerTo returns a logger stamping UTC times that writes entries at or above level to each
// of appenders. More appenders can be attached later with AddAppender.
func NewLoggerTo(name string, level Level, appenders ...Appender) Logger {
	return &impl{name, NewAtomicLevelAt(level), true, append([]Appender(nil), appenders...)}
}

// NewLogger returns an INFO logger on stdout.
func NewLogger(name string) Logger {
	return NewLoggerTo(name, INFO, NewWriterAppender(os.Stdout))
}

// NewTestLogger sends DEBUG and up to tb.Log in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is NewTestLogger plus an observer for asserting on what was logged.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	return &impl{"", NewAtomicLevelAt(DEBUG), false, []Appender{NewTestAppender(tb), core}}, logs
}
