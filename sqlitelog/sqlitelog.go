// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

// Package sqlitelog logs the statements run on a connection to a
// github.com/go-kit/log Logger.
package sqlitelog

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"zombiezen.com/go/sqlite3"
)

// Logger is a sqlite3.Tracer and sqlite3.Profiler that writes debug-level
// log lines.
type Logger struct {
	logger log.Logger
	// SlowThreshold, if positive, logs statements that take at least this
	// long at warn level instead of debug.
	SlowThreshold time.Duration
}

// New returns a Logger that writes to logger.
func New(logger log.Logger) *Logger {
	return &Logger{logger: logger}
}

// TraceStmt implements sqlite3.Tracer.
func (l *Logger) TraceStmt(sql string) {
	level.Debug(l.logger).Log("msg", "statement started", "sql", sql)
}

// Profile implements sqlite3.Profiler.
func (l *Logger) Profile(sql string, d time.Duration) {
	if l.SlowThreshold > 0 && d >= l.SlowThreshold {
		level.Warn(l.logger).Log("msg", "slow statement", "sql", sql, "duration", d)
		return
	}
	level.Debug(l.logger).Log("msg", "statement finished", "sql", sql, "duration", d)
}

// Attach installs l as both the tracer and the profiler of conn.
func (l *Logger) Attach(conn *sqlite3.Conn) error {
	if err := conn.SetTracer(l); err != nil {
		return err
	}
	return conn.SetProfiler(l)
}

// Detach removes the tracer and profiler of conn.
func Detach(conn *sqlite3.Conn) error {
	if err := conn.SetTracer(nil); err != nil {
		return err
	}
	return conn.SetProfiler(nil)
}
