// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"database/sql"
	"fmt"
	"time"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// A RowObserver receives the results of a statement run by Exec or
// Stmt.StepObserve.
type RowObserver interface {
	// Columns is called once per statement before its first row, or before
	// Done if the statement has columns but produced no rows. declTypes holds
	// each column's declared type, or its storage class if it has none.
	Columns(names, declTypes []string) error
	// Row is called for each result row. NULL values are invalid
	// sql.NullStrings and blobs are rendered as X'..' literals.
	// Returning false stops the statement.
	Row(values []sql.NullString) (more bool, err error)
	// Done is called when a statement has no more rows.
	Done() error
}

// A BusyHandler is called when the engine cannot acquire a lock.
// count is the number of times the handler has been called for the same
// lock. Returning false makes the operation fail with SQLITE_BUSY.
//
// https://www.sqlite.org/c3ref/busy_handler.html
type BusyHandler interface {
	Busy(count int) (retry bool)
}

// BusyFunc is a function that implements BusyHandler.
type BusyFunc func(count int) bool

// Busy calls f.
func (f BusyFunc) Busy(count int) bool { return f(count) }

// A ProgressHandler is called periodically during long-running operations.
// Returning false interrupts the operation.
//
// https://www.sqlite.org/c3ref/progress_handler.html
type ProgressHandler interface {
	Progress() (cont bool)
}

// ProgressFunc is a function that implements ProgressHandler.
type ProgressFunc func() bool

// Progress calls f.
func (f ProgressFunc) Progress() bool { return f() }

// A Tracer is told the text of each statement as it starts running.
type Tracer interface {
	TraceStmt(sql string)
}

// A Profiler is told the text and run time of each statement as it
// finishes.
type Profiler interface {
	Profile(sql string, d time.Duration)
}

// funcPtr converts a Go function value into the uintptr the engine calls
// back. It assumes the memory representation described in
// https://golang.org/s/go11func: the struct holds a pointer to a pointer to
// the function, which lives in the read-only data section and does not move.
func funcPtr[F any](f F) uintptr {
	return *(*uintptr)(unsafe.Pointer(&struct{ f F }{f}))
}

// Native entry points for every hook, set by initTrampolines.
var trampolines struct {
	busy        uintptr
	progress    uintptr
	auth        uintptr
	trace       uintptr
	scalar      uintptr
	step        uintptr
	final       uintptr
	destroyFunc uintptr
	freeAux     uintptr
}

func initTrampolines() {
	trampolines.busy = funcPtr(busyTrampoline)
	trampolines.progress = funcPtr(progressTrampoline)
	trampolines.auth = funcPtr(authTrampoline)
	trampolines.trace = funcPtr(traceTrampoline)
	trampolines.scalar = funcPtr(funcTrampoline)
	trampolines.step = funcPtr(stepTrampoline)
	trampolines.final = funcPtr(finalTrampoline)
	trampolines.destroyFunc = funcPtr(destroyFunc)
	trampolines.freeAux = funcPtr(freeAuxData)
}

// protect runs Go code called back by the engine. A returned error or a
// panic is recorded as the current call's fault and protect returns false.
func (s *session) protect(hook string, f func() error) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			err, isErr := v.(error)
			if !isErr {
				err = fmt.Errorf("panic: %v", v)
			} else {
				err = fmt.Errorf("panic: %w", err)
			}
			s.recordFault(hook, err)
			ok = false
		}
	}()
	if err := f(); err != nil {
		s.recordFault(hook, err)
		return false
	}
	return true
}

// observeRow delivers the current row to obs, preceded by the column
// metadata if this is the statement's first row.
func (stmt *Stmt) observeRow(s *session, obs RowObserver) (bool, error) {
	if !stmt.columnsSent {
		names, declTypes := stmt.columnHeader(s, true)
		stmt.columnsSent = true
		if err := callObserver("columns", func() error { return obs.Columns(names, declTypes) }); err != nil {
			return false, err
		}
	}
	n := int(lib.Xsqlite3_data_count(s.tls, stmt.stmt))
	values := make([]sql.NullString, n)
	for i := range values {
		v, err := stmt.rowValue(s, i)
		if err != nil {
			return false, &CallbackError{Hook: "row", Err: err}
		}
		values[i] = v
	}
	more := true
	err := callObserver("row", func() error {
		var err error
		more, err = obs.Row(values)
		return err
	})
	if err != nil {
		return false, err
	}
	return more, nil
}

// observeDone finishes a statement for obs. A statement that produced no
// rows still reports its columns first.
func (stmt *Stmt) observeDone(s *session, obs RowObserver) error {
	if !stmt.columnsSent && lib.Xsqlite3_column_count(s.tls, stmt.stmt) > 0 {
		names, declTypes := stmt.columnHeader(s, false)
		stmt.columnsSent = true
		if err := callObserver("columns", func() error { return obs.Columns(names, declTypes) }); err != nil {
			return err
		}
	}
	return callObserver("done", obs.Done)
}

// callObserver runs a RowObserver method and converts its failure into a
// *CallbackError.
func callObserver(hook string, f func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			perr, isErr := v.(error)
			if !isErr {
				perr = fmt.Errorf("panic: %v", v)
			} else {
				perr = fmt.Errorf("panic: %w", perr)
			}
			err = &CallbackError{Hook: hook, Err: perr}
		}
	}()
	if err := f(); err != nil {
		return &CallbackError{Hook: hook, Err: err}
	}
	return nil
}

// SetBusyHandler installs h as the connection's busy handler, replacing any
// handler or timeout. A nil h removes it, so that the engine fails at once
// with SQLITE_BUSY.
func (c *Conn) SetBusyHandler(h BusyHandler) error {
	s, err := c.open("set busy handler")
	if err != nil {
		return err
	}
	var x uintptr
	if h != nil {
		x = trampolines.busy
	}
	s.busy = h
	res := ResultCode(lib.Xsqlite3_busy_handler(s.tls, s.db, x, s.db))
	if !res.IsSuccess() {
		s.busy = nil
		return fmt.Errorf("sqlite3: set busy handler: %w", engineError(s.tls, s.db, s.enc, "", res))
	}
	return nil
}

func busyTrampoline(tls *libc.TLS, pArg uintptr, count int32) int32 {
	s := lookupSession(pArg)
	if s == nil || s.busy == nil {
		return 0
	}
	h := s.busy
	retry := false
	if !s.protect("busy", func() error { retry = h.Busy(int(count)); return nil }) {
		return 0
	}
	if retry {
		return 1
	}
	return 0
}

// defaultProgressOps is the number of virtual machine instructions between
// progress checks when only an interrupt channel is set.
const defaultProgressOps = 100

// SetProgressHandler arranges for h to be called every n virtual machine
// instructions. A nil h or n < 1 removes the handler.
func (c *Conn) SetProgressHandler(n int, h ProgressHandler) error {
	s, err := c.open("set progress handler")
	if err != nil {
		return err
	}
	if n < 1 {
		h = nil
	}
	s.progress = h
	s.progressN = n
	s.updateProgressHandler()
	return nil
}

// updateProgressHandler installs the trampoline if either a handler or an
// interrupt channel needs it.
func (s *session) updateProgressHandler() {
	switch {
	case s.progress != nil:
		lib.Xsqlite3_progress_handler(s.tls, s.db, int32(s.progressN), trampolines.progress, s.db)
	case s.doneCh != nil:
		lib.Xsqlite3_progress_handler(s.tls, s.db, defaultProgressOps, trampolines.progress, s.db)
	default:
		lib.Xsqlite3_progress_handler(s.tls, s.db, 0, 0, 0)
	}
}

func progressTrampoline(tls *libc.TLS, pArg uintptr) int32 {
	s := lookupSession(pArg)
	if s == nil {
		return 0
	}
	if s.doneCh != nil {
		select {
		case <-s.doneCh:
			return 1
		default:
		}
	}
	h := s.progress
	if h == nil {
		return 0
	}
	cont := true
	if !s.protect("progress", func() error { cont = h.Progress(); return nil }) {
		return 1
	}
	if !cont {
		return 1
	}
	return 0
}

// SetTracer installs t to receive each statement's text as it starts.
// A nil t removes it.
func (c *Conn) SetTracer(t Tracer) error {
	s, err := c.open("set tracer")
	if err != nil {
		return err
	}
	s.tracer = t
	return s.updateTrace()
}

// SetProfiler installs p to receive each statement's text and run time as
// it finishes. A nil p removes it.
func (c *Conn) SetProfiler(p Profiler) error {
	s, err := c.open("set profiler")
	if err != nil {
		return err
	}
	s.profiler = p
	return s.updateTrace()
}

func (s *session) updateTrace() error {
	var mask uint32
	if s.tracer != nil {
		mask |= lib.SQLITE_TRACE_STMT
	}
	if s.profiler != nil {
		mask |= lib.SQLITE_TRACE_PROFILE
	}
	var res ResultCode
	if mask == 0 {
		res = ResultCode(lib.Xsqlite3_trace_v2(s.tls, s.db, 0, 0, 0))
	} else {
		res = ResultCode(lib.Xsqlite3_trace_v2(s.tls, s.db, mask, trampolines.trace, s.db))
	}
	if !res.IsSuccess() {
		return fmt.Errorf("sqlite3: trace: %w", engineError(s.tls, s.db, s.enc, "", res))
	}
	return nil
}

func traceTrampoline(tls *libc.TLS, mask uint32, pArg, p, x uintptr) int32 {
	s := lookupSession(pArg)
	if s == nil {
		return 0
	}
	switch mask {
	case lib.SQLITE_TRACE_STMT:
		t := s.tracer
		if t == nil {
			return 0
		}
		query, err := s.enc.narrow().fromEngineCString(x)
		s.protect("trace", func() error {
			if err != nil {
				return err
			}
			t.TraceStmt(query)
			return nil
		})
	case lib.SQLITE_TRACE_PROFILE:
		prof := s.profiler
		if prof == nil {
			return 0
		}
		query, err := s.enc.narrow().fromEngineCString(lib.Xsqlite3_sql(tls, p))
		d := time.Duration(*(*int64)(unsafe.Pointer(x)))
		s.protect("profile", func() error {
			if err != nil {
				return err
			}
			prof.Profile(query, d)
			return nil
		})
	}
	return 0
}
