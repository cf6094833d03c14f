// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"errors"
	"fmt"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// ErrNoMem is returned when an allocation fails, either inside the engine or
// while transcoding text for it. Engine errors with a primary code of
// SQLITE_NOMEM also match ErrNoMem with errors.Is.
var ErrNoMem = errors.New("sqlite3: out of memory")

// Error is a failure reported by the SQLite engine.
type Error struct {
	// Op is the engine operation that failed, like "step" or "prepare".
	// It may be empty.
	Op string
	// Code is the (possibly extended) result code.
	Code ResultCode
	// Msg is the engine's error message, if one was available.
	Msg string
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.Message()
	}
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Code, msg)
}

// Is reports whether target is ErrNoMem and the error is an out-of-memory
// condition.
func (e *Error) Is(target error) bool {
	return target == ErrNoMem && e.Code.ToPrimary() == ResultNoMem
}

// UsageError is returned when a method is called in a way the package does
// not permit: on a closed resource, with an out of range index,
// or with a malformed command template. Usage errors are detected before
// the engine is called.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	if e.Op == "" {
		return "sqlite3: " + e.Msg
	}
	return "sqlite3: " + e.Op + ": " + e.Msg
}

func usageErrorf(op, format string, args ...any) error {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// CallbackError wraps a failure that happened in Go code called back by the
// engine: a RowObserver, handler or user function. The engine is told to
// abort (or deny) and the fault is returned from the call that started it.
type CallbackError struct {
	// Hook names the callback kind, like "row" or "authorizer".
	Hook string
	Err  error
}

func (e *CallbackError) Error() string {
	return "sqlite3: " + e.Hook + " callback: " + e.Err.Error()
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// ErrCode returns the result code of the first *Error, *UsageError or
// *CallbackError in err's chain. It returns ResultOK for a nil error and
// ResultError for any other error.
func ErrCode(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var u *UsageError
	if errors.As(err, &u) {
		return ResultMisuse
	}
	if errors.Is(err, ErrNoMem) {
		return ResultNoMem
	}
	var cb *CallbackError
	if errors.As(err, &cb) {
		return ResultAbort
	}
	return ResultError
}

// engineError builds an *Error from the connection's most recent failure.
func engineError(tls *libc.TLS, db uintptr, enc Encoding, op string, res ResultCode) *Error {
	e := &Error{Op: op, Code: res}
	if db != 0 {
		if ext := ResultCode(lib.Xsqlite3_extended_errcode(tls, db)); ext.ToPrimary() == res.ToPrimary() {
			e.Code = ext
		}
		msg, err := enc.narrow().fromEngineCString(lib.Xsqlite3_errmsg(tls, db))
		if err != nil {
			msg = libc.GoString(lib.Xsqlite3_errmsg(tls, db))
		}
		e.Msg = msg
	}
	return e
}
