// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"database/sql"
	"fmt"
	"math"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// StmtState is the lifecycle state of a Stmt.
type StmtState int

// Statement states.
const (
	// StmtUncompiled is a statement whose text has not been prepared, or whose
	// preparation failed.
	StmtUncompiled StmtState = iota
	// StmtCompiled is a prepared statement that has not produced a row yet.
	StmtCompiled
	// StmtExecuting is a statement with a row available.
	StmtExecuting
	// StmtDone is a statement that has run to completion.
	StmtDone
	// StmtFinalized is a statement whose native handle has been released.
	StmtFinalized
)

func (state StmtState) String() string {
	switch state {
	case StmtUncompiled:
		return "uncompiled"
	case StmtCompiled:
		return "compiled"
	case StmtExecuting:
		return "executing"
	case StmtDone:
		return "done"
	case StmtFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("StmtState(%d)", int(state))
	}
}

// ColumnType are codes for each of the SQLite fundamental datatypes:
//
//   - 64-bit signed integer
//   - 64-bit IEEE floating point number
//   - string
//   - BLOB
//   - NULL
//
// https://www.sqlite.org/c3ref/c_blob.html
type ColumnType int

// Data types.
const (
	TypeInteger ColumnType = lib.SQLITE_INTEGER
	TypeFloat   ColumnType = lib.SQLITE_FLOAT
	TypeText    ColumnType = lib.SQLITE_TEXT
	TypeBlob    ColumnType = lib.SQLITE_BLOB
	TypeNull    ColumnType = lib.SQLITE_NULL
)

// String returns the SQLite constant name of the type.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "SQLITE_INTEGER"
	case TypeFloat:
		return "SQLITE_FLOAT"
	case TypeText:
		return "SQLITE_TEXT"
	case TypeBlob:
		return "SQLITE_BLOB"
	case TypeNull:
		return "SQLITE_NULL"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// storageName is the declared type reported to a RowObserver for a column
// that has none.
func (t ColumnType) storageName() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "double"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	default:
		return "null"
	}
}

// Stmt is a compiled SQL statement list. It steps through one statement at a
// time; CompileNext moves on to the statement after the current one.
//
// A Stmt belongs to the Conn that compiled it and is finalized when that
// Conn is closed.
type Stmt struct {
	childNode
	stmt uintptr

	// src is the full statement text in the connection's encoding.
	// tail is the byte offset of the first statement not yet compiled.
	src  cbuf
	tail int
	wide bool

	state       StmtState
	columnsSent bool
	lastErr     error
	query       string
}

func (stmt *Stmt) kind() resourceKind { return kindStmt }

// release finalizes the native statement and frees its text.
func (stmt *Stmt) release(tls *libc.TLS) {
	if stmt.stmt != 0 {
		lib.Xsqlite3_finalize(tls, stmt.stmt)
		stmt.stmt = 0
	}
	stmt.src.free(tls)
	stmt.state = StmtFinalized
}

// Compile prepares the first statement of query. Remaining statements are
// compiled by CompileNext. If query contains no statement (only whitespace
// or comments), the returned Stmt is already StmtDone.
//
// https://www.sqlite.org/c3ref/prepare.html
func (c *Conn) Compile(query string) (*Stmt, error) {
	s, err := c.open("compile")
	if err != nil {
		return nil, err
	}
	buf, err := s.enc.toEngine(s.tls, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: compile: %w", err)
	}
	return s.newStmt(buf)
}

// CompileArgs expands query as a command template with args (see Format)
// and compiles the result like Compile.
func (c *Conn) CompileArgs(query string, args ...any) (*Stmt, error) {
	s, err := c.open("compile")
	if err != nil {
		return nil, err
	}
	// Wide connections format in UTF-8 and recode the result.
	narrow := s.enc.narrow()
	buf, err := formatCommand(s.tls, narrow, s.version, query, args)
	if err != nil {
		return nil, err
	}
	if s.enc.Wide {
		text, err := narrow.fromEngineNarrow(buf.p, buf.n)
		buf.free(s.tls)
		if err != nil {
			return nil, fmt.Errorf("sqlite3: compile: %w", err)
		}
		buf, err = s.enc.toEngine(s.tls, text)
		if err != nil {
			return nil, fmt.Errorf("sqlite3: compile: %w", err)
		}
	}
	return s.newStmt(buf)
}

// newStmt takes ownership of buf and compiles its first statement.
func (s *session) newStmt(buf cbuf) (*Stmt, error) {
	stmt := &Stmt{src: buf, wide: s.enc.Wide}
	if err := s.reg.register(s, stmt); err != nil {
		buf.free(s.tls)
		return nil, err
	}
	if _, err := stmt.compile(s); err != nil {
		s.reg.unregister(stmt)
		stmt.release(s.tls)
		return nil, err
	}
	return stmt, nil
}

// compile prepares the statement at the current tail. It reports false if
// no statement remains, in which case the Stmt is left StmtDone.
func (stmt *Stmt) compile(s *session) (bool, error) {
	stmtPtr, err := malloc(s.tls, 2*ptrSize)
	if err != nil {
		stmt.lastErr = err
		return false, err
	}
	defer libc.Xfree(s.tls, stmtPtr)
	tailPtr := stmtPtr + uintptr(ptrSize)

	for stmt.tail < stmt.src.n {
		if err := s.interrupted(); err != nil {
			stmt.lastErr = err
			return false, fmt.Errorf("sqlite3: prepare: %w", err)
		}
		*(*uintptr)(unsafe.Pointer(stmtPtr)) = 0
		*(*uintptr)(unsafe.Pointer(tailPtr)) = 0
		start := stmt.src.p + uintptr(stmt.tail)
		n := int32(stmt.src.n - stmt.tail)
		f := s.enter("prepare")
		var res ResultCode
		if stmt.wide {
			res = ResultCode(lib.Xsqlite3_prepare16_v2(s.tls, s.db, start, n, stmtPtr, tailPtr))
		} else {
			res = ResultCode(lib.Xsqlite3_prepare_v2(s.tls, s.db, start, n, stmtPtr, tailPtr))
		}
		fault := s.leave(f)
		handle := *(*uintptr)(unsafe.Pointer(stmtPtr))
		if fault != nil || !res.IsSuccess() {
			if handle != 0 {
				lib.Xsqlite3_finalize(s.tls, handle)
			}
			err := fault
			if err == nil {
				err = engineError(s.tls, s.db, s.enc, "prepare", res)
			}
			stmt.lastErr = err
			return false, fmt.Errorf("sqlite3: %w", err)
		}
		next := stmt.src.n
		if t := *(*uintptr)(unsafe.Pointer(tailPtr)); t != 0 {
			next = int(t - stmt.src.p)
		}
		if next <= stmt.tail {
			next = stmt.src.n
		}
		stmt.tail = next
		if handle == 0 {
			// Whitespace or a comment.
			continue
		}
		stmt.stmt = handle
		stmt.state = StmtCompiled
		stmt.columnsSent = false
		stmt.lastErr = nil
		stmt.query = stmt.sqlText(s)
		return true, nil
	}
	stmt.state = StmtDone
	stmt.lastErr = nil
	stmt.query = ""
	return false, nil
}

func (stmt *Stmt) sqlText(s *session) string {
	p := lib.Xsqlite3_sql(s.tls, stmt.stmt)
	if stmt.wide {
		// The engine keeps a UTF-8 copy of UTF-16 statement text.
		return libc.GoString(p)
	}
	text, _ := s.enc.fromEngineCString(p)
	return text
}

// CompileNext finalizes the current statement and compiles the next one in
// the text given to Compile. It reports false when no statements remain.
func (stmt *Stmt) CompileNext() (bool, error) {
	s, err := stmt.session("compile")
	if err != nil {
		return false, err
	}
	if err := stmt.checkIdle(s, "compile"); err != nil {
		return false, err
	}
	if stmt.stmt != 0 {
		lib.Xsqlite3_finalize(s.tls, stmt.stmt)
		stmt.stmt = 0
	}
	stmt.state = StmtUncompiled
	return stmt.compile(s)
}

// session returns the owning session of a statement that has not been
// finalized, or a usage error.
func (stmt *Stmt) session(op string) (*session, error) {
	if stmt == nil {
		return nil, usageErrorf(op, "nil statement")
	}
	if stmt.owner == nil || stmt.owner.db == 0 {
		err := usageErrorf(op, "statement finalized")
		stmt.lastErr = err
		return nil, err
	}
	return stmt.owner, nil
}

// handle is like session but also requires a native statement.
func (stmt *Stmt) handle(op string) (*session, error) {
	s, err := stmt.session(op)
	if err != nil {
		return nil, err
	}
	if stmt.stmt == 0 {
		err := usageErrorf(op, "no statement compiled")
		stmt.lastErr = err
		return nil, err
	}
	return s, nil
}

// State returns the statement's lifecycle state.
func (stmt *Stmt) State() StmtState {
	if stmt.owner == nil {
		return StmtFinalized
	}
	return stmt.state
}

// LastError returns the error from the most recent failed operation on the
// statement, or nil if the most recent operation succeeded.
func (stmt *Stmt) LastError() error {
	return stmt.lastErr
}

// SQL returns the text of the current statement.
func (stmt *Stmt) SQL() string {
	return stmt.query
}

// Close finalizes the statement. Closing an already finalized statement,
// including one finalized by closing its Conn, does nothing.
//
// https://www.sqlite.org/c3ref/finalize.html
func (stmt *Stmt) Close() error {
	if stmt == nil || stmt.owner == nil {
		return nil
	}
	s := stmt.owner
	if err := stmt.checkIdle(s, "close statement"); err != nil {
		return err
	}
	s.reg.unregister(stmt)
	stmt.release(s.tls)
	return nil
}

// checkIdle reports a usage error if stmt is being stepped further up the
// call stack, as happens when a callback reaches its own statement.
func (stmt *Stmt) checkIdle(s *session, op string) error {
	if !s.running(stmt) {
		return nil
	}
	err := usageErrorf(op, "statement is executing")
	stmt.lastErr = err
	return err
}

// fail finalizes the statement after err and records it.
func (stmt *Stmt) fail(s *session, err error) {
	s.reg.unregister(stmt)
	stmt.release(s.tls)
	stmt.lastErr = err
}

// Step evaluates the current statement. It reports true while rows are
// available. When Step reports false without an error, the statement is
// StmtDone and may be Reset or moved on with CompileNext.
//
// A failure finalizes the statement.
//
// https://www.sqlite.org/c3ref/step.html
func (stmt *Stmt) Step() (rowReturned bool, err error) {
	return stmt.StepObserve(nil)
}

// StepObserve is like Step, but delivers the statement's column metadata
// and the current row to obs. The metadata is delivered once per compiled
// statement, before the first row or, for a statement with columns that
// produced no rows, before obs.Done.
//
// If obs asks to stop, the statement is finalized and StepObserve returns
// false with no error.
func (stmt *Stmt) StepObserve(obs RowObserver) (rowReturned bool, err error) {
	s, err := stmt.session("step")
	if err != nil {
		return false, err
	}
	switch stmt.state {
	case StmtDone:
		return false, nil
	case StmtUncompiled:
		err := usageErrorf("step", "no statement compiled")
		stmt.lastErr = err
		return false, err
	}
	if err := stmt.checkIdle(s, "step"); err != nil {
		return false, err
	}
	if err := s.interrupted(); err != nil {
		stmt.fail(s, err)
		return false, fmt.Errorf("sqlite3: step: %w", err)
	}

	f := s.enter("step")
	f.stmt = stmt
	res := ResultCode(lib.Xsqlite3_step(s.tls, stmt.stmt))
	fault := s.leave(f)
	if fault != nil {
		stmt.fail(s, fault)
		return false, fault
	}
	switch res {
	case ResultRow:
		stmt.state = StmtExecuting
		stmt.lastErr = nil
		if obs == nil {
			return true, nil
		}
		f := s.enter("observe")
		f.stmt = stmt
		more, err := stmt.observeRow(s, obs)
		s.leave(f)
		if err != nil {
			stmt.fail(s, err)
			return false, err
		}
		if !more {
			s.reg.unregister(stmt)
			stmt.release(s.tls)
			return false, nil
		}
		return true, nil
	case ResultDone:
		stmt.state = StmtDone
		stmt.lastErr = nil
		if obs == nil {
			return false, nil
		}
		f := s.enter("observe")
		f.stmt = stmt
		err := stmt.observeDone(s, obs)
		s.leave(f)
		if err != nil {
			stmt.fail(s, err)
			return false, err
		}
		return false, nil
	default:
		err := engineError(s.tls, s.db, s.enc, "step", res)
		stmt.fail(s, err)
		return false, fmt.Errorf("sqlite3: %w", err)
	}
}

// Reset returns the statement to StmtCompiled so it can be stepped again.
// Bindings are kept.
//
// https://www.sqlite.org/c3ref/reset.html
func (stmt *Stmt) Reset() error {
	s, err := stmt.handle("reset")
	if err != nil {
		return err
	}
	if err := stmt.checkIdle(s, "reset"); err != nil {
		return err
	}
	res := ResultCode(lib.Xsqlite3_reset(s.tls, stmt.stmt))
	stmt.state = StmtCompiled
	stmt.columnsSent = false
	if !res.IsSuccess() {
		err := engineError(s.tls, s.db, s.enc, "reset", res)
		stmt.lastErr = err
		return fmt.Errorf("sqlite3: %w", err)
	}
	stmt.lastErr = nil
	return nil
}

// ClearBindings sets all bound parameters to NULL.
//
// https://www.sqlite.org/c3ref/clear_bindings.html
func (stmt *Stmt) ClearBindings() error {
	s, err := stmt.handle("clear bindings")
	if err != nil {
		return err
	}
	res := ResultCode(lib.Xsqlite3_clear_bindings(s.tls, stmt.stmt))
	return stmt.result(s, "clear bindings", res)
}

// result records the outcome of an engine call on the statement.
func (stmt *Stmt) result(s *session, op string, res ResultCode) error {
	if res.IsSuccess() {
		stmt.lastErr = nil
		return nil
	}
	err := engineError(s.tls, s.db, s.enc, op, res)
	stmt.lastErr = err
	return fmt.Errorf("sqlite3: %w", err)
}

// bindHandle checks that param is a valid 1-based parameter index.
func (stmt *Stmt) bindHandle(op string, param int) (*session, error) {
	s, err := stmt.handle(op)
	if err != nil {
		return nil, err
	}
	if n := int(lib.Xsqlite3_bind_parameter_count(s.tls, stmt.stmt)); param < 1 || param > n {
		err := usageErrorf(op, "parameter %d out of range [1, %d]", param, n)
		stmt.lastErr = err
		return nil, err
	}
	return s, nil
}

// BindInt64 binds value to a numbered parameter.
//
// Parameter indices start at 1.
//
// https://www.sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindInt64(param int, value int64) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	res := ResultCode(lib.Xsqlite3_bind_int64(s.tls, stmt.stmt, int32(param), value))
	return stmt.result(s, "bind", res)
}

// BindBool binds value (as an integer 0 or 1) to a numbered parameter.
func (stmt *Stmt) BindBool(param int, value bool) error {
	var v int64
	if value {
		v = 1
	}
	return stmt.BindInt64(param, v)
}

// BindFloat binds value to a numbered parameter.
func (stmt *Stmt) BindFloat(param int, value float64) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	res := ResultCode(lib.Xsqlite3_bind_double(s.tls, stmt.stmt, int32(param), value))
	return stmt.result(s, "bind", res)
}

// BindNull binds an SQL NULL value to a numbered parameter.
func (stmt *Stmt) BindNull(param int) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	res := ResultCode(lib.Xsqlite3_bind_null(s.tls, stmt.stmt, int32(param)))
	return stmt.result(s, "bind", res)
}

// BindZeroBlob binds a blob of zeros of length len to a numbered parameter.
func (stmt *Stmt) BindZeroBlob(param int, len int64) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	if len < 0 || len > math.MaxInt32 {
		err := usageErrorf("bind", "zero blob length %d out of range", len)
		stmt.lastErr = err
		return err
	}
	res := ResultCode(lib.Xsqlite3_bind_zeroblob(s.tls, stmt.stmt, int32(param), int32(len)))
	return stmt.result(s, "bind", res)
}

// BindText binds value to a numbered parameter, transcoding it into the
// connection's encoding.
func (stmt *Stmt) BindText(param int, value string) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	buf, err := s.enc.toEngine(s.tls, value)
	if err != nil {
		stmt.lastErr = err
		return fmt.Errorf("sqlite3: bind: %w", err)
	}
	defer buf.free(s.tls)
	var res ResultCode
	if stmt.wide {
		res = ResultCode(lib.Xsqlite3_bind_text16(s.tls, stmt.stmt, int32(param), buf.p, int32(buf.n), sqliteTransient))
	} else {
		res = ResultCode(lib.Xsqlite3_bind_text(s.tls, stmt.stmt, int32(param), buf.p, int32(buf.n), sqliteTransient))
	}
	return stmt.result(s, "bind", res)
}

// BindBytes binds value to a numbered parameter as a blob.
// A nil value binds an empty blob, not NULL.
func (stmt *Stmt) BindBytes(param int, value []byte) error {
	s, err := stmt.bindHandle("bind", param)
	if err != nil {
		return err
	}
	if len(value) == 0 {
		res := ResultCode(lib.Xsqlite3_bind_zeroblob(s.tls, stmt.stmt, int32(param), 0))
		return stmt.result(s, "bind", res)
	}
	buf, err := newCBuf(s.tls, value, 0)
	if err != nil {
		stmt.lastErr = err
		return fmt.Errorf("sqlite3: bind: %w", err)
	}
	defer buf.free(s.tls)
	res := ResultCode(lib.Xsqlite3_bind_blob(s.tls, stmt.stmt, int32(param), buf.p, int32(buf.n), sqliteTransient))
	return stmt.result(s, "bind", res)
}

// BindParamCount reports the number of parameters in the current statement.
//
// https://www.sqlite.org/c3ref/bind_parameter_count.html
func (stmt *Stmt) BindParamCount() int {
	s, err := stmt.handle("bind parameter count")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_bind_parameter_count(s.tls, stmt.stmt))
}

// BindParamName returns the name of the parameter at the given 1-based
// index, including its prefix character ("?NNN", ":AAA", "@AAA" or "$AAA").
// Nameless parameters return the empty string.
//
// https://www.sqlite.org/c3ref/bind_parameter_name.html
func (stmt *Stmt) BindParamName(param int) string {
	s, err := stmt.bindHandle("bind parameter name", param)
	if err != nil {
		return ""
	}
	return libc.GoString(lib.Xsqlite3_bind_parameter_name(s.tls, stmt.stmt, int32(param)))
}

// BindParamIndex returns the 1-based index of the named parameter,
// or 0 if there is no such parameter.
//
// https://www.sqlite.org/c3ref/bind_parameter_index.html
func (stmt *Stmt) BindParamIndex(name string) int {
	s, err := stmt.handle("bind parameter index")
	if err != nil {
		return 0
	}
	cname, err := libc.CString(name)
	if err != nil {
		stmt.lastErr = ErrNoMem
		return 0
	}
	defer libc.Xfree(s.tls, cname)
	return int(lib.Xsqlite3_bind_parameter_index(s.tls, stmt.stmt, cname))
}

// ColumnCount returns the number of columns produced by the current
// statement.
//
// https://www.sqlite.org/c3ref/column_count.html
func (stmt *Stmt) ColumnCount() int {
	s, err := stmt.handle("column count")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_column_count(s.tls, stmt.stmt))
}

// DataCount returns the number of columns in the current row, which is
// zero unless a row is available.
//
// https://www.sqlite.org/c3ref/data_count.html
func (stmt *Stmt) DataCount() int {
	s, err := stmt.handle("data count")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_data_count(s.tls, stmt.stmt))
}

// column checks that col is a valid 0-based column index.
func (stmt *Stmt) column(op string, col int) (*session, bool) {
	s, err := stmt.handle(op)
	if err != nil {
		return nil, false
	}
	if n := int(lib.Xsqlite3_column_count(s.tls, stmt.stmt)); col < 0 || col >= n {
		stmt.lastErr = usageErrorf(op, "column %d out of range [0, %d)", col, n)
		return nil, false
	}
	return s, true
}

// ColumnType returns the datatype code of a column in the current row.
// Column indices start at 0.
//
// https://www.sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnType(col int) ColumnType {
	s, ok := stmt.column("column type", col)
	if !ok {
		return TypeNull
	}
	return ColumnType(lib.Xsqlite3_column_type(s.tls, stmt.stmt, int32(col)))
}

// ColumnInt64 returns a query result value as an int64.
func (stmt *Stmt) ColumnInt64(col int) int64 {
	s, ok := stmt.column("column", col)
	if !ok {
		return 0
	}
	return lib.Xsqlite3_column_int64(s.tls, stmt.stmt, int32(col))
}

// ColumnInt returns a query result value as an int.
func (stmt *Stmt) ColumnInt(col int) int {
	return int(stmt.ColumnInt64(col))
}

// ColumnBool reports whether a query result value is non-zero.
func (stmt *Stmt) ColumnBool(col int) bool {
	return stmt.ColumnInt64(col) != 0
}

// ColumnFloat returns a query result as a float64.
func (stmt *Stmt) ColumnFloat(col int) float64 {
	s, ok := stmt.column("column", col)
	if !ok {
		return 0
	}
	return lib.Xsqlite3_column_double(s.tls, stmt.stmt, int32(col))
}

// ColumnText returns a query result as a string, decoded from the
// connection's encoding.
func (stmt *Stmt) ColumnText(col int) string {
	s, ok := stmt.column("column", col)
	if !ok {
		return ""
	}
	text, err := stmt.columnText(s, col)
	if err != nil {
		stmt.lastErr = err
		return ""
	}
	return text
}

func (stmt *Stmt) columnText(s *session, col int) (string, error) {
	if stmt.wide {
		p := lib.Xsqlite3_column_text16(s.tls, stmt.stmt, int32(col))
		n := lib.Xsqlite3_column_bytes16(s.tls, stmt.stmt, int32(col))
		return s.enc.fromEngine(p, int(n))
	}
	p := lib.Xsqlite3_column_text(s.tls, stmt.stmt, int32(col))
	n := lib.Xsqlite3_column_bytes(s.tls, stmt.stmt, int32(col))
	return s.enc.fromEngineNarrow(p, int(n))
}

// ColumnBytes returns a copy of a query result as a blob.
// A NULL value returns nil.
func (stmt *Stmt) ColumnBytes(col int) []byte {
	s, ok := stmt.column("column", col)
	if !ok {
		return nil
	}
	p := lib.Xsqlite3_column_blob(s.tls, stmt.stmt, int32(col))
	n := lib.Xsqlite3_column_bytes(s.tls, stmt.stmt, int32(col))
	if p == 0 {
		return nil
	}
	return libc.GoBytes(p, int(n))
}

// ColumnLen returns the number of bytes in a query result.
func (stmt *Stmt) ColumnLen(col int) int {
	s, ok := stmt.column("column", col)
	if !ok {
		return 0
	}
	return int(lib.Xsqlite3_column_bytes(s.tls, stmt.stmt, int32(col)))
}

// columnMeta reads one of the column metadata strings in the connection's
// encoding. The boolean is false if the engine has no value.
func (stmt *Stmt) columnMeta(s *session, col int, narrow, wide func(*libc.TLS, uintptr, int32) uintptr) (string, bool) {
	var p uintptr
	var text string
	var err error
	if stmt.wide {
		p = wide(s.tls, stmt.stmt, int32(col))
		text, err = fromEngineCString16(p)
	} else {
		p = narrow(s.tls, stmt.stmt, int32(col))
		text, err = s.enc.fromEngineCString(p)
	}
	if p == 0 {
		return "", false
	}
	if err != nil {
		stmt.lastErr = err
		return "", false
	}
	return text, true
}

// ColumnName returns the name assigned to a result column.
//
// https://www.sqlite.org/c3ref/column_name.html
func (stmt *Stmt) ColumnName(col int) string {
	s, ok := stmt.column("column name", col)
	if !ok {
		return ""
	}
	name, _ := stmt.columnMeta(s, col, lib.Xsqlite3_column_name, lib.Xsqlite3_column_name16)
	return name
}

// ColumnDeclType returns the declared type of a result column, or the empty
// string if the column is an expression.
//
// https://www.sqlite.org/c3ref/column_decltype.html
func (stmt *Stmt) ColumnDeclType(col int) string {
	s, ok := stmt.column("column decltype", col)
	if !ok {
		return ""
	}
	t, _ := stmt.columnMeta(s, col, lib.Xsqlite3_column_decltype, lib.Xsqlite3_column_decltype16)
	return t
}

// ColumnDatabaseName returns the name of the database the column's value
// originates from, or the empty string for an expression.
//
// https://www.sqlite.org/c3ref/column_database_name.html
func (stmt *Stmt) ColumnDatabaseName(col int) string {
	s, ok := stmt.column("column database name", col)
	if !ok {
		return ""
	}
	name, _ := stmt.columnMeta(s, col, lib.Xsqlite3_column_database_name, lib.Xsqlite3_column_database_name16)
	return name
}

// ColumnTableName returns the name of the table the column's value
// originates from, or the empty string for an expression.
func (stmt *Stmt) ColumnTableName(col int) string {
	s, ok := stmt.column("column table name", col)
	if !ok {
		return ""
	}
	name, _ := stmt.columnMeta(s, col, lib.Xsqlite3_column_table_name, lib.Xsqlite3_column_table_name16)
	return name
}

// ColumnOriginName returns the name of the table column the result column
// originates from, or the empty string for an expression.
func (stmt *Stmt) ColumnOriginName(col int) string {
	s, ok := stmt.column("column origin name", col)
	if !ok {
		return ""
	}
	name, _ := stmt.columnMeta(s, col, lib.Xsqlite3_column_origin_name, lib.Xsqlite3_column_origin_name16)
	return name
}

// rowValue renders one column of the current row the way a RowObserver
// receives it.
func (stmt *Stmt) rowValue(s *session, col int) (sql.NullString, error) {
	switch ColumnType(lib.Xsqlite3_column_type(s.tls, stmt.stmt, int32(col))) {
	case TypeNull:
		return sql.NullString{}, nil
	case TypeBlob:
		p := lib.Xsqlite3_column_blob(s.tls, stmt.stmt, int32(col))
		n := int(lib.Xsqlite3_column_bytes(s.tls, stmt.stmt, int32(col)))
		var b []byte
		if p != 0 {
			b = unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
		}
		return sql.NullString{String: hexLiteral(b), Valid: true}, nil
	default:
		text, err := stmt.columnText(s, col)
		if err != nil {
			return sql.NullString{}, err
		}
		return sql.NullString{String: text, Valid: true}, nil
	}
}

// hexLiteral formats b as an SQL blob literal.
func hexLiteral(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, 3+2*len(b))
	out = append(out, 'X', '\'')
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	out = append(out, '\'')
	return string(out)
}

// columnHeader returns the names and declared types of the result columns.
// Columns without a declared type report their storage class in the current
// row, or "null" when no row is available.
func (stmt *Stmt) columnHeader(s *session, haveRow bool) (names, declTypes []string) {
	n := int(lib.Xsqlite3_column_count(s.tls, stmt.stmt))
	names = make([]string, n)
	declTypes = make([]string, n)
	for i := range n {
		names[i], _ = stmt.columnMeta(s, i, lib.Xsqlite3_column_name, lib.Xsqlite3_column_name16)
		t, ok := stmt.columnMeta(s, i, lib.Xsqlite3_column_decltype, lib.Xsqlite3_column_decltype16)
		if !ok || t == "" {
			t = TypeNull.storageName()
			if haveRow {
				t = ColumnType(lib.Xsqlite3_column_type(s.tls, stmt.stmt, int32(i))).storageName()
			}
		}
		declTypes[i] = t
	}
	return names, declTypes
}

// Status returns the value of a statement counter.
//
// https://www.sqlite.org/c3ref/stmt_status.html
func (stmt *Stmt) Status(op StmtStatusOp, reset bool) int {
	s, err := stmt.handle("status")
	if err != nil {
		return 0
	}
	var r int32
	if reset {
		r = 1
	}
	return int(lib.Xsqlite3_stmt_status(s.tls, stmt.stmt, int32(op), r))
}
