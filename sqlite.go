// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

// Package sqlite3 embeds the SQLite engine and bridges its callbacks into Go.
//
// A Conn owns every statement, blob, backup and function registered on it.
// Closing the Conn tears those down, after which any use of them reports a
// *UsageError. Go code called back by the engine (row observers, handlers,
// user functions) may fail by returning an error or panicking; the engine is
// told to stop and the failure is returned as a *CallbackError from the call
// that triggered it.
package sqlite3

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"
	"weak"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	lib "modernc.org/sqlite/lib"
)

// Conn is an open connection to an SQLite3 database.
//
// A Conn can only be used by one goroutine at a time. Its statements, blobs
// and backups share that restriction. An open statement, blob or backup
// keeps its Conn from being garbage collected, so a Conn is only closed by
// the collector once all of them have been closed.
type Conn struct {
	s *session
}

// session is the state shared by a Conn, its children and the callback
// trampolines. It refers to the Conn weakly so that an idle Conn can be
// finalized.
type session struct {
	tls     *libc.TLS
	db      uintptr // zero once closed
	path    string
	version int
	enc     Encoding
	reg     registry
	conn    weak.Pointer[Conn]

	busy      BusyHandler
	auth      Authorizer
	tracer    Tracer
	profiler  Profiler
	progress  ProgressHandler
	progressN int
	doneCh    <-chan struct{}

	frame *callFrame
}

// callFrame is pushed for each call into the engine that may call back into
// Go. It collects the first fault raised by a callback.
type callFrame struct {
	op    string
	stmt  *Stmt // statement being stepped, if any
	fault *CallbackError
	prev  *callFrame
}

// allSessions maps open sqlite3* handles to their session.
// Trampolines receive the handle as their user data pointer.
var allSessions = struct {
	mu    sync.RWMutex
	table map[uintptr]*session
}{
	table: make(map[uintptr]*session),
}

func lookupSession(db uintptr) *session {
	allSessions.mu.RLock()
	defer allSessions.mu.RUnlock()
	return allSessions.table[db]
}

// OpenOptions is the set of optional arguments to Open.
type OpenOptions struct {
	// Flags are passed to sqlite3_open_v2. Zero means
	// OpenReadWrite|OpenCreate|OpenWAL|OpenURI.
	Flags OpenFlags
	// VFS is the name of the VFS module to use. Empty means the default.
	VFS string
	// Encoding selects how text is passed to and from the engine.
	Encoding Encoding
}

// OpenConn opens a single SQLite database connection with the given flags.
// No flags or a value of 0 defaults to OpenReadWrite|OpenCreate|OpenWAL|OpenURI.
//
// https://www.sqlite.org/c3ref/open.html
func OpenConn(path string, flags ...OpenFlags) (*Conn, error) {
	var f OpenFlags
	for _, flag := range flags {
		f |= flag
	}
	return Open(path, &OpenOptions{Flags: f})
}

// Open opens a database connection with a VFS and text encoding.
// A nil opts is the same as the zero OpenOptions.
func Open(path string, opts *OpenOptions) (*Conn, error) {
	if opts == nil {
		opts = new(OpenOptions)
	}
	if err := initEngine(); err != nil {
		return nil, fmt.Errorf("sqlite3: open %q: %w", path, err)
	}
	if err := opts.Encoding.validate(); err != nil {
		return nil, fmt.Errorf("sqlite3: open %q: %w", path, err)
	}
	flags := opts.Flags
	if flags == 0 {
		flags = OpenReadWrite | OpenCreate | OpenWAL | OpenURI
	}

	tls := libc.NewTLS()
	db, err := openDB(tls, path, flags&^OpenWAL, opts.VFS, opts.Encoding)
	if err != nil {
		tls.Close()
		return nil, fmt.Errorf("sqlite3: open %q: %w", path, err)
	}
	lib.Xsqlite3_extended_result_codes(tls, db, 1)

	s := &session{
		tls:     tls,
		db:      db,
		path:    path,
		version: versionCode(lib.Xsqlite3_libversion_number(tls)),
		enc:     opts.Encoding,
	}
	c := &Conn{s: s}
	s.conn = weak.Make(c)
	allSessions.mu.Lock()
	allSessions.table[db] = s
	allSessions.mu.Unlock()
	runtime.SetFinalizer(c, (*Conn).finalize)

	if flags&OpenWAL != 0 {
		if err := c.Exec("PRAGMA journal_mode=wal;", nil); err != nil {
			c.Close()
			return nil, fmt.Errorf("sqlite3: open %q: %w", path, err)
		}
	}
	return c, nil
}

func openDB(tls *libc.TLS, path string, flags OpenFlags, vfs string, enc Encoding) (uintptr, error) {
	cpath, err := libc.CString(path)
	if err != nil {
		return 0, ErrNoMem
	}
	defer libc.Xfree(tls, cpath)
	var cvfs uintptr
	if vfs != "" {
		cvfs, err = libc.CString(vfs)
		if err != nil {
			return 0, ErrNoMem
		}
		defer libc.Xfree(tls, cvfs)
	}
	dbPtr, err := malloc(tls, ptrSize)
	if err != nil {
		return 0, err
	}
	defer libc.Xfree(tls, dbPtr)

	res := ResultCode(lib.Xsqlite3_open_v2(tls, cpath, dbPtr, int32(flags), cvfs))
	db := *(*uintptr)(unsafe.Pointer(dbPtr))
	if db == 0 {
		// Not enough memory to allocate the sqlite3 object.
		return 0, ErrNoMem
	}
	if !res.IsSuccess() {
		// sqlite3_open_v2 may still return a sqlite3* just so we can extract the error.
		err := engineError(tls, db, enc, "", res)
		lib.Xsqlite3_close_v2(tls, db)
		return 0, err
	}
	return db, nil
}

var engineInit struct {
	once sync.Once
	err  error
}

// initEngine initializes the library once per process and caches the
// trampoline pointers handed to the engine.
func initEngine() error {
	engineInit.once.Do(func() {
		tls := libc.NewTLS()
		defer tls.Close()
		if res := ResultCode(lib.Xsqlite3_initialize(tls)); !res.IsSuccess() {
			engineInit.err = res.ToError()
			return
		}
		initTrampolines()
	})
	return engineInit.err
}

// versionCode packs an SQLite version number as (major<<16)|(minor<<8)|patch.
func versionCode(n int32) int {
	major := int(n) / 1000000
	minor := int(n) / 1000 % 1000
	patch := int(n) % 1000
	return major<<16 | minor<<8 | patch
}

// Close closes the database connection. Any statements, blobs, backups and
// functions still registered on it are released first. Close is idempotent.
// Calling Close from a callback of the connection, such as a user function
// or a RowObserver, is a usage error and leaves the connection open.
//
// https://www.sqlite.org/c3ref/close.html
func (c *Conn) Close() error {
	if c == nil || c.s == nil || c.s.db == 0 {
		return nil
	}
	if c.s.frame != nil {
		return usageErrorf("close", "connection is in use by a callback")
	}
	runtime.SetFinalizer(c, nil)
	if err := c.s.close(); err != nil {
		return fmt.Errorf("sqlite3: close: %w", err)
	}
	return nil
}

func (c *Conn) finalize() {
	c.s.close()
}

// close drains every child list and then closes the engine handle.
func (s *session) close() error {
	if s.db == 0 {
		return nil
	}
	s.reg.drain(s.tls, kindStmt)
	s.reg.drain(s.tls, kindBlob)
	s.reg.drain(s.tls, kindBackup)
	s.reg.drain(s.tls, kindFunc)

	res := ResultCode(lib.Xsqlite3_close_v2(s.tls, s.db))
	allSessions.mu.Lock()
	delete(allSessions.table, s.db)
	allSessions.mu.Unlock()
	s.db = 0
	s.busy, s.auth, s.tracer, s.profiler, s.progress = nil, nil, nil, nil, nil
	s.doneCh = nil
	s.tls.Close()
	if !res.IsSuccess() {
		return res.ToError()
	}
	return nil
}

// open returns the session of an open connection or a usage error.
func (c *Conn) open(op string) (*session, error) {
	if c == nil || c.s == nil {
		return nil, usageErrorf(op, "nil connection")
	}
	if c.s.db == 0 {
		return nil, usageErrorf(op, "connection closed")
	}
	return c.s, nil
}

// enter pushes a call frame for an engine call that may invoke callbacks.
func (s *session) enter(op string) *callFrame {
	f := &callFrame{op: op, prev: s.frame}
	s.frame = f
	return f
}

// leave pops f and returns the fault recorded during the call, if any.
func (s *session) leave(f *callFrame) error {
	s.frame = f.prev
	if f.fault != nil {
		return f.fault
	}
	return nil
}

// running reports whether stmt is being stepped by a call that has not
// returned yet.
func (s *session) running(stmt *Stmt) bool {
	for f := s.frame; f != nil; f = f.prev {
		if f.stmt == stmt {
			return true
		}
	}
	return false
}

// recordFault attaches a callback failure to the innermost call frame.
// Only the first fault of a call is kept.
func (s *session) recordFault(hook string, err error) {
	if s.frame == nil || s.frame.fault != nil {
		return
	}
	s.frame.fault = &CallbackError{Hook: hook, Err: err}
}

// interrupted returns an SQLITE_INTERRUPT error if the channel set with
// SetInterrupt is closed.
func (s *session) interrupted() error {
	if s.doneCh == nil {
		return nil
	}
	select {
	case <-s.doneCh:
		return &Error{Code: ResultInterrupt}
	default:
		return nil
	}
}

// SetInterrupt sets the channel that, once closed, interrupts any operation
// in progress and makes later operations fail with SQLITE_INTERRUPT.
// It returns the previous channel. A nil channel disables interruption.
//
// The channel is polled from the progress handler, so interruption is
// cooperative.
func (c *Conn) SetInterrupt(doneCh <-chan struct{}) (oldDoneCh <-chan struct{}) {
	s, err := c.open("set interrupt")
	if err != nil {
		return nil
	}
	oldDoneCh = s.doneCh
	s.doneCh = doneCh
	s.updateProgressHandler()
	return oldDoneCh
}

// Path returns the path the connection was opened with.
func (c *Conn) Path() string {
	if c == nil || c.s == nil {
		return ""
	}
	return c.s.path
}

// Encoding returns the text encoding the connection was opened with.
func (c *Conn) Encoding() Encoding {
	if c == nil || c.s == nil {
		return Encoding{}
	}
	return c.s.enc
}

// VersionCode returns the engine version packed as
// (major<<16)|(minor<<8)|patch.
func (c *Conn) VersionCode() int {
	if c == nil || c.s == nil {
		return 0
	}
	return c.s.version
}

// Exec runs every statement in query. If args are given, query is first
// expanded as a command template (see Format). If obs is not nil, it
// receives the column metadata and rows of each statement.
//
// An observer that stops early ends Exec without error.
func (c *Conn) Exec(query string, obs RowObserver, args ...any) error {
	s, err := c.open("exec")
	if err != nil {
		return err
	}
	if obs == nil && len(args) == 0 {
		return s.execDirect(query)
	}
	var stmt *Stmt
	if len(args) > 0 {
		stmt, err = c.CompileArgs(query, args...)
	} else {
		stmt, err = c.Compile(query)
	}
	if err != nil {
		return err
	}
	defer stmt.Close()
	for {
		for {
			hasRow, err := stmt.StepObserve(obs)
			if err != nil {
				return err
			}
			if !hasRow {
				break
			}
		}
		if stmt.State() == StmtFinalized {
			// The observer asked to stop.
			return nil
		}
		more, err := stmt.CompileNext()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// execDirect runs query through sqlite3_exec without a row callback.
func (s *session) execDirect(query string) error {
	if err := s.interrupted(); err != nil {
		return fmt.Errorf("sqlite3: exec: %w", err)
	}
	buf, err := s.enc.narrow().toEngineNarrow(s.tls, query)
	if err != nil {
		return err
	}
	defer buf.free(s.tls)
	errPtr, err := malloc(s.tls, ptrSize)
	if err != nil {
		return err
	}
	defer libc.Xfree(s.tls, errPtr)
	*(*uintptr)(unsafe.Pointer(errPtr)) = 0

	f := s.enter("exec")
	res := ResultCode(lib.Xsqlite3_exec(s.tls, s.db, buf.p, 0, 0, errPtr))
	fault := s.leave(f)
	cmsg := *(*uintptr)(unsafe.Pointer(errPtr))
	var msg string
	if cmsg != 0 {
		msg, _ = s.enc.narrow().fromEngineCString(cmsg)
		lib.Xsqlite3_free(s.tls, cmsg)
	}
	if fault != nil {
		return fault
	}
	if !res.IsSuccess() {
		e := engineError(s.tls, s.db, s.enc, "exec", res)
		if msg != "" {
			e.Msg = msg
		}
		return fmt.Errorf("sqlite3: %w", e)
	}
	return nil
}

// LastInsertRowID reports the rowid of the most recently successful INSERT.
//
// https://www.sqlite.org/c3ref/last_insert_rowid.html
func (c *Conn) LastInsertRowID() int64 {
	s, err := c.open("last insert rowid")
	if err != nil {
		return 0
	}
	return lib.Xsqlite3_last_insert_rowid(s.tls, s.db)
}

// Changes reports the number of rows affected by the most recent statement.
//
// https://www.sqlite.org/c3ref/changes.html
func (c *Conn) Changes() int {
	s, err := c.open("changes")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_changes(s.tls, s.db))
}

// AutocommitEnabled reports whether the connection is in autocommit mode,
// that is, outside of any explicit transaction or savepoint.
//
// https://www.sqlite.org/c3ref/get_autocommit.html
func (c *Conn) AutocommitEnabled() bool {
	s, err := c.open("get autocommit")
	if err != nil {
		return false
	}
	return lib.Xsqlite3_get_autocommit(s.tls, s.db) != 0
}

// CheckReset reports the SQL of a statement that has returned a row but has
// not been stepped to completion, reset or closed. It returns the empty
// string if there is none. Pools use it to catch connections returned
// mid-query.
func (c *Conn) CheckReset() string {
	s, err := c.open("check reset")
	if err != nil {
		return ""
	}
	for cur := s.reg.heads[kindStmt]; cur != nil; cur = cur.node().next {
		if stmt := cur.(*Stmt); stmt.state == StmtExecuting {
			return stmt.query
		}
	}
	return ""
}

// ErrMsg returns the engine's message for the most recent failure
// on the connection.
func (c *Conn) ErrMsg() string {
	s, err := c.open("errmsg")
	if err != nil {
		return err.Error()
	}
	msg, _ := s.enc.narrow().fromEngineCString(lib.Xsqlite3_errmsg(s.tls, s.db))
	return msg
}

// Interrupt causes any pending operation on the connection to abort with
// SQLITE_INTERRUPT at its earliest opportunity. Unlike every other method,
// Interrupt may be called from another goroutine, but not concurrently
// with Close.
//
// https://www.sqlite.org/c3ref/interrupt.html
func (c *Conn) Interrupt() {
	if c == nil || c.s == nil {
		return
	}
	db := c.s.db
	if db == 0 {
		return
	}
	tls := libc.NewTLS()
	defer tls.Close()
	lib.Xsqlite3_interrupt(tls, db)
}

// SetBusyTimeout sets a busy handler that sleeps for up to d when a table is
// locked. It replaces any handler set with SetBusyHandler.
//
// https://www.sqlite.org/c3ref/busy_timeout.html
func (c *Conn) SetBusyTimeout(d time.Duration) error {
	s, err := c.open("set busy timeout")
	if err != nil {
		return err
	}
	s.busy = nil
	res := ResultCode(lib.Xsqlite3_busy_timeout(s.tls, s.db, int32(d/time.Millisecond)))
	if !res.IsSuccess() {
		return fmt.Errorf("sqlite3: set busy timeout: %w", engineError(s.tls, s.db, s.enc, "", res))
	}
	return nil
}

// SetKey sets the encryption key of the main database. Rekey changes it.
// Both need an engine built with a codec; other builds report a *UsageError.
// The hex copy of key made for the engine is zeroed before returning.
func (c *Conn) SetKey(key []byte) error {
	return c.applyKey("key", "hexkey", key)
}

// Rekey changes the encryption key of the main database. See SetKey.
func (c *Conn) Rekey(key []byte) error {
	return c.applyKey("rekey", "hexrekey", key)
}

func (c *Conn) applyKey(op, pragma string, key []byte) error {
	s, err := c.open(op)
	if err != nil {
		return err
	}
	if !CompileOptionUsed("HAS_CODEC") {
		return usageErrorf(op, "engine built without encryption support")
	}
	hex := make([]byte, 2*len(key))
	const digits = "0123456789abcdef"
	for i, b := range key {
		hex[2*i] = digits[b>>4]
		hex[2*i+1] = digits[b&0xf]
	}
	query := []byte("PRAGMA " + pragma + " = '")
	query = append(query, hex...)
	query = append(query, "';"...)
	clear(hex)
	err = s.execDirect(string(query))
	clear(query)
	if err != nil {
		return fmt.Errorf("sqlite3: %s: %w", op, err)
	}
	return nil
}

// Version returns the engine version as a string, like "3.49.2".
func Version() string {
	tls := libc.NewTLS()
	defer tls.Close()
	return libc.GoString(lib.Xsqlite3_libversion(tls))
}

// VersionNumber returns the engine version as an integer, like 3049002.
func VersionNumber() int {
	tls := libc.NewTLS()
	defer tls.Close()
	return int(lib.Xsqlite3_libversion_number(tls))
}

// CompileOptionUsed reports whether the engine was built with the given
// compile-time option. The "SQLITE_" prefix may be omitted.
func CompileOptionUsed(name string) bool {
	tls := libc.NewTLS()
	defer tls.Close()
	cname, err := libc.CString(name)
	if err != nil {
		return false
	}
	defer libc.Xfree(tls, cname)
	return lib.Xsqlite3_compileoption_used(tls, cname) != 0
}

// Complete reports whether query ends with a complete SQL statement.
//
// https://www.sqlite.org/c3ref/complete.html
func Complete(query string) bool {
	tls := libc.NewTLS()
	defer tls.Close()
	cquery, err := libc.CString(query)
	if err != nil {
		return false
	}
	defer libc.Xfree(tls, cquery)
	return lib.Xsqlite3_complete(tls, cquery) != 0
}

const ptrSize = types.Size_t(unsafe.Sizeof(uintptr(0)))

// sqliteTransient tells the engine to copy a bound value before returning.
const sqliteTransient = ^uintptr(0)

func malloc(tls *libc.TLS, n types.Size_t) (uintptr, error) {
	p := libc.Xmalloc(tls, n)
	if p == 0 {
		return 0, ErrNoMem
	}
	return p, nil
}
