// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"fmt"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// BackupStatus is the outcome of one Backup step.
type BackupStatus int

// Backup step outcomes.
const (
	// BackupMore means pages remain to be copied.
	BackupMore BackupStatus = iota
	// BackupBusy means a lock could not be obtained. The step may be retried.
	BackupBusy
	// BackupDone means the whole database has been copied.
	BackupDone
)

func (status BackupStatus) String() string {
	switch status {
	case BackupMore:
		return "more"
	case BackupBusy:
		return "busy"
	case BackupDone:
		return "done"
	default:
		return fmt.Sprintf("BackupStatus(%d)", int(status))
	}
}

// A Backup copies the contents of one database into another incrementally.
// It belongs to the source connection and is finished when either
// connection is closed.
//
// https://www.sqlite.org/c3ref/backup_finish.html
type Backup struct {
	childNode
	ptr     uintptr
	dst     *session
	dstConn *Conn
	lastErr error
}

func (b *Backup) kind() resourceKind { return kindBackup }

func (b *Backup) release(tls *libc.TLS) {
	if b.ptr != 0 {
		lib.Xsqlite3_backup_finish(tls, b.ptr)
		b.ptr = 0
	}
	b.dst = nil
	b.dstConn = nil
}

// NewBackup starts copying the database named srcName on src into the
// database named dstName on dst. Empty names mean "main".
//
// https://www.sqlite.org/c3ref/backup_finish.html#sqlite3backupinit
func NewBackup(dst *Conn, dstName string, src *Conn, srcName string) (*Backup, error) {
	ds, err := dst.open("backup")
	if err != nil {
		return nil, err
	}
	ss, err := src.open("backup")
	if err != nil {
		return nil, err
	}
	if ds == ss {
		return nil, usageErrorf("backup", "source and destination are the same connection")
	}
	if dstName == "" {
		dstName = "main"
	}
	if srcName == "" {
		srcName = "main"
	}
	cdst, err := ds.enc.narrow().toEngineNarrow(ss.tls, dstName)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: backup: %w", err)
	}
	defer cdst.free(ss.tls)
	csrc, err := ss.enc.narrow().toEngineNarrow(ss.tls, srcName)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: backup: %w", err)
	}
	defer csrc.free(ss.tls)

	ptr := lib.Xsqlite3_backup_init(ss.tls, ds.db, cdst.p, ss.db, csrc.p)
	if ptr == 0 {
		// The error is recorded on the destination connection.
		res := ResultCode(lib.Xsqlite3_errcode(ss.tls, ds.db))
		return nil, fmt.Errorf("sqlite3: backup: %w", engineError(ss.tls, ds.db, ds.enc, "", res))
	}
	b := &Backup{ptr: ptr, dst: ds, dstConn: dst}
	if err := ss.reg.register(ss, b); err != nil {
		lib.Xsqlite3_backup_finish(ss.tls, ptr)
		return nil, err
	}
	return b, nil
}

// session returns the source session of an unfinished backup whose
// destination is also still open.
func (b *Backup) session(op string) (*session, error) {
	if b == nil {
		return nil, usageErrorf(op, "nil backup")
	}
	if b.ptr == 0 || b.owner == nil || b.owner.db == 0 {
		err := usageErrorf(op, "backup finished")
		b.lastErr = err
		return nil, err
	}
	if b.dst == nil || b.dst.db == 0 {
		err := usageErrorf(op, "destination connection closed")
		b.lastErr = err
		return nil, err
	}
	return b.owner, nil
}

// LastError returns the error from the most recent failed step, or nil.
func (b *Backup) LastError() error {
	return b.lastErr
}

// StepStatus copies up to n pages. A negative n copies all remaining pages.
// SQLITE_BUSY and SQLITE_LOCKED are reported as BackupBusy with no error so
// the caller can retry; any other failure is returned as an error and the
// backup may only be closed.
//
// https://www.sqlite.org/c3ref/backup_finish.html#sqlite3backupstep
func (b *Backup) StepStatus(n int) (BackupStatus, error) {
	s, err := b.session("backup step")
	if err != nil {
		return BackupDone, err
	}
	if err := s.interrupted(); err != nil {
		b.lastErr = err
		return BackupDone, fmt.Errorf("sqlite3: backup step: %w", err)
	}
	// Either connection's busy handler may run during the step.
	df := b.dst.enter("backup step")
	sf := s.enter("backup step")
	res := ResultCode(lib.Xsqlite3_backup_step(s.tls, b.ptr, int32(n)))
	fault := s.leave(sf)
	if dfault := b.dst.leave(df); fault == nil {
		fault = dfault
	}
	if fault != nil {
		b.lastErr = fault
		return BackupDone, fault
	}
	switch res.ToPrimary() {
	case ResultOK:
		b.lastErr = nil
		return BackupMore, nil
	case ResultDone:
		b.lastErr = nil
		return BackupDone, nil
	case ResultBusy, ResultLocked:
		b.lastErr = nil
		return BackupBusy, nil
	default:
		e := &Error{Op: "backup step", Code: res}
		b.lastErr = e
		return BackupDone, fmt.Errorf("sqlite3: %w", e)
	}
}

// Step copies up to n pages and reports whether more remain. A busy or
// locked database reports more so the caller can retry.
func (b *Backup) Step(n int) (more bool, err error) {
	status, err := b.StepStatus(n)
	if err != nil {
		return false, err
	}
	return status != BackupDone, nil
}

// Remaining returns the number of pages still to be copied as of the most
// recent step.
func (b *Backup) Remaining() int {
	s, err := b.session("backup remaining")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_backup_remaining(s.tls, b.ptr))
}

// PageCount returns the total number of pages in the source database as of
// the most recent step.
func (b *Backup) PageCount() int {
	s, err := b.session("backup page count")
	if err != nil {
		return 0
	}
	return int(lib.Xsqlite3_backup_pagecount(s.tls, b.ptr))
}

// Close finishes the backup and releases its resources. It returns the
// first error encountered while stepping, if any. Closing a finished backup,
// including one finished along with its source Conn, does nothing.
func (b *Backup) Close() error {
	if b == nil || b.ptr == 0 || b.owner == nil {
		return nil
	}
	s := b.owner
	s.reg.unregister(b)
	res := ResultCode(lib.Xsqlite3_backup_finish(s.tls, b.ptr))
	b.ptr = 0
	dst := b.dst
	b.dst = nil
	b.dstConn = nil
	if !res.IsSuccess() {
		var e *Error
		if dst != nil && dst.db != 0 {
			e = engineError(s.tls, dst.db, dst.enc, "backup finish", res)
		} else {
			e = &Error{Op: "backup finish", Code: res}
		}
		b.lastErr = e
		return fmt.Errorf("sqlite3: %w", e)
	}
	return nil
}
