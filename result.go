// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"strconv"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// ResultCode is an SQLite result code. Extended codes carry their primary
// code in the low byte.
//
// https://sqlite.org/rescode.html
type ResultCode int32

// Primary result codes.
const (
	ResultOK         ResultCode = lib.SQLITE_OK
	ResultError      ResultCode = lib.SQLITE_ERROR
	ResultInternal   ResultCode = lib.SQLITE_INTERNAL
	ResultPerm       ResultCode = lib.SQLITE_PERM
	ResultAbort      ResultCode = lib.SQLITE_ABORT
	ResultBusy       ResultCode = lib.SQLITE_BUSY
	ResultLocked     ResultCode = lib.SQLITE_LOCKED
	ResultNoMem      ResultCode = lib.SQLITE_NOMEM
	ResultReadOnly   ResultCode = lib.SQLITE_READONLY
	ResultInterrupt  ResultCode = lib.SQLITE_INTERRUPT
	ResultIOErr      ResultCode = lib.SQLITE_IOERR
	ResultCorrupt    ResultCode = lib.SQLITE_CORRUPT
	ResultNotFound   ResultCode = lib.SQLITE_NOTFOUND
	ResultFull       ResultCode = lib.SQLITE_FULL
	ResultCantOpen   ResultCode = lib.SQLITE_CANTOPEN
	ResultProtocol   ResultCode = lib.SQLITE_PROTOCOL
	ResultEmpty      ResultCode = lib.SQLITE_EMPTY
	ResultSchema     ResultCode = lib.SQLITE_SCHEMA
	ResultTooBig     ResultCode = lib.SQLITE_TOOBIG
	ResultConstraint ResultCode = lib.SQLITE_CONSTRAINT
	ResultMismatch   ResultCode = lib.SQLITE_MISMATCH
	ResultMisuse     ResultCode = lib.SQLITE_MISUSE
	ResultNoLFS      ResultCode = lib.SQLITE_NOLFS
	ResultAuth       ResultCode = lib.SQLITE_AUTH
	ResultFormat     ResultCode = lib.SQLITE_FORMAT
	ResultRange      ResultCode = lib.SQLITE_RANGE
	ResultNotADB     ResultCode = lib.SQLITE_NOTADB
	ResultNotice     ResultCode = lib.SQLITE_NOTICE
	ResultWarning    ResultCode = lib.SQLITE_WARNING
	ResultRow        ResultCode = lib.SQLITE_ROW
	ResultDone       ResultCode = lib.SQLITE_DONE
)

// Extended result codes used by this package.
const (
	ResultErrorRetry            ResultCode = lib.SQLITE_ERROR_RETRY
	ResultAbortRollback         ResultCode = lib.SQLITE_ABORT_ROLLBACK
	ResultBusyRecovery          ResultCode = lib.SQLITE_BUSY_RECOVERY
	ResultBusySnapshot          ResultCode = lib.SQLITE_BUSY_SNAPSHOT
	ResultBusyTimeout           ResultCode = lib.SQLITE_BUSY_TIMEOUT
	ResultLockedSharedCache     ResultCode = lib.SQLITE_LOCKED_SHAREDCACHE
	ResultLockedVTab            ResultCode = lib.SQLITE_LOCKED_VTAB
	ResultIOErrRead             ResultCode = lib.SQLITE_IOERR_READ
	ResultIOErrShortRead        ResultCode = lib.SQLITE_IOERR_SHORT_READ
	ResultIOErrWrite            ResultCode = lib.SQLITE_IOERR_WRITE
	ResultIOErrNoMem            ResultCode = lib.SQLITE_IOERR_NOMEM
	ResultCantOpenIsDir         ResultCode = lib.SQLITE_CANTOPEN_ISDIR
	ResultCantOpenFullPath      ResultCode = lib.SQLITE_CANTOPEN_FULLPATH
	ResultReadOnlyRecovery      ResultCode = lib.SQLITE_READONLY_RECOVERY
	ResultReadOnlyCantLock      ResultCode = lib.SQLITE_READONLY_CANTLOCK
	ResultReadOnlyRollback      ResultCode = lib.SQLITE_READONLY_ROLLBACK
	ResultReadOnlyDBMoved       ResultCode = lib.SQLITE_READONLY_DBMOVED
	ResultConstraintCheck       ResultCode = lib.SQLITE_CONSTRAINT_CHECK
	ResultConstraintForeignKey  ResultCode = lib.SQLITE_CONSTRAINT_FOREIGNKEY
	ResultConstraintFunction    ResultCode = lib.SQLITE_CONSTRAINT_FUNCTION
	ResultConstraintNotNull     ResultCode = lib.SQLITE_CONSTRAINT_NOTNULL
	ResultConstraintPrimaryKey  ResultCode = lib.SQLITE_CONSTRAINT_PRIMARYKEY
	ResultConstraintTrigger     ResultCode = lib.SQLITE_CONSTRAINT_TRIGGER
	ResultConstraintUnique      ResultCode = lib.SQLITE_CONSTRAINT_UNIQUE
	ResultConstraintRowID       ResultCode = lib.SQLITE_CONSTRAINT_ROWID
	ResultCorruptIndex          ResultCode = lib.SQLITE_CORRUPT_INDEX
	ResultNoticeRecoverWAL      ResultCode = lib.SQLITE_NOTICE_RECOVER_WAL
	ResultNoticeRecoverRollback ResultCode = lib.SQLITE_NOTICE_RECOVER_ROLLBACK
	ResultWarningAutoIndex      ResultCode = lib.SQLITE_WARNING_AUTOINDEX
	ResultAuthUser              ResultCode = lib.SQLITE_AUTH_USER
	ResultOKLoadPermanently     ResultCode = lib.SQLITE_OK_LOAD_PERMANENTLY
)

var resultCodeNames = map[ResultCode]string{
	ResultOK:         "SQLITE_OK",
	ResultError:      "SQLITE_ERROR",
	ResultInternal:   "SQLITE_INTERNAL",
	ResultPerm:       "SQLITE_PERM",
	ResultAbort:      "SQLITE_ABORT",
	ResultBusy:       "SQLITE_BUSY",
	ResultLocked:     "SQLITE_LOCKED",
	ResultNoMem:      "SQLITE_NOMEM",
	ResultReadOnly:   "SQLITE_READONLY",
	ResultInterrupt:  "SQLITE_INTERRUPT",
	ResultIOErr:      "SQLITE_IOERR",
	ResultCorrupt:    "SQLITE_CORRUPT",
	ResultNotFound:   "SQLITE_NOTFOUND",
	ResultFull:       "SQLITE_FULL",
	ResultCantOpen:   "SQLITE_CANTOPEN",
	ResultProtocol:   "SQLITE_PROTOCOL",
	ResultEmpty:      "SQLITE_EMPTY",
	ResultSchema:     "SQLITE_SCHEMA",
	ResultTooBig:     "SQLITE_TOOBIG",
	ResultConstraint: "SQLITE_CONSTRAINT",
	ResultMismatch:   "SQLITE_MISMATCH",
	ResultMisuse:     "SQLITE_MISUSE",
	ResultNoLFS:      "SQLITE_NOLFS",
	ResultAuth:       "SQLITE_AUTH",
	ResultFormat:     "SQLITE_FORMAT",
	ResultRange:      "SQLITE_RANGE",
	ResultNotADB:     "SQLITE_NOTADB",
	ResultNotice:     "SQLITE_NOTICE",
	ResultWarning:    "SQLITE_WARNING",
	ResultRow:        "SQLITE_ROW",
	ResultDone:       "SQLITE_DONE",

	ResultErrorRetry:            "SQLITE_ERROR_RETRY",
	ResultAbortRollback:         "SQLITE_ABORT_ROLLBACK",
	ResultBusyRecovery:          "SQLITE_BUSY_RECOVERY",
	ResultBusySnapshot:          "SQLITE_BUSY_SNAPSHOT",
	ResultBusyTimeout:           "SQLITE_BUSY_TIMEOUT",
	ResultLockedSharedCache:     "SQLITE_LOCKED_SHAREDCACHE",
	ResultLockedVTab:            "SQLITE_LOCKED_VTAB",
	ResultIOErrRead:             "SQLITE_IOERR_READ",
	ResultIOErrShortRead:        "SQLITE_IOERR_SHORT_READ",
	ResultIOErrWrite:            "SQLITE_IOERR_WRITE",
	ResultIOErrNoMem:            "SQLITE_IOERR_NOMEM",
	ResultCantOpenIsDir:         "SQLITE_CANTOPEN_ISDIR",
	ResultCantOpenFullPath:      "SQLITE_CANTOPEN_FULLPATH",
	ResultReadOnlyRecovery:      "SQLITE_READONLY_RECOVERY",
	ResultReadOnlyCantLock:      "SQLITE_READONLY_CANTLOCK",
	ResultReadOnlyRollback:      "SQLITE_READONLY_ROLLBACK",
	ResultReadOnlyDBMoved:       "SQLITE_READONLY_DBMOVED",
	ResultConstraintCheck:       "SQLITE_CONSTRAINT_CHECK",
	ResultConstraintForeignKey:  "SQLITE_CONSTRAINT_FOREIGNKEY",
	ResultConstraintFunction:    "SQLITE_CONSTRAINT_FUNCTION",
	ResultConstraintNotNull:     "SQLITE_CONSTRAINT_NOTNULL",
	ResultConstraintPrimaryKey:  "SQLITE_CONSTRAINT_PRIMARYKEY",
	ResultConstraintTrigger:     "SQLITE_CONSTRAINT_TRIGGER",
	ResultConstraintUnique:      "SQLITE_CONSTRAINT_UNIQUE",
	ResultConstraintRowID:       "SQLITE_CONSTRAINT_ROWID",
	ResultCorruptIndex:          "SQLITE_CORRUPT_INDEX",
	ResultNoticeRecoverWAL:      "SQLITE_NOTICE_RECOVER_WAL",
	ResultNoticeRecoverRollback: "SQLITE_NOTICE_RECOVER_ROLLBACK",
	ResultWarningAutoIndex:      "SQLITE_WARNING_AUTOINDEX",
	ResultAuthUser:              "SQLITE_AUTH_USER",
	ResultOKLoadPermanently:     "SQLITE_OK_LOAD_PERMANENTLY",
}

// String returns the C constant name of the result code.
func (code ResultCode) String() string {
	if name, ok := resultCodeNames[code]; ok {
		return name
	}
	if name, ok := resultCodeNames[code.ToPrimary()]; ok {
		return name + "(" + strconv.Itoa(int(code)) + ")"
	}
	return "SQLITE_UNKNOWN_ERROR(" + strconv.Itoa(int(code)) + ")"
}

// ToPrimary returns the primary result code of the given code.
// https://sqlite.org/rescode.html#primary_result_codes_versus_extended_result_codes
func (code ResultCode) ToPrimary() ResultCode {
	return code & 0xff
}

// IsSuccess reports whether code indicates success:
// SQLITE_OK, SQLITE_ROW, SQLITE_DONE or one of their extended codes.
func (code ResultCode) IsSuccess() bool {
	switch code.ToPrimary() {
	case ResultOK, ResultRow, ResultDone:
		return true
	default:
		return false
	}
}

// Message returns the English-language text that describes the result code.
func (code ResultCode) Message() string {
	tls := libc.NewTLS()
	defer tls.Close()
	return libc.GoString(lib.Xsqlite3_errstr(tls, int32(code)))
}

// ToError converts the result code into an error,
// returning nil if the code indicates success.
func (code ResultCode) ToError() error {
	if code.IsSuccess() {
		return nil
	}
	return &Error{Code: code}
}
