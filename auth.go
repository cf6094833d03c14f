// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"database/sql"
	"fmt"
	"strconv"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// An Authorizer is called during statement preparation to see whether an
// action is allowed by the application. A result other than AuthResultOK or
// AuthResultIgnore, or a panic, denies the action.
//
// https://sqlite.org/c3ref/set_authorizer.html
type Authorizer interface {
	Authorize(Action) AuthResult
}

// AuthorizeFunc is a function that implements Authorizer.
type AuthorizeFunc func(action Action) AuthResult

// Authorize calls f.
func (f AuthorizeFunc) Authorize(action Action) AuthResult {
	return f(action)
}

// Action is an operation to be authorized. The meaning of Arg1 and Arg2
// depends on Op; any of the strings may be absent.
//
// https://sqlite.org/c3ref/c_alter_table.html
type Action struct {
	Op       OpType
	Arg1     sql.NullString
	Arg2     sql.NullString
	Database sql.NullString
	// Trigger is the innermost trigger or view responsible for the access.
	Trigger sql.NullString
}

// String returns a debugging representation of the action.
func (a Action) String() string {
	s := a.Op.String()
	for _, arg := range []sql.NullString{a.Arg1, a.Arg2, a.Database, a.Trigger} {
		if arg.Valid {
			s += " " + strconv.Quote(arg.String)
		} else {
			s += " NULL"
		}
	}
	return s
}

// OpType is an authorizer action code.
type OpType int32

// Authorizer action codes.
const (
	OpCreateIndex       OpType = lib.SQLITE_CREATE_INDEX
	OpCreateTable       OpType = lib.SQLITE_CREATE_TABLE
	OpCreateTempIndex   OpType = lib.SQLITE_CREATE_TEMP_INDEX
	OpCreateTempTable   OpType = lib.SQLITE_CREATE_TEMP_TABLE
	OpCreateTempTrigger OpType = lib.SQLITE_CREATE_TEMP_TRIGGER
	OpCreateTempView    OpType = lib.SQLITE_CREATE_TEMP_VIEW
	OpCreateTrigger     OpType = lib.SQLITE_CREATE_TRIGGER
	OpCreateView        OpType = lib.SQLITE_CREATE_VIEW
	OpDelete            OpType = lib.SQLITE_DELETE
	OpDropIndex         OpType = lib.SQLITE_DROP_INDEX
	OpDropTable         OpType = lib.SQLITE_DROP_TABLE
	OpDropTempIndex     OpType = lib.SQLITE_DROP_TEMP_INDEX
	OpDropTempTable     OpType = lib.SQLITE_DROP_TEMP_TABLE
	OpDropTempTrigger   OpType = lib.SQLITE_DROP_TEMP_TRIGGER
	OpDropTempView      OpType = lib.SQLITE_DROP_TEMP_VIEW
	OpDropTrigger       OpType = lib.SQLITE_DROP_TRIGGER
	OpDropView          OpType = lib.SQLITE_DROP_VIEW
	OpInsert            OpType = lib.SQLITE_INSERT
	OpPragma            OpType = lib.SQLITE_PRAGMA
	OpRead              OpType = lib.SQLITE_READ
	OpSelect            OpType = lib.SQLITE_SELECT
	OpTransaction       OpType = lib.SQLITE_TRANSACTION
	OpUpdate            OpType = lib.SQLITE_UPDATE
	OpAttach            OpType = lib.SQLITE_ATTACH
	OpDetach            OpType = lib.SQLITE_DETACH
	OpAlterTable        OpType = lib.SQLITE_ALTER_TABLE
	OpReindex           OpType = lib.SQLITE_REINDEX
	OpAnalyze           OpType = lib.SQLITE_ANALYZE
	OpCreateVTable      OpType = lib.SQLITE_CREATE_VTABLE
	OpDropVTable        OpType = lib.SQLITE_DROP_VTABLE
	OpFunction          OpType = lib.SQLITE_FUNCTION
	OpSavepoint         OpType = lib.SQLITE_SAVEPOINT
	OpCopy              OpType = lib.SQLITE_COPY
	OpRecursive         OpType = lib.SQLITE_RECURSIVE
)

var opTypeNames = map[OpType]string{
	OpCreateIndex:       "SQLITE_CREATE_INDEX",
	OpCreateTable:       "SQLITE_CREATE_TABLE",
	OpCreateTempIndex:   "SQLITE_CREATE_TEMP_INDEX",
	OpCreateTempTable:   "SQLITE_CREATE_TEMP_TABLE",
	OpCreateTempTrigger: "SQLITE_CREATE_TEMP_TRIGGER",
	OpCreateTempView:    "SQLITE_CREATE_TEMP_VIEW",
	OpCreateTrigger:     "SQLITE_CREATE_TRIGGER",
	OpCreateView:        "SQLITE_CREATE_VIEW",
	OpDelete:            "SQLITE_DELETE",
	OpDropIndex:         "SQLITE_DROP_INDEX",
	OpDropTable:         "SQLITE_DROP_TABLE",
	OpDropTempIndex:     "SQLITE_DROP_TEMP_INDEX",
	OpDropTempTable:     "SQLITE_DROP_TEMP_TABLE",
	OpDropTempTrigger:   "SQLITE_DROP_TEMP_TRIGGER",
	OpDropTempView:      "SQLITE_DROP_TEMP_VIEW",
	OpDropTrigger:       "SQLITE_DROP_TRIGGER",
	OpDropView:          "SQLITE_DROP_VIEW",
	OpInsert:            "SQLITE_INSERT",
	OpPragma:            "SQLITE_PRAGMA",
	OpRead:              "SQLITE_READ",
	OpSelect:            "SQLITE_SELECT",
	OpTransaction:       "SQLITE_TRANSACTION",
	OpUpdate:            "SQLITE_UPDATE",
	OpAttach:            "SQLITE_ATTACH",
	OpDetach:            "SQLITE_DETACH",
	OpAlterTable:        "SQLITE_ALTER_TABLE",
	OpReindex:           "SQLITE_REINDEX",
	OpAnalyze:           "SQLITE_ANALYZE",
	OpCreateVTable:      "SQLITE_CREATE_VTABLE",
	OpDropVTable:        "SQLITE_DROP_VTABLE",
	OpFunction:          "SQLITE_FUNCTION",
	OpSavepoint:         "SQLITE_SAVEPOINT",
	OpCopy:              "SQLITE_COPY",
	OpRecursive:         "SQLITE_RECURSIVE",
}

// String returns the C constant name of the action code.
func (op OpType) String() string {
	if name, ok := opTypeNames[op]; ok {
		return name
	}
	return "SQLITE_UNKNOWN_OP(" + strconv.Itoa(int(op)) + ")"
}

// AuthResult is the result of a call to an Authorizer. The zero value is
// AuthResultOK.
type AuthResult int32

// Possible return values of an Authorizer.
const (
	AuthResultOK AuthResult = lib.SQLITE_OK
	// Cause the entire SQL statement to be rejected with an error.
	AuthResultDeny AuthResult = lib.SQLITE_DENY
	// Disallow the specific action but allow the SQL statement to continue to
	// be compiled.
	AuthResultIgnore AuthResult = lib.SQLITE_IGNORE
)

// String returns the C constant name of the result.
func (result AuthResult) String() string {
	switch result {
	case AuthResultOK:
		return "SQLITE_OK"
	case AuthResultDeny:
		return "SQLITE_DENY"
	case AuthResultIgnore:
		return "SQLITE_IGNORE"
	default:
		return "SQLITE_UNKNOWN_AUTH_RESULT(" + strconv.Itoa(int(result)) + ")"
	}
}

// native converts the result to what the engine receives. Unknown results
// deny.
func (result AuthResult) native() int32 {
	switch result {
	case AuthResultOK, AuthResultIgnore:
		return int32(result)
	default:
		return lib.SQLITE_DENY
	}
}

// SetAuthorizer registers an authorizer for the database connection.
// SetAuthorizer(nil) clears any authorizer previously set.
func (c *Conn) SetAuthorizer(auth Authorizer) error {
	s, err := c.open("set authorizer")
	if err != nil {
		return err
	}
	var res ResultCode
	if auth == nil {
		s.auth = nil
		res = ResultCode(lib.Xsqlite3_set_authorizer(s.tls, s.db, 0, 0))
	} else {
		s.auth = auth
		res = ResultCode(lib.Xsqlite3_set_authorizer(s.tls, s.db, trampolines.auth, s.db))
	}
	if !res.IsSuccess() {
		s.auth = nil
		return fmt.Errorf("sqlite3: set authorizer: %w", engineError(s.tls, s.db, s.enc, "", res))
	}
	return nil
}

func authTrampoline(tls *libc.TLS, pArg uintptr, action int32, arg1, arg2, db, trigger uintptr) int32 {
	s := lookupSession(pArg)
	if s == nil || s.auth == nil {
		return lib.SQLITE_OK
	}
	auth := s.auth
	result := AuthResultDeny
	s.protect("authorizer", func() error {
		a := Action{Op: OpType(action)}
		enc := s.enc.narrow()
		for _, f := range []struct {
			dst *sql.NullString
			p   uintptr
		}{
			{&a.Arg1, arg1},
			{&a.Arg2, arg2},
			{&a.Database, db},
			{&a.Trigger, trigger},
		} {
			if f.p == 0 {
				continue
			}
			text, err := enc.fromEngineCString(f.p)
			if err != nil {
				return err
			}
			*f.dst = sql.NullString{String: text, Valid: true}
		}
		result = auth.Authorize(a)
		return nil
	})
	return result.native()
}
