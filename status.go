// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"fmt"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// StatusOp selects an engine-wide status counter.
//
// https://www.sqlite.org/c3ref/c_status_malloc_count.html
type StatusOp int32

// Engine-wide status counters.
const (
	StatusMemoryUsed        StatusOp = lib.SQLITE_STATUS_MEMORY_USED
	StatusPageCacheUsed     StatusOp = lib.SQLITE_STATUS_PAGECACHE_USED
	StatusPageCacheOverflow StatusOp = lib.SQLITE_STATUS_PAGECACHE_OVERFLOW
	StatusMallocSize        StatusOp = lib.SQLITE_STATUS_MALLOC_SIZE
	StatusParserStack       StatusOp = lib.SQLITE_STATUS_PARSER_STACK
	StatusPageCacheSize     StatusOp = lib.SQLITE_STATUS_PAGECACHE_SIZE
	StatusMallocCount       StatusOp = lib.SQLITE_STATUS_MALLOC_COUNT
)

func (op StatusOp) String() string {
	switch op {
	case StatusMemoryUsed:
		return "memory_used"
	case StatusPageCacheUsed:
		return "pagecache_used"
	case StatusPageCacheOverflow:
		return "pagecache_overflow"
	case StatusMallocSize:
		return "malloc_size"
	case StatusParserStack:
		return "parser_stack"
	case StatusPageCacheSize:
		return "pagecache_size"
	case StatusMallocCount:
		return "malloc_count"
	default:
		return fmt.Sprintf("StatusOp(%d)", int32(op))
	}
}

// StatusOps lists every engine-wide counter.
var StatusOps = []StatusOp{
	StatusMemoryUsed,
	StatusPageCacheUsed,
	StatusPageCacheOverflow,
	StatusMallocSize,
	StatusParserStack,
	StatusPageCacheSize,
	StatusMallocCount,
}

// Status returns the current and highest values of an engine-wide counter.
// If reset is true, the highest value is reset to the current value.
//
// https://www.sqlite.org/c3ref/status.html
func Status(op StatusOp, reset bool) (current, highwater int64, err error) {
	if err := initEngine(); err != nil {
		return 0, 0, err
	}
	tls := libc.NewTLS()
	defer tls.Close()
	buf, err := malloc(tls, 2*8)
	if err != nil {
		return 0, 0, err
	}
	defer libc.Xfree(tls, buf)
	res := ResultCode(lib.Xsqlite3_status64(tls, int32(op), buf, buf+8, boolInt32(reset)))
	if !res.IsSuccess() {
		return 0, 0, fmt.Errorf("sqlite3: status %v: %w", op, res.ToError())
	}
	return *(*int64)(unsafe.Pointer(buf)), *(*int64)(unsafe.Pointer(buf + 8)), nil
}

// MemoryUsed returns the number of bytes the engine currently has allocated.
func MemoryUsed() int64 {
	cur, _, _ := Status(StatusMemoryUsed, false)
	return cur
}

// DBStatusOp selects a per-connection status counter.
//
// https://www.sqlite.org/c3ref/c_dbstatus_options.html
type DBStatusOp int32

// Per-connection status counters.
const (
	DBStatusLookasideUsed     DBStatusOp = lib.SQLITE_DBSTATUS_LOOKASIDE_USED
	DBStatusCacheUsed         DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_USED
	DBStatusSchemaUsed        DBStatusOp = lib.SQLITE_DBSTATUS_SCHEMA_USED
	DBStatusStmtUsed          DBStatusOp = lib.SQLITE_DBSTATUS_STMT_USED
	DBStatusLookasideHit      DBStatusOp = lib.SQLITE_DBSTATUS_LOOKASIDE_HIT
	DBStatusLookasideMissSize DBStatusOp = lib.SQLITE_DBSTATUS_LOOKASIDE_MISS_SIZE
	DBStatusLookasideMissFull DBStatusOp = lib.SQLITE_DBSTATUS_LOOKASIDE_MISS_FULL
	DBStatusCacheHit          DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_HIT
	DBStatusCacheMiss         DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_MISS
	DBStatusCacheWrite        DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_WRITE
	DBStatusDeferredFKs       DBStatusOp = lib.SQLITE_DBSTATUS_DEFERRED_FKS
	DBStatusCacheUsedShared   DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_USED_SHARED
	DBStatusCacheSpill        DBStatusOp = lib.SQLITE_DBSTATUS_CACHE_SPILL
)

var dbStatusNames = map[DBStatusOp]string{
	DBStatusLookasideUsed:     "lookaside_used",
	DBStatusCacheUsed:         "cache_used",
	DBStatusSchemaUsed:        "schema_used",
	DBStatusStmtUsed:          "stmt_used",
	DBStatusLookasideHit:      "lookaside_hit",
	DBStatusLookasideMissSize: "lookaside_miss_size",
	DBStatusLookasideMissFull: "lookaside_miss_full",
	DBStatusCacheHit:          "cache_hit",
	DBStatusCacheMiss:         "cache_miss",
	DBStatusCacheWrite:        "cache_write",
	DBStatusDeferredFKs:       "deferred_fks",
	DBStatusCacheUsedShared:   "cache_used_shared",
	DBStatusCacheSpill:        "cache_spill",
}

func (op DBStatusOp) String() string {
	if name, ok := dbStatusNames[op]; ok {
		return name
	}
	return fmt.Sprintf("DBStatusOp(%d)", int32(op))
}

// DBStatusOps lists every per-connection counter.
var DBStatusOps = []DBStatusOp{
	DBStatusLookasideUsed,
	DBStatusCacheUsed,
	DBStatusSchemaUsed,
	DBStatusStmtUsed,
	DBStatusLookasideHit,
	DBStatusLookasideMissSize,
	DBStatusLookasideMissFull,
	DBStatusCacheHit,
	DBStatusCacheMiss,
	DBStatusCacheWrite,
	DBStatusDeferredFKs,
	DBStatusCacheUsedShared,
	DBStatusCacheSpill,
}

// DBStatus returns the current and highest values of a connection counter.
// If reset is true, the highest value is reset.
//
// https://www.sqlite.org/c3ref/db_status.html
func (c *Conn) DBStatus(op DBStatusOp, reset bool) (current, highwater int, err error) {
	s, err := c.open("db status")
	if err != nil {
		return 0, 0, err
	}
	buf, err := malloc(s.tls, 2*4)
	if err != nil {
		return 0, 0, err
	}
	defer libc.Xfree(s.tls, buf)
	res := ResultCode(lib.Xsqlite3_db_status(s.tls, s.db, int32(op), buf, buf+4, boolInt32(reset)))
	if !res.IsSuccess() {
		return 0, 0, fmt.Errorf("sqlite3: db status %v: %w", op, engineError(s.tls, s.db, s.enc, "", res))
	}
	return int(*(*int32)(unsafe.Pointer(buf))), int(*(*int32)(unsafe.Pointer(buf + 4))), nil
}

// StmtStatusOp selects a per-statement counter.
//
// https://www.sqlite.org/c3ref/c_stmtstatus_counter.html
type StmtStatusOp int32

// Per-statement counters.
const (
	StmtStatusFullscanStep StmtStatusOp = lib.SQLITE_STMTSTATUS_FULLSCAN_STEP
	StmtStatusSort         StmtStatusOp = lib.SQLITE_STMTSTATUS_SORT
	StmtStatusAutoindex    StmtStatusOp = lib.SQLITE_STMTSTATUS_AUTOINDEX
	StmtStatusVMStep       StmtStatusOp = lib.SQLITE_STMTSTATUS_VM_STEP
	StmtStatusReprepare    StmtStatusOp = lib.SQLITE_STMTSTATUS_REPREPARE
	StmtStatusRun          StmtStatusOp = lib.SQLITE_STMTSTATUS_RUN
	StmtStatusFilterMiss   StmtStatusOp = lib.SQLITE_STMTSTATUS_FILTER_MISS
	StmtStatusFilterHit    StmtStatusOp = lib.SQLITE_STMTSTATUS_FILTER_HIT
	StmtStatusMemUsed      StmtStatusOp = lib.SQLITE_STMTSTATUS_MEMUSED
)

func boolInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
