// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"fmt"
	"strings"

	lib "modernc.org/sqlite/lib"
)

// OpenFlags are flags used when opening a Conn.
//
// OpenWAL is not passed to the engine: Open switches the database into
// write-ahead logging mode with a PRAGMA once the connection is established.
//
// https://www.sqlite.org/c3ref/c_open_autoproxy.html
type OpenFlags uint

const (
	OpenReadOnly      OpenFlags = lib.SQLITE_OPEN_READONLY
	OpenReadWrite     OpenFlags = lib.SQLITE_OPEN_READWRITE
	OpenCreate        OpenFlags = lib.SQLITE_OPEN_CREATE
	OpenURI           OpenFlags = lib.SQLITE_OPEN_URI
	OpenMemory        OpenFlags = lib.SQLITE_OPEN_MEMORY
	OpenMainDB        OpenFlags = lib.SQLITE_OPEN_MAIN_DB
	OpenTempDB        OpenFlags = lib.SQLITE_OPEN_TEMP_DB
	OpenTransientDB   OpenFlags = lib.SQLITE_OPEN_TRANSIENT_DB
	OpenMainJournal   OpenFlags = lib.SQLITE_OPEN_MAIN_JOURNAL
	OpenTempJournal   OpenFlags = lib.SQLITE_OPEN_TEMP_JOURNAL
	OpenSubjournal    OpenFlags = lib.SQLITE_OPEN_SUBJOURNAL
	OpenMasterJournal OpenFlags = lib.SQLITE_OPEN_MASTER_JOURNAL
	OpenNoMutex       OpenFlags = lib.SQLITE_OPEN_NOMUTEX
	OpenFullMutex     OpenFlags = lib.SQLITE_OPEN_FULLMUTEX
	OpenSharedCache   OpenFlags = lib.SQLITE_OPEN_SHAREDCACHE
	OpenPrivateCache  OpenFlags = lib.SQLITE_OPEN_PRIVATECACHE
	OpenWAL           OpenFlags = lib.SQLITE_OPEN_WAL
)

var openFlagNames = []struct {
	flag OpenFlags
	name string
}{
	{OpenReadOnly, "SQLITE_OPEN_READONLY"},
	{OpenReadWrite, "SQLITE_OPEN_READWRITE"},
	{OpenCreate, "SQLITE_OPEN_CREATE"},
	{OpenURI, "SQLITE_OPEN_URI"},
	{OpenMemory, "SQLITE_OPEN_MEMORY"},
	{OpenMainDB, "SQLITE_OPEN_MAIN_DB"},
	{OpenTempDB, "SQLITE_OPEN_TEMP_DB"},
	{OpenTransientDB, "SQLITE_OPEN_TRANSIENT_DB"},
	{OpenMainJournal, "SQLITE_OPEN_MAIN_JOURNAL"},
	{OpenTempJournal, "SQLITE_OPEN_TEMP_JOURNAL"},
	{OpenSubjournal, "SQLITE_OPEN_SUBJOURNAL"},
	{OpenMasterJournal, "SQLITE_OPEN_MASTER_JOURNAL"},
	{OpenNoMutex, "SQLITE_OPEN_NOMUTEX"},
	{OpenFullMutex, "SQLITE_OPEN_FULLMUTEX"},
	{OpenSharedCache, "SQLITE_OPEN_SHAREDCACHE"},
	{OpenPrivateCache, "SQLITE_OPEN_PRIVATECACHE"},
	{OpenWAL, "SQLITE_OPEN_WAL"},
}

// String returns a pipe-separated list of the C constant names set in flags.
func (flags OpenFlags) String() string {
	var parts []string
	for _, f := range openFlagNames {
		if flags&f.flag != 0 {
			parts = append(parts, f.name)
			flags &^= f.flag
		}
	}
	if flags != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint(flags)))
	}
	return strings.Join(parts, "|")
}

// ParseOpenFlags parses a pipe-separated list of flag names as produced by
// OpenFlags.String. The "SQLITE_OPEN_" prefix is optional and names are
// case-insensitive, so "readwrite|create" is accepted.
func ParseOpenFlags(s string) (OpenFlags, error) {
	var flags OpenFlags
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
parts:
	for _, part := range strings.Split(s, "|") {
		name := strings.ToUpper(strings.TrimSpace(part))
		if !strings.HasPrefix(name, "SQLITE_OPEN_") {
			name = "SQLITE_OPEN_" + name
		}
		for _, f := range openFlagNames {
			if f.name == name {
				flags |= f.flag
				continue parts
			}
		}
		return 0, fmt.Errorf("sqlite3: unknown open flag %q", strings.TrimSpace(part))
	}
	return flags, nil
}
