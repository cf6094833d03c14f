// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

// Package sqlitefile provides functions for executing SQLite statements from a file.
package sqlitefile

import (
	"fmt"
	"io/fs"
	"strings"

	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitex"
)

// Exec executes the single statement in the given SQL file.
func Exec(conn *sqlite3.Conn, fsys fs.FS, filename string, opts *sqlitex.ExecOptions) error {
	query, err := readString(fsys, filename)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if err := sqlitex.Execute(conn, strings.TrimSpace(query), opts); err != nil {
		return fmt.Errorf("exec %s: %w", filename, err)
	}
	return nil
}

// ExecScript executes a script of SQL statements from a file.
//
// The script is wrapped in a SAVEPOINT transaction, which is rolled back on
// any error.
func ExecScript(conn *sqlite3.Conn, fsys fs.FS, filename string, opts *sqlitex.ExecOptions) error {
	script, err := readString(fsys, filename)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, script, opts); err != nil {
		return fmt.Errorf("exec %s: %w", filename, err)
	}
	return nil
}

// ExecTemplate expands the command template in the given file with args
// (see sqlite3.Conn.Format) and runs every resulting statement. Rows are
// passed to obs if it is not nil.
func ExecTemplate(conn *sqlite3.Conn, fsys fs.FS, filename string, obs sqlite3.RowObserver, args ...any) error {
	template, err := readString(fsys, filename)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if err := conn.Exec(template, obs, args...); err != nil {
		return fmt.Errorf("exec %s: %w", filename, err)
	}
	return nil
}

// Compile compiles the first SQL statement in a file.
// The caller is responsible for calling Close on the returned Stmt.
func Compile(conn *sqlite3.Conn, fsys fs.FS, filename string) (*sqlite3.Stmt, error) {
	query, err := readString(fsys, filename)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	stmt, err := conn.Compile(strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}
	return stmt, nil
}

func readString(fsys fs.FS, filename string) (string, error) {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
