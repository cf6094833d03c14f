// Copyright (c) 2018 David Crawshaw <david@zentus.com>
// Copyright (c) 2021 Ross Light <ross@zombiezen.com>
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that the above
// copyright notice and this permission notice appear in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
// WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
// ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
// WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
// ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
// OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
//
// SPDX-License-Identifier: ISC

// Package sqlitex provides utilities for working with SQLite.
package sqlitex

import (
	"fmt"
	"reflect"

	"zombiezen.com/go/sqlite3"
)

// ExecOptions is the set of optional arguments executing a statement.
type ExecOptions struct {
	// Args is the set of positional arguments to bind to the statement. The first
	// element in the slice is ?1. See https://sqlite.org/lang_expr.html for more
	// details.
	Args []any
	// Named is the set of named arguments to bind to the statement. Keys must
	// start with ':', '@', or '$'. See https://sqlite.org/lang_expr.html for more
	// details.
	Named map[string]any
	// ResultFunc is called for each result row. If ResultFunc returns an error
	// then iteration ceases and Execute returns the error value.
	ResultFunc func(stmt *sqlite3.Stmt) error
}

// Exec executes the single SQL statement in query, binding args to its
// positional parameters. resultFn is called for each row, if not nil.
func Exec(conn *sqlite3.Conn, query string, resultFn func(stmt *sqlite3.Stmt) error, args ...any) error {
	return Execute(conn, query, &ExecOptions{
		Args:       args,
		ResultFunc: resultFn,
	})
}

// Execute executes the single SQL statement in query with the given options.
// Text after the first statement is an error.
func Execute(conn *sqlite3.Conn, query string, opts *ExecOptions) error {
	stmt, err := conn.Compile(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if err := exec(stmt, opts, false); err != nil {
		return err
	}
	more, err := stmt.CompileNext()
	if err != nil {
		return err
	}
	if more {
		return fmt.Errorf("sqlitex: exec %q: multiple statements", query)
	}
	return nil
}

// ExecuteScript executes every statement in script inside a SAVEPOINT,
// which is rolled back on any error. The options are applied to each
// statement; named arguments that a statement does not use are ignored.
func ExecuteScript(conn *sqlite3.Conn, script string, opts *ExecOptions) (err error) {
	defer Save(conn)(&err)

	stmt, err := conn.Compile(script)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for stmt.State() == sqlite3.StmtCompiled {
		if err := execScriptStmt(stmt, opts); err != nil {
			return err
		}
		if _, err := stmt.CompileNext(); err != nil {
			return err
		}
	}
	return nil
}

// execScriptStmt runs one statement of a script with the subset of opts'
// arguments that the statement has parameters for.
func execScriptStmt(stmt *sqlite3.Stmt, opts *ExecOptions) error {
	if opts == nil {
		return exec(stmt, nil, true)
	}
	scoped := *opts
	scoped.Args = opts.Args[:min(len(opts.Args), stmt.BindParamCount())]
	return exec(stmt, &scoped, true)
}

func exec(stmt *sqlite3.Stmt, opts *ExecOptions, allowUnused bool) error {
	if stmt.State() != sqlite3.StmtCompiled {
		return nil
	}
	if opts != nil {
		for i, arg := range opts.Args {
			if err := BindArg(stmt, i+1, arg); err != nil {
				return err
			}
		}
		if err := bindNamed(stmt, opts.Named, allowUnused); err != nil {
			return err
		}
	}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return err
		}
		if !hasRow {
			return nil
		}
		if opts != nil && opts.ResultFunc != nil {
			if err := opts.ResultFunc(stmt); err != nil {
				return err
			}
		}
	}
}

// BindArg binds a Go value to the 1-based parameter i, choosing the bind
// method from the value's kind. Values of other kinds are bound as their
// fmt.Sprint text.
func BindArg(stmt *sqlite3.Stmt, i int, arg any) error {
	v := reflect.ValueOf(arg)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return stmt.BindInt64(i, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return stmt.BindInt64(i, int64(v.Uint()))
	case reflect.Float32, reflect.Float64:
		return stmt.BindFloat(i, v.Float())
	case reflect.String:
		return stmt.BindText(i, v.String())
	case reflect.Bool:
		return stmt.BindBool(i, v.Bool())
	case reflect.Invalid:
		return stmt.BindNull(i)
	default:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return stmt.BindBytes(i, v.Bytes())
		}
		return stmt.BindText(i, fmt.Sprint(v.Interface()))
	}
}

func bindNamed(stmt *sqlite3.Stmt, args map[string]any, allowUnused bool) error {
	if len(args) == 0 {
		return nil
	}
	used := 0
	for i, count := 1, stmt.BindParamCount(); i <= count; i++ {
		name := stmt.BindParamName(i)
		if name == "" || name[0] == '?' {
			continue
		}
		arg, present := args[name]
		if !present {
			return fmt.Errorf("sqlitex: missing parameter %s", name)
		}
		if err := BindArg(stmt, i, arg); err != nil {
			return err
		}
		used++
	}
	if !allowUnused && used < len(args) {
		for name := range args {
			if stmt.BindParamIndex(name) == 0 {
				return fmt.Errorf("sqlitex: unknown parameter %s", name)
			}
		}
	}
	return nil
}
