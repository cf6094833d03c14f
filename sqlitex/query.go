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

package sqlitex

import (
	"errors"

	"zombiezen.com/go/sqlite3"
)

var (
	errNoResults       = errors.New("sqlitex: statement has no results")
	errMultipleResults = errors.New("sqlitex: statement has multiple result rows")
)

// A failed Step finalizes stmt, so only the row-count errors reset.
func resultSetup(stmt *sqlite3.Stmt) error {
	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if !hasRow {
		stmt.Reset()
		return errNoResults
	}
	return nil
}

func resultTeardown(stmt *sqlite3.Stmt) error {
	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if hasRow {
		stmt.Reset()
		return errMultipleResults
	}
	return stmt.Reset()
}

// ResultBool reports whether the first column of the first and only row
// produced by running stmt is non-zero.
// It returns an error if there is not exactly one result row.
func ResultBool(stmt *sqlite3.Stmt) (bool, error) {
	res, err := ResultInt64(stmt)
	return res != 0, err
}

// ResultInt returns the first column of the first and only row
// produced by running stmt as an integer.
// It returns an error if there is not exactly one result row.
func ResultInt(stmt *sqlite3.Stmt) (int, error) {
	res, err := ResultInt64(stmt)
	return int(res), err
}

// ResultInt64 returns the first column of the first and only row
// produced by running stmt as an integer.
// It returns an error if there is not exactly one result row.
func ResultInt64(stmt *sqlite3.Stmt) (int64, error) {
	if err := resultSetup(stmt); err != nil {
		return 0, err
	}
	res := stmt.ColumnInt64(0)
	if err := resultTeardown(stmt); err != nil {
		return 0, err
	}
	return res, nil
}

// ResultText returns the first column of the first and only row
// produced by running stmt as text.
// It returns an error if there is not exactly one result row.
func ResultText(stmt *sqlite3.Stmt) (string, error) {
	if err := resultSetup(stmt); err != nil {
		return "", err
	}
	res := stmt.ColumnText(0)
	if err := resultTeardown(stmt); err != nil {
		return "", err
	}
	return res, nil
}

// ResultFloat returns the first column of the first and only row
// produced by running stmt as a real number.
// It returns an error if there is not exactly one result row.
func ResultFloat(stmt *sqlite3.Stmt) (float64, error) {
	if err := resultSetup(stmt); err != nil {
		return 0, err
	}
	res := stmt.ColumnFloat(0)
	if err := resultTeardown(stmt); err != nil {
		return 0, err
	}
	return res, nil
}

// ResultBytes returns a copy of the first column of the first and only row
// produced by running stmt.
// It returns an error if there is not exactly one result row.
func ResultBytes(stmt *sqlite3.Stmt) ([]byte, error) {
	if err := resultSetup(stmt); err != nil {
		return nil, err
	}
	res := stmt.ColumnBytes(0)
	if err := resultTeardown(stmt); err != nil {
		return nil, err
	}
	return res, nil
}
