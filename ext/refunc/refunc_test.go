// Copyright 2023 Ross Light
// SPDX-License-Identifier: ISC

package refunc

import (
	"testing"

	"zombiezen.com/go/sqlite3"
)

func TestImpl(t *testing.T) {
	c, err := sqlite3.OpenConn("", sqlite3.OpenMemory|sqlite3.OpenReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Error(err)
		}
	}()

	if err := Register(c); err != nil {
		t.Error("Register:", err)
	}

	tests := []struct {
		x, y string
		want bool
	}{
		{"", "foo", false},
		{"foo", "", true},
		{"foo", "^fo*$", true},
		{"bar", "^fo*$", false},
	}
	stmt, err := c.Compile("VALUES (:x REGEXP :y);")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()
	for _, test := range tests {
		stmt.BindText(stmt.BindParamIndex(":x"), test.x)
		stmt.BindText(stmt.BindParamIndex(":y"), test.y)
		rowReturned, err := stmt.Step()
		if err != nil {
			t.Fatalf("%q REGEXP %q: %v", test.x, test.y, err)
		}
		if !rowReturned {
			t.Errorf("%q REGEXP %q: no row returned", test.x, test.y)
			stmt.Reset()
			continue
		}
		if got := stmt.ColumnBool(0); got != test.want {
			t.Errorf("%q REGEXP %q = %t; want %t", test.x, test.y, got, test.want)
		}
		if err := stmt.Reset(); err != nil {
			t.Errorf("%q REGEXP %q: %v", test.x, test.y, err)
		}
	}
}

func TestBadPattern(t *testing.T) {
	c, err := sqlite3.OpenConn(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := Register(c); err != nil {
		t.Fatal(err)
	}
	err = c.Exec(`SELECT 'x' REGEXP '(';`, nil)
	if err == nil {
		t.Fatal("invalid pattern did not fail")
	}
	if got := sqlite3.ErrCode(err); got != sqlite3.ResultAbort {
		t.Errorf("ErrCode(%v) = %v; want %v", err, got, sqlite3.ResultAbort)
	}
}
