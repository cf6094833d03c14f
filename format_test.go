// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"errors"
	"strings"
	"testing"
)

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		template string
		version  int
		want     int
		wantErr  bool
	}{
		{template: "SELECT 1;", version: 0x030000, want: 0},
		{template: "SELECT %s FROM %s;", version: 0x030000, want: 2},
		{template: "SELECT '%q', %Q;", version: 0x030000, want: 2},
		{template: "SELECT '100%%';", version: 0x030000, want: 0},
		{template: "SELECT %Q;", version: 0x020500, want: 1},
		{template: "SELECT %Q;", version: 0x020400, wantErr: true},
		{template: "SELECT %d;", version: 0x030000, wantErr: true},
		{template: "SELECT 1%", version: 0x030000, wantErr: true},
		{template: strings.Repeat("%s,", MaxParams), version: 0x030000, want: MaxParams},
		{template: strings.Repeat("%s,", MaxParams+1), version: 0x030000, wantErr: true},
		{template: strings.Repeat("%%", MaxParams+1), version: 0x030000, want: 0},
	}
	for _, test := range tests {
		got, err := countPlaceholders([]byte(test.template), test.version)
		if test.wantErr {
			var usage *UsageError
			if !errors.As(err, &usage) {
				t.Errorf("countPlaceholders(%q, %#x) = %d, %v; want usage error", test.template, test.version, got, err)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("countPlaceholders(%q, %#x) = %d, %v; want %d, <nil>", test.template, test.version, got, err, test.want)
		}
	}
}

type stringer struct{}

func (stringer) String() string { return "it's" }

func TestFormat(t *testing.T) {
	c := openTestConn(t)
	var nilString *string
	name := "Bob"
	tests := []struct {
		template string
		args     []any
		want     string
	}{
		{"SELECT 1;", nil, "SELECT 1;"},
		{"SELECT '%q';", []any{"it's"}, "SELECT 'it''s';"},
		{"SELECT %Q;", []any{"it's"}, "SELECT 'it''s';"},
		{"SELECT %s;", []any{"'raw'"}, "SELECT 'raw';"},
		{"SELECT %Q, %q, %s;", []any{nil, nil, nil}, "SELECT NULL, NULL, NULL;"},
		{"SELECT %Q;", []any{nilString}, "SELECT NULL;"},
		{"SELECT %Q;", []any{&name}, "SELECT 'Bob';"},
		{"SELECT %Q;", []any{[]byte("a'b")}, "SELECT 'a''b';"},
		{"SELECT %Q;", []any{stringer{}}, "SELECT 'it''s';"},
		{"SELECT %s + %s;", []any{1, 2.5}, "SELECT 1 + 2.5;"},
		{"SELECT '100%%', %Q;", []any{"%s"}, "SELECT '100%', '%s';"},
		{"SELECT %Q;", []any{"a", "extra"}, "SELECT 'a';"},
		{"SELECT %Q;", []any{"''"}, "SELECT '''''';"},
	}
	for _, test := range tests {
		got, err := c.Format(test.template, test.args...)
		if err != nil {
			t.Errorf("Format(%q, %v): %v", test.template, test.args, err)
			continue
		}
		if got != test.want {
			t.Errorf("Format(%q, %v) = %q; want %q", test.template, test.args, got, test.want)
		}
	}
}

func TestFormatErrors(t *testing.T) {
	c := openTestConn(t)
	tests := []struct {
		template string
		args     []any
	}{
		{"SELECT %s, %s;", []any{"a"}},
		{"SELECT %x;", []any{"a"}},
		{"SELECT %", nil},
		{strings.Repeat("%s", MaxParams+1), make([]any, MaxParams+1)},
	}
	for _, test := range tests {
		if _, err := c.Format(test.template, test.args...); ErrCode(err) != ResultMisuse {
			t.Errorf("Format(%q, %d args) = %v; want usage error", test.template, len(test.args), err)
		}
	}
}

func TestFormatCharset(t *testing.T) {
	c, err := Open(":memory:", &OpenOptions{Encoding: Encoding{Charset: "ISO-8859-1"}})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got, err := c.Format("SELECT %Q;", "café")
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT 'café';"; got != want {
		t.Errorf("Format = %q; want %q", got, want)
	}
	if _, err := c.Format("SELECT %Q;", "世"); err == nil {
		t.Error("Format with an unrepresentable argument did not return an error")
	}
}

func TestFormatWideExec(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
	}{
		{name: "UTF16", enc: Encoding{Wide: true}},
		{name: "UTF16IgnoresCharset", enc: Encoding{Wide: true, Charset: "ISO-8859-1"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := Open(":memory:", &OpenOptions{Encoding: test.enc})
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			if err := c.Exec("CREATE TABLE t (s TEXT); INSERT INTO t VALUES (%Q);", nil, "世界"); err != nil {
				t.Fatal(err)
			}
			if got, err := c.Format("SELECT %Q;", "世界"); err != nil || got != "SELECT '世界';" {
				t.Errorf("Format(...) = %q, %v; want \"SELECT '世界';\", <nil>", got, err)
			}
			stmt, err := c.CompileArgs("SELECT s FROM t WHERE s = %Q;", "世界")
			if err != nil {
				t.Fatal(err)
			}
			defer stmt.Close()
			if hasRow, err := stmt.Step(); err != nil || !hasRow {
				t.Fatalf("Step() = %t, %v; want true, <nil>", hasRow, err)
			}
			if got := stmt.ColumnText(0); got != "世界" {
				t.Errorf("ColumnText(0) = %q; want \"世界\"", got)
			}
		})
	}
}
