// Copyright (c) 2018 David Crawshaw <david@zentus.com>
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

package sqlite3_test

import (
	"errors"
	"testing"

	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitex"
)

func initSrc(t *testing.T) *sqlite3.Conn {
	conn, err := sqlite3.OpenConn(`:memory:`)
	if err != nil {
		t.Fatal(err)
	}
	if err := sqlitex.ExecuteScript(conn, `CREATE TABLE t (c1 PRIMARY KEY, c2, c3);
                INSERT INTO t (c1, c2, c3) VALUES (1, 2, 3);
                INSERT INTO t (c1, c2, c3) VALUES (2, 4, 5);`, nil); err != nil {
		conn.Close()
		t.Fatal(err)
	}
	return conn
}

func openDst(t *testing.T) *sqlite3.Conn {
	conn, err := sqlite3.OpenConn(`:memory:`)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func resultInt(t *testing.T, conn *sqlite3.Conn, query string) int {
	t.Helper()
	stmt, err := conn.Compile(query)
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()
	n, err := sqlitex.ResultInt(stmt)
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestBackup(t *testing.T) {
	src := initSrc(t)
	defer src.Close()
	dst := openDst(t)
	defer dst.Close()

	b, err := sqlite3.NewBackup(dst, "main", src, "main")
	if err != nil {
		t.Fatal(err)
	}
	status, err := b.StepStatus(-1)
	if err != nil {
		t.Fatal(err)
	}
	if status != sqlite3.BackupDone {
		t.Errorf("StepStatus(-1) = %v; want %v", status, sqlite3.BackupDone)
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d; want 0", got)
	}
	if err := b.Close(); err != nil {
		t.Error(err)
	}

	if count := resultInt(t, dst, `SELECT count(*) FROM t;`); count != 2 {
		t.Fatalf("expected 2 rows but found %v", count)
	}
	if c2 := resultInt(t, dst, `SELECT c2 FROM t WHERE c1 = 1;`); c2 != 2 {
		t.Fatalf("expected row1 c2 to be 2 but found %v", c2)
	}
	if c2 := resultInt(t, dst, `SELECT c2 FROM t WHERE c1 = 2;`); c2 != 4 {
		t.Fatalf("expected row2 c2 to be 4 but found %v", c2)
	}
}

func TestBackupIncremental(t *testing.T) {
	src := initSrc(t)
	defer src.Close()
	err := src.Exec(`CREATE TABLE big (data BLOB); INSERT INTO big (data) VALUES (zeroblob(65536));`, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst := openDst(t)
	defer dst.Close()

	b, err := sqlite3.NewBackup(dst, "", src, "")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	prev := -1
	steps := 0
	for {
		more, err := b.Step(1)
		if err != nil {
			t.Fatalf("Step #%d: %v", steps+1, err)
		}
		steps++
		remaining := b.Remaining()
		if prev >= 0 && remaining > prev {
			t.Errorf("after step %d: Remaining() = %d; was %d before", steps, remaining, prev)
		}
		prev = remaining
		if !more {
			break
		}
		if steps > 1000 {
			t.Fatal("backup did not finish")
		}
	}
	if steps < 2 {
		t.Errorf("backup took %d steps; want several", steps)
	}
	if prev != 0 {
		t.Errorf("Remaining() = %d after done; want 0", prev)
	}
	if got, want := b.PageCount(), resultInt(t, src, `PRAGMA page_count;`); got != want {
		t.Errorf("PageCount() = %d; want %d", got, want)
	}
	if n := resultInt(t, dst, `SELECT length(data) FROM big;`); n != 65536 {
		t.Errorf("copied blob length = %d; want 65536", n)
	}
}

func TestBackupSameConn(t *testing.T) {
	conn := initSrc(t)
	defer conn.Close()
	b, err := sqlite3.NewBackup(conn, "main", conn, "main")
	if err == nil {
		b.Close()
		t.Fatal("NewBackup did not return an error")
	}
	var usage *sqlite3.UsageError
	if !errors.As(err, &usage) {
		t.Errorf("NewBackup error = %v; want *UsageError", err)
	}
}

func TestBackupSourceClosed(t *testing.T) {
	src := initSrc(t)
	dst := openDst(t)
	defer dst.Close()

	b, err := sqlite3.NewBackup(dst, "main", src, "main")
	if err != nil {
		src.Close()
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = b.StepStatus(-1)
	if got, want := sqlite3.ErrCode(err), sqlite3.ResultMisuse; got != want {
		t.Errorf("StepStatus after source Close: ErrCode(%v) = %v; want %v", err, got, want)
	}
	if b.LastError() == nil {
		t.Error("LastError() = nil after failed step")
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d; want 0", got)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close after source Close: %v", err)
	}
}

func TestBackupDestinationClosed(t *testing.T) {
	src := initSrc(t)
	defer src.Close()
	dst := openDst(t)

	b, err := sqlite3.NewBackup(dst, "main", src, "main")
	if err != nil {
		dst.Close()
		t.Fatal(err)
	}
	if err := dst.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = b.StepStatus(-1)
	var usage *sqlite3.UsageError
	if !errors.As(err, &usage) {
		t.Errorf("StepStatus after destination Close = %v; want *UsageError", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
