// Copyright (c) 2018 David Crawshaw <david@zentus.com>
// Copyright (c) 2021 Ross Light <rosss@zombiezen.com>
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
	"context"
	"errors"
	"testing"

	"zombiezen.com/go/sqlite3"
)

func TestExecTransaction(t *testing.T) {
	conn := openTestConn(t)

	if err := Exec(conn, "CREATE TABLE t (c1);", nil); err != nil {
		t.Fatal(err)
	}
	countFn := func() int {
		n, err := countRows(conn, "t")
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
	errNoSuccess := errors.New("succeed=false")
	insert := func(succeed bool) (err error) {
		defer Save(conn)(&err)

		if err := Exec(conn, `INSERT INTO t VALUES ('hello');`, nil); err != nil {
			t.Fatal(err)
		}
		if succeed {
			return nil
		}
		return errNoSuccess
	}

	if err := insert(true); err != nil {
		t.Fatal(err)
	}
	if got := countFn(); got != 1 {
		t.Errorf("expecting 1 row, got %d", got)
	}
	if err := insert(true); err != nil {
		t.Fatal(err)
	}
	if got := countFn(); got != 2 {
		t.Errorf("expecting 2 rows, got %d", got)
	}
	if err := insert(false); err != errNoSuccess {
		t.Errorf("expecting insert to fail with errNoSuccess, got %v", err)
	}
	if got := countFn(); got != 2 {
		t.Errorf("expecting 2 rows, got %d", got)
	}
	if !conn.AutocommitEnabled() {
		t.Error("transaction still open after release")
	}
}

func TestPanic(t *testing.T) {
	conn := openTestConn(t)

	if err := Exec(conn, "CREATE TABLE t (c1);", nil); err != nil {
		t.Fatal(err)
	}
	if err := Exec(conn, `INSERT INTO t VALUES ('one');`, nil); err != nil {
		t.Fatal(err)
	}

	defer func() {
		p := recover()
		if p != errPanicTest {
			t.Errorf("recovered %v; want %v", p, errPanicTest)
		}
		n, err := countRows(conn, "t")
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("got %d rows, want 1", n)
		}
	}()

	if err := doPanic(conn); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

var errPanicTest = errors.New("panic test")

func doPanic(conn *sqlite3.Conn) (err error) {
	defer Save(conn)(&err)

	if err := Exec(conn, `INSERT INTO t VALUES ('hello');`, nil); err != nil {
		return err
	}
	panic(errPanicTest)
}

func TestDone(t *testing.T) {
	doneCh := make(chan struct{})
	conn := openTestConn(t)

	conn.SetInterrupt(doneCh)
	close(doneCh)

	var err error
	relFn := Save(conn)
	relFn(&err)
	if code := sqlite3.ErrCode(err); code != sqlite3.ResultInterrupt {
		t.Errorf("savepoint release function error code is %v, want SQLITE_INTERRUPT", code)
	}
}

func TestInterruptRollback(t *testing.T) {
	conn := openTestConn(t)

	if err := ExecuteScript(conn, `CREATE TABLE t (c);`, nil); err != nil {
		t.Fatal(err)
	}

	var err error
	releaseFn := Save(conn)
	if err := Exec(conn, `INSERT INTO t (c) VALUES (1);`, nil); err != nil {
		t.Fatal(err)
	}
	releaseFn(&err)
	if err != nil {
		t.Fatalf("releaseFn err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.SetInterrupt(ctx.Done())

	releaseFn1 := Save(conn)
	if err := Exec(conn, `INSERT INTO t (c) VALUES (2);`, nil); err != nil {
		t.Fatal(err)
	}
	releaseFn2 := Save(conn)
	if err := Exec(conn, `INSERT INTO t (c) VALUES (3);`, nil); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := Exec(conn, `INSERT INTO t (c) VALUES (3);`, nil); sqlite3.ErrCode(err) != sqlite3.ResultInterrupt {
		t.Fatalf("want SQLITE_INTERRUPT, got %v", err)
	}
	err = context.Canceled
	releaseFn2(&err) // given a real error, should rollback
	if err != context.Canceled {
		t.Fatalf("releaseFn2 err: %v", err)
	}
	var errNil error
	releaseFn1(&errNil) // given no error, but we are interrupted, so should rollback
	if sqlite3.ErrCode(errNil) != sqlite3.ResultInterrupt {
		t.Fatalf("releaseFn1 errNil=%v, want SQLITE_INTERRUPT", errNil)
	}

	conn.SetInterrupt(nil)
	n, err := countRows(conn, "t")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("want 1 row, got %d", n)
	}
}

func TestTransaction(t *testing.T) {
	conn := openTestConn(t)
	if err := Exec(conn, "CREATE TABLE t (c1);", nil); err != nil {
		t.Fatal(err)
	}

	insert := func(fail bool) (err error) {
		defer Transaction(conn)(&err)
		if err := Exec(conn, `INSERT INTO t VALUES (1);`, nil); err != nil {
			return err
		}
		if fail {
			return errors.New("bork")
		}
		return nil
	}
	if err := insert(false); err != nil {
		t.Fatal(err)
	}
	if err := insert(true); err == nil {
		t.Error("insert(true) did not fail")
	}
	n, err := countRows(conn, "t")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("want 1 row, got %d", n)
	}

	endFn, err := ImmediateTransaction(conn)
	if err != nil {
		t.Fatal(err)
	}
	if conn.AutocommitEnabled() {
		t.Error("AutocommitEnabled() = true inside IMMEDIATE transaction")
	}
	var noErr error
	endFn(&noErr)
	if noErr != nil {
		t.Error(noErr)
	}
	if !conn.AutocommitEnabled() {
		t.Error("AutocommitEnabled() = false after commit")
	}
}
