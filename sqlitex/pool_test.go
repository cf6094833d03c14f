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

package sqlitex_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitex"
)

const poolSize = 4

// newFilePool returns a new sqlitex.Pool attached to a fresh database file.
func newFilePool(t *testing.T) *sqlitex.Pool {
	t.Helper()
	dbpool, err := sqlitex.OpenPool(filepath.Join(t.TempDir(), "pool.db"), &sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite3.Conn) error {
			return conn.SetBusyTimeout(10 * time.Second)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return dbpool
}

func TestPool(t *testing.T) {
	dbpool := newFilePool(t)
	defer func() {
		if err := dbpool.Close(); err != nil {
			t.Error(err)
		}
	}()

	c := dbpool.Get(nil)
	if err := sqlitex.Exec(c, "CREATE TABLE footable (col1 integer);", nil); err != nil {
		t.Fatal(err)
	}
	dbpool.Put(c)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				testInsert(t, fmt.Sprintf("%d-%d", i, j), dbpool)
			}
		}(i)
	}
	wg.Wait()

	c = dbpool.Get(nil)
	defer dbpool.Put(c)
	stmt, err := c.Compile("SELECT COUNT(*) FROM footable;")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()
	count, err := sqlitex.ResultInt(stmt)
	if err != nil {
		t.Fatal(err)
	}
	if want := poolSize * 5 * insertCount; count != want {
		t.Errorf("SELECT COUNT(*) = %d, want %d", count, want)
	}
}

const insertCount = 20

func testInsert(t *testing.T, id string, dbpool *sqlitex.Pool) {
	c := dbpool.Get(nil)
	defer dbpool.Put(c)

	endFn, err := sqlitex.ImmediateTransaction(c)
	if err != nil {
		t.Errorf("id=%s: begin: %v", id, err)
		return
	}
	defer endFn(&err)
	stmt, err := c.Compile("INSERT INTO footable (col1) VALUES (?);")
	if err != nil {
		t.Errorf("id=%s: compile: %v", id, err)
		return
	}
	defer stmt.Close()
	for i := int64(0); i < insertCount; i++ {
		if err = stmt.Reset(); err != nil {
			t.Errorf("id=%s: reset: %v", id, err)
			return
		}
		stmt.BindInt64(1, i)
		if _, err = stmt.Step(); err != nil {
			t.Errorf("id=%s: step: %v", id, err)
			return
		}
	}
}

func TestPoolAfterClose(t *testing.T) {
	dbpool := newFilePool(t)
	if err := dbpool.Close(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10*poolSize; i++ {
		if conn := dbpool.Get(nil); conn != nil {
			t.Fatal("dbpool: Get after Close -> !nil conn")
		}
	}
}

func TestPoolGetCanceled(t *testing.T) {
	dbpool := newFilePool(t)
	defer dbpool.Close()

	var conns []*sqlite3.Conn
	for i := 0; i < poolSize; i++ {
		conns = append(conns, dbpool.Get(nil))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if conn := dbpool.Get(ctx); conn != nil {
		t.Error("Get on exhausted pool returned a connection")
	}
	for _, conn := range conns {
		dbpool.Put(conn)
	}
}

func TestPoolInterrupt(t *testing.T) {
	dbpool := newFilePool(t)
	defer dbpool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	conn := dbpool.Get(ctx)
	cancel()
	err := sqlitex.Exec(conn, "SELECT 1;", nil)
	if got := sqlite3.ErrCode(err); got != sqlite3.ResultInterrupt {
		t.Errorf("Exec after cancel = %v; want SQLITE_INTERRUPT", err)
	}
	dbpool.Put(conn)

	conn = dbpool.Get(nil)
	defer dbpool.Put(conn)
	if err := sqlitex.Exec(conn, "SELECT 1;", nil); err != nil {
		t.Errorf("Exec on reused connection: %v", err)
	}
}

func TestPoolPutActiveStatement(t *testing.T) {
	dbpool := newFilePool(t)
	defer dbpool.Close()

	conn := dbpool.Get(nil)
	stmt, err := conn.Compile("SELECT 1 UNION ALL SELECT 2;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stmt.Step(); err != nil {
		t.Fatal(err)
	}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic for active statement, got none")
			}
		}()
		dbpool.Put(conn)
	}()
	stmt.Close()
	dbpool.Put(conn)
}

func TestPoolPutMatch(t *testing.T) {
	dbpool0 := newFilePool(t)
	dbpool1 := newFilePool(t)
	defer func() {
		if err := dbpool0.Close(); err != nil {
			t.Error(err)
		}
		if err := dbpool1.Close(); err != nil {
			t.Error(err)
		}
	}()

	c := dbpool0.Get(nil)
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expect put mismatch panic, got none")
			}
		}()
		dbpool1.Put(c)
	}()
	dbpool0.Put(c)
}

func TestOpenMemory(t *testing.T) {
	if _, err := sqlitex.Open(":memory:", 0, poolSize); err == nil {
		t.Error(`Open(":memory:") did not fail`)
	}
}
