// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"modernc.org/libc"
)

type fakeChild struct {
	childNode
	k        resourceKind
	name     string
	released *[]string
}

func (f *fakeChild) kind() resourceKind { return f.k }

func (f *fakeChild) release(*libc.TLS) {
	*f.released = append(*f.released, f.name)
}

func listNames(r *registry, k resourceKind) []string {
	var names []string
	for cur := r.heads[k]; cur != nil; cur = cur.node().next {
		names = append(names, cur.(*fakeChild).name)
	}
	return names
}

func TestRegistry(t *testing.T) {
	var released []string
	owner := new(session)
	var r registry
	if !r.empty() {
		t.Fatal("zero registry is not empty")
	}
	children := make(map[string]*fakeChild)
	for _, c := range []struct {
		name string
		k    resourceKind
	}{
		{"s1", kindStmt},
		{"s2", kindStmt},
		{"s3", kindStmt},
		{"b1", kindBlob},
		{"k1", kindBackup},
	} {
		child := &fakeChild{k: c.k, name: c.name, released: &released}
		if err := r.register(owner, child); err != nil {
			t.Fatal(err)
		}
		if child.owner != owner {
			t.Errorf("%s.owner not set by register", c.name)
		}
		children[c.name] = child
	}
	if diff := cmp.Diff([]string{"s3", "s2", "s1"}, listNames(&r, kindStmt)); diff != "" {
		t.Errorf("statements (-want +got):\n%s", diff)
	}
	if got := r.len(kindStmt); got != 3 {
		t.Errorf("len(statements) = %d; want 3", got)
	}
	if got := r.len(kindFunc); got != 0 {
		t.Errorf("len(functions) = %d; want 0", got)
	}

	r.unregister(children["s2"])
	if children["s2"].owner != nil {
		t.Error("s2.owner still set after unregister")
	}
	if diff := cmp.Diff([]string{"s3", "s1"}, listNames(&r, kindStmt)); diff != "" {
		t.Errorf("statements after unregister (-want +got):\n%s", diff)
	}
	// Unregistering again is a no-op.
	r.unregister(children["s2"])
	if got := r.len(kindStmt); got != 2 {
		t.Errorf("len(statements) after double unregister = %d; want 2", got)
	}
	if len(released) > 0 {
		t.Errorf("unregister released %v", released)
	}

	r.drain(nil, kindStmt)
	if diff := cmp.Diff([]string{"s3", "s1"}, released); diff != "" {
		t.Errorf("released by drain (-want +got):\n%s", diff)
	}
	for _, name := range []string{"s1", "s3"} {
		if children[name].owner != nil || children[name].next != nil {
			t.Errorf("%s still linked after drain", name)
		}
	}
	if r.empty() {
		t.Error("drain of statements emptied other lists")
	}

	late := &fakeChild{k: kindStmt, name: "late", released: &released}
	if err := r.register(owner, late); ErrCode(err) != ResultMisuse {
		t.Errorf("register after drain = %v; want usage error", err)
	}
	if late.owner != nil {
		t.Error("refused child has an owner")
	}

	r.drain(nil, kindBlob)
	r.drain(nil, kindBackup)
	r.drain(nil, kindFunc)
	if !r.empty() {
		t.Error("registry not empty after draining every kind")
	}
	if diff := cmp.Diff([]string{"s3", "s1", "b1", "k1"}, released); diff != "" {
		t.Errorf("released (-want +got):\n%s", diff)
	}
}

func TestConnCloseDrainsChildren(t *testing.T) {
	c, err := OpenConn(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	s := c.s
	if err := c.Exec("CREATE TABLE t (b BLOB); INSERT INTO t VALUES (zeroblob(4));", nil); err != nil {
		t.Fatal(err)
	}
	stmt, err := c.Compile("SELECT 1;")
	if err != nil {
		t.Fatal(err)
	}
	blob, err := c.OpenBlob("", "t", "b", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := OpenConn(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	backup, err := NewBackup(dst, "", c, "")
	if err != nil {
		t.Fatal(err)
	}
	for k := range numKinds {
		if k == kindFunc {
			continue
		}
		if got := s.reg.len(k); got != 1 {
			t.Errorf("%v list has %d entries; want 1", k, got)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.reg.empty() {
		t.Error("registry not empty after Close")
	}
	if stmt.owner != nil || blob.owner != nil || backup.owner != nil {
		t.Error("children still have an owner after Close")
	}
	if stmt.stmt != 0 {
		t.Error("statement handle not finalized")
	}
}

// compileDetached compiles query on a new Conn and returns only the
// statement, leaving the Conn unreferenced by the caller.
func compileDetached(t *testing.T, query string) *Stmt {
	t.Helper()
	c, err := OpenConn(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	stmt, err := c.Compile(query)
	if err != nil {
		c.Close()
		t.Fatal(err)
	}
	return stmt
}

func TestStmtKeepsConnAlive(t *testing.T) {
	stmt := compileDetached(t, "SELECT 1 UNION ALL SELECT 2;")
	for range 5 {
		runtime.GC()
	}
	for i := range 2 {
		hasRow, err := stmt.Step()
		if err != nil || !hasRow {
			t.Fatalf("Step #%d = %t, %v; want true, <nil> (state=%v)", i+1, hasRow, err, stmt.State())
		}
	}
	conn := stmt.conn
	if conn == nil {
		t.Fatal("statement does not reference its Conn")
	}
	if err := stmt.Close(); err != nil {
		t.Error(err)
	}
	if stmt.conn != nil {
		t.Error("closed statement still references its Conn")
	}
	if err := conn.Close(); err != nil {
		t.Error(err)
	}
}
