// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"modernc.org/libc"
	"modernc.org/libc/sys/types"
)

func BenchmarkFromEngineNarrow(b *testing.B) {
	tls := libc.NewTLS()
	defer tls.Close()
	const want = "Hello, World!\n"
	ptr, err := malloc(tls, types.Size_t(len(want)+1))
	if err != nil {
		b.Fatal(err)
	}
	defer libc.Xfree(tls, ptr)
	for i := 0; i < len(want); i++ {
		*(*byte)(unsafe.Pointer(ptr + uintptr(i))) = want[i]
	}
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		got, err := Encoding{}.fromEngineNarrow(ptr, len(want))
		if got != want || err != nil {
			b.Errorf("fromEngineNarrow(%#x, %d) = %q, %v; want %q, <nil>", ptr, len(want), got, err, want)
		}
	}
}

func TestIDGen(t *testing.T) {
	var gen idGen
	var got []uintptr
	for range 130 {
		got = append(got, gen.next())
	}
	for i, id := range got {
		if id != uintptr(i+1) {
			t.Fatalf("id #%d = %d; want %d", i+1, id, i+1)
		}
	}
	gen.reclaim(3)
	gen.reclaim(65)
	if id := gen.next(); id != 3 {
		t.Errorf("next() after reclaiming 3 = %d; want 3", id)
	}
	if id := gen.next(); id != 65 {
		t.Errorf("next() after reclaiming 65 = %d; want 65", id)
	}
	if id := gen.next(); id != 131 {
		t.Errorf("next() with no free ids = %d; want 131", id)
	}
}

func TestVersionCode(t *testing.T) {
	tests := []struct {
		n    int32
		want int
	}{
		{3049002, 0x033102},
		{3000000, 0x030000},
		{2005000, 0x020500},
		{3008011, 0x03080b},
	}
	for _, test := range tests {
		if got := versionCode(test.n); got != test.want {
			t.Errorf("versionCode(%d) = %#x; want %#x", test.n, got, test.want)
		}
	}
}

func TestHexLiteral(t *testing.T) {
	tests := []struct {
		b    []byte
		want string
	}{
		{nil, "X''"},
		{[]byte{0}, "X'00'"},
		{[]byte{0xde, 0xad, 0xbe, 0xef}, "X'DEADBEEF'"},
		{[]byte("A"), "X'41'"},
	}
	for _, test := range tests {
		if got := hexLiteral(test.b); got != test.want {
			t.Errorf("hexLiteral(%v) = %q; want %q", test.b, got, test.want)
		}
	}
}

func TestStatementTextStorage(t *testing.T) {
	c := openTestConn(t)
	stmt, err := c.Compile("SELECT 1; SELECT 2;")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.src.p == 0 {
		t.Fatal("statement text not retained")
	}
	if n := c.s.reg.len(kindStmt); n != 1 {
		t.Errorf("%d statements registered; want 1", n)
	}
	if err := stmt.Close(); err != nil {
		t.Fatal(err)
	}
	if stmt.src.p != 0 || stmt.stmt != 0 {
		t.Errorf("after Close: src=%#x stmt=%#x; want both released", stmt.src.p, stmt.stmt)
	}
	if !c.s.reg.empty() {
		t.Error("registry not empty after Close")
	}
}

func TestColumnHeaderStorageNames(t *testing.T) {
	tests := []struct {
		typ  ColumnType
		want string
	}{
		{TypeInteger, "integer"},
		{TypeFloat, "double"},
		{TypeText, "text"},
		{TypeBlob, "blob"},
		{TypeNull, "null"},
	}
	var got, want []string
	for _, test := range tests {
		got = append(got, test.typ.storageName())
		want = append(want, test.want)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storage names (-want +got):\n%s", diff)
	}
}
