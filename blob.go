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

package sqlite3

import (
	"fmt"
	"io"
	"runtime"
	"unsafe"

	// The pointer operations for Read and Write assume a non-moving GC.
	_ "go4.org/unsafe/assume-no-moving-gc"
	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// OpenBlob opens a blob in a particular {database,table,column,row}.
// An empty dbn means "main".
//
// https://www.sqlite.org/c3ref/blob_open.html
func (c *Conn) OpenBlob(dbn, table, column string, row int64, write bool) (*Blob, error) {
	s, err := c.open("open blob")
	if err != nil {
		return nil, err
	}
	if dbn == "" {
		dbn = "main"
	}
	blob, err := s.openBlob(dbn, table, column, row, write)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: open blob %q.%q: %w", table, column, err)
	}
	return blob, nil
}

func (s *session) openBlob(dbn, table, column string, row int64, write bool) (*Blob, error) {
	enc := s.enc.narrow()
	cdb, err := enc.toEngineNarrow(s.tls, dbn)
	if err != nil {
		return nil, err
	}
	defer cdb.free(s.tls)
	ctable, err := enc.toEngineNarrow(s.tls, table)
	if err != nil {
		return nil, err
	}
	defer ctable.free(s.tls)
	ccolumn, err := enc.toEngineNarrow(s.tls, column)
	if err != nil {
		return nil, err
	}
	defer ccolumn.free(s.tls)
	var writeFlag int32
	if write {
		writeFlag = 1
	}

	blobPtrPtr, err := malloc(s.tls, ptrSize)
	if err != nil {
		return nil, err
	}
	defer libc.Xfree(s.tls, blobPtrPtr)
	if err := s.interrupted(); err != nil {
		return nil, err
	}
	f := s.enter("open blob")
	res := ResultCode(lib.Xsqlite3_blob_open(
		s.tls,
		s.db,
		cdb.p,
		ctable.p,
		ccolumn.p,
		row,
		writeFlag,
		blobPtrPtr,
	))
	fault := s.leave(f)
	blobPtr := *(*uintptr)(unsafe.Pointer(blobPtrPtr))
	if fault != nil || !res.IsSuccess() {
		if blobPtr != 0 {
			lib.Xsqlite3_blob_close(s.tls, blobPtr)
		}
		if fault != nil {
			return nil, fault
		}
		return nil, engineError(s.tls, s.db, s.enc, "", res)
	}
	blob := &Blob{
		blob:     blobPtr,
		size:     lib.Xsqlite3_blob_bytes(s.tls, blobPtr),
		writable: write,
	}
	if err := s.reg.register(s, blob); err != nil {
		lib.Xsqlite3_blob_close(s.tls, blobPtr)
		return nil, err
	}
	return blob, nil
}

// Blob provides streaming access to SQLite blobs.
// The size of a blob is fixed when it is opened; writes cannot grow it.
type Blob struct {
	childNode
	blob     uintptr
	off      int32
	size     int32
	writable bool
	lastErr  error
}

func (blob *Blob) kind() resourceKind { return kindBlob }

func (blob *Blob) release(tls *libc.TLS) {
	if blob.blob != 0 {
		lib.Xsqlite3_blob_close(tls, blob.blob)
		blob.blob = 0
	}
}

// session returns the owning session of an open blob, or a usage error.
func (blob *Blob) session(op string) (*session, error) {
	if blob == nil {
		return nil, usageErrorf(op, "nil blob")
	}
	if blob.blob == 0 || blob.owner == nil || blob.owner.db == 0 {
		err := usageErrorf(op, "blob closed")
		blob.lastErr = err
		return nil, err
	}
	return blob.owner, nil
}

// LastError returns the error from the most recent failed operation on the
// blob, or nil if the most recent operation succeeded.
func (blob *Blob) LastError() error {
	return blob.lastErr
}

// ReadAt reads len(p) bytes from the blob starting at byte offset off.
// It returns io.EOF if fewer than len(p) bytes are available.
//
// https://www.sqlite.org/c3ref/blob_read.html
func (blob *Blob) ReadAt(p []byte, off int64) (n int, err error) {
	s, err := blob.session("read blob")
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, usageErrorf("read blob", "negative offset %d", off)
	}
	if off >= int64(blob.size) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	if rem := int64(blob.size) - off; int64(len(p)) > rem {
		p = p[:rem]
		err = io.EOF
	}
	if len(p) == 0 {
		return 0, err
	}
	if ierr := s.interrupted(); ierr != nil {
		blob.lastErr = ierr
		return 0, fmt.Errorf("sqlite3: read blob: %w", ierr)
	}
	// TODO(someday): Avoid using actually unsafe pointer operation.
	res := ResultCode(lib.Xsqlite3_blob_read(s.tls, blob.blob, uintptr(unsafe.Pointer(&p[0])), int32(len(p)), int32(off)))
	runtime.KeepAlive(p)
	if !res.IsSuccess() {
		e := engineError(s.tls, s.db, s.enc, "read blob", res)
		blob.lastErr = e
		return 0, fmt.Errorf("sqlite3: %w", e)
	}
	blob.lastErr = nil
	return len(p), err
}

// WriteAt writes len(p) bytes to the blob starting at byte offset off.
// Writing past the end of the blob is an error.
//
// https://www.sqlite.org/c3ref/blob_write.html
func (blob *Blob) WriteAt(p []byte, off int64) (n int, err error) {
	s, err := blob.session("write blob")
	if err != nil {
		return 0, err
	}
	if !blob.writable {
		err := usageErrorf("write blob", "blob opened read-only")
		blob.lastErr = err
		return 0, err
	}
	if off < 0 || off > int64(blob.size)-int64(len(p)) {
		err := usageErrorf("write blob", "write of %d bytes at offset %d exceeds size %d", len(p), off, blob.size)
		blob.lastErr = err
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.interrupted(); err != nil {
		blob.lastErr = err
		return 0, fmt.Errorf("sqlite3: write blob: %w", err)
	}
	// TODO(someday): Avoid using actually unsafe pointer operation.
	res := ResultCode(lib.Xsqlite3_blob_write(s.tls, blob.blob, uintptr(unsafe.Pointer(&p[0])), int32(len(p)), int32(off)))
	runtime.KeepAlive(p)
	if !res.IsSuccess() {
		e := engineError(s.tls, s.db, s.enc, "write blob", res)
		blob.lastErr = e
		return 0, fmt.Errorf("sqlite3: %w", e)
	}
	blob.lastErr = nil
	return len(p), nil
}

// Read reads up to len(p) bytes from the blob into p.
func (blob *Blob) Read(p []byte) (n int, err error) {
	if _, err := blob.session("read blob"); err != nil {
		return 0, err
	}
	if blob.off >= blob.size {
		return 0, io.EOF
	}
	n, err = blob.ReadAt(p, int64(blob.off))
	blob.off += int32(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Write writes len(p) from p to the blob.
func (blob *Blob) Write(p []byte) (n int, err error) {
	n, err = blob.WriteAt(p, int64(blob.off))
	blob.off += int32(n)
	return n, err
}

// Seek sets the offset for the next Read or Write and returns the offset.
// Seeking past the end of the blob returns an error.
func (blob *Blob) Seek(offset int64, whence int) (int64, error) {
	if _, err := blob.session("seek blob"); err != nil {
		return 0, err
	}
	switch whence {
	case io.SeekStart:
		// use offset directly
	case io.SeekCurrent:
		offset += int64(blob.off)
	case io.SeekEnd:
		offset += int64(blob.size)
	default:
		return int64(blob.off), fmt.Errorf("sqlite3: seek blob: invalid whence %d", whence)
	}
	if offset < 0 {
		return int64(blob.off), fmt.Errorf("sqlite3: seek blob: negative offset %d", offset)
	}
	if offset > int64(blob.size) {
		return int64(blob.off), fmt.Errorf("sqlite3: seek blob: offset %d is past size %d", offset, blob.size)
	}
	blob.off = int32(offset)
	return offset, nil
}

// Size returns the number of bytes in the blob.
func (blob *Blob) Size() int64 {
	return int64(blob.size)
}

// Reopen moves the blob handle to a different row of the same table.
// The offset is reset to zero. If the move fails, the blob is closed.
//
// https://www.sqlite.org/c3ref/blob_reopen.html
func (blob *Blob) Reopen(row int64) error {
	s, err := blob.session("reopen blob")
	if err != nil {
		return err
	}
	f := s.enter("reopen blob")
	res := ResultCode(lib.Xsqlite3_blob_reopen(s.tls, blob.blob, row))
	fault := s.leave(f)
	if fault != nil || !res.IsSuccess() {
		var e error = fault
		if fault == nil {
			e = engineError(s.tls, s.db, s.enc, "reopen blob", res)
		}
		s.reg.unregister(blob)
		blob.release(s.tls)
		blob.lastErr = e
		return fmt.Errorf("sqlite3: %w", e)
	}
	blob.size = lib.Xsqlite3_blob_bytes(s.tls, blob.blob)
	blob.off = 0
	blob.lastErr = nil
	return nil
}

// Close releases any resources associated with the blob handle.
// Closing a closed blob, including one closed along with its Conn,
// does nothing.
//
// https://www.sqlite.org/c3ref/blob_close.html
func (blob *Blob) Close() error {
	if blob == nil || blob.blob == 0 || blob.owner == nil {
		return nil
	}
	s := blob.owner
	s.reg.unregister(blob)
	res := ResultCode(lib.Xsqlite3_blob_close(s.tls, blob.blob))
	blob.blob = 0
	if !res.IsSuccess() {
		e := engineError(s.tls, s.db, s.enc, "close blob", res)
		blob.lastErr = e
		return fmt.Errorf("sqlite3: %w", e)
	}
	return nil
}
