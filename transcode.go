// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

// Encoding selects how text crosses between Go and the engine.
// The zero value is narrow UTF-8.
type Encoding struct {
	// Wide selects UTF-16 in the machine's byte order and the engine's
	// UTF-16 entry points. Charset is ignored for statement and column text
	// when Wide is set.
	Wide bool
	// Charset is the IANA name of the narrow encoding, like "ISO-8859-1".
	// An empty Charset means UTF-8.
	Charset string
}

func (e Encoding) String() string {
	if e.Wide {
		return "UTF-16"
	}
	if e.Charset == "" {
		return "UTF-8"
	}
	return e.Charset
}

// narrow returns the encoding of the engine's own narrow text: the charset
// in narrow mode, UTF-8 in wide mode.
func (e Encoding) narrow() Encoding {
	if e.Wide {
		return Encoding{}
	}
	return e
}

// validate resolves the charset so that OpenConn can reject bad names early.
func (e Encoding) validate() error {
	_, err := lookupCharset(e.Charset)
	return err
}

var charsets struct {
	mu sync.Mutex
	m  map[string]encoding.Encoding
}

// lookupCharset returns the x/text encoding for a charset name,
// or nil for UTF-8.
func lookupCharset(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	key := strings.ToLower(name)
	charsets.mu.Lock()
	defer charsets.mu.Unlock()
	if enc, ok := charsets.m[key]; ok {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("sqlite3: charset %q: not supported", name)
	}
	if enc == unicode.UTF8 {
		enc = nil
	}
	if charsets.m == nil {
		charsets.m = make(map[string]encoding.Encoding)
	}
	charsets.m[key] = enc
	return enc, nil
}

// wideEncoding is UTF-16 in the byte order the engine's *16 functions use.
var wideEncoding = sync.OnceValue(func() encoding.Encoding {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
})

// cbuf is a NUL-terminated buffer allocated with the engine's allocator.
// n is the length in bytes, not counting the terminator.
type cbuf struct {
	p uintptr
	n int
}

// newCBuf copies b into a new engine allocation followed by term zero bytes.
func newCBuf(tls *libc.TLS, b []byte, term int) (cbuf, error) {
	p := lib.Xsqlite3_malloc64(tls, uint64(len(b)+term))
	if p == 0 {
		return cbuf{}, ErrNoMem
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(p)), len(b)+term)
	copy(dst, b)
	clear(dst[len(b):])
	return cbuf{p: p, n: len(b)}, nil
}

// bytes returns a view of the buffer's contents without the terminator.
// The view is only valid until free is called.
func (b cbuf) bytes() []byte {
	if b.p == 0 || b.n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(b.p)), b.n)
}

// free releases the buffer. Calling free on an empty or freed buffer
// does nothing.
func (b *cbuf) free(tls *libc.TLS) {
	if b.p != 0 {
		lib.Xsqlite3_free(tls, b.p)
	}
	*b = cbuf{}
}

// toEngine converts s into the connection's statement encoding.
func (e Encoding) toEngine(tls *libc.TLS, s string) (cbuf, error) {
	if e.Wide {
		b, err := wideEncoding().NewEncoder().Bytes([]byte(s))
		if err != nil {
			return cbuf{}, fmt.Errorf("sqlite3: encode UTF-16: %w", err)
		}
		return newCBuf(tls, b, 2)
	}
	return e.toEngineNarrow(tls, s)
}

// toEngineNarrow converts s into the narrow encoding. With no charset
// the bytes are copied as-is.
func (e Encoding) toEngineNarrow(tls *libc.TLS, s string) (cbuf, error) {
	enc, err := lookupCharset(e.Charset)
	if err != nil {
		return cbuf{}, err
	}
	b := []byte(s)
	if enc != nil {
		b, err = enc.NewEncoder().Bytes(b)
		if err != nil {
			return cbuf{}, fmt.Errorf("sqlite3: encode %s: %w", e.Charset, err)
		}
	}
	return newCBuf(tls, b, 1)
}

// toEngineNullable is toEngine for an optional string. A nil s yields the
// empty buffer without allocating.
func (e Encoding) toEngineNullable(tls *libc.TLS, s *string) (cbuf, error) {
	if s == nil {
		return cbuf{}, nil
	}
	return e.toEngine(tls, *s)
}

// fromEngine decodes n bytes at p in the connection's statement encoding.
func (e Encoding) fromEngine(p uintptr, n int) (string, error) {
	if e.Wide {
		if p == 0 || n <= 0 {
			return "", nil
		}
		s, err := wideEncoding().NewDecoder().Bytes(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
		if err != nil {
			return "", fmt.Errorf("sqlite3: decode UTF-16: %w", err)
		}
		return string(s), nil
	}
	return e.fromEngineNarrow(p, n)
}

// fromEngineNarrow decodes n bytes at p in the narrow encoding.
func (e Encoding) fromEngineNarrow(p uintptr, n int) (string, error) {
	if p == 0 || n <= 0 {
		return "", nil
	}
	enc, err := lookupCharset(e.Charset)
	if err != nil {
		return "", err
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
	if enc == nil {
		return string(raw), nil
	}
	s, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("sqlite3: decode %s: %w", e.Charset, err)
	}
	return string(s), nil
}

// fromEngineCString decodes a NUL-terminated narrow string.
func (e Encoding) fromEngineCString(p uintptr) (string, error) {
	return e.fromEngineNarrow(p, cstrlen(p))
}

// fromEngineCString16 decodes a NUL-terminated UTF-16 string.
func fromEngineCString16(p uintptr) (string, error) {
	return Encoding{Wide: true}.fromEngine(p, 2*cstrlen16(p))
}

func cstrlen(p uintptr) int {
	if p == 0 {
		return 0
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	return n
}

// cstrlen16 returns the number of UTF-16 code units before the terminator.
func cstrlen16(p uintptr) int {
	if p == 0 {
		return 0
	}
	n := 0
	for *(*uint16)(unsafe.Pointer(p + uintptr(2*n))) != 0 {
		n++
	}
	return n
}
