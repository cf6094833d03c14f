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
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/sqlite/lib"
)

var auxdata struct {
	mu  sync.RWMutex
	m   map[uintptr]any
	ids idGen
}

// Context is a SQL function execution context.
// It is in no way related to a Go context.Context.
// https://sqlite.org/c3ref/context.html
type Context struct {
	tls *libc.TLS
	ptr uintptr
	s   *session
}

// Conn returns the database connection that is calling the SQL function,
// or nil if it is no longer reachable.
func (ctx Context) Conn() *Conn {
	if ctx.s == nil {
		return nil
	}
	return ctx.s.conn.Value()
}

// AuxData returns the auxiliary data associated with the given argument, with
// zero being the leftmost argument, or nil if no such data is present.
//
// Auxiliary data may be used by (non-aggregate) SQL functions to associate
// metadata with argument values. If the same value is passed to multiple
// invocations of the same SQL function during query execution, under some
// circumstances the associated metadata may be preserved.
//
// For more details, see https://www.sqlite.org/c3ref/get_auxdata.html
func (ctx Context) AuxData(arg int) any {
	id := lib.Xsqlite3_get_auxdata(ctx.tls, ctx.ptr, int32(arg))
	if id == 0 {
		return nil
	}
	auxdata.mu.RLock()
	defer auxdata.mu.RUnlock()
	return auxdata.m[id]
}

// SetAuxData sets the auxiliary data associated with the given argument, with
// zero being the leftmost argument. SQLite is free to discard the metadata at
// any time, including during the call to SetAuxData.
func (ctx Context) SetAuxData(arg int, data any) {
	auxdata.mu.Lock()
	id := auxdata.ids.next()
	if auxdata.m == nil {
		auxdata.m = make(map[uintptr]any)
	}
	auxdata.m[id] = data
	auxdata.mu.Unlock()

	lib.Xsqlite3_set_auxdata(ctx.tls, ctx.ptr, int32(arg), id, trampolines.freeAux)
}

func freeAuxData(tls *libc.TLS, id uintptr) {
	auxdata.mu.Lock()
	defer auxdata.mu.Unlock()
	delete(auxdata.m, id)
	auxdata.ids.reclaim(id)
}

// textEncoding is the encoding of text values exchanged with functions.
func (ctx Context) textEncoding() Encoding {
	if ctx.s == nil {
		return Encoding{}
	}
	return ctx.s.enc.narrow()
}

func (ctx Context) result(v Value, err error) {
	if err != nil {
		ctx.resultError(err)
		return
	}
	if v.tls != nil {
		if ctx.tls != v.tls {
			ctx.resultError(fmt.Errorf("function result Value from different connection"))
			return
		}
		lib.Xsqlite3_result_value(ctx.tls, ctx.ptr, v.ptrOrType)
		return
	}
	switch ColumnType(v.ptrOrType) {
	case 0, TypeNull:
		lib.Xsqlite3_result_null(ctx.tls, ctx.ptr)
	case TypeInteger:
		lib.Xsqlite3_result_int64(ctx.tls, ctx.ptr, v.n)
	case TypeFloat:
		lib.Xsqlite3_result_double(ctx.tls, ctx.ptr, v.float())
	case TypeText:
		buf, err := ctx.textEncoding().toEngineNarrow(ctx.tls, v.s)
		if err != nil {
			ctx.resultError(err)
			return
		}
		lib.Xsqlite3_result_text(ctx.tls, ctx.ptr, buf.p, int32(buf.n), sqliteTransient)
		buf.free(ctx.tls)
	case TypeBlob:
		if len(v.s) == 0 {
			lib.Xsqlite3_result_zeroblob(ctx.tls, ctx.ptr, 0)
			return
		}
		buf, err := newCBuf(ctx.tls, []byte(v.s), 0)
		if err != nil {
			ctx.resultError(err)
			return
		}
		lib.Xsqlite3_result_blob(ctx.tls, ctx.ptr, buf.p, int32(buf.n), sqliteTransient)
		buf.free(ctx.tls)
	case typeZeroBlob:
		lib.Xsqlite3_result_zeroblob(ctx.tls, ctx.ptr, int32(v.n))
	default:
		panic("unknown result Value type")
	}
}

func (ctx Context) resultError(err error) {
	if errors.Is(err, ErrNoMem) {
		lib.Xsqlite3_result_error_nomem(ctx.tls, ctx.ptr)
		return
	}
	errstr := err.Error()
	cerrstr, cerr := libc.CString(errstr)
	if cerr != nil {
		lib.Xsqlite3_result_error_nomem(ctx.tls, ctx.ptr)
		return
	}
	defer libc.Xfree(ctx.tls, cerrstr)
	lib.Xsqlite3_result_error(ctx.tls, ctx.ptr, cerrstr, int32(len(errstr)))
	if code := ErrCode(err); code != ResultError && code != ResultAbort {
		lib.Xsqlite3_result_error_code(ctx.tls, ctx.ptr, int32(code))
	}
}

// typeZeroBlob marks a Value made by ZeroBlobValue. It lies outside the
// engine's type codes and is never returned by Value.Type.
const typeZeroBlob ColumnType = 0x100

// Value represents a value that can be stored in a database table. The zero
// value is NULL. The accessor methods on Value may perform automatic
// conversions and thus methods on Value must not be called concurrently.
type Value struct {
	tls       *libc.TLS
	ptrOrType uintptr // pointer to sqlite_value if tls != nil, ColumnType otherwise
	enc       Encoding

	s string
	n int64
}

// IntegerValue returns a new Value representing the given integer.
func IntegerValue(i int64) Value {
	return Value{ptrOrType: uintptr(TypeInteger), n: i}
}

// FloatValue returns a new Value representing the given floating-point number.
func FloatValue(f float64) Value {
	return Value{ptrOrType: uintptr(TypeFloat), n: int64(math.Float64bits(f))}
}

// TextValue returns a new Value representing the given string.
func TextValue(s string) Value {
	return Value{ptrOrType: uintptr(TypeText), s: s}
}

// BlobValue returns a new blob Value, copying the bytes from the given
// byte slice.
func BlobValue(b []byte) Value {
	return Value{ptrOrType: uintptr(TypeBlob), s: string(b)}
}

// ZeroBlobValue returns a new blob Value of n zero bytes.
func ZeroBlobValue(n int) Value {
	if n < 0 {
		n = 0
	}
	return Value{ptrOrType: uintptr(typeZeroBlob), n: int64(n)}
}

// Type returns the data type of the value. The result of Type is undefined if
// an automatic type conversion has occurred due to calling one of the other
// accessor methods.
func (v Value) Type() ColumnType {
	if v.ptrOrType == 0 {
		return TypeNull
	}
	if v.tls == nil {
		if t := ColumnType(v.ptrOrType); t != typeZeroBlob {
			return t
		}
		return TypeBlob
	}
	return ColumnType(lib.Xsqlite3_value_type(v.tls, v.ptrOrType))
}

// Conversions follow the table in https://sqlite.org/c3ref/column_blob.html

// Int returns the value as an integer.
func (v Value) Int() int {
	return int(v.Int64())
}

// Int64 returns the value as a 64-bit integer.
func (v Value) Int64() int64 {
	if v.ptrOrType == 0 {
		return 0
	}
	if v.tls == nil {
		switch ColumnType(v.ptrOrType) {
		case TypeNull, typeZeroBlob:
			return 0
		case TypeInteger:
			return v.n
		case TypeFloat:
			return int64(v.float())
		case TypeBlob, TypeText:
			return castTextToInteger(v.s)
		default:
			panic("unknown value type")
		}
	}
	return lib.Xsqlite3_value_int64(v.tls, v.ptrOrType)
}

// castTextToInteger emulates the SQLite CAST operator for a TEXT value to
// INTEGER, as documented in https://sqlite.org/lang_expr.html#castexpr
func castTextToInteger(s string) int64 {
	const digits = "0123456789"
	s = strings.TrimSpace(s)
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[:1+len(longestPrefix(s[1:], digits))]
	} else {
		s = longestPrefix(s, digits)
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func longestPrefix(s string, allowSet string) string {
sloop:
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(allowSet); j++ {
			if s[i] == allowSet[j] {
				continue sloop
			}
		}
		return s[:i]
	}
	return s
}

// Float returns the value as floating-point number
func (v Value) Float() float64 {
	if v.ptrOrType == 0 {
		return 0
	}
	if v.tls == nil {
		switch ColumnType(v.ptrOrType) {
		case TypeNull, typeZeroBlob:
			return 0
		case TypeInteger:
			return float64(v.n)
		case TypeFloat:
			return v.float()
		case TypeBlob, TypeText:
			return castTextToReal(v.s)
		default:
			panic("unknown value type")
		}
	}
	return lib.Xsqlite3_value_double(v.tls, v.ptrOrType)
}

func (v Value) float() float64 { return math.Float64frombits(uint64(v.n)) }

// castTextToReal emulates the SQLite CAST operator for a TEXT value to
// REAL, as documented in https://sqlite.org/lang_expr.html#castexpr
func castTextToReal(s string) float64 {
	s = strings.TrimSpace(s)
	for ; len(s) > 0; s = s[:len(s)-1] {
		n, err := strconv.ParseFloat(s, 64)
		if !errors.Is(err, strconv.ErrSyntax) {
			return n
		}
	}
	return 0
}

// Text returns the value as a string. Text that cannot be decoded from the
// connection's charset is returned as the empty string.
func (v Value) Text() string {
	if v.ptrOrType == 0 {
		return ""
	}
	if v.tls == nil {
		switch ColumnType(v.ptrOrType) {
		case TypeNull:
			return ""
		case TypeInteger:
			return strconv.FormatInt(v.n, 10)
		case TypeFloat:
			return strconv.FormatFloat(v.float(), 'g', -1, 64)
		case TypeText, TypeBlob:
			return v.s
		case typeZeroBlob:
			return string(make([]byte, v.n))
		default:
			panic("unknown value type")
		}
	}
	ptr := lib.Xsqlite3_value_text(v.tls, v.ptrOrType)
	text, err := v.enc.fromEngineNarrow(ptr, int(lib.Xsqlite3_value_bytes(v.tls, v.ptrOrType)))
	if err != nil {
		return ""
	}
	return text
}

// Blob returns a copy of the value as a blob.
func (v Value) Blob() []byte {
	if v.ptrOrType == 0 {
		return nil
	}
	if v.tls == nil {
		switch ColumnType(v.ptrOrType) {
		case TypeNull:
			return nil
		case TypeInteger:
			return strconv.AppendInt(nil, v.n, 10)
		case TypeFloat:
			return strconv.AppendFloat(nil, v.float(), 'g', -1, 64)
		case TypeBlob, TypeText:
			return []byte(v.s)
		case typeZeroBlob:
			return make([]byte, v.n)
		default:
			panic("unknown value type")
		}
	}
	ptr := lib.Xsqlite3_value_blob(v.tls, v.ptrOrType)
	return libc.GoBytes(ptr, int(lib.Xsqlite3_value_bytes(v.tls, v.ptrOrType)))
}

// FunctionImpl describes an [application-defined SQL function].
// Either Scalar or MakeAggregate must be set, but not both.
//
// [application-defined SQL function]: https://sqlite.org/appfunc.html
type FunctionImpl struct {
	// NArgs is the required number of arguments that the function accepts.
	// If NArgs is negative, then the function is variadic.
	//
	// Multiple function implementations may be registered with the same name
	// with different numbers of required arguments.
	NArgs int

	// Scalar is called when a scalar function is invoked in SQL.
	Scalar func(ctx Context, args []Value) (Value, error)

	// MakeAggregate is called at the beginning of an evaluation of an aggregate function.
	MakeAggregate func(ctx Context) (AggregateFunction, error)

	// If Deterministic is true, the function must always give the same output
	// when the input parameters are the same. This enables functions to be used
	// in additional contexts like the WHERE clause of partial indexes and enables
	// additional optimizations.
	//
	// See https://sqlite.org/c3ref/c_deterministic.html#sqlitedeterministic for
	// more details.
	Deterministic bool

	// If AllowIndirect is false, then the function may only be invoked from
	// top-level SQL. If AllowIndirect is true, then the function can be used in
	// VIEWs, TRIGGERs, and schema structures (e.g. CHECK constraints and DEFAULT
	// clauses).
	//
	// This is the inverse of SQLITE_DIRECTONLY. See
	// https://sqlite.org/c3ref/c_deterministic.html#sqlitedirectonly for more
	// details. This defaults to false for better security.
	AllowIndirect bool
}

// An AggregateFunction is an invocation of an aggregate function.
// See the documentation for [aggregate function callbacks] for an overview.
//
// [aggregate function callbacks]: https://www.sqlite.org/appfunc.html#the_aggregate_function_callbacks
type AggregateFunction interface {
	// Step is called for each row
	// of an aggregate function's SQL invocation.
	Step(ctx Context, rowArgs []Value) error

	// Final is called once after all of the aggregate function's input rows
	// have been stepped through and returns the aggregate's result.
	// No other methods will be called on the AggregateFunction after Final.
	Final(ctx Context) (Value, error)
}

// function is a registration of a FunctionImpl on a connection.
type function struct {
	childNode
	id    uintptr
	name  string
	nargs int32
	impl  *FunctionImpl
}

func (f *function) kind() resourceKind { return kindFunc }

// release drops the function from the engine, which calls destroyFunc.
func (f *function) release(tls *libc.TLS) {
	s := f.owner
	if s == nil || s.db == 0 || f.id == 0 {
		return
	}
	cname, err := libc.CString(f.name)
	if err == nil {
		lib.Xsqlite3_create_function_v2(tls, s.db, cname, f.nargs, lib.SQLITE_UTF8, 0, 0, 0, 0, 0)
		libc.Xfree(tls, cname)
	}
	f.id = 0
}

// CreateFunction registers a Go function with SQLite
// for use in SQL queries. Registering a function with the same name and
// number of arguments replaces the previous one.
//
// https://sqlite.org/appfunc.html
func (c *Conn) CreateFunction(name string, impl *FunctionImpl) error {
	s, err := c.open("create function")
	if err != nil {
		return err
	}
	if name == "" {
		return usageErrorf("create function", "no name provided")
	}
	if impl == nil {
		return usageErrorf("create function "+name, "nil implementation")
	}
	if impl.NArgs > 127 {
		return usageErrorf("create function "+name, "too many permitted arguments (%d)", impl.NArgs)
	}
	if impl.Scalar == nil && impl.MakeAggregate == nil {
		return usageErrorf("create function "+name, "must specify one of Scalar or MakeAggregate")
	}
	if impl.Scalar != nil && impl.MakeAggregate != nil {
		return usageErrorf("create function "+name, "both Scalar and MakeAggregate specified")
	}

	eTextRep := int32(lib.SQLITE_UTF8)
	if impl.Deterministic {
		eTextRep |= lib.SQLITE_DETERMINISTIC
	}
	if !impl.AllowIndirect {
		eTextRep |= lib.SQLITE_DIRECTONLY
	}
	numArgs := int32(impl.NArgs)
	if numArgs < 0 {
		numArgs = -1
	}

	cname, err := s.enc.narrow().toEngineNarrow(s.tls, name)
	if err != nil {
		return fmt.Errorf("sqlite3: create function %s: %w", name, err)
	}
	defer cname.free(s.tls)

	f := &function{name: name, nargs: numArgs, impl: impl}
	if err := s.reg.register(s, f); err != nil {
		return err
	}
	// The engine destroys a function it replaces.
	s.forgetFunction(f)

	xfuncs.mu.Lock()
	f.id = xfuncs.ids.next()
	xfuncs.m[f.id] = f
	xfuncs.mu.Unlock()

	var res ResultCode
	if impl.Scalar != nil {
		res = ResultCode(lib.Xsqlite3_create_function_v2(
			s.tls,
			s.db,
			cname.p,
			numArgs,
			eTextRep,
			f.id,
			trampolines.scalar,
			0,
			0,
			trampolines.destroyFunc,
		))
	} else {
		res = ResultCode(lib.Xsqlite3_create_function_v2(
			s.tls,
			s.db,
			cname.p,
			numArgs,
			eTextRep,
			f.id,
			0,
			trampolines.step,
			trampolines.final,
			trampolines.destroyFunc,
		))
	}
	if !res.IsSuccess() {
		// xDestroy has already been called on failure.
		f.id = 0
		s.reg.unregister(f)
		return fmt.Errorf("sqlite3: create function %s: %w", name, engineError(s.tls, s.db, s.enc, "", res))
	}
	return nil
}

// forgetFunction unregisters any function other than keep with the same
// name and argument count.
func (s *session) forgetFunction(keep *function) {
	for cur := s.reg.heads[kindFunc]; cur != nil; {
		f := cur.(*function)
		cur = f.next
		if f != keep && f.nargs == keep.nargs && strings.EqualFold(f.name, keep.name) {
			s.reg.unregister(f)
			f.id = 0
		}
	}
}

var xfuncs = struct {
	mu  sync.RWMutex
	m   map[uintptr]*function
	ids idGen
}{
	m: make(map[uintptr]*function),
}

func lookupFunction(id uintptr) *function {
	xfuncs.mu.RLock()
	defer xfuncs.mu.RUnlock()
	return xfuncs.m[id]
}

func destroyFunc(tls *libc.TLS, id uintptr) {
	xfuncs.mu.Lock()
	defer xfuncs.mu.Unlock()
	if _, ok := xfuncs.m[id]; !ok {
		return
	}
	delete(xfuncs.m, id)
	xfuncs.ids.reclaim(id)
}

// funcContext builds the Context and argument list for a function callback.
func funcContext(tls *libc.TLS, ctx uintptr, n int32, valarray uintptr) (Context, []Value) {
	s := lookupSession(lib.Xsqlite3_context_db_handle(tls, ctx))
	goCtx := Context{tls: tls, ptr: ctx, s: s}
	enc := goCtx.textEncoding()
	vals := make([]Value, 0, int(n))
	for ; len(vals) < cap(vals); valarray += uintptr(ptrSize) {
		vals = append(vals, Value{
			tls:       tls,
			ptrOrType: *(*uintptr)(unsafe.Pointer(valarray)),
			enc:       enc,
		})
	}
	return goCtx, vals
}

// call runs f as a function callback. A failure is reported to the engine
// as the function's error and recorded as the statement's fault.
func (ctx Context) call(f func() error) bool {
	var err error
	ok := true
	if ctx.s != nil {
		ok = ctx.s.protect("function", func() error {
			err = f()
			return err
		})
	} else {
		err = f()
		ok = err == nil
	}
	if !ok {
		if err == nil {
			err = errors.New("function panicked")
		}
		ctx.resultError(err)
	}
	return ok
}

func funcTrampoline(tls *libc.TLS, ctx uintptr, n int32, valarray uintptr) {
	f := lookupFunction(lib.Xsqlite3_user_data(tls, ctx))
	goCtx, vals := funcContext(tls, ctx, n, valarray)
	if f == nil {
		goCtx.resultError(errors.New("function no longer registered"))
		return
	}
	var v Value
	if !goCtx.call(func() error {
		var err error
		v, err = f.impl.Scalar(goCtx, vals)
		return err
	}) {
		return
	}
	goCtx.result(v, nil)
}

var xAggregateContext = struct {
	mu  sync.RWMutex
	m   map[uintptr]AggregateFunction
	ids idGen
}{
	m: make(map[uintptr]AggregateFunction),
}

// makeAggregate returns the aggregate instance for the current evaluation,
// creating it on first use.
func makeAggregate(goCtx Context) (AggregateFunction, uintptr) {
	aggCtx := (*uintptr)(unsafe.Pointer(lib.Xsqlite3_aggregate_context(goCtx.tls, goCtx.ptr, int32(ptrSize))))
	if aggCtx == nil {
		goCtx.resultError(ErrNoMem)
		return nil, 0
	}
	if *aggCtx != 0 {
		// Already created.
		xAggregateContext.mu.RLock()
		f := xAggregateContext.m[*aggCtx]
		xAggregateContext.mu.RUnlock()
		return f, *aggCtx
	}

	fn := lookupFunction(lib.Xsqlite3_user_data(goCtx.tls, goCtx.ptr))
	if fn == nil {
		goCtx.resultError(errors.New("function no longer registered"))
		return nil, 0
	}
	var x AggregateFunction
	if !goCtx.call(func() error {
		var err error
		x, err = fn.impl.MakeAggregate(goCtx)
		if err == nil && x == nil {
			err = errors.New("MakeAggregate function returned nil")
		}
		return err
	}) {
		return nil, 0
	}

	xAggregateContext.mu.Lock()
	*aggCtx = xAggregateContext.ids.next()
	xAggregateContext.m[*aggCtx] = x
	xAggregateContext.mu.Unlock()
	return x, *aggCtx
}

func stepTrampoline(tls *libc.TLS, ctx uintptr, n int32, valarray uintptr) {
	goCtx, vals := funcContext(tls, ctx, n, valarray)
	x, _ := makeAggregate(goCtx)
	if x == nil {
		return
	}
	goCtx.call(func() error {
		return x.Step(goCtx, vals)
	})
}

func finalTrampoline(tls *libc.TLS, ctx uintptr) {
	goCtx, _ := funcContext(tls, ctx, 0, 0)
	x, id := makeAggregate(goCtx)
	if x == nil {
		return
	}
	defer func() {
		xAggregateContext.mu.Lock()
		defer xAggregateContext.mu.Unlock()
		delete(xAggregateContext.m, id)
		xAggregateContext.ids.reclaim(id)
	}()
	var v Value
	if !goCtx.call(func() error {
		var err error
		v, err = x.Final(goCtx)
		return err
	}) {
		return
	}
	goCtx.result(v, nil)
}

// idGen is an ID generator. The zero value is ready to use.
type idGen struct {
	bitset []uint64
}

func (gen *idGen) next() uintptr {
	base := uintptr(1)
	for i := 0; i < len(gen.bitset); i, base = i+1, base+64 {
		b := gen.bitset[i]
		if b != 1<<64-1 {
			n := uintptr(bits.TrailingZeros64(^b))
			gen.bitset[i] |= 1 << n
			return base + n
		}
	}
	gen.bitset = append(gen.bitset, 1)
	return base
}

func (gen *idGen) reclaim(id uintptr) {
	bit := id - 1
	gen.bitset[bit/64] &^= 1 << (bit % 64)
}
