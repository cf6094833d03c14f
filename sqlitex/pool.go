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

package sqlitex

import (
	"context"
	"errors"
	"runtime/trace"
	"sync"
	"time"

	"zombiezen.com/go/sqlite3"
)

// Pool is a pool of SQLite connections.
//
// It is safe for use by multiple goroutines concurrently.
//
// Typically, a goroutine that needs to use an SQLite *Conn
// Gets it from the pool and defers its return:
//
//	conn := dbpool.Get(nil)
//	defer dbpool.Put(conn)
//
// As Get may block, a context can be used to return if a task
// is cancelled. In this case the Conn returned will be nil:
//
//	conn := dbpool.Get(ctx)
//	if conn == nil {
//		return context.Canceled
//	}
//	defer dbpool.Put(conn)
type Pool struct {
	// If checkReset, the Put method checks all of the connection's
	// statements and ensures none is left mid-query.
	// If one is, Put will panic with details.
	checkReset bool

	free   chan *sqlite3.Conn
	closed chan struct{}

	allMu sync.Mutex
	all   map[*sqlite3.Conn]struct{}
}

// PoolOptions is the set of optional arguments to OpenPool.
type PoolOptions struct {
	// Flags are the flags each connection is opened with. Zero means the
	// defaults of sqlite3.Open.
	Flags sqlite3.OpenFlags
	// PoolSize is the number of connections. Zero means 10.
	PoolSize int
	// Encoding is the text encoding of every connection.
	Encoding sqlite3.Encoding
	// PrepareConn, if not nil, is called on each new connection before it
	// enters the pool.
	PrepareConn func(conn *sqlite3.Conn) error
}

const defaultPoolSize = 10

// Open opens a fixed-size pool of SQLite connections with the given flags.
func Open(uri string, flags sqlite3.OpenFlags, poolSize int) (*Pool, error) {
	return OpenPool(uri, &PoolOptions{Flags: flags, PoolSize: poolSize})
}

// OpenPool opens a fixed-size pool of SQLite connections.
func OpenPool(uri string, opts *PoolOptions) (*Pool, error) {
	if uri == ":memory:" {
		return nil, errors.New(`sqlitex: ":memory:" does not work with multiple connections, use "file::memory:?mode=memory"`)
	}
	if opts == nil {
		opts = new(PoolOptions)
	}
	poolSize := opts.PoolSize
	if poolSize < 1 {
		poolSize = defaultPoolSize
	}

	p := &Pool{
		checkReset: true,
		free:       make(chan *sqlite3.Conn, poolSize),
		closed:     make(chan struct{}),
		all:        make(map[*sqlite3.Conn]struct{}),
	}

	p.allMu.Lock()
	defer p.allMu.Unlock()
	for i := 0; i < poolSize; i++ {
		conn, err := sqlite3.Open(uri, &sqlite3.OpenOptions{
			Flags:    opts.Flags,
			Encoding: opts.Encoding,
		})
		if err != nil {
			p.closeLocked()
			return nil, err
		}
		p.all[conn] = struct{}{}
		if opts.PrepareConn != nil {
			if err := opts.PrepareConn(conn); err != nil {
				p.closeLocked()
				return nil, err
			}
		}
		p.free <- conn
	}

	return p, nil
}

// Get gets an SQLite connection from the pool.
//
// If no Conn is available, Get will block until one is,
// or until either the Pool is closed or the context
// expires.
//
// The provided context is used to control the execution
// lifetime of the connection. See Conn.SetInterrupt for
// details. Statements run on the connection are logged to
// the context's runtime/trace task.
func (p *Pool) Get(ctx context.Context) *sqlite3.Conn {
	var doneCh <-chan struct{}
	if ctx != nil {
		doneCh = ctx.Done()
	}
	select {
	case conn, ok := <-p.free:
		if !ok {
			return nil // pool is closed
		}
		if ctx != nil && trace.IsEnabled() {
			tr := &tracer{ctx: ctx}
			conn.SetTracer(tr)
			conn.SetProfiler(tr)
		}
		conn.SetInterrupt(doneCh)
		return conn
	case <-doneCh:
		return nil
	case <-p.closed:
		return nil
	}
}

// Put puts an SQLite connection back into the Pool.
// A nil conn will cause Put to panic.
func (p *Pool) Put(conn *sqlite3.Conn) {
	if conn == nil {
		panic("attempted to Put a nil Conn into Pool")
	}
	if p.checkReset {
		query := conn.CheckReset()
		if query != "" {
			panic("connection returned to pool has active statement: \"" + query + "\"")
		}
	}

	p.allMu.Lock()
	_, found := p.all[conn]
	p.allMu.Unlock()

	if !found {
		panic("sqlitex.Pool.Put: connection not created by this pool")
	}

	conn.SetTracer(nil)
	conn.SetProfiler(nil)
	conn.SetInterrupt(nil)
	select {
	case p.free <- conn:
	default:
	}
}

// Close closes all the connections in the Pool.
func (p *Pool) Close() error {
	close(p.closed)
	p.allMu.Lock()
	defer p.allMu.Unlock()
	return p.closeLocked()
}

func (p *Pool) closeLocked() (err error) {
	for conn := range p.all {
		err2 := conn.Close()
		if err == nil {
			err = err2
		}
	}
	close(p.free)
	for range p.free {
	}
	return err
}

// tracer logs statements to the runtime/trace task of a context.
type tracer struct {
	ctx context.Context
}

func (t *tracer) TraceStmt(sql string) {
	trace.Log(t.ctx, "sqlite.stmt", sql)
}

func (t *tracer) Profile(sql string, d time.Duration) {
	trace.Logf(t.ctx, "sqlite.profile", "%v %s", d, sql)
}
