// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"modernc.org/libc"
)

// resourceKind identifies which list of a registry a child belongs to.
type resourceKind int

const (
	kindStmt resourceKind = iota
	kindBlob
	kindBackup
	kindFunc

	numKinds
)

func (k resourceKind) String() string {
	switch k {
	case kindStmt:
		return "statement"
	case kindBlob:
		return "blob"
	case kindBackup:
		return "backup"
	case kindFunc:
		return "function"
	default:
		return "unknown"
	}
}

// child is a resource owned by a session: a statement, blob, backup or
// function registration.
type child interface {
	// node returns the child's list linkage and back-reference.
	node() *childNode
	kind() resourceKind
	// release tears down the native handle. It must be safe to call more
	// than once and must not touch the registry.
	release(tls *libc.TLS)
}

// childNode is embedded in every child.
type childNode struct {
	// owner is nil once the child is unregistered or its session closed.
	owner *session
	// conn keeps the Conn, and so the session, from being finalized while
	// the host still holds a statement, blob or backup. Functions do not
	// hold it: the registry itself is reachable from the session table.
	conn *Conn
	next child
}

func (n *childNode) node() *childNode { return n }

// registry holds the children of one session, one intrusive list per kind.
// The zero value is an empty registry.
type registry struct {
	heads    [numKinds]child
	draining bool
}

// register links c at the head of its kind's list.
func (r *registry) register(owner *session, c child) error {
	if r.draining {
		return usageErrorf("register "+c.kind().String(), "connection is closing")
	}
	n := c.node()
	n.owner = owner
	if c.kind() != kindFunc {
		n.conn = owner.conn.Value()
	}
	n.next = r.heads[c.kind()]
	r.heads[c.kind()] = c
	return nil
}

// unregister unlinks c from its list. It is a no-op if c is not present.
func (r *registry) unregister(c child) {
	k := c.kind()
	var prev child
	for cur := r.heads[k]; cur != nil; prev, cur = cur, cur.node().next {
		if cur != c {
			continue
		}
		if prev == nil {
			r.heads[k] = cur.node().next
		} else {
			prev.node().next = cur.node().next
		}
		n := cur.node()
		n.next = nil
		n.owner = nil
		n.conn = nil
		return
	}
}

// drain releases every child of kind k and empties the list.
// Registration is refused from the first drain onwards.
func (r *registry) drain(tls *libc.TLS, k resourceKind) {
	r.draining = true
	cur := r.heads[k]
	r.heads[k] = nil
	for cur != nil {
		n := cur.node()
		next := n.next
		cur.release(tls)
		n.next = nil
		n.owner = nil
		n.conn = nil
		cur = next
	}
}

// len returns the number of children of kind k.
func (r *registry) len(k resourceKind) int {
	n := 0
	for cur := r.heads[k]; cur != nil; cur = cur.node().next {
		n++
	}
	return n
}

// empty reports whether every list is empty.
func (r *registry) empty() bool {
	for _, h := range r.heads {
		if h != nil {
			return false
		}
	}
	return true
}
