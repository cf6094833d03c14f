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

package sqlitex

import (
	"fmt"
	"runtime"
	"strings"

	"zombiezen.com/go/sqlite3"
)

// Save creates a named transaction using SAVEPOINT.
//
// Save returns a releaseFn that runs RELEASE if the error it is given points
// to nil, and ROLLBACK TO followed by RELEASE otherwise. A panic that passes
// through the deferred releaseFn also rolls back and is then re-raised.
// The savepoint is named after the calling function.
//
// If the savepoint cannot be started because the connection is interrupted,
// releaseFn stores that error in *errp. Any other failure to start panics.
//
// https://www.sqlite.org/lang_savepoint.html
func Save(conn *sqlite3.Conn) (releaseFn func(*error)) {
	name := "sqlitex.Save"
	var pc [3]uintptr
	if n := runtime.Callers(0, pc[:]); n > 0 {
		frames := runtime.CallersFrames(pc[:n])
		if _, more := frames.Next(); more { // runtime.Callers
			if _, more := frames.Next(); more { // sqlitex.Save
				frame, _ := frames.Next()
				if frame.Function != "" {
					name = frame.Function
				}
			}
		}
	}

	releaseFn, err := savepoint(conn, name)
	if err != nil {
		if sqlite3.ErrCode(err) == sqlite3.ResultInterrupt {
			return func(errp *error) {
				if *errp == nil {
					*errp = err
				}
			}
		}
		panic(err)
	}
	return releaseFn
}

func savepoint(conn *sqlite3.Conn, name string) (releaseFn func(*error), err error) {
	if strings.Contains(name, `"`) {
		return nil, fmt.Errorf("sqlitex: savepoint: invalid name %q", name)
	}
	if err := Execute(conn, fmt.Sprintf("SAVEPOINT %q;", name), nil); err != nil {
		return nil, err
	}
	releaseFn = func(errp *error) {
		recoverP := recover()

		// An interrupted query or an explicit COMMIT or ROLLBACK has
		// already ended the transaction.
		if conn.AutocommitEnabled() {
			if recoverP != nil {
				panic(recoverP)
			}
			return
		}

		if *errp == nil && recoverP == nil {
			*errp = Execute(conn, fmt.Sprintf("RELEASE %q;", name), nil)
			if *errp == nil {
				return
			}
			if conn.AutocommitEnabled() {
				return
			}
		}

		orig := ""
		if *errp != nil {
			orig = (*errp).Error() + "\n\t"
		}

		// The rollback must run even if the connection is interrupted.
		oldDoneCh := conn.SetInterrupt(nil)
		defer conn.SetInterrupt(oldDoneCh)

		if err := Execute(conn, fmt.Sprintf("ROLLBACK TO %q;", name), nil); err != nil {
			panic(orig + err.Error())
		}
		if err := Execute(conn, fmt.Sprintf("RELEASE %q;", name), nil); err != nil {
			panic(orig + err.Error())
		}

		if recoverP != nil {
			panic(recoverP)
		}
	}
	return releaseFn, nil
}

// Transaction starts a DEFERRED transaction.
//
// Transaction returns an endFn that runs COMMIT if the error it is given
// points to nil and ROLLBACK otherwise. It is designed to be deferred.
//
// https://www.sqlite.org/lang_transaction.html
func Transaction(conn *sqlite3.Conn) (endFn func(*error)) {
	endFn, err := transaction(conn, "DEFERRED")
	if err != nil {
		if sqlite3.ErrCode(err) == sqlite3.ResultInterrupt {
			return func(errp *error) {
				if *errp == nil {
					*errp = err
				}
			}
		}
		panic(err)
	}
	return endFn
}

// ImmediateTransaction starts an IMMEDIATE transaction, which takes the
// write lock up front. Unlike Transaction, a failure to start is returned.
//
// https://www.sqlite.org/lang_transaction.html
func ImmediateTransaction(conn *sqlite3.Conn) (endFn func(*error), err error) {
	endFn, err = transaction(conn, "IMMEDIATE")
	if err != nil {
		return func(*error) {}, err
	}
	return endFn, nil
}

func transaction(conn *sqlite3.Conn, mode string) (endFn func(*error), err error) {
	if err := Execute(conn, "BEGIN "+mode+";", nil); err != nil {
		return nil, err
	}
	endFn = func(errp *error) {
		recoverP := recover()
		if conn.AutocommitEnabled() {
			if recoverP != nil {
				panic(recoverP)
			}
			return
		}
		if *errp == nil && recoverP == nil {
			*errp = Execute(conn, "COMMIT;", nil)
			if *errp == nil || conn.AutocommitEnabled() {
				return
			}
		}

		oldDoneCh := conn.SetInterrupt(nil)
		defer conn.SetInterrupt(oldDoneCh)
		if err := Execute(conn, "ROLLBACK;", nil); err != nil {
			orig := ""
			if *errp != nil {
				orig = (*errp).Error() + "\n\t"
			}
			panic(orig + err.Error())
		}
		if recoverP != nil {
			panic(recoverP)
		}
	}
	return endFn, nil
}
