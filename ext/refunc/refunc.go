// Copyright 2023 Roxy Light
// SPDX-License-Identifier: ISC

// Package refunc provides an implementation of the [REGEXP operator]
// that uses the Go [regexp] package.
//
// [REGEXP operator]: https://sqlite3.org/lang_expr.html#the_like_glob_regexp_match_and_extract_operators
package refunc

import (
	"fmt"
	"regexp"

	"zombiezen.com/go/sqlite3"
)

// Impl is the implementation of the REGEXP function.
var Impl = &sqlite3.FunctionImpl{
	NArgs:         2,
	Deterministic: true,
	AllowIndirect: true,
	Scalar:        regexpFunc,
}

// Register registers the "regexp" function on the given connection.
// The function is unregistered when the connection is closed.
func Register(c *sqlite3.Conn) error {
	return c.CreateFunction("regexp", Impl)
}

func regexpFunc(ctx sqlite3.Context, args []sqlite3.Value) (sqlite3.Value, error) {
	// First: attempt to retrieve the compiled regexp from a previous call.
	re, ok := ctx.AuxData(0).(*regexp.Regexp)
	if !ok {
		// Auxiliary data not present. Either this is the first call with this
		// argument, or SQLite has discarded the auxiliary data.
		var err error
		re, err = regexp.Compile(args[0].Text())
		if err != nil {
			return sqlite3.Value{}, fmt.Errorf("regexp: %w", err)
		}
		// Store the auxiliary data for future calls.
		ctx.SetAuxData(0, re)
	}

	if args[1].Type() == sqlite3.TypeNull {
		return sqlite3.Value{}, nil
	}
	found := int64(0)
	if re.MatchString(args[1].Text()) {
		found = 1
	}
	return sqlite3.IntegerValue(found), nil
}
