// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

package shell_test

import (
	"fmt"
	"os"
	"strings"

	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/shell"
)

// This is a small program that emulates the behavior of the sqlite3 CLI.
// A path to a database can be passed on the command-line.
func Example() {
	dbName := ":memory:"
	if len(os.Args) > 1 {
		dbName = os.Args[1]
	}
	conn, err := sqlite3.OpenConn(dbName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	shell.Run(conn)
	conn.Close()
}

func ExampleRunScript() {
	conn, err := sqlite3.OpenConn(":memory:")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer conn.Close()

	script := `
CREATE TABLE t (a, b);
INSERT INTO t VALUES (1, 'one'), (2, NULL);
.headers on
.nullvalue -
SELECT a, b
  FROM t;
`
	if err := shell.RunScript(conn, strings.NewReader(script), os.Stdout, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	// Output:
	// a|b
	// 1|one
	// 2|-
}
