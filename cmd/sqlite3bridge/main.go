// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

// sqlite3bridge is a command-line front end for the sqlite3 package.
package main

import (
	"fmt"
	"os"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
)

func main() {
	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sqlite3bridge:", err)
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}
