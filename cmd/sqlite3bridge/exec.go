// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"zombiezen.com/go/sqlite3/shell"
)

func (a *app) newExecCmd() *cobra.Command {
	var (
		headers   bool
		nullValue string
		fmtArgs   []string
	)
	cmd := &cobra.Command{
		Use:   "exec [SQL...]",
		Short: "Run SQL given as arguments, or read from standard input",
		Long: `Run SQL given as arguments, or read statements and dot commands from
standard input if there are none.

With --arg, the SQL is a command template: %q and %Q are replaced by quoted
arguments, %s by the raw argument and %% by a percent sign.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			conn, err := a.openConn()
			if err != nil {
				return err
			}
			defer closeConn(conn, &err)

			p := &shell.Printer{W: a.stdout, Headers: headers, NullValue: nullValue}
			if len(args) == 0 {
				return shell.RunScript(conn, a.stdin, a.stdout, a.stderr)
			}
			tmplArgs := make([]any, len(fmtArgs))
			for i, arg := range fmtArgs {
				tmplArgs[i] = arg
			}
			return conn.Exec(strings.Join(args, " "), p, tmplArgs...)
		},
	}
	cmd.Flags().BoolVar(&headers, "headers", false, "print column names")
	cmd.Flags().StringVar(&nullValue, "nullvalue", "", "text printed for NULL")
	cmd.Flags().StringArrayVar(&fmtArgs, "arg", nil, "command template argument (repeatable)")
	return cmd
}
