// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"github.com/spf13/cobra"
	"zombiezen.com/go/sqlite3/shell"
)

func (a *app) newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive SQL shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			conn, err := a.openConn()
			if err != nil {
				return err
			}
			defer closeConn(conn, &err)
			shell.Run(conn)
			return nil
		},
	}
}
