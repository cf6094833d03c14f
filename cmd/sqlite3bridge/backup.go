// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"zombiezen.com/go/sqlite3"
)

func (a *app) newBackupCmd() *cobra.Command {
	var (
		pages     int
		retryWait time.Duration
		srcName   string
	)
	cmd := &cobra.Command{
		Use:   "backup DEST",
		Short: "Copy the database into the file DEST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			src, err := a.openConn()
			if err != nil {
				return err
			}
			defer closeConn(src, &err)
			dst, err := sqlite3.OpenConn(args[0], sqlite3.OpenReadWrite|sqlite3.OpenCreate|sqlite3.OpenURI)
			if err != nil {
				return err
			}
			defer closeConn(dst, &err)
			return runBackup(a, dst, src, srcName, pages, retryWait)
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 64, "pages copied per step (-1 for all)")
	cmd.Flags().DurationVar(&retryWait, "retry-wait", 100*time.Millisecond, "wait before retrying a busy step")
	cmd.Flags().StringVar(&srcName, "source", "main", "name of the source database")
	return cmd
}

func runBackup(a *app, dst, src *sqlite3.Conn, srcName string, pages int, retryWait time.Duration) error {
	b, err := sqlite3.NewBackup(dst, "main", src, srcName)
	if err != nil {
		return err
	}
	for {
		status, err := b.StepStatus(pages)
		if err != nil {
			b.Close()
			return err
		}
		switch status {
		case sqlite3.BackupBusy:
			level.Info(a.logger).Log("msg", "backup busy, retrying", "wait", retryWait)
			time.Sleep(retryWait)
			continue
		case sqlite3.BackupMore:
			level.Debug(a.logger).Log("msg", "backup step", "remaining", b.Remaining(), "pages", b.PageCount())
			continue
		}
		break
	}
	total := b.PageCount()
	if err := b.Close(); err != nil {
		return err
	}
	level.Info(a.logger).Log("msg", "backup complete", "pages", total)
	_, err = fmt.Fprintf(a.stdout, "copied %d pages\n", total)
	return err
}
