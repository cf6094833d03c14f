// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitemetrics"
	"zombiezen.com/go/sqlite3/sqlitex"
)

func (a *app) newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print engine and connection status counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			switch format {
			case "table":
				return a.printStatusTable()
			case "prometheus":
				return a.printStatusMetrics()
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or prometheus")
	return cmd
}

func (a *app) printStatusTable() (err error) {
	conn, err := a.openConn()
	if err != nil {
		return err
	}
	defer closeConn(conn, &err)

	tw := tabwriter.NewWriter(a.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tCOUNTER\tCURRENT\tHIGHWATER")
	for _, op := range sqlite3.StatusOps {
		cur, hi, err := sqlite3.Status(op, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "engine\t%v\t%d\t%d\n", op, cur, hi)
	}
	for _, op := range sqlite3.DBStatusOps {
		cur, hi, err := conn.DBStatus(op, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "connection\t%v\t%d\t%d\n", op, cur, hi)
	}
	return tw.Flush()
}

func (a *app) printStatusMetrics() error {
	db := a.cfg.Database
	if db == ":memory:" {
		db = "file::memory:?mode=memory"
	}
	pool, err := sqlitex.OpenPool(db, &sqlitex.PoolOptions{
		Flags:    a.cfg.Flags,
		PoolSize: 1,
		Encoding: a.cfg.Encoding,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(&sqlitemetrics.StatusCollector{Pool: pool})
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(a.stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
