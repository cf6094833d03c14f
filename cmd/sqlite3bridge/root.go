// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitelog"
)

// app carries the state shared by every command of one invocation.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configPath string
	cfg        *config
	logger     log.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "sqlite3bridge",
		Short:         "Run SQL against an SQLite database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger, err = newLogger(a.stderr, cfg.LogLevel)
			return err
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: ./sqlite3bridge.yaml)")
	pf.StringP("database", "d", defaultDatabase, "database path or URI")
	pf.String("flags", "", "open flags, like \"readwrite|create|uri\" (default: readwrite|create|wal|uri)")
	pf.String("vfs", "", "VFS name")
	pf.String("charset", "", "IANA charset of narrow text (default: UTF-8)")
	pf.Bool("wide", false, "use UTF-16 text")
	pf.Duration("busy-timeout", defaultBusyTimeout, "time to wait for locks")
	pf.String("log-level", defaultLogLevel, "log level: debug, info, warn or error")
	pf.Duration("slow-query", 0, "log statements slower than this at warn level")

	root.AddCommand(
		a.newExecCmd(),
		a.newShellCmd(),
		a.newBackupCmd(),
		a.newStatusCmd(),
		a.newVersionCmd(),
	)
	return root
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "info", "":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}

// openConn opens the configured database and attaches statement logging.
func (a *app) openConn() (*sqlite3.Conn, error) {
	conn, err := a.cfg.open()
	if err != nil {
		return nil, err
	}
	sl := sqlitelog.New(a.logger)
	sl.SlowThreshold = a.cfg.SlowQuery
	if err := sl.Attach(conn); err != nil {
		conn.Close()
		return nil, err
	}
	level.Debug(a.logger).Log("msg", "opened database", "path", a.cfg.Database, "encoding", a.cfg.Encoding)
	return conn, nil
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the SQLite engine version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.stdout, "SQLite %s (%d)\n", sqlite3.Version(), sqlite3.VersionNumber())
			return err
		},
	}
}

// closeConn closes conn, keeping the first error.
func closeConn(conn *sqlite3.Conn, errp *error) {
	if err := conn.Close(); err != nil && *errp == nil {
		*errp = err
	}
}
