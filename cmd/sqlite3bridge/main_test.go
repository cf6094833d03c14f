// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite3"
)

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	t.Logf("stderr: %s", stderr.String())
	return stdout.String(), err
}

func TestExecArgs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "exec.db")

	_, err := run(t, "", "exec", "-d", db, "CREATE TABLE t (a, b); INSERT INTO t VALUES (1, NULL);")
	require.NoError(t, err)

	out, err := run(t, "", "exec", "-d", db, "--headers", "--nullvalue", "NULL", "SELECT a, b FROM t;")
	require.NoError(t, err)
	assert.Equal(t, "a|b\n1|NULL\n", out)
}

func TestExecTemplate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "template.db")

	_, err := run(t, "", "exec", "-d", db, "CREATE TABLE t (name TEXT);")
	require.NoError(t, err)
	_, err = run(t, "", "exec", "-d", db, "--arg", "it's", "INSERT INTO t VALUES (%Q);")
	require.NoError(t, err)

	out, err := run(t, "", "exec", "-d", db, "SELECT name FROM t;")
	require.NoError(t, err)
	assert.Equal(t, "it's\n", out)
}

func TestExecStdin(t *testing.T) {
	out, err := run(t, "SELECT 1 + 1;\n.nullvalue -\nSELECT NULL;\n", "exec")
	require.NoError(t, err)
	assert.Equal(t, "2\n-\n", out)
}

func TestExecError(t *testing.T) {
	_, err := run(t, "", "exec", "SELECT bogus;")
	require.Error(t, err)
	assert.Equal(t, sqlite3.ResultError, sqlite3.ErrCode(err))
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")

	_, err := run(t, "", "exec", "-d", src, "CREATE TABLE t (x); INSERT INTO t VALUES (42);")
	require.NoError(t, err)

	out, err := run(t, "", "backup", "-d", src, "--pages", "1", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "copied")

	out, err = run(t, "", "exec", "-d", dst, "SELECT x FROM t;")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestStatus(t *testing.T) {
	out, err := run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "memory_used")
	assert.Contains(t, out, "cache_used")

	out, err = run(t, "", "status", "--format", "prometheus")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite_engine_status{")
	assert.Contains(t, out, "sqlite_connection_status{")
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	fileDB := filepath.Join(dir, "file.db")
	envDB := filepath.Join(dir, "env.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+fileDB+"\nlog_level: warn\n"), 0o644))

	_, err := run(t, "", "--config", cfgPath, "exec", "CREATE TABLE from_file (x);")
	require.NoError(t, err)
	assert.FileExists(t, fileDB)

	t.Setenv("SQLITE3BRIDGE_DATABASE", envDB)
	_, err = run(t, "", "--config", cfgPath, "exec", "CREATE TABLE from_env (x);")
	require.NoError(t, err)
	assert.FileExists(t, envDB)

	out, err := run(t, "", "--config", cfgPath, "-d", fileDB, "exec", "SELECT name FROM sqlite_master;")
	require.NoError(t, err)
	assert.Equal(t, "from_file\n", out)
}

func TestConfigErrors(t *testing.T) {
	_, err := run(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)

	_, err = run(t, "", "--flags", "readwrite|bogus", "exec", "SELECT 1;")
	assert.ErrorContains(t, err, "bogus")

	_, err = run(t, "", "--log-level", "loud", "version")
	assert.ErrorContains(t, err, "loud")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "SQLite "+sqlite3.Version()), "output: %q", out)
}
