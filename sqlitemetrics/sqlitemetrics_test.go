// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlitemetrics

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitex"
)

func TestMetricsProfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	conn, err := sqlite3.OpenConn(":memory:")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, m.Attach(conn))

	require.NoError(t, conn.Exec("CREATE TABLE t (x); INSERT INTO t VALUES (1);", nil))
	require.Equal(t, 2.0, testutil.ToFloat64(m.statementsTotal))

	n, err := testutil.GatherAndCount(reg, "sqlite_statement_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStatusCollector(t *testing.T) {
	pool, err := sqlitex.Open(filepath.Join(t.TempDir(), "metrics.db"), 0, 1)
	require.NoError(t, err)
	defer pool.Close()

	c := &StatusCollector{Pool: pool}

	engine := testutil.CollectAndCount(c, "sqlite_engine_status")
	require.Equal(t, 2*len(sqlite3.StatusOps), engine)
	perConn := testutil.CollectAndCount(c, "sqlite_connection_status")
	require.Equal(t, 2*len(sqlite3.DBStatusOps), perConn)

	// A busy pool is skipped rather than waited on.
	conn := pool.Get(nil)
	require.Equal(t, 0, testutil.CollectAndCount(c, "sqlite_connection_status"))
	pool.Put(conn)
}

func TestStatusCollectorNoPool(t *testing.T) {
	c := new(StatusCollector)
	require.Equal(t, 0, testutil.CollectAndCount(c, "sqlite_connection_status"))
	require.Positive(t, testutil.CollectAndCount(c, "sqlite_engine_status"))
}
