// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

// Package sqlitemetrics exports SQLite status counters and statement
// timings as Prometheus metrics.
package sqlitemetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"zombiezen.com/go/sqlite3"
	"zombiezen.com/go/sqlite3/sqlitex"
)

var (
	engineStatusDesc = prometheus.NewDesc(
		"sqlite_engine_status",
		"Engine-wide SQLite status counters.",
		[]string{"op", "value"},
		nil,
	)
	connStatusDesc = prometheus.NewDesc(
		"sqlite_connection_status",
		"Per-connection SQLite status counters, sampled from an idle pooled connection.",
		[]string{"op", "value"},
		nil,
	)
)

// Metrics holds statement metrics fed by a connection's profiler hook.
type Metrics struct {
	statementDuration prometheus.Histogram
	statementsTotal   prometheus.Counter
}

// NewMetrics creates the statement metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		statementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlite_statement_duration_seconds",
			Help:    "Time taken to run SQLite statements.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		statementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlite_statements_total",
			Help: "Total number of SQLite statements run to completion.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.statementDuration, m.statementsTotal)
	}
	return m
}

// Profile implements sqlite3.Profiler.
func (m *Metrics) Profile(sql string, d time.Duration) {
	m.statementsTotal.Inc()
	m.statementDuration.Observe(d.Seconds())
}

// Attach installs m as the profiler of conn.
func (m *Metrics) Attach(conn *sqlite3.Conn) error {
	return conn.SetProfiler(m)
}

// StatusCollector is a prometheus.Collector for SQLite status counters.
// It reports every engine-wide counter and, if Pool is set, the counters
// of one connection borrowed from the pool for the duration of a scrape.
type StatusCollector struct {
	// Pool is the source of per-connection counters. May be nil.
	Pool *sqlitex.Pool
	// Timeout bounds the wait for an idle pooled connection. Zero means
	// the scrape skips connection counters if none is immediately idle.
	Timeout time.Duration
}

// Describe implements prometheus.Collector.
func (c *StatusCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- engineStatusDesc
	descs <- connStatusDesc
}

// Collect implements prometheus.Collector.
func (c *StatusCollector) Collect(m chan<- prometheus.Metric) {
	for _, op := range sqlite3.StatusOps {
		cur, hi, err := sqlite3.Status(op, false)
		if err != nil {
			continue
		}
		m <- prometheus.MustNewConstMetric(engineStatusDesc, prometheus.GaugeValue, float64(cur), op.String(), "current")
		m <- prometheus.MustNewConstMetric(engineStatusDesc, prometheus.GaugeValue, float64(hi), op.String(), "highwater")
	}
	if c.Pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), max(c.Timeout, time.Millisecond))
	defer cancel()
	conn := c.Pool.Get(ctx)
	if conn == nil {
		return
	}
	defer c.Pool.Put(conn)
	for _, op := range sqlite3.DBStatusOps {
		cur, hi, err := conn.DBStatus(op, false)
		if err != nil {
			continue
		}
		m <- prometheus.MustNewConstMetric(connStatusDesc, prometheus.GaugeValue, float64(cur), op.String(), "current")
		m <- prometheus.MustNewConstMetric(connStatusDesc, prometheus.GaugeValue, float64(hi), op.String(), "highwater")
	}
}
