package spdb

// metrics.go implements handle statistics and their Prometheus collector.

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a snapshot of the handle counters.
type Stats struct {
	// ActiveCursors is the number of cursors currently attached.
	ActiveCursors uint64
	// CursorsOpened counts cursors created since New.
	CursorsOpened uint64
	// CursorsClosed counts cursors detached by exhaustion or Close.
	CursorsClosed uint64
	// DeferredCloses counts transitions into a pending close.
	DeferredCloses uint64
	// DeferredCompleted counts deferred closes completed by a cursor.
	DeferredCompleted uint64
	// ComparatorFailures counts custom comparator failures.
	ComparatorFailures uint64
}

// stats holds the live counters. It implements prometheus.Collector.
type stats struct {
	cursorsOpened      atomic.Uint64
	cursorsClosed      atomic.Uint64
	deferredCloses     atomic.Uint64
	deferredCompleted  atomic.Uint64
	comparatorFailures atomic.Uint64

	activeDesc      *prometheus.Desc
	openedDesc      *prometheus.Desc
	deferredDesc    *prometheus.Desc
	completedDesc   *prometheus.Desc
	cmpFailuresDesc *prometheus.Desc
}

func newStats() *stats {
	return &stats{
		activeDesc: prometheus.NewDesc("spdb_cursors_active",
			"Cursors currently attached to the database.", nil, nil),
		openedDesc: prometheus.NewDesc("spdb_cursors_opened_total",
			"Cursors created.", nil, nil),
		deferredDesc: prometheus.NewDesc("spdb_deferred_closes_total",
			"Closes deferred because cursors were attached. Repeated requests while pending are not counted.", nil, nil),
		completedDesc: prometheus.NewDesc("spdb_deferred_closes_completed_total",
			"Deferred closes completed by the release of the last cursor.", nil, nil),
		cmpFailuresDesc: prometheus.NewDesc("spdb_comparator_failures_total",
			"Custom comparator calls answered with the default ordering.", nil, nil),
	}
}

func (s *stats) snapshot(active uint) Stats {
	return Stats{
		ActiveCursors:      uint64(active),
		CursorsOpened:      s.cursorsOpened.Load(),
		CursorsClosed:      s.cursorsClosed.Load(),
		DeferredCloses:     s.deferredCloses.Load(),
		DeferredCompleted:  s.deferredCompleted.Load(),
		ComparatorFailures: s.comparatorFailures.Load(),
	}
}

// Describe implements prometheus.Collector.
func (s *stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.activeDesc
	ch <- s.openedDesc
	ch <- s.deferredDesc
	ch <- s.completedDesc
	ch <- s.cmpFailuresDesc
}

// Collect implements prometheus.Collector. Active cursors are derived from
// the opened/closed counters so collection never touches handle state.
func (s *stats) Collect(ch chan<- prometheus.Metric) {
	opened := s.cursorsOpened.Load()
	closed := s.cursorsClosed.Load()
	ch <- prometheus.MustNewConstMetric(s.activeDesc, prometheus.GaugeValue, float64(opened-closed))
	ch <- prometheus.MustNewConstMetric(s.openedDesc, prometheus.CounterValue, float64(opened))
	ch <- prometheus.MustNewConstMetric(s.deferredDesc, prometheus.CounterValue, float64(s.deferredCloses.Load()))
	ch <- prometheus.MustNewConstMetric(s.completedDesc, prometheus.CounterValue, float64(s.deferredCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(s.cmpFailuresDesc, prometheus.CounterValue, float64(s.comparatorFailures.Load()))
}
