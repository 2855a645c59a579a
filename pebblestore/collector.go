package pebblestore

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// Collector exports the pebble engine metrics of a store.
type Collector struct {
	db      *pebble.DB
	metrics []pebbleMetric
}

func metric(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleMetric {
	return pebbleMetric{
		desc:  prometheus.NewDesc("otdag_pebble_"+name, help, nil, nil),
		kind:  kind,
		value: value,
	}
}

func NewCollector(db *pebble.DB) *Collector {
	return &Collector{
		db: db,
		metrics: []pebbleMetric{
			metric("compaction_count_total", "Total number of compactions performed", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			metric("compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			metric("compaction_in_progress_bytes", "Number of bytes being compacted currently", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
			metric("memtable_size_bytes", "Current size of the memtable in bytes", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			metric("memtable_count", "Current count of memtables", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			metric("wal_files", "Number of live WAL files", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			metric("wal_size_bytes", "Size of live WAL data in bytes", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			metric("wal_bytes_in_total", "Total logical bytes written to the WAL", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }),
			metric("wal_bytes_written_total", "Total physical bytes written to the WAL", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
		},
	}
}

func (pc *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := pc.db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stats))
	}
}
