// Package metrics provides Prometheus metrics for nebula-sql connectors and
// a per-connector Collector whose values back Connector.Metrics().
//
//	metrics.RowsRead.WithLabelValues("sql_select").Add(float64(len(page)))
//
//	timer := metrics.NewTimer()
//	flush()
//	metrics.FlushLatency.WithLabelValues("users").Observe(timer.Stop().Seconds())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts rows emitted by readers.
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sql_rows_read_total",
			Help: "Total number of rows read",
		},
		[]string{"connector"},
	)

	// PagesFetched counts page queries issued by readers.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sql_pages_fetched_total",
			Help: "Total number of page queries executed",
		},
		[]string{"connector"},
	)

	// RowsWritten counts rows persisted by writers. Labels: table, operation (insert/update)
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sql_rows_written_total",
			Help: "Total number of rows written",
		},
		[]string{"table", "operation"},
	)

	// Flushes counts buffer flushes. Labels: table, status (committed/rolled_back)
	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sql_flushes_total",
			Help: "Total number of buffer flushes",
		},
		[]string{"table", "status"},
	)

	// FlushLatency tracks how long a flush transaction takes, in seconds.
	FlushLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_sql_flush_duration_seconds",
			Help:    "Duration of buffer flush transactions",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		},
		[]string{"table"},
	)

	// BufferDepth is the number of rows waiting in a writer buffer.
	BufferDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_sql_buffer_depth",
			Help: "Rows currently buffered by a writer",
		},
		[]string{"table"},
	)

	// ActiveConnections tracks connections held exclusively by writer sessions.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_sql_active_connections",
			Help: "Connections held by writer sessions",
		},
		[]string{"engine"},
	)

	// Throughput tracks records per second through a pipeline.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_sql_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"source", "destination"},
	)
)

// Collector keeps per-connector counters. It is safe for concurrent use.
type Collector struct {
	name      string
	startTime time.Time

	mu     sync.RWMutex
	values map[string]float64
}

// NewCollector creates a collector for the named component.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		values:    make(map[string]float64),
	}
}

// RecordCounter adds delta to a counter.
func (c *Collector) RecordCounter(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] += delta
}

// RecordGauge sets a gauge.
func (c *Collector) RecordGauge(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

// Value returns the current value of a counter or gauge.
func (c *Collector) Value(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[name]
}

// GetAll returns all current values plus component and uptime.
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.values)+2)
	for k, v := range c.values {
		out[k] = v
	}
	out["component"] = c.name
	out["uptime"] = time.Since(c.startTime).Seconds()
	return out
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker computes records per second over reset windows.
type ThroughputTracker struct {
	mu          sync.Mutex
	count       int64
	lastReset   time.Time
	source      string
	destination string
}

// NewThroughputTracker creates a tracker labelled with the pipeline endpoints.
func NewThroughputTracker(source, destination string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset:   time.Now(),
		source:      source,
		destination: destination,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the throughput since the last reset, publishes it to
// the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.source, t.destination).Set(throughput)
	return throughput
}
