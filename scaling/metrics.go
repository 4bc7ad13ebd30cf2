// Package scaling implements the auto-scaling coordinator: live
// per-database metrics, the threshold-evaluating control loop, and the
// session load balancer. Its promauto wiring generalizes a table's worth
// of internal counters to one gauge/counter set per database instance,
// registered under a per-database "database" label.
package scaling

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatabaseID identifies one database instance in the fleet.
type DatabaseID string

// DatabaseMetrics is a point-in-time snapshot of one database's live
// counters and gauges (spec.md §4.7).
type DatabaseMetrics struct {
	SizeBytes             int64
	RowCount              int64
	TableCount            int64
	TransactionCount      int64
	TransactionsPerSecond float64
	ActiveConnections     int64
	QueryCount            int64
	QueriesPerSecond      float64
	LastUpdated           time.Time
}

// ewma tracks an exponentially weighted moving rate with a 1s decay
// constant (spec.md §4.7: "*_per_second use an EWMA with 1 s decay").
type ewma struct {
	mu      sync.Mutex
	rate    float64
	last    time.Time
	started bool
}

const ewmaDecay = 1 * time.Second

func (e *ewma) tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		e.last = now
		e.started = true
		return
	}
	elapsed := now.Sub(e.last)
	if elapsed <= 0 {
		return
	}
	e.last = now
	alpha := 1 - decayFactor(elapsed)
	e.rate = alpha*(1.0/elapsed.Seconds()) + (1-alpha)*e.rate
}

func decayFactor(elapsed time.Duration) float64 {
	return math.Exp(-elapsed.Seconds() / ewmaDecay.Seconds())
}

func (e *ewma) value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// databaseGauges is the promauto gauge/counter set for one database
// instance.
type databaseGauges struct {
	sizeBytes         prometheus.Gauge
	rowCount          prometheus.Gauge
	tableCount        prometheus.Gauge
	transactionCount  prometheus.Counter
	activeConnections prometheus.Gauge
	queryCount        prometheus.Counter
}

// MetricCollector maintains live metrics for every known database
// instance (spec.md §4.7). Writers call RecordTransaction synchronously
// on the write path; RecordQuery is called per query; connection counts
// are adjusted on session open/close.
type MetricCollector struct {
	reg prometheus.Registerer

	mu  sync.Mutex
	dbs map[DatabaseID]*databaseState
}

type databaseState struct {
	gauges *databaseGauges
	txPS   ewma
	qPS    ewma

	mu      sync.Mutex
	metrics DatabaseMetrics
}

// NewMetricCollector creates a collector registering per-database series
// under reg (pass prometheus.NewRegistry() or prometheus.DefaultRegisterer).
func NewMetricCollector(reg prometheus.Registerer) *MetricCollector {
	return &MetricCollector{reg: reg, dbs: make(map[DatabaseID]*databaseState)}
}

// Register starts tracking a new database instance, zero-valued.
func (c *MetricCollector) Register(id DatabaseID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.dbs[id]; exists {
		return
	}
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"database": string(id)}, c.reg)
	c.dbs[id] = &databaseState{
		gauges: &databaseGauges{
			sizeBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "columnfort_database_size_bytes", Help: "Total on-disk size of the database.",
			}),
			rowCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "columnfort_database_row_count", Help: "Largest row count among the database's tables.",
			}),
			tableCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "columnfort_database_table_count", Help: "Number of tables.",
			}),
			transactionCount: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "columnfort_database_transactions_total", Help: "Total committed write_columns calls.",
			}),
			activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "columnfort_database_active_connections", Help: "Currently open sessions.",
			}),
			queryCount: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "columnfort_database_queries_total", Help: "Total query operator invocations.",
			}),
		},
	}
}

// Unregister stops tracking a database (e.g. after delete_table's
// database-level equivalent); its Prometheus series are left in place —
// promauto has no unregister hook wired here.
func (c *MetricCollector) Unregister(id DatabaseID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dbs, id)
}

func (c *MetricCollector) state(id DatabaseID) *databaseState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbs[id]
}

// RecordTransaction increments the transaction counter and updates its
// EWMA rate; called synchronously from the write path.
func (c *MetricCollector) RecordTransaction(id DatabaseID, now time.Time) {
	s := c.state(id)
	if s == nil {
		return
	}
	s.gauges.transactionCount.Inc()
	s.txPS.tick(now)
	s.mu.Lock()
	s.metrics.TransactionCount++
	s.metrics.TransactionsPerSecond = s.txPS.value()
	s.metrics.LastUpdated = now
	s.mu.Unlock()
}

// RecordQuery increments the query counter and updates its EWMA rate.
func (c *MetricCollector) RecordQuery(id DatabaseID, now time.Time) {
	s := c.state(id)
	if s == nil {
		return
	}
	s.gauges.queryCount.Inc()
	s.qPS.tick(now)
	s.mu.Lock()
	s.metrics.QueryCount++
	s.metrics.QueriesPerSecond = s.qPS.value()
	s.metrics.LastUpdated = now
	s.mu.Unlock()
}

// AdjustConnections changes the active connection gauge by delta (+1 on
// session open, -1 on close).
func (c *MetricCollector) AdjustConnections(id DatabaseID, delta int64) {
	s := c.state(id)
	if s == nil {
		return
	}
	s.gauges.activeConnections.Add(float64(delta))
	s.mu.Lock()
	s.metrics.ActiveConnections += delta
	s.mu.Unlock()
}

// SetSize updates the size/row/table gauges directly; callers pull these
// from the ColumnStore after a write rather than computing them here,
// since only the store knows block sizes.
func (c *MetricCollector) SetSize(id DatabaseID, sizeBytes, rowCount, tableCount int64) {
	s := c.state(id)
	if s == nil {
		return
	}
	s.gauges.sizeBytes.Set(float64(sizeBytes))
	s.gauges.rowCount.Set(float64(rowCount))
	s.gauges.tableCount.Set(float64(tableCount))
	s.mu.Lock()
	s.metrics.SizeBytes = sizeBytes
	s.metrics.RowCount = rowCount
	s.metrics.TableCount = tableCount
	s.mu.Unlock()
}

// Snapshot returns the current metrics for id, or the zero value and
// false if id is not registered.
func (c *MetricCollector) Snapshot(id DatabaseID) (DatabaseMetrics, bool) {
	s := c.state(id)
	if s == nil {
		return DatabaseMetrics{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, true
}

// IDs returns every currently registered database id.
func (c *MetricCollector) IDs() []DatabaseID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]DatabaseID, 0, len(c.dbs))
	for id := range c.dbs {
		ids = append(ids, id)
	}
	return ids
}
