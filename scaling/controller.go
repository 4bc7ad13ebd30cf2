package scaling

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid"

	"github.com/polarsignals/columnfort/errs"
)

// SpawnTrigger names the threshold that caused a spawn (spec.md §4.8,
// glossary "Spawn trigger").
type SpawnTrigger int

const (
	TriggerNone SpawnTrigger = iota
	SizeThreshold
	RowCountThreshold
	TableCountThreshold
	TransactionCountThreshold
	TransactionsPerSecondThreshold
	ActiveConnectionsThreshold
	QueryCountThreshold
	QueriesPerSecondThreshold
	Manual
)

func (t SpawnTrigger) String() string {
	switch t {
	case SizeThreshold:
		return "SizeThreshold"
	case RowCountThreshold:
		return "RowCountThreshold"
	case TableCountThreshold:
		return "TableCountThreshold"
	case TransactionCountThreshold:
		return "TransactionCountThreshold"
	case TransactionsPerSecondThreshold:
		return "TransactionsPerSecondThreshold"
	case ActiveConnectionsThreshold:
		return "ActiveConnectionsThreshold"
	case QueryCountThreshold:
		return "QueryCountThreshold"
	case QueriesPerSecondThreshold:
		return "QueriesPerSecondThreshold"
	case Manual:
		return "Manual"
	default:
		return "None"
	}
}

// Thresholds are the optional per-fleet envelopes a database's metrics
// are checked against (spec.md §4.8). A zero value for any max_* field
// means "unbounded" for that check.
type Thresholds struct {
	MaxSizeBytes             int64
	MaxRowCount              int64
	MaxTableCount            int64
	MaxTransactionCount      int64
	MaxTransactionsPerSecond float64
	MaxActiveConnections     int64
	MaxQueryCount            int64
	MaxQueriesPerSecond      float64

	// SpawnThresholdPercentage is applied uniformly to every max_*
	// threshold above (default 0.8): a check fires once the metric
	// reaches this fraction of its configured max.
	SpawnThresholdPercentage float64
}

// DefaultSpawnThresholdPercentage is used when Thresholds.SpawnThresholdPercentage
// is left at its zero value.
const DefaultSpawnThresholdPercentage = 0.8

func (t Thresholds) percentage() float64 {
	if t.SpawnThresholdPercentage <= 0 {
		return DefaultSpawnThresholdPercentage
	}
	return t.SpawnThresholdPercentage
}

// evaluate checks m against t in the fixed order spec.md §4.8 mandates:
// size, rows, tables, txn count, txn/s, connections, query count, query/s.
// The first satisfied check wins.
func (t Thresholds) evaluate(m DatabaseMetrics) SpawnTrigger {
	pct := t.percentage()
	switch {
	case t.MaxSizeBytes > 0 && float64(m.SizeBytes) >= pct*float64(t.MaxSizeBytes):
		return SizeThreshold
	case t.MaxRowCount > 0 && float64(m.RowCount) >= pct*float64(t.MaxRowCount):
		return RowCountThreshold
	case t.MaxTableCount > 0 && float64(m.TableCount) >= pct*float64(t.MaxTableCount):
		return TableCountThreshold
	case t.MaxTransactionCount > 0 && float64(m.TransactionCount) >= pct*float64(t.MaxTransactionCount):
		return TransactionCountThreshold
	case t.MaxTransactionsPerSecond > 0 && m.TransactionsPerSecond >= pct*t.MaxTransactionsPerSecond:
		return TransactionsPerSecondThreshold
	case t.MaxActiveConnections > 0 && float64(m.ActiveConnections) >= pct*float64(t.MaxActiveConnections):
		return ActiveConnectionsThreshold
	case t.MaxQueryCount > 0 && float64(m.QueryCount) >= pct*float64(t.MaxQueryCount):
		return QueryCountThreshold
	case t.MaxQueriesPerSecond > 0 && m.QueriesPerSecond >= pct*t.MaxQueriesPerSecond:
		return QueriesPerSecondThreshold
	default:
		return TriggerNone
	}
}

// SpawnEvent records one spawn decision (spec.md §4.8 step 3).
type SpawnEvent struct {
	Source  DatabaseID
	New     DatabaseID
	Trigger SpawnTrigger
	At      time.Time
}

// Stats is the cumulative, query-able view of controller activity
// (spec.md §6 `stats() → AutoScalingStats`).
type Stats struct {
	TotalSpawns int64
	Events      []SpawnEvent
}

// DatabaseManager is the capability the controller needs to actually
// create a new database instance; injected so the controller stays
// independent of however a concrete database is constructed (spec.md §9
// design note: "Global state... both have explicit lifecycles").
type DatabaseManager interface {
	CreateDatabase(id DatabaseID) error
}

// AutoScalingController evaluates Thresholds against a MetricCollector's
// live snapshots on a fixed period and spawns new database instances
// through the injected DatabaseManager, registering each new id with the
// LoadBalancer (spec.md §4.8). Grounded on
// solidcoredata-dca/config/config.go's ticker+context Run loop shape.
type AutoScalingController struct {
	metrics    *MetricCollector
	manager    DatabaseManager
	lb         *LoadBalancer
	thresholds Thresholds
	interval   time.Duration
	logger     log.Logger

	mu    sync.Mutex
	stats Stats

	idMu sync.Mutex
}

// ControllerOption configures an AutoScalingController at construction.
type ControllerOption func(*AutoScalingController)

func WithCheckInterval(d time.Duration) ControllerOption {
	return func(c *AutoScalingController) { c.interval = d }
}

func WithLogger(l log.Logger) ControllerOption {
	return func(c *AutoScalingController) { c.logger = l }
}

// DefaultCheckInterval is the controller period when WithCheckInterval is
// not supplied (spec.md §6: `check_interval_secs` default 10).
const DefaultCheckInterval = 10 * time.Second

// NewController builds a controller for the given metrics source, backed
// by manager for actual instance creation and lb for new-backend
// registration.
func NewController(metrics *MetricCollector, manager DatabaseManager, lb *LoadBalancer, thresholds Thresholds, opts ...ControllerOption) *AutoScalingController {
	c := &AutoScalingController{
		metrics:    metrics,
		manager:    manager,
		lb:         lb,
		thresholds: thresholds,
		interval:   DefaultCheckInterval,
		logger:     log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the control loop until ctx is cancelled: one pass every
// check_interval, each pass evaluating every known database and spawning
// at most one new instance per source database (spec.md §4.8, §5
// "control loop has no per-iteration timeout but never holds locks
// across sleeps").
func (c *AutoScalingController) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *AutoScalingController) tick(now time.Time) {
	ids := c.metrics.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m, ok := c.metrics.Snapshot(id)
		if !ok {
			continue
		}
		c.lb.UpdateLoad(id, m)
		trigger := c.thresholds.evaluate(m)
		if trigger == TriggerNone {
			continue
		}
		if _, err := c.spawn(id, trigger, now); err != nil {
			level.Warn(c.logger).Log("msg", "spawn failed", "source", id, "trigger", trigger, "err", err)
		}
	}
}

// SpawnManual bypasses threshold checks and always spawns (spec.md §4.8,
// §6 `spawn_manual(database_id) → new_id`).
func (c *AutoScalingController) SpawnManual(source DatabaseID) (DatabaseID, error) {
	return c.spawn(source, Manual, time.Now())
}

func (c *AutoScalingController) spawn(source DatabaseID, trigger SpawnTrigger, now time.Time) (DatabaseID, error) {
	newID := c.newDatabaseID()
	if err := c.manager.CreateDatabase(newID); err != nil {
		return "", errs.Wrap(errs.KindStorageIO, "spawn database", err)
	}
	c.metrics.Register(newID)
	c.lb.Register(newID)

	event := SpawnEvent{Source: source, New: newID, Trigger: trigger, At: now}
	c.mu.Lock()
	c.stats.TotalSpawns++
	c.stats.Events = append(c.stats.Events, event)
	c.mu.Unlock()

	level.Info(c.logger).Log("msg", "spawned database", "source", source, "new", newID, "trigger", trigger)
	return newID, nil
}

// Stats returns a copy of the cumulative spawn statistics.
func (c *AutoScalingController) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]SpawnEvent, len(c.stats.Events))
	copy(events, c.stats.Events)
	return Stats{TotalSpawns: c.stats.TotalSpawns, Events: events}
}

// newDatabaseID mints a unique id via ulid, seeded with a fresh
// ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0) entropy
// source per call. Because the entropy source is not shared between
// calls, ids minted within the same millisecond are not guaranteed to
// sort in minting order.
func (c *AutoScalingController) newDatabaseID() DatabaseID {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	return DatabaseID(id.String())
}
