package engine

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/polarsignals/columnfort/scaling"
)

// Fleet owns a growing set of DB instances and the auto-scaling machinery
// that watches them: a MetricCollector, a LoadBalancer, and the
// AutoScalingController tying the two together (SPEC_FULL.md's
// "DB handle tying storage, the scaling controller and the load balancer
// together"). Fleet itself implements scaling.DatabaseManager, so the
// controller can spawn new DB instances without knowing how they're
// constructed.
type Fleet struct {
	cfg     *Config
	metrics *scaling.MetricCollector
	lb      *scaling.LoadBalancer
	ctrl    *scaling.AutoScalingController
	logger  log.Logger

	mu  sync.RWMutex
	dbs map[scaling.DatabaseID]*DB
}

var _ scaling.DatabaseManager = (*Fleet)(nil)

// NewFleet creates a Fleet and its first database instance (the "source"
// every later auto-spawn traces back to). If cfg's WithDataDir is set,
// every instance, this first one included, gets its own subdirectory
// named after its id under that root (see CreateDatabase).
func NewFleet(firstID scaling.DatabaseID, cfg *Config) (*Fleet, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	f := &Fleet{
		cfg:    cfg,
		logger: cfg.logger,
		dbs:    make(map[scaling.DatabaseID]*DB),
	}
	f.metrics = scaling.NewMetricCollector(cfg.registerer)
	f.lb = scaling.NewLoadBalancer(cfg.loadBalancingStrategy)
	f.ctrl = scaling.NewController(f.metrics, f, f.lb, cfg.thresholds,
		scaling.WithCheckInterval(cfg.checkInterval),
		scaling.WithLogger(cfg.logger),
	)

	if err := f.CreateDatabase(firstID); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateDatabase implements scaling.DatabaseManager: it opens a new DB
// backed by its own data directory (a subdirectory of cfg's, named after
// id) when persistent, or a fresh in-memory store otherwise, and
// registers it with this Fleet's metric collector and load balancer.
func (f *Fleet) CreateDatabase(id scaling.DatabaseID) error {
	dbCfg := *f.cfg
	if dbCfg.dataDir != "" {
		dbCfg.dataDir = dbCfg.dataDir + "/" + string(id)
	}
	db, err := Open(id, &dbCfg)
	if err != nil {
		return err
	}
	db.attachMetrics(f.metrics)

	f.mu.Lock()
	f.dbs[id] = db
	f.mu.Unlock()

	f.metrics.Register(id)
	f.lb.Register(id)
	level.Info(f.logger).Log("msg", "database created", "id", id)
	return nil
}

// DB returns the database instance for id, or false if unknown.
func (f *Fleet) DB(id scaling.DatabaseID) (*DB, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	db, ok := f.dbs[id]
	return db, ok
}

// Metrics returns the fleet-wide metric collector, for callers that need
// to record transactions/queries/connections on the write and query
// paths.
func (f *Fleet) Metrics() *scaling.MetricCollector { return f.metrics }

// LoadBalancer returns the session router (spec.md §6
// `load_balancer().select`).
func (f *Fleet) LoadBalancer() *scaling.LoadBalancer { return f.lb }

// SpawnManual bypasses threshold checks for source (spec.md §6
// `spawn_manual`).
func (f *Fleet) SpawnManual(source scaling.DatabaseID) (scaling.DatabaseID, error) {
	return f.ctrl.SpawnManual(source)
}

// Stats returns the controller's cumulative spawn statistics (spec.md §6
// `stats() → AutoScalingStats`).
func (f *Fleet) Stats() scaling.Stats { return f.ctrl.Stats() }

// Run starts the auto-scaling control loop; it blocks until ctx is
// cancelled (spec.md §5: "The control loop has no per-iteration timeout
// but never holds locks across sleeps").
func (f *Fleet) Run(ctx context.Context) error {
	return f.ctrl.Run(ctx)
}
