package engine

import (
	"sync"
	"time"

	arrowmem "github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/go-kit/log"

	"github.com/polarsignals/columnfort/block"
	"github.com/polarsignals/columnfort/cache"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/query/logicalplan"
	"github.com/polarsignals/columnfort/query/physicalplan"
	"github.com/polarsignals/columnfort/scaling"
	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/storage"
	"github.com/polarsignals/columnfort/storage/memory"
	"github.com/polarsignals/columnfort/storage/persistent"
)

// DB is one database instance: a ColumnStore plus its identity within a
// Fleet. Opening a Config with WithDataDir backs it with the persistent
// store; otherwise it runs entirely in memory, using this module's own
// block/metadata format rather than a parquet-backed table. A DB created
// through a Fleet has its metrics wired by CreateDatabase so writes and
// queries drive the auto-scaling control loop; a bare Open leaves metrics
// nil and every DB method still works, just unobserved.
type DB struct {
	id      scaling.DatabaseID
	store   storage.ColumnStore
	logger  log.Logger
	metrics *scaling.MetricCollector
	mem     arrowmem.Allocator

	mu       sync.Mutex
	tableIDs []schema.TableID
}

// allocator returns the Arrow allocator query operators should build
// result batches with.
func (db *DB) allocator() arrowmem.Allocator { return db.mem }

var _ storage.ColumnStore = (*DB)(nil)

// Open creates a DB for id using cfg's storage settings.
func Open(id scaling.DatabaseID, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if cfg.dataDir != "" {
		opts := []persistent.Option{
			persistent.WithLogger(cfg.logger),
			persistent.WithTargetBytes(cfg.blockTargetBytes),
			persistent.WithCompression(cfg.compression),
		}
		if cfg.cachePartitions > 0 {
			bc, err := cache.NewBlockCache(cfg.cachePartitions, cfg.cacheCapacityPerPartition)
			if err != nil {
				return nil, err
			}
			opts = append(opts, persistent.WithBlockCache(bc))
		}
		store, err := persistent.Open(cfg.dataDir, opts...)
		if err != nil {
			return nil, err
		}
		return &DB{id: id, store: store, logger: cfg.logger, mem: arrowmem.NewGoAllocator()}, nil
	}
	store := memory.New(
		memory.WithLogger(cfg.logger),
		memory.WithTargetBytes(cfg.blockTargetBytes),
		memory.WithCompression(cfg.compression),
	)
	return &DB{id: id, store: store, logger: cfg.logger, mem: arrowmem.NewGoAllocator()}, nil
}

// ID returns the database instance's identity within a Fleet.
func (db *DB) ID() scaling.DatabaseID { return db.id }

// Store exposes the underlying ColumnStore, e.g. to pass this DB's data
// straight to query/physicalplan.Scan.
func (db *DB) Store() storage.ColumnStore { return db.store }

// attachMetrics wires m into db so WriteColumns and the query wrappers
// below record real traffic; called by Fleet.CreateDatabase right after
// Open succeeds.
func (db *DB) attachMetrics(m *scaling.MetricCollector) { db.metrics = m }

func (db *DB) CreateTable(id schema.TableID, sch *schema.Schema) error {
	if err := db.store.CreateTable(id, sch); err != nil {
		return err
	}
	db.mu.Lock()
	db.tableIDs = append(db.tableIDs, id)
	db.mu.Unlock()
	return nil
}

func (db *DB) WriteColumns(id schema.TableID, columns []column.Column) error {
	if err := db.store.WriteColumns(id, columns); err != nil {
		return err
	}
	db.recordTransaction()
	return nil
}

func (db *DB) ReadColumns(id schema.TableID, columnIDs []uint64, rowStart, rowCount int64) ([]column.Column, error) {
	return db.store.ReadColumns(id, columnIDs, rowStart, rowCount)
}

func (db *DB) GetSchema(id schema.TableID) (*schema.Schema, error) {
	return db.store.GetSchema(id)
}

func (db *DB) GetBlockMetadata(id schema.TableID, columnID uint64) ([]block.Metadata, error) {
	return db.store.GetBlockMetadata(id, columnID)
}

func (db *DB) DeleteTable(id schema.TableID) error {
	if err := db.store.DeleteTable(id); err != nil {
		return err
	}
	db.mu.Lock()
	for i, t := range db.tableIDs {
		if t == id {
			db.tableIDs = append(db.tableIDs[:i], db.tableIDs[i+1:]...)
			break
		}
	}
	db.mu.Unlock()
	return nil
}

func (db *DB) RowCount(id schema.TableID) (int64, error) {
	return db.store.RowCount(id)
}

// Size estimates the database's on-disk footprint by summing every
// table's blocks' compressed sizes, and its total row count as the max
// across tables. Used to feed MetricCollector.SetSize ahead of each
// controller tick; tables a caller names but that no longer exist are
// skipped rather than erroring, since this is a best-effort gauge, not a
// correctness-sensitive read.
func (db *DB) Size(tableIDs []schema.TableID) (sizeBytes, rowCount int64) {
	for _, id := range tableIDs {
		n, err := db.store.RowCount(id)
		if err != nil {
			continue
		}
		if n > rowCount {
			rowCount = n
		}
		sch, err := db.store.GetSchema(id)
		if err != nil {
			continue
		}
		for cid := 0; cid < sch.Len(); cid++ {
			blocks, err := db.store.GetBlockMetadata(id, uint64(cid))
			if err != nil {
				continue
			}
			for _, b := range blocks {
				sizeBytes += int64(b.CompressedSize)
			}
		}
	}
	return sizeBytes, rowCount
}

func (db *DB) knownTableIDs() []schema.TableID {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]schema.TableID(nil), db.tableIDs...)
}

// recordTransaction updates the EWMA transaction counter and the
// size/row/table-count gauges a committed write_columns call changes
// (spec.md §4.7); a no-op unless this DB was created through a Fleet.
func (db *DB) recordTransaction() {
	if db.metrics == nil {
		return
	}
	now := time.Now()
	db.metrics.RecordTransaction(db.id, now)
	ids := db.knownTableIDs()
	sizeBytes, rowCount := db.Size(ids)
	db.metrics.SetSize(db.id, sizeBytes, rowCount, int64(len(ids)))
}

// recordQuery updates the EWMA query counter; a no-op unless this DB was
// created through a Fleet.
func (db *DB) recordQuery() {
	if db.metrics == nil {
		return
	}
	db.metrics.RecordQuery(db.id, time.Now())
}

// Scan reads a Batch straight from this DB's store, recording one query
// against the owning database's metrics (spec.md §4.6).
func (db *DB) Scan(table schema.TableID, columnIDs []uint64, rowStart, rowCount int64) (physicalplan.Batch, error) {
	db.recordQuery()
	return physicalplan.Scan(db.store, table, columnIDs, rowStart, rowCount)
}

// Filter evaluates pred over batch, recording one query against this
// database's metrics (spec.md §4.6).
func (db *DB) Filter(batch physicalplan.Batch, pred logicalplan.Predicate) (physicalplan.Batch, error) {
	db.recordQuery()
	return physicalplan.Filter(db.allocator(), batch, pred)
}

// Project selects a subset of batch's columns, recording one query
// against this database's metrics (spec.md §4.6).
func (db *DB) Project(batch physicalplan.Batch, names []string) (physicalplan.Batch, error) {
	db.recordQuery()
	return physicalplan.Project(batch, names)
}

// Aggregate runs a group-by over batch, recording one query against this
// database's metrics (spec.md §4.6).
func (db *DB) Aggregate(batch physicalplan.Batch, agg logicalplan.Aggregation) (physicalplan.Batch, error) {
	db.recordQuery()
	return physicalplan.Aggregate(db.allocator(), batch, agg)
}

// HashJoin joins left and right on their key columns, recording one
// query against this database's metrics (spec.md §4.6).
func (db *DB) HashJoin(left physicalplan.Batch, leftKey string, right physicalplan.Batch, rightKey string, joinType physicalplan.JoinType) (physicalplan.Batch, error) {
	db.recordQuery()
	return physicalplan.HashJoin(db.allocator(), left, leftKey, right, rightKey, joinType)
}
