// Package memory implements the ColumnStore contract as a volatile,
// file-free store (spec.md §4.5), intended for tests and ephemeral
// workloads. It shares the same block codec and writer/reader as the
// persistent store, just keeps block bytes in a map instead of files.
package memory

import (
	"sync"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/polarsignals/columnfort/block"
	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/storage"
)

type blockKey struct {
	table  schema.TableID
	column uint64
	block  uint64
}

// Store is a drop-in volatile ColumnStore.
type Store struct {
	mem         memory.Allocator
	logger      log.Logger
	targetBytes int
	compression codec.Compression

	mu     sync.RWMutex
	tables map[schema.TableID]*storage.TableMetadata
	bytes  map[blockKey][]byte
}

// Option configures a Store at construction time.
type Option func(*Store)

func WithLogger(l log.Logger) Option { return func(s *Store) { s.logger = l } }
func WithTargetBytes(n int) Option   { return func(s *Store) { s.targetBytes = n } }
func WithCompression(c codec.Compression) Option {
	return func(s *Store) { s.compression = c }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		mem:         memory.NewGoAllocator(),
		logger:      log.NewNopLogger(),
		targetBytes: block.DefaultTargetBytes,
		compression: codec.CompressionLZ4,
		tables:      make(map[schema.TableID]*storage.TableMetadata),
		bytes:       make(map[blockKey][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.ColumnStore = (*Store)(nil)

func (s *Store) CreateTable(id schema.TableID, sch *schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[id]; exists {
		return errs.Newf(errs.KindAlreadyExists, "table %d already exists", id)
	}
	s.tables[id] = &storage.TableMetadata{
		Schema: sch,
		Blocks: make(map[uint64][]block.Metadata),
	}
	level.Debug(s.logger).Log("msg", "created table", "table", id)
	return nil
}

func (s *Store) WriteColumns(id schema.TableID, columns []column.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[id]
	if !ok {
		return errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	if err := storage.ValidateWrite(table.Schema, columns); err != nil {
		return err
	}

	w := block.NewWriter(s.mem, s.targetBytes, s.compression)
	type pending struct {
		columnID uint64
		results  []block.Result
	}
	var plan []pending
	for i, col := range columns {
		columnID := uint64(i)
		startBlockID := table.NextBlockIDFor(columnID)
		startRowStart := table.NextRowStartFor(columnID)
		results, err := w.WriteColumn(col, columnID, startBlockID, startRowStart)
		if err != nil {
			return errs.Wrap(errs.KindStorageIO, "write column", err)
		}
		plan = append(plan, pending{columnID: columnID, results: results})
	}

	// Land all blocks, then commit metadata — mirrors the persistent
	// store's two-phase write even though there is no crash window to
	// protect against in memory.
	for _, p := range plan {
		for _, r := range p.results {
			key := blockKey{table: id, column: p.columnID, block: r.Metadata.BlockID}
			s.bytes[key] = r.Block.Bytes
			table.Blocks[p.columnID] = append(table.Blocks[p.columnID], r.Metadata)
		}
	}
	table.RecomputeRowCount()

	level.Debug(s.logger).Log("msg", "wrote columns", "table", id, "columns", len(columns))
	return nil
}

func (s *Store) ReadColumns(id schema.TableID, columnIDs []uint64, rowStart, rowCount int64) ([]column.Column, error) {
	s.mu.RLock()
	table, ok := s.tables[id]
	if !ok {
		s.mu.RUnlock()
		return nil, errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	// Snapshot the metadata we need while holding the lock, then release
	// it before doing decode work (spec.md §4.4 concurrency: hold the lock
	// only for the minimum scope needed).
	metas := make(map[uint64][]block.Metadata, len(columnIDs))
	for _, cid := range columnIDs {
		metas[cid] = append([]block.Metadata(nil), table.Blocks[cid]...)
	}
	sch := table.Schema
	s.mu.RUnlock()

	reader := block.NewReader(s.mem)
	out := make([]column.Column, len(columnIDs))
	for i, cid := range columnIDs {
		if int(cid) >= sch.Len() {
			return nil, errs.Newf(errs.KindNotFound, "column %d not in schema", cid)
		}
		load := func(m block.Metadata) ([]byte, error) {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.bytes[blockKey{table: id, column: cid, block: m.BlockID}], nil
		}
		col, err := reader.ReadRange(id, cid, metas[cid], load, sch.Field(int(cid)).Type, rowStart, rowCount)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

func (s *Store) GetSchema(id schema.TableID) (*schema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	return table.Schema, nil
}

func (s *Store) GetBlockMetadata(id schema.TableID, columnID uint64) ([]block.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	return append([]block.Metadata(nil), table.Blocks[columnID]...), nil
}

func (s *Store) DeleteTable(id schema.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.tables[id]
	if !ok {
		return errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	delete(s.tables, id)
	for cid := range table.Blocks {
		for _, m := range table.Blocks[cid] {
			delete(s.bytes, blockKey{table: id, column: cid, block: m.BlockID})
		}
	}
	level.Debug(s.logger).Log("msg", "deleted table", "table", id)
	return nil
}

func (s *Store) RowCount(id schema.TableID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[id]
	if !ok {
		return 0, errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	return table.RowCount, nil
}
