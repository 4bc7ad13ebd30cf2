package persistent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
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

// blockCache is the narrow interface a Store needs to sit an optional
// cache in front of its block reads; cache.BlockCache satisfies it.
type blockCache interface {
	block.BlockCache
	Invalidate(tableID schema.TableID)
}

const dirPerm = 0o755
const filePerm = 0o644

// Store is the durable ColumnStore (spec.md §4.4). Each table lives in its
// own directory under DataDir; block bytes and block metadata sidecars are
// written as standalone files, and the commit point for a WriteColumns call
// is the atomic rename of metadata.bin.
type Store struct {
	dataDir     string
	mem         memory.Allocator
	logger      log.Logger
	targetBytes int
	compression codec.Compression
	cache       blockCache

	mu     sync.RWMutex
	tables map[schema.TableID]*storage.TableMetadata
}

// Option configures a Store at construction time.
type Option func(*Store)

func WithLogger(l log.Logger) Option { return func(s *Store) { s.logger = l } }
func WithTargetBytes(n int) Option   { return func(s *Store) { s.targetBytes = n } }
func WithCompression(c codec.Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithBlockCache sits c in front of every ReadColumns call: a block
// already decoded for one read serves later overlapping reads without
// re-touching disk or re-running codec.Decode.
func WithBlockCache(c blockCache) Option {
	return func(s *Store) { s.cache = c }
}

// Open loads (or initializes) a durable store rooted at dataDir, running the
// spec.md §4.4 startup protocol: (a) delete orphan .tmp files, (b) enumerate
// table directories and load each metadata.bin, logging and skipping any
// table whose metadata fails to parse rather than refusing to start.
func Open(dataDir string, opts ...Option) (*Store, error) {
	s := &Store{
		dataDir:     dataDir,
		mem:         memory.NewGoAllocator(),
		logger:      log.NewNopLogger(),
		targetBytes: block.DefaultTargetBytes,
		compression: codec.CompressionLZ4,
		tables:      make(map[schema.TableID]*storage.TableMetadata),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return nil, fmt.Errorf("persistent: create data dir %s: %w", dataDir, err)
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("persistent: read data dir %s: %w", dataDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tableID, ok := parseTableDirName(e.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(dataDir, e.Name())
		if err := removeOrphanTmps(dir, func(name string) {
			level.Warn(s.logger).Log("msg", "removing orphan temp file", "table", tableID, "file", name)
		}); err != nil {
			level.Warn(s.logger).Log("msg", "failed to sweep orphan temp files", "table", tableID, "err", err)
		}

		data, err := os.ReadFile(metadataPath(dataDir, tableID))
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping table with unreadable metadata", "table", tableID, "err", err)
			continue
		}
		tm, err := DeserializeTableMetadata(data)
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping table with corrupt metadata", "table", tableID, "err", err)
			continue
		}
		tm.RecomputeRowCount()
		s.tables[schema.TableID(tableID)] = tm

		if err := removeUncommittedBlockFiles(dir, tm, func(name string) {
			level.Warn(s.logger).Log("msg", "removing orphan block file", "table", tableID, "file", name)
		}); err != nil {
			level.Warn(s.logger).Log("msg", "failed to sweep orphan block files", "table", tableID, "err", err)
		}
	}

	return s, nil
}

var _ storage.ColumnStore = (*Store)(nil)

func parseTableDirName(name string) (uint64, bool) {
	const prefix = "table_"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(name[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Store) CreateTable(id schema.TableID, sch *schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[id]; exists {
		return errs.Newf(errs.KindAlreadyExists, "table %d already exists", id)
	}

	dir := tableDir(s.dataDir, uint64(id))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errs.Wrap(errs.KindStorageIO, "create table directory", err)
	}

	tm := &storage.TableMetadata{Schema: sch, Blocks: make(map[uint64][]block.Metadata)}
	data, err := SerializeTableMetadata(tm)
	if err != nil {
		return errs.Wrap(errs.KindStorageIO, "serialize new table metadata", err)
	}
	if err := writeFileAtomic(metadataPath(s.dataDir, uint64(id)), data, filePerm); err != nil {
		return errs.Wrap(errs.KindStorageIO, "write table metadata", err)
	}

	s.tables[id] = tm
	level.Debug(s.logger).Log("msg", "created table", "table", id)
	return nil
}

// WriteColumns lands new block files, then their .meta sidecars, then
// commits the whole write by atomically rewriting metadata.bin (spec.md
// §4.4: "write_columns is the sole atomicity unit; a crash before the
// metadata.bin rename leaves the prior state fully intact, and a crash
// after leaves the new state fully visible").
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

	// Phase 1: land every block's data file and its .meta sidecar. None of
	// this is visible as committed state until the metadata.bin rename
	// below succeeds; a crash here leaves orphan files the next Open sweeps.
	for _, p := range plan {
		for _, r := range p.results {
			dataPath := blockDataPath(s.dataDir, uint64(id), p.columnID, r.Metadata.BlockID)
			if err := writeFileAtomic(dataPath, r.Block.Bytes, filePerm); err != nil {
				return errs.Wrap(errs.KindStorageIO, "write block data", err)
			}
			metaBytes, err := SerializeBlockMetadata(r.Metadata)
			if err != nil {
				return errs.Wrap(errs.KindStorageIO, "serialize block metadata", err)
			}
			metaPath := blockMetaPath(s.dataDir, uint64(id), p.columnID, r.Metadata.BlockID)
			if err := writeFileAtomic(metaPath, metaBytes, filePerm); err != nil {
				return errs.Wrap(errs.KindStorageIO, "write block metadata", err)
			}
		}
	}

	// Phase 2: update the in-memory index and persist it atomically. This
	// rename is the single commit point for the whole write_columns call.
	updated := table.Schema
	newBlocks := make(map[uint64][]block.Metadata, len(table.Blocks))
	for cid, blocks := range table.Blocks {
		newBlocks[cid] = append([]block.Metadata(nil), blocks...)
	}
	for _, p := range plan {
		for _, r := range p.results {
			newBlocks[p.columnID] = append(newBlocks[p.columnID], r.Metadata)
		}
	}
	candidate := &storage.TableMetadata{Schema: updated, Blocks: newBlocks}
	candidate.RecomputeRowCount()

	data, err := SerializeTableMetadata(candidate)
	if err != nil {
		return errs.Wrap(errs.KindStorageIO, "serialize table metadata", err)
	}
	if err := writeFileAtomic(metadataPath(s.dataDir, uint64(id)), data, filePerm); err != nil {
		return errs.Wrap(errs.KindStorageIO, "commit table metadata", err)
	}

	s.tables[id] = candidate
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
	metas := make(map[uint64][]block.Metadata, len(columnIDs))
	for _, cid := range columnIDs {
		metas[cid] = append([]block.Metadata(nil), table.Blocks[cid]...)
	}
	sch := table.Schema
	s.mu.RUnlock()

	var reader *block.Reader
	if s.cache != nil {
		reader = block.NewCachedReader(s.mem, s.cache)
	} else {
		reader = block.NewReader(s.mem)
	}
	out := make([]column.Column, len(columnIDs))
	for i, cid := range columnIDs {
		if int(cid) >= sch.Len() {
			return nil, errs.Newf(errs.KindNotFound, "column %d not in schema", cid)
		}
		load := func(m block.Metadata) ([]byte, error) {
			path := blockDataPath(s.dataDir, uint64(id), cid, m.BlockID)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errs.Wrap(errs.KindStorageIO, "read block data", err)
			}
			return data, nil
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
	if _, ok := s.tables[id]; !ok {
		return errs.Newf(errs.KindNotFound, "table %d not found", id)
	}
	delete(s.tables, id)
	if err := os.RemoveAll(tableDir(s.dataDir, uint64(id))); err != nil {
		return errs.Wrap(errs.KindStorageIO, "remove table directory", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
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

// tableIDs returns the currently loaded table ids in ascending order, used
// by tests and diagnostics.
func (s *Store) tableIDs() []schema.TableID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]schema.TableID, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
