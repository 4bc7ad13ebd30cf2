// Package cache implements an optional, partitioned, in-process cache in
// front of the persistent store's block reads, so repeat read_columns
// calls over hot row ranges avoid re-decoding the same block
// (SPEC_FULL.md §4.13). Grounded on the ecosystem library already
// present in the retrieval pack as an indirect dependency:
// github.com/hashicorp/golang-lru/v2.
package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

// blockKey identifies one cached block.
type blockKey struct {
	table  schema.TableID
	column uint64
	block  uint64
}

func (k blockKey) bytes() []byte {
	return []byte(fmt.Sprintf("%d/%d/%d", k.table, k.column, k.block))
}

// partition is the small interface golang-lru's Cache satisfies; kept
// narrow so an alternative eviction policy can be substituted without
// touching BlockCache's callers (SPEC_FULL.md §4.13: "pluggable eviction").
type partition interface {
	Get(key blockKey) (column.Column, bool)
	Add(key blockKey, value column.Column) bool
	Remove(key blockKey)
}

type lruPartition struct {
	c *lru.Cache[blockKey, column.Column]
}

func (p *lruPartition) Get(key blockKey) (column.Column, bool) { return p.c.Get(key) }
func (p *lruPartition) Add(key blockKey, value column.Column) bool {
	return p.c.Add(key, value)
}
func (p *lruPartition) Remove(key blockKey) { p.c.Remove(key) }

// BlockCache is a typed, partitioned cache of decoded blocks, keyed by
// (table, column, block). Partitioning by xxhash.Sum64(key) % partitions
// means cache contention does not serialize on one lock across unrelated
// tables/columns, mirroring the store's own per-table sharding
// philosophy.
type BlockCache struct {
	partitions []partition

	mu      sync.Mutex
	byTable map[schema.TableID]map[blockKey]struct{}
}

// NewBlockCache creates a cache with the given number of independent
// partitions, each holding up to capacityPerPartition entries.
func NewBlockCache(partitions int, capacityPerPartition int) (*BlockCache, error) {
	if partitions <= 0 {
		return nil, fmt.Errorf("cache: partitions must be positive, got %d", partitions)
	}
	if capacityPerPartition <= 0 {
		return nil, fmt.Errorf("cache: capacityPerPartition must be positive, got %d", capacityPerPartition)
	}
	ps := make([]partition, partitions)
	for i := range ps {
		c, err := lru.New[blockKey, column.Column](capacityPerPartition)
		if err != nil {
			return nil, fmt.Errorf("cache: new lru partition: %w", err)
		}
		ps[i] = &lruPartition{c: c}
	}
	return &BlockCache{partitions: ps, byTable: make(map[schema.TableID]map[blockKey]struct{})}, nil
}

func (c *BlockCache) partitionFor(key blockKey) partition {
	h := xxhash.Sum64(key.bytes())
	return c.partitions[h%uint64(len(c.partitions))]
}

// Get returns the cached column for (tableID, columnID, blockID), or
// false if not present.
func (c *BlockCache) Get(tableID schema.TableID, columnID, blockID uint64) (column.Column, bool) {
	key := blockKey{table: tableID, column: columnID, block: blockID}
	return c.partitionFor(key).Get(key)
}

// Put stores the decoded column for (tableID, columnID, blockID).
func (c *BlockCache) Put(tableID schema.TableID, columnID, blockID uint64, col column.Column) {
	key := blockKey{table: tableID, column: columnID, block: blockID}
	c.partitionFor(key).Add(key, col)

	c.mu.Lock()
	keys, ok := c.byTable[tableID]
	if !ok {
		keys = make(map[blockKey]struct{})
		c.byTable[tableID] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
}

// Invalidate drops every cached block belonging to tableID. Called by
// delete_table so a later table id reusing the same numeric id never
// observes a stale hit.
func (c *BlockCache) Invalidate(tableID schema.TableID) {
	c.mu.Lock()
	keys := c.byTable[tableID]
	delete(c.byTable, tableID)
	c.mu.Unlock()

	for key := range keys {
		c.partitionFor(key).Remove(key)
	}
}
