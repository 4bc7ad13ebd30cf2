// Package engine is the root of the embeddable columnar engine: it ties
// storage (persistent or in-memory), the vectorized query operators and
// the auto-scaling coordinator together behind one Config/DB surface.
// Nothing outside this module depends on HTTP/CLI/REPL adapters — those
// remain out of scope.
//
// Configuration follows a functional-options idiom (unexported struct,
// With* option funcs, a default constructor) scaled up from one table's
// worth of options to the whole engine's: data_dir, compression,
// block_target_bytes, check_interval, spawn_threshold_percentage, the
// max_* thresholds, and load_balancing_strategy.
package engine

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/scaling"
)

// Config holds every value the store and controller recognize
// (SPEC_FULL.md §6). NewConfig with no options (and Open or NewFleet with a
// nil Config) yields an in-memory, LZ4-compressed engine with no scaling
// thresholds configured — nothing here requires environment variables.
type Config struct {
	dataDir                   string
	compression               codec.Compression
	blockTargetBytes          int
	checkInterval             time.Duration
	thresholds                scaling.Thresholds
	loadBalancingStrategy     scaling.Strategy
	logger                    log.Logger
	registerer                prometheus.Registerer
	cachePartitions           int
	cacheCapacityPerPartition int
}

// Option configures a Config at construction time.
type Option func(*Config)

// WithDataDir selects the persistent store rooted at dir. Without this
// option the engine runs entirely in memory (storage/memory).
func WithDataDir(dir string) Option {
	return func(c *Config) { c.dataDir = dir }
}

// WithCompression sets the default block compression (spec.md §6
// `compression`, default LZ4).
func WithCompression(comp codec.Compression) Option {
	return func(c *Config) { c.compression = comp }
}

// WithBlockTargetBytes sets the target uncompressed block size (spec.md
// §6 `block_target_bytes`, default 65536).
func WithBlockTargetBytes(n int) Option {
	return func(c *Config) { c.blockTargetBytes = n }
}

// WithCheckInterval sets the controller's tick period (spec.md §6
// `check_interval_secs`, default 10s).
func WithCheckInterval(d time.Duration) Option {
	return func(c *Config) { c.checkInterval = d }
}

// WithThresholds sets the auto-scaling envelopes and
// spawn_threshold_percentage evaluated by the controller (spec.md §4.8).
func WithThresholds(t scaling.Thresholds) Option {
	return func(c *Config) { c.thresholds = t }
}

// WithLoadBalancingStrategy selects the session routing strategy (spec.md
// §6 `load_balancing_strategy`, default LeastConnections).
func WithLoadBalancingStrategy(s scaling.Strategy) Option {
	return func(c *Config) { c.loadBalancingStrategy = s }
}

// WithLogger sets the go-kit logger threaded through storage, the Fleet
// and the controller.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithRegisterer sets the Prometheus registerer the MetricCollector
// registers its per-database series under. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.registerer = reg }
}

// WithBlockCache enables the optional partitioned block cache (spec.md
// §4.13) in front of the persistent store's block reads: partitions
// independent LRU shards of capacityPerPartition entries each. Disabled
// (the zero Config) by default; has no effect on the in-memory store,
// which keeps encoded blocks in its own map and decodes them on every read
// without consulting a cache.
func WithBlockCache(partitions, capacityPerPartition int) Option {
	return func(c *Config) {
		c.cachePartitions = partitions
		c.cacheCapacityPerPartition = capacityPerPartition
	}
}

const (
	// DefaultBlockTargetBytes mirrors block.DefaultTargetBytes; kept as
	// its own constant here so engine callers can see the default
	// without importing the block package.
	DefaultBlockTargetBytes = 65536
)

func defaultConfig() *Config {
	return &Config{
		compression:           codec.CompressionLZ4,
		blockTargetBytes:      DefaultBlockTargetBytes,
		checkInterval:         scaling.DefaultCheckInterval,
		loadBalancingStrategy: scaling.DefaultStrategy,
		logger:                log.NewNopLogger(),
		registerer:            prometheus.DefaultRegisterer,
	}
}

// NewConfig builds a Config from defaults plus opts.
func NewConfig(opts ...Option) *Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}
