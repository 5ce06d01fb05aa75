package plan

import (
	"log/slog"

	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treecache"
)

// bytesPerPoint approximates the memory held per FullSet point across the
// tree, its overlap grids and its weights.
const bytesPerPoint = 96

// DefaultMaxEntries applies when CacheConfig sets no limit.
const DefaultMaxEntries = 16

// CacheConfig sizes a plan cache.
type CacheConfig struct {
	// MaxEntries bounds the number of plans held in memory.
	MaxEntries int
	// MaxBytes bounds the approximate memory held by plans.
	MaxBytes int64
	// Dir enables the disk tier when set.
	Dir string
	// Codec encodes disk entries. Defaults to gob.
	Codec  persist.Codec
	Logger *slog.Logger
}

// ApproxSize estimates the memory held by p.
func ApproxSize(p *Plan) int64 {
	grids := 1 + len(p.resolutions) + len(p.links)
	for _, r := range p.resolutions {
		grids += len(r.offsets)
	}

	return int64(p.tree.Len()) * int64(grids) * bytesPerPoint
}

// NewCache creates a plan cache. Disk entries store Snapshot values and are
// verified on load.
func NewCache(cfg CacheConfig) *treecache.Cache[*Plan] {
	var opts []treecache.Option[*Plan]

	if cfg.MaxEntries <= 0 && cfg.MaxBytes <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	if cfg.MaxEntries > 0 {
		opts = append(opts, treecache.WithMaxEntries[*Plan](cfg.MaxEntries))
	}

	if cfg.MaxBytes > 0 {
		opts = append(opts, treecache.WithMaxBytes(cfg.MaxBytes, ApproxSize))
	}

	if cfg.Logger != nil {
		opts = append(opts, treecache.WithLogger[*Plan](cfg.Logger))
	}

	if cfg.Dir != "" {
		codec := cfg.Codec
		if codec == nil {
			codec = persist.NewGobCodec()
		}

		opts = append(opts, treecache.WithDisk(cfg.Dir, codec, (*Plan).Snapshot, FromSnapshot))
	}

	return treecache.New(opts...)
}
