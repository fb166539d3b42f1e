package summarytree

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is the number of loaded trees a Provider keeps.
const DefaultCacheSize = 20

// Provider serves summaries from index files, keeping recently used trees in
// memory.  It is safe for concurrent use; loaded trees are never mutated.
type Provider struct {
	cache *lru.Cache
}

// Summary is a query result plus the statistics of the level that produced
// it.  Stats is zero when Result is a sentinel.
type Summary struct {
	Result *Result
	Level  int
	Stats  LevelStats
}

// NewProvider creates a Provider caching up to cacheSize trees.
func NewProvider(cacheSize int) (*Provider, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.E(errors.Invalid, "summarytree.NewProvider", err)
	}
	return &Provider{cache: cache}, nil
}

// Tree returns the tree stored at path, reading it on a cache miss.
func (p *Provider) Tree(ctx context.Context, path string) (*Tree, error) {
	if v, ok := p.cache.Get(path); ok {
		return v.(*Tree), nil
	}
	t, err := ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	p.cache.Add(path, t)
	log.Debug.Printf("summarytree: cached %s (%d tree(s) resident)", path, p.cache.Len())
	return t, nil
}

// ResolveChrom finds the name chrom is stored under, accepting "chr1" for
// "1" and vice versa.
func (t *Tree) ResolveChrom(chrom string) (string, bool) {
	if t.HasData(chrom) {
		return chrom, true
	}
	if strings.HasPrefix(chrom, "chr") && t.HasData(chrom[3:]) {
		return chrom[3:], true
	}
	if t.HasData("chr" + chrom) {
		return "chr" + chrom, true
	}
	return "", false
}

// ResolutionLevel maps a viewer resolution (bases per pixel) to the finest
// level whose blocks are no smaller than one pixel's worth of bases, minus
// one.  The result is never negative.
func ResolutionLevel(resolution float64, blockSize int) int {
	level := CeilLog(CeilResolution(resolution), blockSize) - 1
	if level < 0 {
		level = 0
	}
	return level
}

// HasData reports whether the index at path has data for chrom.
func (p *Provider) HasData(ctx context.Context, path, chrom string) (bool, error) {
	t, err := p.Tree(ctx, path)
	if err != nil {
		return false, err
	}
	_, ok := t.ResolveChrom(chrom)
	return ok, nil
}

// Summary answers a viewer request for [start, end] of chrom at the given
// resolution.  It returns nil if the index has no data for chrom.  Levels
// finer than MinLevel yield Detail; levels coarser than the index yield the
// coarsest stored level.
func (p *Provider) Summary(ctx context.Context, path, chrom string, start, end int64, resolution float64) (*Summary, error) {
	t, err := p.Tree(ctx, path)
	if err != nil {
		return nil, err
	}
	name, ok := t.ResolveChrom(chrom)
	if !ok {
		return nil, nil
	}
	level := ResolutionLevel(resolution, t.opts.BlockSize)
	if level < MinLevel {
		return &Summary{Result: &Result{Sentinel: Detail}, Level: level}, nil
	}
	if level > t.opts.Levels {
		level = t.opts.Levels
	}
	res, err := t.Query(name, start, end, level)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("summary %s:%d-%d", chrom, start, end))
	}
	s := &Summary{Result: res, Level: level}
	if !res.IsSentinel() {
		s.Stats = t.chroms[name].stats[level]
	}
	return s, nil
}
