// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package summarytree

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Opts configures a Tree.
type Opts struct {
	// BlockSize is the factor between the block sizes of adjacent levels.
	// Must be > 1.
	BlockSize int
	// Levels is the coarsest stored level.  Must be >= MinLevel.
	Levels int
	// DrawCutoff: a level whose maximum block count is at or below this is
	// too sparse to be worth aggregating, and is answered with Draw.
	DrawCutoff int64
	// DetailCutoff: a level whose maximum block count is at or below this
	// is answered with Detail.  Normally <= DrawCutoff.
	DetailCutoff int64
	// Finisher selects what Finish does with the block counts.  nil means
	// RetainingFinisher.
	Finisher Finisher
}

// DefaultOpts are the settings used by the genome browser.
var DefaultOpts = Opts{
	BlockSize:    25,
	Levels:       6,
	DrawCutoff:   150,
	DetailCutoff: 30,
	Finisher:     RetainingFinisher{},
}

var (
	// ErrFinished is returned by InsertRange once Finish has been called.
	ErrFinished = errors.E(errors.Precondition, "summarytree: insert into a finished tree")
	// ErrNotFinished is returned by queries against a tree that has not been
	// finished.
	ErrNotFinished = errors.E(errors.Precondition, "summarytree: query before finish")
	// ErrLevelOutOfRange is returned by queries for a level outside
	// [MinLevel, Opts.Levels].
	ErrLevelOutOfRange = errors.E(errors.Invalid, "summarytree: level out of range")
)

// LevelStats summarizes the block counts of one level of one chromosome.
type LevelStats struct {
	// Delta is the block size at this level, BlockSize^level.
	Delta int64
	// Max is the largest block count.
	Max int64
	// Avg is Max divided by the number of nonempty blocks.
	Avg float64
}

// ChromStats is the per-chromosome result of Finish.
type ChromStats struct {
	// DrawLevel is the coarsest level answered with Draw, or NoLevel.
	DrawLevel int
	// DetailLevel is the coarsest level answered with Detail, or NoLevel.
	DetailLevel int
	// Levels maps level to its stats.  Levels dropped by PruningFinisher
	// have no entry.
	Levels map[int]LevelStats
}

// chromIndex holds everything the tree knows about one chromosome.
type chromIndex struct {
	// blocks[level] maps block index to count.  nil for level < MinLevel and
	// for levels discarded by PruningFinisher.  A missing key means zero.
	blocks      []map[int64]int64
	stats       map[int]LevelStats
	drawLevel   int
	detailLevel int
}

// Tree is a per-chromosome, multi-level index of interval coverage counts.
type Tree struct {
	opts        Opts
	multipliers []int64
	chroms      map[string]*chromIndex
	finished    bool
}

// New creates an empty Tree.
func New(opts Opts) (*Tree, error) {
	if opts.BlockSize <= 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("summarytree.New: block size %d must be > 1", opts.BlockSize))
	}
	if opts.Levels < MinLevel || opts.Levels > maxLevels {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("summarytree.New: levels %d must be in [%d, %d]", opts.Levels, MinLevel, maxLevels))
	}
	mult, ok := multipliers(opts.BlockSize, opts.Levels)
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("summarytree.New: %d^%d overflows", opts.BlockSize, opts.Levels))
	}
	if opts.Finisher == nil {
		opts.Finisher = RetainingFinisher{}
	}
	return &Tree{
		opts:        opts,
		multipliers: mult,
		chroms:      make(map[string]*chromIndex),
	}, nil
}

// Opts returns the options the tree was built with.
func (t *Tree) Opts() Opts { return t.opts }

// Finished reports whether Finish has run.
func (t *Tree) Finished() bool { return t.finished }

func (t *Tree) newChromIndex() *chromIndex {
	c := &chromIndex{
		blocks:      make([]map[int64]int64, t.opts.Levels+1),
		stats:       make(map[int]LevelStats),
		drawLevel:   NoLevel,
		detailLevel: NoLevel,
	}
	for level := MinLevel; level <= t.opts.Levels; level++ {
		c.blocks[level] = make(map[int64]int64)
	}
	return c
}

// InsertRange records the 0-based interval [start, end) on chrom.  At every
// stored level, each block from the one containing start through the one
// containing end (inclusive) is incremented by one.
func (t *Tree) InsertRange(chrom string, start, end int64) error {
	if t.finished {
		return ErrFinished
	}
	if start < 0 || end < start {
		return errors.E(errors.Invalid, fmt.Sprintf("summarytree.InsertRange: invalid interval %s:[%d, %d)", chrom, start, end))
	}
	c := t.chroms[chrom]
	if c == nil {
		c = t.newChromIndex()
		t.chroms[chrom] = c
	}
	for level := MinLevel; level <= t.opts.Levels; level++ {
		m := t.multipliers[level]
		blocks := c.blocks[level]
		for b, endBlock := start/m, end/m; b <= endBlock; b++ {
			blocks[b]++
		}
	}
	return nil
}

// Finish computes per-level statistics, applying the configured Finisher to
// every chromosome.  Calls after the first are no-ops.
func (t *Tree) Finish() {
	if t.finished {
		return
	}
	for _, chrom := range t.Chroms() {
		t.opts.Finisher.finish(t, t.chroms[chrom])
	}
	t.finished = true
	log.Debug.Printf("summarytree: finished %d chromosome(s) with %v", len(t.chroms), t.opts.Finisher)
}

// Chroms returns the names of all chromosomes with data, sorted.
func (t *Tree) Chroms() []string {
	names := make([]string, 0, len(t.chroms))
	for name := range t.chroms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasData reports whether any interval was inserted on chrom.
func (t *Tree) HasData(chrom string) bool {
	_, ok := t.chroms[chrom]
	return ok
}

// Stats returns the statistics Finish computed for chrom.
func (t *Tree) Stats(chrom string) (ChromStats, bool) {
	c, ok := t.chroms[chrom]
	if !ok {
		return ChromStats{}, false
	}
	s := ChromStats{
		DrawLevel:   c.drawLevel,
		DetailLevel: c.detailLevel,
		Levels:      make(map[int]LevelStats, len(c.stats)),
	}
	for level, ls := range c.stats {
		s.Levels[level] = ls
	}
	return s, true
}

// EachBlock calls fn for every nonzero block of chrom at level, in ascending
// block order.  It does nothing if the chromosome or level holds no blocks.
func (t *Tree) EachBlock(chrom string, level int, fn func(pos, count int64)) {
	c, ok := t.chroms[chrom]
	if !ok || level < 0 || level >= len(c.blocks) {
		return
	}
	m := t.multipliers[level]
	for _, b := range sortedBlockIndices(c.blocks[level]) {
		fn(b*m, c.blocks[level][b])
	}
}

// BlockSpan is the number of bases one block covers at level, or 0 if the
// tree has no such level.
func (t *Tree) BlockSpan(level int) int64 {
	if level < 0 || level >= len(t.multipliers) {
		return 0
	}
	return t.multipliers[level]
}

// Extent is the end of the last nonzero block of chrom at the coarsest level
// still holding blocks, or 0 if there is none.
func (t *Tree) Extent(chrom string) int64 {
	c, ok := t.chroms[chrom]
	if !ok {
		return 0
	}
	for level := len(c.blocks) - 1; level >= 0; level-- {
		var last int64 = -1
		for b := range c.blocks[level] {
			if b > last {
				last = b
			}
		}
		if last >= 0 {
			return (last + 1) * t.multipliers[level]
		}
	}
	return 0
}

func sortedBlockIndices(blocks map[int64]int64) []int64 {
	idx := make([]int64, 0, len(blocks))
	for b := range blocks {
		idx = append(idx, b)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	return idx
}

// Query is QueryCutoffs with the tree's own cutoffs.
func (t *Tree) Query(chrom string, start, end int64, level int) (*Result, error) {
	return t.QueryCutoffs(chrom, start, end, level, t.opts.DrawCutoff, t.opts.DetailCutoff)
}

// QueryCutoffs returns the block counts of chrom at level for the blocks
// containing start through end, or a sentinel telling the caller to render
// features directly.  The result is nil if chrom has no data.
//
// Levels at or below the chromosome's detail level yield Detail, then levels
// at or below its draw level yield Draw.  Otherwise a level whose maximum
// count is at or below detailCutoff yields Detail, and one at or below
// drawCutoff yields Draw.
func (t *Tree) QueryCutoffs(chrom string, start, end int64, level int, drawCutoff, detailCutoff int64) (*Result, error) {
	if !t.finished {
		return nil, ErrNotFinished
	}
	c, ok := t.chroms[chrom]
	if !ok {
		return nil, nil
	}
	if level < MinLevel || level > t.opts.Levels {
		return nil, errors.E(ErrLevelOutOfRange, fmt.Sprintf("level %d not in [%d, %d]", level, MinLevel, t.opts.Levels))
	}
	if c.detailLevel != NoLevel && level <= c.detailLevel {
		return &Result{Sentinel: Detail}, nil
	}
	if c.drawLevel != NoLevel && level <= c.drawLevel {
		return &Result{Sentinel: Draw}, nil
	}
	if s, ok := c.stats[level]; ok {
		if s.Max <= detailCutoff {
			return &Result{Sentinel: Detail}, nil
		}
		if s.Max <= drawCutoff {
			return &Result{Sentinel: Draw}, nil
		}
	}
	m := t.multipliers[level]
	startBlock, endBlock := floorDiv(start, m), floorDiv(end, m)
	res := &Result{Blocks: []Block{}}
	if endBlock < startBlock {
		return res, nil
	}
	res.Blocks = make([]Block, 0, endBlock-startBlock+1)
	blocks := c.blocks[level]
	for b := startBlock; b <= endBlock; b++ {
		res.Blocks = append(res.Blocks, Block{Pos: b * m, Count: blocks[b]})
	}
	return res, nil
}
