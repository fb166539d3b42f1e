package arraytree

import (
	"fmt"
	"math"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// node is an llrb entry keyed by the first base it covers.  Exactly one of
// leaf and summary is set.
type node struct {
	start   int64
	leaf    []float64
	summary *SummaryBlock
}

// Compare implements llrb.Comparable.
func (n *node) Compare(c llrb.Comparable) int {
	o := c.(*node)
	switch {
	case n.start < o.start:
		return -1
	case n.start > o.start:
		return 1
	}
	return 0
}

// memTree is an in-memory Tree.  levels[0] holds leaves, levels[L] the
// summary nodes of level L.
type memTree struct {
	blockSize int
	spans     []int64 // spans[L] = blockSize^(L+1), the bases covered by a level-L node
	levels    []llrb.Tree
}

func (t *memTree) BlockSize() int { return t.blockSize }

func (t *memTree) Levels() int { return len(t.levels) - 1 }

func (t *memTree) get(pos int64, level int) *node {
	if pos < 0 || level < 0 || level >= len(t.levels) {
		return nil
	}
	span := t.spans[level]
	c := t.levels[level].Get(&node{start: pos / span * span})
	if c == nil {
		return nil
	}
	return c.(*node)
}

func (t *memTree) Summary(pos int64, level int) *SummaryBlock {
	if level < 1 {
		return nil
	}
	if n := t.get(pos, level); n != nil {
		return n.summary
	}
	return nil
}

func (t *memTree) Leaf(pos int64) []float64 {
	if n := t.get(pos, 0); n != nil {
		return n.leaf
	}
	return nil
}

// MemSource is a Source held in memory.  It is immutable once built and
// safe for concurrent readers.
type MemSource struct {
	trees map[string]*memTree
}

// Tree implements Source.
func (s *MemSource) Tree(chrom string) (Tree, bool) {
	t, ok := s.trees[chrom]
	if !ok {
		return nil, false
	}
	return t, true
}

// Chroms implements Source.  The names are sorted.
func (s *MemSource) Chroms() []string {
	names := make([]string, 0, len(s.trees))
	for name := range s.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder accumulates per-base values and produces a MemSource.  Create one
// with NewBuilder; the zero value rejects every Set.  A Builder is not safe
// for concurrent use.
type Builder struct {
	blockSize int
	leaves    map[string]map[int64][]float64
	maxPos    map[string]int64
}

// NewBuilder creates a Builder whose trees have the given fan-out.
func NewBuilder(blockSize int) (*Builder, error) {
	if blockSize <= 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("arraytree.NewBuilder: block size %d must be > 1", blockSize))
	}
	return &Builder{
		blockSize: blockSize,
		leaves:    make(map[string]map[int64][]float64),
		maxPos:    make(map[string]int64),
	}, nil
}

// Set assigns value to base pos of chrom, replacing any earlier value.
func (b *Builder) Set(chrom string, pos int64, value float64) error {
	if b.leaves == nil {
		return errors.E(errors.Invalid, "arraytree.Set: Builder not created by NewBuilder")
	}
	if pos < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("arraytree.Set: negative position %s:%d", chrom, pos))
	}
	leaves := b.leaves[chrom]
	if leaves == nil {
		leaves = make(map[int64][]float64)
		b.leaves[chrom] = leaves
	}
	bs := int64(b.blockSize)
	start := pos / bs * bs
	leaf := leaves[start]
	if leaf == nil {
		leaf = make([]float64, b.blockSize)
		for i := range leaf {
			leaf[i] = math.NaN()
		}
		leaves[start] = leaf
	}
	leaf[pos-start] = value
	if pos > b.maxPos[chrom] {
		b.maxPos[chrom] = pos
	}
	return nil
}

// SetRange assigns value to every base of [start, end) on chrom.
func (b *Builder) SetRange(chrom string, start, end int64, value float64) error {
	if end < start {
		return errors.E(errors.Invalid, fmt.Sprintf("arraytree.SetRange: invalid interval %s:[%d, %d)", chrom, start, end))
	}
	for pos := start; pos < end; pos++ {
		if err := b.Set(chrom, pos, value); err != nil {
			return err
		}
	}
	return nil
}

// Build computes every summary level.  The root level of each chromosome is
// the lowest (>= 1) whose single node covers the chromosome's last value.
func (b *Builder) Build() *MemSource {
	src := &MemSource{trees: make(map[string]*memTree, len(b.leaves))}
	for chrom, leaves := range b.leaves {
		levels := summarytree.CeilLog(b.maxPos[chrom]+1, b.blockSize) - 1
		if levels < 1 {
			levels = 1
		}
		src.trees[chrom] = b.buildTree(leaves, levels)
		log.Debug.Printf("arraytree: built %s, %d leaves, %d levels", chrom, len(leaves), levels)
	}
	return src
}

func (b *Builder) buildTree(leaves map[int64][]float64, levels int) *memTree {
	t := &memTree{
		blockSize: b.blockSize,
		spans:     make([]int64, levels+1),
		levels:    make([]llrb.Tree, levels+1),
	}
	span := int64(b.blockSize)
	for level := range t.spans {
		t.spans[level] = span
		span *= int64(b.blockSize)
	}
	for start, leaf := range leaves {
		t.levels[0].Insert(&node{start: start, leaf: leaf})
	}
	for level := 1; level <= levels; level++ {
		childSpan, span := t.spans[level-1], t.spans[level]
		t.levels[level-1].Do(func(c llrb.Comparable) bool {
			child := c.(*node)
			parentStart := child.start / span * span
			var parent *node
			if p := t.levels[level].Get(&node{start: parentStart}); p != nil {
				parent = p.(*node)
			} else {
				parent = &node{start: parentStart, summary: newSummaryBlock(parentStart, b.blockSize)}
				t.levels[level].Insert(parent)
			}
			i := int((child.start - parentStart) / childSpan)
			if child.leaf != nil {
				addLeaf(parent.summary, i, child.leaf)
			} else {
				addSummary(parent.summary, i, child.summary)
			}
			return false
		})
	}
	return t
}

func addValue(s *SummaryBlock, i int, v float64) {
	if math.IsNaN(v) {
		return
	}
	s.Counts[i]++
	if v != 0 {
		s.Frequencies[i]++
	}
	s.Sums[i] += v
	s.SumSquares[i] += v * v
	s.Mins[i] = math.Min(s.Mins[i], v)
	s.Maxs[i] = math.Max(s.Maxs[i], v)
}

func addLeaf(s *SummaryBlock, i int, leaf []float64) {
	for _, v := range leaf {
		addValue(s, i, v)
	}
}

func addSummary(s *SummaryBlock, i int, child *SummaryBlock) {
	for j := range child.Counts {
		if child.Counts[j] == 0 {
			continue
		}
		s.Counts[i] += child.Counts[j]
		s.Frequencies[i] += child.Frequencies[j]
		s.Sums[i] += child.Sums[j]
		s.SumSquares[i] += child.SumSquares[j]
		s.Mins[i] = math.Min(s.Mins[i], child.Mins[j])
		s.Maxs[i] = math.Max(s.Maxs[i], child.Maxs[j])
	}
}
