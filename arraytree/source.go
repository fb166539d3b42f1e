package arraytree

import "math"

// SummaryBlock is one summary node.  Every slice has BlockSize entries, one
// per child.
type SummaryBlock struct {
	// Start is the first base covered by the node.
	Start int64
	// Counts is the number of valid (non-NaN) values under each child.
	Counts []int64
	// Frequencies is the number of valid nonzero values under each child.
	Frequencies []int64
	Sums        []float64
	Mins        []float64
	Maxs        []float64
	SumSquares  []float64
}

func newSummaryBlock(start int64, blockSize int) *SummaryBlock {
	s := &SummaryBlock{
		Start:       start,
		Counts:      make([]int64, blockSize),
		Frequencies: make([]int64, blockSize),
		Sums:        make([]float64, blockSize),
		Mins:        make([]float64, blockSize),
		Maxs:        make([]float64, blockSize),
		SumSquares:  make([]float64, blockSize),
	}
	for i := range s.Mins {
		s.Mins[i] = math.Inf(1)
		s.Maxs[i] = math.Inf(-1)
	}
	return s
}

// Tree is one chromosome's array tree.
type Tree interface {
	// BlockSize is the fan-out of every node.
	BlockSize() int
	// Levels is the level of the root summary node, which covers
	// BlockSize^(Levels+1) bases.
	Levels() int
	// Summary returns the node at level (1 <= level <= Levels) covering pos,
	// or nil if there is no data there.
	Summary(pos int64, level int) *SummaryBlock
	// Leaf returns the BlockSize raw values of the leaf covering pos, NaN
	// where unset, or nil if nothing was stored there.
	Leaf(pos int64) []float64
}

// Source is a set of per-chromosome array trees.
type Source interface {
	Tree(chrom string) (Tree, bool)
	Chroms() []string
}
