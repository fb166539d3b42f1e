package arraytree

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/errors"
)

// InterestingThreshold is the maximum frequency a window must exceed before
// Frequencies summarizes it instead of returning raw points.
const InterestingThreshold = 10000

// ErrLevelOutOfRange is returned when a resolution maps to a level the tree
// does not have.
var ErrLevelOutOfRange = errors.E(errors.Invalid, "arraytree: level out of range")

// Point is one (position, value) pair.
type Point struct {
	Pos   int64
	Value float64
}

// Frequency is the number of valid nonzero values in the block at Pos.  It
// encodes to JSON as a [pos, frequency] pair.
type Frequency struct {
	Pos       int64
	Frequency int64
}

// MarshalJSON implements json.Marshaler.
func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{f.Pos, f.Frequency})
}

// Stats describes a whole chromosome.
type Stats struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
	// Frequencies has one entry per child of the first node one level
	// below the root.
	Frequencies    []Frequency `json:"frequencies"`
	TotalFrequency int64       `json:"total_frequency"`
}

// FrequencySummary condenses a dense window: the blocks with a nonzero
// frequency, their total, and the mean over those blocks.  It encodes to
// JSON as a [points, total, average] triple.
type FrequencySummary struct {
	Points  []Frequency
	Total   int64
	Average float64
}

// MarshalJSON implements json.Marshaler.
func (fs *FrequencySummary) MarshalJSON() ([]byte, error) {
	points := fs.Points
	if points == nil {
		points = []Frequency{}
	}
	return json.Marshal([]interface{}{points, fs.Total, fs.Average})
}

// Provider answers track viewer requests from a Source.
type Provider struct {
	Source Source
}

// NewProvider creates a Provider reading from src.
func NewProvider(src Source) *Provider {
	return &Provider{Source: src}
}

// Stats summarizes chrom from its root node.  ok is false if there is no data
// for chrom, including a chromosome whose values are all NaN.
func (p *Provider) Stats(chrom string) (stats *Stats, ok bool) {
	t, ok := p.Source.Tree(chrom)
	if !ok {
		return nil, false
	}
	root := t.Summary(0, t.Levels())
	if root == nil {
		return nil, false
	}
	stats = &Stats{Max: math.Inf(-1), Min: math.Inf(1)}
	for i, n := range root.Counts {
		if n == 0 {
			continue
		}
		stats.Max = math.Max(stats.Max, root.Maxs[i])
		stats.Min = math.Min(stats.Min, root.Mins[i])
		stats.TotalFrequency += root.Frequencies[i]
	}
	if math.IsInf(stats.Max, -1) {
		return nil, false
	}
	level := t.Levels() - 1
	if level < 1 {
		level = 1
	}
	if s := t.Summary(0, level); s != nil {
		childSpan := pow(t.BlockSize(), level)
		for i, f := range s.Frequencies {
			stats.Frequencies = append(stats.Frequencies, Frequency{Pos: int64(i) * childSpan, Frequency: f})
		}
	}
	return stats, true
}

func pow(base, exp int) int64 {
	r := int64(1)
	for i := 0; i < exp; i++ {
		r *= int64(base)
	}
	return r
}

// level maps a resolution to max(0, ceil(log_blockSize(resolution))).
func level(t Tree, resolution float64) (int, error) {
	l := summarytree.CeilLog(summarytree.CeilResolution(resolution), t.BlockSize())
	if l > t.Levels() {
		return 0, errors.E(ErrLevelOutOfRange, fmt.Sprintf("resolution %v maps to level %d; tree has %d", resolution, l, t.Levels()))
	}
	return l, nil
}

// Data returns the points covering [start, end) at the level matching
// resolution.  At level 0 these are the raw values; above it, the mean of
// each child block.  The iterator is nil if there is no data for chrom.
func (p *Provider) Data(chrom string, start, end int64, resolution float64) (*PointIterator, error) {
	t, ok := p.Source.Tree(chrom)
	if !ok {
		return nil, nil
	}
	l, err := level(t, resolution)
	if err != nil {
		return nil, err
	}
	return newPointIterator(t, l, start, end), nil
}

// Frequencies returns a FrequencySummary of [start, end) when some block's
// frequency exceeds InterestingThreshold, and otherwise the same points Data
// would.  All results are nil if there is no data for chrom, or if the
// resolution is too fine for a summary level; the caller should then fetch
// the features themselves.
func (p *Provider) Frequencies(chrom string, start, end int64, resolution float64) (*FrequencySummary, *PointIterator, error) {
	t, ok := p.Source.Tree(chrom)
	if !ok {
		return nil, nil, nil
	}
	l, err := level(t, resolution)
	if err != nil {
		return nil, nil, err
	}
	if l == 0 {
		return nil, nil, nil
	}
	var (
		points []Frequency
		max    int64
	)
	span := pow(t.BlockSize(), l+1)
	childSpan := span / int64(t.BlockSize())
	for blockStart := floorTo(start, span); blockStart < end; blockStart += span {
		s := t.Summary(blockStart, l)
		if s == nil {
			continue
		}
		for i, f := range s.Frequencies {
			if f > max {
				max = f
			}
			if f != 0 {
				points = append(points, Frequency{Pos: s.Start + int64(i)*childSpan, Frequency: f})
			}
		}
	}
	if max <= InterestingThreshold {
		return nil, newPointIterator(t, l, start, end), nil
	}
	fs := &FrequencySummary{Points: points}
	for _, pt := range points {
		fs.Total += pt.Frequency
	}
	fs.Average = float64(fs.Total) / float64(len(points))
	return fs, nil, nil
}

func floorTo(pos, span int64) int64 {
	if pos < 0 {
		return 0
	}
	return pos / span * span
}
