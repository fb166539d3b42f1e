package arraytree

import "math"

// PointIterator yields the points of one request, computing them one node
// at a time.  It makes a single pass; call Provider.Data again to restart.
//
//	it, err := provider.Data(chrom, start, end, resolution)
//	for it.Scan() {
//		p := it.Point()
//	}
type PointIterator struct {
	tree      Tree
	level     int
	span      int64 // bases covered by one node at level
	stepSize  int64 // bases covered by one point
	nodeStart int64
	end       int64
	buf       []Point
	idx       int
	cur       Point
}

func newPointIterator(t Tree, level int, start, end int64) *PointIterator {
	stepSize := pow(t.BlockSize(), level)
	span := stepSize * int64(t.BlockSize())
	return &PointIterator{
		tree:      t,
		level:     level,
		span:      span,
		stepSize:  stepSize,
		nodeStart: floorTo(start, span),
		end:       end,
	}
}

// fill loads the points of the next nonempty node into buf.  It returns false
// once the window is exhausted.
func (it *PointIterator) fill() bool {
	for it.nodeStart < it.end {
		start := it.nodeStart
		it.nodeStart += it.span
		it.buf, it.idx = it.buf[:0], 0
		if it.level == 0 {
			for i, v := range it.tree.Leaf(start) {
				if !math.IsNaN(v) {
					it.buf = append(it.buf, Point{Pos: start + int64(i), Value: v})
				}
			}
		} else if s := it.tree.Summary(start, it.level); s != nil {
			for i, n := range s.Counts {
				if n == 0 {
					continue
				}
				if v := s.Sums[i] / float64(n); !math.IsNaN(v) {
					it.buf = append(it.buf, Point{Pos: start + int64(i)*it.stepSize, Value: v})
				}
			}
		}
		if len(it.buf) > 0 {
			return true
		}
	}
	return false
}

// Scan advances to the next point, returning false at the end.
func (it *PointIterator) Scan() bool {
	if it.idx >= len(it.buf) && !it.fill() {
		return false
	}
	it.cur = it.buf[it.idx]
	it.idx++
	return true
}

// Point returns the point read by the last successful Scan.
func (it *PointIterator) Point() Point { return it.cur }

// All drains the iterator.
func (it *PointIterator) All() []Point {
	var out []Point
	for it.Scan() {
		out = append(out, it.Point())
	}
	return out
}
