// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package summarytree

import "math"

const (
	// MinLevel is the finest level for which block counts are stored.
	// Queries at finer resolutions are answered with Detail.
	MinLevel = 2

	// NoLevel marks an unset draw or detail level.
	NoLevel = -1

	// maxLevels bounds Opts.Levels so that BlockSize^Levels cannot overflow
	// for any block size this package accepts.
	maxLevels = 62
)

// multipliers returns m where m[level] = blockSize^level for level in
// [0, levels].  ok is false if some power overflows int64.
func multipliers(blockSize, levels int) (m []int64, ok bool) {
	m = make([]int64, levels+1)
	m[0] = 1
	for level := 1; level <= levels; level++ {
		next := m[level-1] * int64(blockSize)
		if next/int64(blockSize) != m[level-1] {
			return nil, false
		}
		m[level] = next
	}
	return m, true
}

// floorDiv is integer division rounding towards negative infinity.
func floorDiv(pos, multiplier int64) int64 {
	q := pos / multiplier
	if pos%multiplier != 0 && pos < 0 {
		q--
	}
	return q
}

// CeilLog returns the smallest k >= 0 such that base^k >= n.  It is the
// exact integer form of ceil(log_base(n)), used to map a viewer resolution
// to a level.
func CeilLog(n int64, base int) int {
	k := 0
	for p := int64(1); p < n; k++ {
		if p > n/int64(base) {
			return k + 1
		}
		p *= int64(base)
	}
	return k
}

// CeilResolution rounds a viewer resolution up to whole bases, treating
// anything below one (or NaN) as one and clamping huge values, +Inf
// included, to math.MaxInt64.
func CeilResolution(resolution float64) int64 {
	r := math.Ceil(resolution)
	switch {
	case r < 1 || math.IsNaN(r):
		return 1
	case r >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(r)
}
