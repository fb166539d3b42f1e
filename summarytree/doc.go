// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package summarytree implements a multi-resolution density index over
// genomic intervals, used by track viewers to decide, for a given zoom level,
// whether to draw pre-aggregated block counts or to fall back to rendering the
// underlying features.
//
// A Tree is built in three phases:
//
//	t, err := summarytree.New(summarytree.DefaultOpts)
//	for each interval {
//		err = t.InsertRange(chrom, start, end)
//	}
//	t.Finish()
//
// after which it may be queried directly or written with WriteFile and later
// reloaded with ReadFile.  Level L aggregates coordinates into blocks of
// BlockSize^L bases; only levels MinLevel through Opts.Levels are stored.
//
// A Tree is single-writer while it is being built.  A finished tree is never
// mutated again, so any number of goroutines may Query it concurrently.
package summarytree
