// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package arraytree serves windowed summaries of per-base numeric tracks
// (coverage, conservation scores and the like) stored as array trees.
//
// An array tree stores a chromosome's values in leaves of BlockSize bases.
// A summary node at level L >= 1 has BlockSize children, each covering
// BlockSize^L bases, and records per child the number of valid values,
// their sum, minimum, maximum and sum of squares.  Provider picks the level
// that matches a viewer's resolution and emits (position, value) points from
// it.  Source abstracts where the tree lives; MemSource, produced by Builder,
// keeps it in memory.
package arraytree
