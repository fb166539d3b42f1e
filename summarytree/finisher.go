// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package summarytree

// Finisher is the policy Tree.Finish applies to each chromosome.  The two
// implementations are RetainingFinisher and PruningFinisher.
type Finisher interface {
	// ID identifies the finisher in the index file header.
	ID() uint8
	String() string
	finish(t *Tree, c *chromIndex)
}

const (
	retainingFinisherID uint8 = 1
	pruningFinisherID   uint8 = 2
)

// RetainingFinisher keeps the block counts of every level and records each
// level's LevelStats.  Queries compare the requested level's maximum against
// the cutoffs.
type RetainingFinisher struct{}

// ID implements Finisher.
func (RetainingFinisher) ID() uint8 { return retainingFinisherID }

func (RetainingFinisher) String() string { return "retain" }

func (RetainingFinisher) finish(t *Tree, c *chromIndex) {
	for level := t.opts.Levels; level >= MinLevel; level-- {
		if c.blocks[level] == nil {
			continue
		}
		c.stats[level] = levelStats(c.blocks[level], t.multipliers[level])
	}
}

// PruningFinisher walks from the coarsest level to the finest.  The first
// level whose maximum count is at or below DrawCutoff becomes the draw
// level.  The first level whose maximum is at or below DetailCutoff becomes
// the detail level and the walk stops there.  The detail level keeps its
// blocks and stats; all finer levels are discarded.
type PruningFinisher struct{}

// ID implements Finisher.
func (PruningFinisher) ID() uint8 { return pruningFinisherID }

func (PruningFinisher) String() string { return "prune" }

func (PruningFinisher) finish(t *Tree, c *chromIndex) {
	for level := t.opts.Levels; level >= MinLevel; level-- {
		blocks := c.blocks[level]
		if blocks == nil {
			// Already pruned.
			return
		}
		s := levelStats(blocks, t.multipliers[level])
		c.stats[level] = s
		if s.Max <= t.opts.DrawCutoff && c.drawLevel == NoLevel {
			c.drawLevel = level
		}
		if s.Max <= t.opts.DetailCutoff {
			c.detailLevel = level
			for l := level - 1; l >= MinLevel; l-- {
				c.blocks[l] = nil
				delete(c.stats, l)
			}
			return
		}
	}
}

// finisherByID is the inverse of Finisher.ID.
func finisherByID(id uint8) (Finisher, bool) {
	switch id {
	case retainingFinisherID:
		return RetainingFinisher{}, true
	case pruningFinisherID:
		return PruningFinisher{}, true
	}
	return nil, false
}

// FinisherByName maps "retain" and "prune" to their Finisher.
func FinisherByName(name string) (Finisher, bool) {
	switch name {
	case "retain":
		return RetainingFinisher{}, true
	case "prune":
		return PruningFinisher{}, true
	}
	return nil, false
}

func levelStats(blocks map[int64]int64, delta int64) LevelStats {
	s := LevelStats{Delta: delta}
	for _, n := range blocks {
		if n > s.Max {
			s.Max = n
		}
	}
	if len(blocks) > 0 {
		s.Avg = float64(s.Max) / float64(len(blocks))
	}
	return s
}
