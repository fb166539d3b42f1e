package cmd

import (
	"context"
	"io"
	"strconv"

	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// levelMarker names the sentinel every query at level yields regardless of
// the block counts, or "." if the counts decide.
func levelMarker(s summarytree.ChromStats, level int) string {
	switch {
	case s.DetailLevel != summarytree.NoLevel && level <= s.DetailLevel:
		return string(summarytree.Detail)
	case s.DrawLevel != summarytree.NoLevel && level <= s.DrawLevel:
		return string(summarytree.Draw)
	}
	return "."
}

func stats(ctx context.Context, out io.Writer, path string) error {
	t, err := summarytree.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	w := tsv.NewWriter(out)
	w.WriteString("#CHROM\tLEVEL\tDELTA\tMAX\tAVG\tMARKER")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, chrom := range t.Chroms() {
		cs, _ := t.Stats(chrom)
		for level := summarytree.MinLevel; level <= t.Opts().Levels; level++ {
			w.WriteString(chrom)
			w.WriteString(strconv.Itoa(level))
			if ls, ok := cs.Levels[level]; ok {
				w.WriteString(formatInt(ls.Delta))
				w.WriteString(formatInt(ls.Max))
				w.WriteString(strconv.FormatFloat(ls.Avg, 'g', -1, 64))
			} else {
				w.WriteString(".\t.\t.")
			}
			w.WriteString(levelMarker(cs, level))
			if err = w.EndLine(); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

type dumpOpts struct {
	level       int
	bgzip       bool
	parallelism int
}

// writeBlocks writes one row per nonzero block of t at level.
func writeBlocks(out io.Writer, t *summarytree.Tree, level int) error {
	w := tsv.NewWriter(out)
	w.WriteString("#CHROM\tSTART\tEND\tCOUNT")
	if err := w.EndLine(); err != nil {
		return err
	}
	span := t.BlockSpan(level)
	var err error
	for _, chrom := range t.Chroms() {
		t.EachBlock(chrom, level, func(pos, count int64) {
			if err != nil {
				return
			}
			w.WriteString(chrom)
			w.WriteString(formatInt(pos))
			w.WriteString(formatInt(pos + span))
			w.WriteString(formatInt(count))
			err = w.EndLine()
		})
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

func dump(ctx context.Context, path, outPath string, opts dumpOpts) (err error) {
	t, err := summarytree.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	var dst file.File
	if dst, err = file.Create(ctx, outPath); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if !opts.bgzip {
		err = writeBlocks(dst.Writer(ctx), t, opts.level)
	} else {
		bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), opts.parallelism)
		err = writeBlocks(bgzfWriter, t, opts.level)
		if e := bgzfWriter.Close(); e != nil && err == nil {
			err = e
		}
	}
	if err == nil {
		log.Printf("dump: level %d of %s written to %s", opts.level, path, outPath)
	}
	return err
}
