package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/galaxyproject/galaxy-sub043/interval"
	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/log"
)

type queryOpts struct {
	level int
	// Negative cutoffs keep the index's own.
	drawCutoff, detailCutoff int64
}

// queryRange converts a parsed region to the inclusive position range tree
// queries take.  A region naming a whole contig is clamped to the contig's
// indexed extent.
func queryRange(t *summarytree.Tree, chrom string, e interval.Entry) (start, end int64) {
	end = e.End
	if end == interval.MaxPos {
		if extent := t.Extent(chrom); extent > 0 {
			end = extent
		}
	}
	return e.Start0, end - 1
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func query(ctx context.Context, w io.Writer, path, region string, opts queryOpts) error {
	e, err := interval.ParseRegionString(region)
	if err != nil {
		return err
	}
	t, err := summarytree.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	drawCutoff, detailCutoff := t.Opts().DrawCutoff, t.Opts().DetailCutoff
	if opts.drawCutoff >= 0 {
		drawCutoff = opts.drawCutoff
	}
	if opts.detailCutoff >= 0 {
		detailCutoff = opts.detailCutoff
	}
	start, end := queryRange(t, e.ChrName, e)
	res, err := t.QueryCutoffs(e.ChrName, start, end, opts.level, drawCutoff, detailCutoff)
	if err != nil {
		return err
	}
	if res == nil {
		log.Printf("query: %s has no data for %s", path, e.ChrName)
	}
	return writeJSON(w, res)
}

type summaryJSON struct {
	Level  int                 `json:"level"`
	Result *summarytree.Result `json:"result"`
	Delta  int64               `json:"delta"`
	Max    int64               `json:"max"`
	Avg    float64             `json:"avg"`
}

func summary(ctx context.Context, w io.Writer, p *summarytree.Provider, path, region string, resolution float64) error {
	e, err := interval.ParseRegionString(region)
	if err != nil {
		return err
	}
	t, err := p.Tree(ctx, path)
	if err != nil {
		return err
	}
	name, ok := t.ResolveChrom(e.ChrName)
	if !ok {
		return fmt.Errorf("%s has no data for %s", path, e.ChrName)
	}
	start, end := queryRange(t, name, e)
	s, err := p.Summary(ctx, path, name, start, end, resolution)
	if err != nil {
		return err
	}
	return writeJSON(w, summaryJSON{
		Level:  s.Level,
		Result: s.Result,
		Delta:  s.Stats.Delta,
		Max:    s.Stats.Max,
		Avg:    s.Stats.Avg,
	})
}
