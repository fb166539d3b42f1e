package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/galaxyproject/galaxy-sub043/arraytree"
	"github.com/galaxyproject/galaxy-sub043/ingest"
	"github.com/galaxyproject/galaxy-sub043/interval"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

type arrayTreeQueryOpts struct {
	blockSize   int
	resolution  float64
	frequencies bool
}

func loadArrayTree(ctx context.Context, path string, blockSize int) (*arraytree.Provider, error) {
	b, err := arraytree.NewBuilder(blockSize)
	if err != nil {
		return nil, err
	}
	if _, err = ingest.LoadBedGraph(ctx, b, path); err != nil {
		return nil, err
	}
	return arraytree.NewProvider(b.Build()), nil
}

func arrayTreeStats(ctx context.Context, w io.Writer, path, chrom string, blockSize int) error {
	p, err := loadArrayTree(ctx, path, blockSize)
	if err != nil {
		return err
	}
	s, ok := p.Stats(chrom)
	if !ok {
		return fmt.Errorf("%s has no data for %s", path, chrom)
	}
	return writeJSON(w, s)
}

func writePoints(out io.Writer, it *arraytree.PointIterator) error {
	w := tsv.NewWriter(out)
	w.WriteString("#POS\tVALUE")
	if err := w.EndLine(); err != nil {
		return err
	}
	for it.Scan() {
		pt := it.Point()
		w.WriteString(formatInt(pt.Pos))
		w.WriteString(strconv.FormatFloat(pt.Value, 'g', -1, 64))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func arrayTreeQuery(ctx context.Context, w io.Writer, path, region string, opts arrayTreeQueryOpts) error {
	e, err := interval.ParseRegionString(region)
	if err != nil {
		return err
	}
	p, err := loadArrayTree(ctx, path, opts.blockSize)
	if err != nil {
		return err
	}
	if !opts.frequencies {
		it, err := p.Data(e.ChrName, e.Start0, e.End, opts.resolution)
		if err != nil {
			return err
		}
		if it == nil {
			log.Printf("arraytree-query: %s has no data for %s", path, e.ChrName)
			return nil
		}
		return writePoints(w, it)
	}
	fs, it, err := p.Frequencies(e.ChrName, e.Start0, e.End, opts.resolution)
	switch {
	case err != nil:
		return err
	case fs != nil:
		return writeJSON(w, fs)
	case it != nil:
		return writePoints(w, it)
	}
	log.Printf("arraytree-query: no summary of %s at resolution %g; fetch the features instead", region, opts.resolution)
	return nil
}
