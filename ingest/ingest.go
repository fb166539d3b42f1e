// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/galaxyproject/galaxy-sub043/arraytree"
	"github.com/galaxyproject/galaxy-sub043/interval"
	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	pkgerrors "github.com/pkg/errors"
)

// BAMOpts selects which alignments LoadBAM counts.
type BAMOpts struct {
	// MinMapq skips reads with a lower mapping quality.
	MinMapq int
	// FlagExclude skips reads whose FLAG intersects it.
	FlagExclude int
}

// DefaultBAMOpts skips secondary, QC-fail, duplicate and supplementary
// alignments.
var DefaultBAMOpts = BAMOpts{
	FlagExclude: int(sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary),
}

// progressInterval is how often loaders log progress, in records.
const progressInterval = 1000000

// LoadBED inserts every record of the BED file at path into t, returning the
// number of records.
func LoadBED(ctx context.Context, t *summarytree.Tree, path string, opts interval.Opts) (n int, err error) {
	s, err := interval.OpenScanner(ctx, path, opts)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for s.Scan() {
		e := s.Entry()
		if err = t.InsertRange(e.ChrName, e.Start0, e.End); err != nil {
			return n, errors.E(err, path)
		}
		n++
		if n%progressInterval == 0 {
			log.Debug.Printf("ingest: %s: %d records", path, n)
		}
	}
	if err = s.Err(); err != nil {
		return n, errors.E(err, path)
	}
	log.Printf("ingest: loaded %d BED record(s) from %s", n, path)
	return n, nil
}

// LoadBAM inserts the reference span [Pos, End) of every selected alignment
// of the BAM file at path into t, returning the number of alignments
// inserted.
func LoadBAM(ctx context.Context, t *summarytree.Tree, path string, opts BAMOpts) (n int, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "ingest.LoadBAM: open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "ingest.LoadBAM: %s", path)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, pkgerrors.Wrapf(err, "ingest.LoadBAM: %s: record %d", path, n+skipped)
		}
		if rec.Ref == nil || rec.Ref.ID() < 0 || rec.Flags&sam.Unmapped != 0 ||
			int(rec.MapQ) < opts.MinMapq || int(rec.Flags)&opts.FlagExclude != 0 {
			skipped++
			continue
		}
		if err := t.InsertRange(rec.Ref.Name(), int64(rec.Pos), int64(rec.End())); err != nil {
			return n, errors.E(err, path)
		}
		n++
		if n%progressInterval == 0 {
			log.Debug.Printf("ingest: %s: %d reads", path, n)
		}
	}
	log.Printf("ingest: loaded %d read(s) from %s, skipped %d", n, path, skipped)
	return n, nil
}

// LoadBedGraph sets every base of every bedGraph record at path in b to the
// record's value, returning the number of records.
func LoadBedGraph(ctx context.Context, b *arraytree.Builder, path string) (n int, err error) {
	s, err := interval.OpenScanner(ctx, path, interval.Opts{Value: true})
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for s.Scan() {
		e := s.Entry()
		if err = b.SetRange(e.ChrName, e.Start0, e.End, s.Value()); err != nil {
			return n, errors.E(err, path)
		}
		n++
	}
	if err = s.Err(); err != nil {
		return n, errors.E(err, path)
	}
	log.Printf("ingest: loaded %d bedGraph record(s) from %s", n, path)
	return n, nil
}

// Load dispatches on the file name: ".bam" files go to LoadBAM, anything
// else is read as BED (optionally gzipped).
func Load(ctx context.Context, t *summarytree.Tree, path string, opts BuildOpts) (int, error) {
	if strings.HasSuffix(path, ".bam") {
		return LoadBAM(ctx, t, path, opts.BAM)
	}
	return LoadBED(ctx, t, path, opts.BED)
}

// BuildOpts configures Build.
type BuildOpts struct {
	Tree summarytree.Opts
	BAM  BAMOpts
	BED  interval.Opts
	// OutDir is where index files go.  Empty means next to each input.
	OutDir string
	// Parallelism bounds the number of inputs indexed at once.  Values < 1
	// mean one.
	Parallelism int
}

// IndexPath is the index file Build writes for input.
func IndexPath(input, outDir string) string {
	if outDir == "" {
		return input + ".st"
	}
	return filepath.Join(outDir, filepath.Base(input)+".st")
}

// Build indexes every input into its own tree and writes it to IndexPath.
// Each tree has a single writer; parallelism applies across inputs only.
func Build(ctx context.Context, inputs []string, opts BuildOpts) ([]string, error) {
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(inputs) {
		parallelism = len(inputs)
	}
	outputs := make([]string, len(inputs))
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(inputs)) / parallelism
		endIdx := ((jobIdx + 1) * len(inputs)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			t, err := summarytree.New(opts.Tree)
			if err != nil {
				return err
			}
			if _, err = Load(ctx, t, inputs[i], opts); err != nil {
				return err
			}
			outputs[i] = IndexPath(inputs[i], opts.OutDir)
			if err = t.WriteFile(ctx, outputs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outputs, nil
}
