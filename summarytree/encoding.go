// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package summarytree

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// The on-disk format is a 16-byte header followed by a gzip stream.
//
// The header is "GSTI", a format version byte, and 11 random bytes.
//
// The gzip stream holds, all integers little-endian:
//
//	u32 BlockSize, u32 Levels, i64 DrawCutoff, i64 DetailCutoff,
//	u8 Finisher.ID(), u8 finished, u32 nChrom
//	nChrom x (in ascending name order):
//	  u16 nameLen, name, i32 drawLevel, i32 detailLevel, u32 nLevel
//	  nLevel x (ascending level):
//	    u32 level, u8 hasStats, i64 delta, i64 max, f64 avg,
//	    u32 nBlock, nBlock x (i64 blockIndex, i64 count), ascending index
//	u64 seahash of every preceding byte of the gzip stream
const formatVersion = 1

var stiMagic = []byte{
	'G', 'S', 'T', 'I', formatVersion, 0x5a, 0x0e, 0x93,
	0x2c, 0xd1, 0x47, 0xb8, 0x66, 0x1f, 0xa4, 0x3d,
}

const (
	maxChromNameLen = math.MaxUint16
	versionOffset   = 4
)

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) f64(v float64) { e.u64(math.Float64bits(v)) }

// Write finishes the tree if necessary and serializes it to w.
func (t *Tree) Write(w io.Writer) error {
	t.Finish()
	chroms := t.Chroms()
	for _, name := range chroms {
		if len(name) > maxChromNameLen {
			return errors.E(errors.Invalid, fmt.Sprintf("summarytree.Write: chromosome name too long (%d bytes)", len(name)))
		}
	}
	if _, err := w.Write(stiMagic); err != nil {
		return err
	}
	gz := gzip.NewWriter(w)
	h := seahash.New()
	e := &encoder{w: io.MultiWriter(gz, h)}

	e.u32(uint32(t.opts.BlockSize))
	e.u32(uint32(t.opts.Levels))
	e.i64(t.opts.DrawCutoff)
	e.i64(t.opts.DetailCutoff)
	e.u8(t.opts.Finisher.ID())
	e.u8(1)
	e.u32(uint32(len(chroms)))
	for _, name := range chroms {
		c := t.chroms[name]
		e.u16(uint16(len(name)))
		e.write([]byte(name))
		e.i32(int32(c.drawLevel))
		e.i32(int32(c.detailLevel))

		var levels []int
		for level := MinLevel; level <= t.opts.Levels; level++ {
			if _, ok := c.stats[level]; ok || c.blocks[level] != nil {
				levels = append(levels, level)
			}
		}
		e.u32(uint32(len(levels)))
		for _, level := range levels {
			e.u32(uint32(level))
			s, hasStats := c.stats[level]
			if hasStats {
				e.u8(1)
			} else {
				e.u8(0)
			}
			e.i64(s.Delta)
			e.i64(s.Max)
			e.f64(s.Avg)
			blocks := c.blocks[level]
			e.u32(uint32(len(blocks)))
			for _, b := range sortedBlockIndices(blocks) {
				e.i64(b)
				e.i64(blocks[b])
			}
		}
	}
	// The checksum itself goes to the gzip stream only.
	sum := h.Sum64()
	e.w = gz
	e.u64(sum)
	if e.err != nil {
		return e.err
	}
	return gz.Close()
}

// WriteFile finishes the tree if necessary and writes it to path.
func (t *Tree) WriteFile(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "summarytree.WriteFile", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = t.Write(out.Writer(ctx)); err != nil {
		return errors.E(err, "summarytree.WriteFile", path)
	}
	log.Printf("summarytree: wrote %d chromosome(s) to %s", len(t.chroms), path)
	return nil
}

type decoder struct {
	r   io.Reader
	h   hash.Hash64
	buf [8]byte
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, d.err = io.ReadFull(d.r, d.buf[:n]); d.err != nil {
		return d.buf[:n]
	}
	d.h.Write(d.buf[:n]) // nolint: errcheck
	return d.buf[:n]
}

func (d *decoder) u8() uint8   { return d.read(1)[0] }
func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.read(2)) }
func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.read(4)) }
func (d *decoder) i32() int32  { return int32(d.u32()) }
func (d *decoder) u64() uint64 { return binary.LittleEndian.Uint64(d.read(8)) }
func (d *decoder) i64() int64  { return int64(d.u64()) }
func (d *decoder) f64() float64 {
	return math.Float64frombits(d.u64())
}

func (d *decoder) str(n int) string {
	if d.err != nil {
		return ""
	}
	b := make([]byte, n)
	if _, d.err = io.ReadFull(d.r, b); d.err != nil {
		return ""
	}
	d.h.Write(b) // nolint: errcheck
	return string(b)
}

func corrupt(msg string, args ...interface{}) error {
	return errors.E(errors.Integrity, "summarytree.Read: "+fmt.Sprintf(msg, args...))
}

// Read parses a tree written by Tree.Write.  The returned tree is finished
// and ready for queries.
func Read(r io.Reader) (*Tree, error) {
	magic := make([]byte, len(stiMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, corrupt("reading header: %v", err)
	}
	if !bytes.Equal(magic[:versionOffset], stiMagic[:versionOffset]) {
		return nil, corrupt("unexpected magic %v", magic[:versionOffset])
	}
	if magic[versionOffset] != formatVersion {
		return nil, corrupt("unsupported format version %d", magic[versionOffset])
	}
	if !bytes.Equal(magic, stiMagic) {
		return nil, corrupt("unexpected magic %v should be %v", magic, stiMagic)
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	defer gz.Close() // nolint: errcheck

	d := &decoder{r: gz, h: seahash.New()}
	opts := Opts{
		BlockSize:    int(d.u32()),
		Levels:       int(d.u32()),
		DrawCutoff:   d.i64(),
		DetailCutoff: d.i64(),
	}
	finisherID := d.u8()
	finished := d.u8()
	nChrom := d.u32()
	if d.err != nil {
		return nil, corrupt("reading tree header: %v", d.err)
	}
	var ok bool
	if opts.Finisher, ok = finisherByID(finisherID); !ok {
		return nil, corrupt("unknown finisher %d", finisherID)
	}
	if finished != 1 {
		return nil, corrupt("tree was not finished before writing")
	}
	t, err := New(opts)
	if err != nil {
		return nil, errors.E(errors.Integrity, err)
	}
	prevName := ""
	for i := uint32(0); i < nChrom; i++ {
		name := d.str(int(d.u16()))
		if d.err != nil {
			return nil, corrupt("reading chromosome %d: %v", i, d.err)
		}
		if i > 0 && name <= prevName {
			return nil, corrupt("chromosomes out of order: %q after %q", name, prevName)
		}
		prevName = name
		c := t.newChromIndex()
		c.drawLevel = int(d.i32())
		c.detailLevel = int(d.i32())
		nLevel := d.u32()
		if d.err != nil {
			return nil, corrupt("reading %s: %v", name, d.err)
		}
		stored := make([]bool, opts.Levels+1)
		for j := uint32(0); j < nLevel; j++ {
			level := int(d.u32())
			hasStats := d.u8()
			s := LevelStats{Delta: d.i64(), Max: d.i64(), Avg: d.f64()}
			nBlock := d.u32()
			if d.err != nil {
				return nil, corrupt("reading %s level record: %v", name, d.err)
			}
			if level < MinLevel || level > opts.Levels || stored[level] {
				return nil, corrupt("%s: bad level %d", name, level)
			}
			stored[level] = true
			if hasStats == 1 {
				c.stats[level] = s
			}
			blocks := c.blocks[level]
			prev := int64(math.MinInt64)
			for k := uint32(0); k < nBlock; k++ {
				b, n := d.i64(), d.i64()
				if d.err != nil {
					return nil, corrupt("reading %s level %d blocks: %v", name, level, d.err)
				}
				if k > 0 && b <= prev {
					return nil, corrupt("%s level %d: blocks out of order", name, level)
				}
				prev = b
				blocks[b] = n
			}
		}
		for level := MinLevel; level <= opts.Levels; level++ {
			if !stored[level] {
				c.blocks[level] = nil
			}
		}
		t.chroms[name] = c
	}
	want := d.h.Sum64()
	if _, err := io.ReadFull(gz, d.buf[:8]); err != nil {
		return nil, corrupt("reading checksum: %v", err)
	}
	if got := binary.LittleEndian.Uint64(d.buf[:8]); got != want {
		return nil, corrupt("checksum mismatch: %x should be %x", got, want)
	}
	if n, _ := gz.Read(d.buf[:1]); n != 0 {
		return nil, corrupt("trailing data after checksum")
	}
	t.finished = true
	return t, nil
}

// ReadFile reads a tree written by Tree.WriteFile.
func ReadFile(ctx context.Context, path string) (t *Tree, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "summarytree.ReadFile", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if t, err = Read(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	log.Debug.Printf("summarytree: read %d chromosome(s) from %s", len(t.chroms), path)
	return t, nil
}
