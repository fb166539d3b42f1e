package ingest_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/galaxyproject/galaxy-sub043/arraytree"
	"github.com/galaxyproject/galaxy-sub043/ingest"
	"github.com/galaxyproject/galaxy-sub043/interval"
	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newRecord(t *testing.T, name string, ref *sam.Reference, pos, length int, mapq byte, flags sam.Flags) *sam.Record {
	seq := make([]byte, length)
	for i := range seq {
		seq[i] = 'A'
	}
	var co []sam.CigarOp
	if ref != nil {
		co = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, length)}
	}
	r, err := sam.NewRecord(name, ref, nil, pos, -1, 0, mapq, co, seq, nil, nil)
	assert.NoError(t, err)
	r.Flags = flags
	return r
}

func writeBAM(t *testing.T, path string) {
	chr1, err := sam.NewReference("chr1", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	assert.NoError(t, err)

	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	assert.NoError(t, err)
	for _, r := range []*sam.Record{
		newRecord(t, "r1", chr1, 0, 10, 60, 0),
		newRecord(t, "r2", chr1, 30, 10, 60, sam.Reverse),
		newRecord(t, "lowq", chr1, 100, 50, 5, 0),
		newRecord(t, "dup", chr2, 5, 10, 60, sam.Duplicate),
		newRecord(t, "unmapped", nil, -1, 10, 0, sam.Unmapped),
	} {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())
}

func TestLoadBAM(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, "tmpdir:", tmpdir)
	path := filepath.Join(tmpdir, "reads.bam")
	writeBAM(t, path)

	tree, err := summarytree.New(summarytree.DefaultOpts)
	assert.NoError(t, err)
	opts := ingest.DefaultBAMOpts
	opts.MinMapq = 10
	n, err := ingest.LoadBAM(ctx, tree, path, opts)
	assert.NoError(t, err)
	expect.EQ(t, n, 2)
	expect.True(t, tree.HasData("chr1"))
	expect.False(t, tree.HasData("chr2"))

	var blocks []summarytree.Block
	tree.EachBlock("chr1", summarytree.MinLevel, func(pos, count int64) {
		blocks = append(blocks, summarytree.Block{Pos: pos, Count: count})
	})
	expect.EQ(t, blocks, []summarytree.Block{{Pos: 0, Count: 2}})

	// Without a mapq floor or flag filter everything mapped is counted.
	tree, err = summarytree.New(summarytree.DefaultOpts)
	assert.NoError(t, err)
	n, err = ingest.LoadBAM(ctx, tree, path, ingest.BAMOpts{})
	assert.NoError(t, err)
	expect.EQ(t, n, 4)
	expect.True(t, tree.HasData("chr2"))
}

func TestLoadBAMMissing(t *testing.T) {
	tree, err := summarytree.New(summarytree.DefaultOpts)
	assert.NoError(t, err)
	_, err = ingest.LoadBAM(vcontext.Background(), tree, "/nonexistent/reads.bam", ingest.DefaultBAMOpts)
	expect.HasSubstr(t, err.Error(), "ingest.LoadBAM")
}

func TestLoadBED(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, "tmpdir:", tmpdir)
	path := filepath.Join(tmpdir, "a.bed")
	assert.NoError(t, ioutil.WriteFile(path, []byte("track name=a\nchr1\t0\t10\nchr1\t5\t20\tx\nchr3\t600\t700\n"), 0644))

	tree, err := summarytree.New(summarytree.DefaultOpts)
	assert.NoError(t, err)
	n, err := ingest.LoadBED(ctx, tree, path, interval.Opts{})
	assert.NoError(t, err)
	expect.EQ(t, n, 3)
	expect.EQ(t, tree.Chroms(), []string{"chr1", "chr3"})

	assert.NoError(t, ioutil.WriteFile(path, []byte("chr1\t0\n"), 0644))
	_, err = ingest.LoadBED(ctx, tree, path, interval.Opts{})
	expect.NotNil(t, err)
}

func TestLoadBedGraph(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, "tmpdir:", tmpdir)
	path := filepath.Join(tmpdir, "a.bedGraph")
	assert.NoError(t, ioutil.WriteFile(path, []byte("chr1\t0\t10\t2.5\nchr1\t10\t12\t-1\n"), 0644))

	b, err := arraytree.NewBuilder(4)
	assert.NoError(t, err)
	n, err := ingest.LoadBedGraph(ctx, b, path)
	assert.NoError(t, err)
	expect.EQ(t, n, 2)
	stats, ok := arraytree.NewProvider(b.Build()).Stats("chr1")
	assert.True(t, ok)
	expect.EQ(t, stats.Max, 2.5)
	expect.EQ(t, stats.Min, -1.0)
}

func TestBuild(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, "tmpdir:", tmpdir)
	bedPath := filepath.Join(tmpdir, "a.bed")
	assert.NoError(t, ioutil.WriteFile(bedPath, []byte("chr7\t0\t10\n"), 0644))
	bamPath := filepath.Join(tmpdir, "reads.bam")
	writeBAM(t, bamPath)
	outDir := filepath.Join(tmpdir, "out")
	assert.NoError(t, os.MkdirAll(outDir, 0755))

	outputs, err := ingest.Build(ctx, []string{bedPath, bamPath}, ingest.BuildOpts{
		Tree:        summarytree.DefaultOpts,
		BAM:         ingest.DefaultBAMOpts,
		OutDir:      outDir,
		Parallelism: 4,
	})
	assert.NoError(t, err)
	expect.EQ(t, outputs, []string{
		filepath.Join(outDir, "a.bed.st"),
		filepath.Join(outDir, "reads.bam.st"),
	})

	tree, err := summarytree.ReadFile(ctx, outputs[0])
	assert.NoError(t, err)
	expect.EQ(t, tree.Chroms(), []string{"chr7"})
	tree, err = summarytree.ReadFile(ctx, outputs[1])
	assert.NoError(t, err)
	expect.EQ(t, tree.Chroms(), []string{"chr1"})

	_, err = ingest.Build(ctx, []string{filepath.Join(tmpdir, "missing.bed")}, ingest.BuildOpts{Tree: summarytree.DefaultOpts})
	expect.NotNil(t, err)
}

func TestIndexPath(t *testing.T) {
	expect.EQ(t, ingest.IndexPath("/a/b.bed", ""), "/a/b.bed.st")
	expect.EQ(t, ingest.IndexPath("/a/b.bed", "/out"), "/out/b.bed.st")
}
