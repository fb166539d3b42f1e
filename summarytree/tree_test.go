package summarytree

import (
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type interval struct {
	chrom      string
	start, end int64
}

func newTestTree(t *testing.T, opts Opts, intervals ...interval) *Tree {
	tree, err := New(opts)
	require.NoError(t, err)
	for _, iv := range intervals {
		require.NoError(t, tree.InsertRange(iv.chrom, iv.start, iv.end))
	}
	return tree
}

func repeat(iv interval, n int) []interval {
	out := make([]interval, n)
	for i := range out {
		out[i] = iv
	}
	return out
}

func TestNewInvalidOpts(t *testing.T) {
	for _, opts := range []Opts{
		{BlockSize: 1, Levels: 3},
		{BlockSize: 0, Levels: 3},
		{BlockSize: 10, Levels: 1},
		{BlockSize: 10, Levels: 100},
		{BlockSize: 1 << 20, Levels: 10},
	} {
		_, err := New(opts)
		assert.True(t, errors.Is(errors.Invalid, err), "opts %+v: %v", opts, err)
	}
}

func TestSparseExample(t *testing.T) {
	opts := Opts{BlockSize: 10, Levels: 3, DrawCutoff: 5, DetailCutoff: 2}
	for _, finisher := range []Finisher{RetainingFinisher{}, PruningFinisher{}} {
		opts.Finisher = finisher
		tree := newTestTree(t, opts, interval{"chr1", 0, 25}, interval{"chr1", 30, 31})
		assert.Equal(t, map[int64]int64{0: 2}, tree.chroms["chr1"].blocks[2])
		tree.Finish()

		// A max of 2 is at the detail cutoff, which counts as below it.
		res, err := tree.Query("chr1", 0, 100, 2)
		require.NoError(t, err)
		assert.Equal(t, &Result{Sentinel: Detail}, res, "finisher %v", finisher)
	}

	opts.Finisher = RetainingFinisher{}
	tree := newTestTree(t, opts, interval{"chr1", 0, 25}, interval{"chr1", 30, 31})
	tree.Finish()
	res, err := tree.QueryCutoffs("chr1", 0, 100, 2, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, &Result{Sentinel: Draw}, res)
	res, err = tree.QueryCutoffs("chr1", 0, 100, 2, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []Block{{0, 2}, {100, 0}}, res.Blocks)
}

func TestDenseExample(t *testing.T) {
	opts := Opts{BlockSize: 10, Levels: 3, DrawCutoff: 5, DetailCutoff: 2}
	for _, finisher := range []Finisher{RetainingFinisher{}, PruningFinisher{}} {
		opts.Finisher = finisher
		tree := newTestTree(t, opts, repeat(interval{"chr1", 0, 25}, 10)...)
		tree.Finish()

		res, err := tree.Query("chr1", 0, 99, 2)
		require.NoError(t, err)
		assert.Equal(t, []Block{{0, 10}}, res.Blocks, "finisher %v", finisher)
		assert.False(t, res.IsSentinel())

		res, err = tree.Query("chr1", 0, 100, 2)
		require.NoError(t, err)
		assert.Equal(t, []Block{{0, 10}, {100, 0}}, res.Blocks)
	}
}

func TestUnknownChrom(t *testing.T) {
	tree := newTestTree(t, Opts{BlockSize: 10, Levels: 3, DrawCutoff: 5, DetailCutoff: 2})
	tree.Finish()
	res, err := tree.Query("chrX", 0, 10, 2)
	assert.NoError(t, err)
	assert.Nil(t, res)

	tree = newTestTree(t, DefaultOpts, interval{"chr1", 0, 10})
	tree.Finish()
	res, err = tree.Query("nonexistent", 0, 1000, 2)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, tree.HasData("nonexistent"))
	assert.True(t, tree.HasData("chr1"))
}

func TestBlockCoverage(t *testing.T) {
	tree := newTestTree(t, Opts{BlockSize: 10, Levels: 3}, interval{"chr1", 150, 2050})
	c := tree.chroms["chr1"]
	want2 := map[int64]int64{}
	for b := int64(1); b <= 20; b++ {
		want2[b] = 1
	}
	assert.Equal(t, want2, c.blocks[2])
	assert.Equal(t, map[int64]int64{0: 1, 1: 1, 2: 1}, c.blocks[3])
	assert.Nil(t, c.blocks[0])
	assert.Nil(t, c.blocks[1])

	// An interval ending on a block boundary also counts the next block.
	tree = newTestTree(t, Opts{BlockSize: 10, Levels: 2}, interval{"chr1", 0, 100})
	assert.Equal(t, map[int64]int64{0: 1, 1: 1}, tree.chroms["chr1"].blocks[2])
}

func TestInsertOrderIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	var intervals []interval
	for i := 0; i < 500; i++ {
		start := r.Int63n(100000)
		intervals = append(intervals, interval{
			chrom: []string{"chr1", "chr2", "chrM"}[r.Intn(3)],
			start: start,
			end:   start + r.Int63n(5000),
		})
	}
	opts := Opts{BlockSize: 10, Levels: 5}
	want := newTestTree(t, opts, intervals...)
	for iter := 0; iter < 5; iter++ {
		r.Shuffle(len(intervals), func(i, j int) { intervals[i], intervals[j] = intervals[j], intervals[i] })
		got := newTestTree(t, opts, intervals...)
		require.Equal(t, want.Chroms(), got.Chroms())
		for _, chrom := range want.Chroms() {
			assert.Equal(t, want.chroms[chrom].blocks, got.chroms[chrom].blocks, "chrom %s", chrom)
		}
	}
}

// queryAll runs every query over a small grid of ranges and levels.
func queryAll(t *testing.T, tree *Tree, chroms []string) []*Result {
	var out []*Result
	for _, chrom := range chroms {
		for level := MinLevel; level <= tree.Opts().Levels; level++ {
			for _, r := range [][2]int64{{0, 0}, {0, 999}, {150, 2050}, {9000, 12000}} {
				res, err := tree.Query(chrom, r[0], r[1], level)
				require.NoError(t, err)
				out = append(out, res)
			}
		}
	}
	return out
}

func TestFinishIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	var intervals []interval
	for i := 0; i < 200; i++ {
		start := r.Int63n(10000)
		intervals = append(intervals, interval{"chr1", start, start + r.Int63n(300)})
	}
	for _, finisher := range []Finisher{RetainingFinisher{}, PruningFinisher{}} {
		opts := Opts{BlockSize: 10, Levels: 4, DrawCutoff: 40, DetailCutoff: 10, Finisher: finisher}
		once := newTestTree(t, opts, intervals...)
		once.Finish()
		twice := newTestTree(t, opts, intervals...)
		twice.Finish()
		twice.Finish()
		chroms := []string{"chr1", "chr2"}
		assert.Equal(t, queryAll(t, once, chroms), queryAll(t, twice, chroms), "finisher %v", finisher)
		s1, _ := once.Stats("chr1")
		s2, _ := twice.Stats("chr1")
		assert.Equal(t, s1, s2)

		// Running the policy again directly must not disturb pruned state.
		twice.opts.Finisher.finish(twice, twice.chroms["chr1"])
		s3, _ := twice.Stats("chr1")
		assert.Equal(t, s1, s3)
	}
}

func TestInsertAfterFinish(t *testing.T) {
	tree := newTestTree(t, DefaultOpts, interval{"chr1", 0, 10})
	tree.Finish()
	assert.Equal(t, ErrFinished, tree.InsertRange("chr1", 0, 10))
	assert.True(t, errors.Is(errors.Precondition, tree.InsertRange("chr2", 0, 10)))
	assert.False(t, tree.HasData("chr2"))
}

func TestInvalidInterval(t *testing.T) {
	tree := newTestTree(t, DefaultOpts)
	assert.True(t, errors.Is(errors.Invalid, tree.InsertRange("chr1", -1, 10)))
	assert.True(t, errors.Is(errors.Invalid, tree.InsertRange("chr1", 10, 9)))
	assert.False(t, tree.HasData("chr1"))
}

func TestQueryPreconditions(t *testing.T) {
	tree := newTestTree(t, Opts{BlockSize: 10, Levels: 3}, interval{"chr1", 0, 10})
	_, err := tree.Query("chr1", 0, 10, 2)
	assert.Equal(t, ErrNotFinished, err)

	tree.Finish()
	for _, level := range []int{-1, 0, 1, 4} {
		_, err = tree.Query("chr1", 0, 10, level)
		assert.True(t, errors.Is(errors.Invalid, err), "level %d: %v", level, err)
	}
	res, err := tree.Query("chr1", 500, 100, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Blocks)
	assert.False(t, res.IsSentinel())
}

func TestSentinelPrecedence(t *testing.T) {
	// Five reads in distinct level-2 blocks, all within level-3 block 0.
	var intervals []interval
	for i := int64(0); i < 5; i++ {
		intervals = append(intervals, interval{"chr1", i * 100, i*100 + 1})
	}
	opts := Opts{BlockSize: 10, Levels: 3, DrawCutoff: 4, DetailCutoff: 2, Finisher: PruningFinisher{}}
	tree := newTestTree(t, opts, intervals...)
	tree.Finish()
	s, ok := tree.Stats("chr1")
	require.True(t, ok)
	assert.Equal(t, 2, s.DrawLevel)
	assert.Equal(t, 2, s.DetailLevel)
	assert.Equal(t, map[int]LevelStats{
		2: {Delta: 100, Max: 1, Avg: 0.2},
		3: {Delta: 1000, Max: 5, Avg: 5},
	}, s.Levels)
	// The detail level itself keeps its blocks.
	assert.Equal(t, map[int64]int64{0: 1, 1: 1, 2: 1, 3: 1, 4: 1}, tree.chroms["chr1"].blocks[2])

	res, err := tree.QueryCutoffs("chr1", 0, 999, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Detail, res.Sentinel)
	res, err = tree.Query("chr1", 0, 999, 3)
	require.NoError(t, err)
	assert.Equal(t, []Block{{0, 5}}, res.Blocks)

	// With detail disabled the level is only marked for drawing.
	opts.DetailCutoff = 0
	tree = newTestTree(t, opts, intervals...)
	tree.Finish()
	s, _ = tree.Stats("chr1")
	assert.Equal(t, 2, s.DrawLevel)
	assert.Equal(t, NoLevel, s.DetailLevel)
	res, err = tree.QueryCutoffs("chr1", 0, 999, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Draw, res.Sentinel)

	// A level whose max equals the draw cutoff is marked.
	opts.DrawCutoff = 5
	tree = newTestTree(t, opts, intervals...)
	tree.Finish()
	s, _ = tree.Stats("chr1")
	assert.Equal(t, 3, s.DrawLevel)
	res, err = tree.Query("chr1", 0, 999, 3)
	require.NoError(t, err)
	assert.Equal(t, Draw, res.Sentinel)

	// The retaining policy sets no markers, so only the cutoffs matter.
	opts = Opts{BlockSize: 10, Levels: 3, DrawCutoff: 4, DetailCutoff: 0, Finisher: RetainingFinisher{}}
	tree = newTestTree(t, opts, intervals...)
	tree.Finish()
	res, err = tree.Query("chr1", 0, 999, 2)
	require.NoError(t, err)
	assert.Equal(t, Draw, res.Sentinel)
	res, err = tree.QueryCutoffs("chr1", 0, 299, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []Block{{0, 1}, {100, 1}, {200, 1}}, res.Blocks)
}

func TestRetainingStats(t *testing.T) {
	tree := newTestTree(t, Opts{BlockSize: 10, Levels: 3},
		interval{"chr1", 0, 10}, interval{"chr1", 50, 60}, interval{"chr1", 150, 160})
	tree.Finish()
	s, ok := tree.Stats("chr1")
	require.True(t, ok)
	assert.Equal(t, NoLevel, s.DrawLevel)
	assert.Equal(t, NoLevel, s.DetailLevel)
	assert.Equal(t, map[int]LevelStats{
		2: {Delta: 100, Max: 2, Avg: 1},
		3: {Delta: 1000, Max: 3, Avg: 3},
	}, s.Levels)

	var got []Block
	tree.EachBlock("chr1", 2, func(pos, count int64) { got = append(got, Block{pos, count}) })
	assert.Equal(t, []Block{{0, 2}, {100, 1}}, got)
}

func TestResultJSON(t *testing.T) {
	for _, test := range []struct {
		res  *Result
		want string
	}{
		{&Result{Sentinel: Detail}, `"detail"`},
		{&Result{Sentinel: Draw}, `"draw"`},
		{&Result{Blocks: []Block{{0, 10}, {100, 0}}}, `[[0,10],[100,0]]`},
		{&Result{Blocks: []Block{}}, `[]`},
	} {
		got, err := test.res.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, test.want, string(got))
	}
}

func TestCeilLog(t *testing.T) {
	for _, test := range []struct {
		n    int64
		base int
		want int
	}{
		{1, 10, 0}, {2, 10, 1}, {10, 10, 1}, {11, 10, 2}, {100, 10, 2}, {101, 10, 3},
		{625, 25, 2}, {626, 25, 3}, {1 << 62, 2, 62},
	} {
		assert.Equal(t, test.want, CeilLog(test.n, test.base), "CeilLog(%d, %d)", test.n, test.base)
	}
}

func TestFinisherByName(t *testing.T) {
	f, ok := FinisherByName("prune")
	assert.True(t, ok)
	assert.Equal(t, PruningFinisher{}, f)
	f, ok = FinisherByName("retain")
	assert.True(t, ok)
	assert.Equal(t, "retain", f.String())
	_, ok = FinisherByName("keep")
	assert.False(t, ok)
}

func TestBlockSpanExtent(t *testing.T) {
	tree := newTestTree(t, Opts{BlockSize: 10, Levels: 3, Finisher: RetainingFinisher{}},
		interval{"chr1", 5, 15}, interval{"chr1", 2500, 2600}, interval{"1", 0, 1})
	tree.Finish()
	assert.Equal(t, int64(100), tree.BlockSpan(2))
	assert.Equal(t, int64(1000), tree.BlockSpan(3))
	assert.Equal(t, int64(0), tree.BlockSpan(4))
	assert.Equal(t, int64(3000), tree.Extent("chr1"))
	assert.Equal(t, int64(1000), tree.Extent("1"))
	assert.Equal(t, int64(0), tree.Extent("chr2"))

	name, ok := tree.ResolveChrom("chr1")
	assert.True(t, ok)
	assert.Equal(t, "chr1", name)
	tree2 := newTestTree(t, Opts{BlockSize: 10, Levels: 3, Finisher: RetainingFinisher{}}, interval{"X", 0, 1})
	name, ok = tree2.ResolveChrom("chrX")
	assert.True(t, ok)
	assert.Equal(t, "X", name)
	_, ok = tree2.ResolveChrom("Y")
	assert.False(t, ok)
}
