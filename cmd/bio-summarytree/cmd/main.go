package cmd

import (
	"fmt"
	"runtime"

	"github.com/galaxyproject/galaxy-sub043/ingest"
	"github.com/galaxyproject/galaxy-sub043/summarytree"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "build",
		Short: `Build a summary tree index for each input.
Inputs ending in .bam are read as alignments, anything else as BED (optionally gzipped).
The index of <input> is written to <input>.st, or to <out>/<basename>.st with -out.`,
		ArgsName: "input...",
	}
	d := summarytree.DefaultOpts
	blockSize := cmd.Flags.Int("block-size", d.BlockSize, "Number of children per block")
	levels := cmd.Flags.Int("levels", d.Levels, "Coarsest level to index")
	drawCutoff := cmd.Flags.Int64("draw-cutoff", d.DrawCutoff, "Levels whose max count is at or below this are drawn directly")
	detailCutoff := cmd.Flags.Int64("detail-cutoff", d.DetailCutoff, "Levels whose max count is at or below this are shown in full detail")
	policy := cmd.Flags.String("policy", d.Finisher.String(), "Finishing policy, 'retain' or 'prune'")
	mapq := cmd.Flags.Int("min-mapq", ingest.DefaultBAMOpts.MinMapq, "BAM reads with MAPQ below this level are skipped")
	flagExclude := cmd.Flags.Int("flag-exclude", ingest.DefaultBAMOpts.FlagExclude, "BAM reads with a FLAG bit intersecting this value are skipped")
	oneBased := cmd.Flags.Bool("one-based", false, "BED coordinates are 1-based closed intervals")
	outDir := cmd.Flags.String("out", "", "Output directory. Empty means next to each input")
	parallelism := cmd.Flags.Int("parallelism", 0, "Maximum number of inputs indexed at once; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("build takes at least one input path")
		}
		finisher, ok := summarytree.FinisherByName(*policy)
		if !ok {
			return fmt.Errorf("unknown policy %q", *policy)
		}
		opts := ingest.BuildOpts{
			Tree: summarytree.Opts{
				BlockSize:    *blockSize,
				Levels:       *levels,
				DrawCutoff:   *drawCutoff,
				DetailCutoff: *detailCutoff,
				Finisher:     finisher,
			},
			BAM:         ingest.BAMOpts{MinMapq: *mapq, FlagExclude: *flagExclude},
			OutDir:      *outDir,
			Parallelism: *parallelism,
		}
		opts.BED.OneBasedInput = *oneBased
		if opts.Parallelism <= 0 {
			opts.Parallelism = runtime.NumCPU()
		}
		outputs, err := ingest.Build(vcontext.Background(), argv, opts)
		if err != nil {
			return err
		}
		for _, out := range outputs {
			fmt.Fprintln(env.Stdout, out)
		}
		return nil
	})
	return cmd
}

func newCmdQuery() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "query",
		Short: `Query one level of a summary tree index.
The region is chr, chr:pos or chr:start-end (1-based, closed). The result is
printed as JSON: "detail", "draw", an array of [position, count] pairs, or null
if the index has no data for the chromosome.`,
		ArgsName: "index region",
	}
	level := cmd.Flags.Int("level", summarytree.MinLevel, "Level to query")
	drawCutoff := cmd.Flags.Int64("draw-cutoff", -1, "Override the index's draw cutoff; negative keeps it")
	detailCutoff := cmd.Flags.Int64("detail-cutoff", -1, "Override the index's detail cutoff; negative keeps it")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("query takes index and region, but got %v", argv)
		}
		return query(vcontext.Background(), env.Stdout, argv[0], argv[1], queryOpts{
			level:        *level,
			drawCutoff:   *drawCutoff,
			detailCutoff: *detailCutoff,
		})
	})
	return cmd
}

func newCmdSummary() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "summary",
		Short: `Answer a viewer request against a summary tree index.
The level is chosen from the resolution in bases per pixel. Chromosome names
match with or without a "chr" prefix.`,
		ArgsName: "index region",
	}
	resolution := cmd.Flags.Float64("resolution", 1000, "Bases per pixel")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("summary takes index and region, but got %v", argv)
		}
		p, err := summarytree.NewProvider(1)
		if err != nil {
			return err
		}
		return summary(vcontext.Background(), env.Stdout, p, argv[0], argv[1], *resolution)
	})
	return cmd
}

func newCmdStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stats",
		Short:    "Print per-level statistics of a summary tree index as TSV",
		ArgsName: "index",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("stats takes one index path, but got %v", argv)
		}
		return stats(vcontext.Background(), env.Stdout, argv[0])
	})
	return cmd
}

func newCmdDump() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dump",
		Short:    "Write every nonzero block of one level of a summary tree index as TSV",
		ArgsName: "index out",
	}
	level := cmd.Flags.Int("level", summarytree.MinLevel, "Level to dump")
	bgzip := cmd.Flags.Bool("bgzip", false, "BGZF-compress the output")
	parallelism := cmd.Flags.Int("parallelism", 0, "BGZF compression threads; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("dump takes index and out, but got %v", argv)
		}
		opts := dumpOpts{level: *level, bgzip: *bgzip, parallelism: *parallelism}
		if opts.parallelism <= 0 {
			opts.parallelism = runtime.NumCPU()
		}
		return dump(vcontext.Background(), argv[0], argv[1], opts)
	})
	return cmd
}

func newCmdArrayTreeStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "arraytree-stats",
		Short:    "Print whole-chromosome statistics of a bedGraph track as JSON",
		ArgsName: "bedgraph chrom",
	}
	blockSize := cmd.Flags.Int("block-size", 1000, "Number of children per array tree node")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("arraytree-stats takes bedgraph and chrom, but got %v", argv)
		}
		return arrayTreeStats(vcontext.Background(), env.Stdout, argv[0], argv[1], *blockSize)
	})
	return cmd
}

func newCmdArrayTreeQuery() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "arraytree-query",
		Short: `Query a bedGraph track at a resolution.
Points are written as POS VALUE TSV rows. With -frequencies, a dense window
is condensed into a single JSON frequency summary instead.`,
		ArgsName: "bedgraph region",
	}
	opts := arrayTreeQueryOpts{}
	cmd.Flags.IntVar(&opts.blockSize, "block-size", 1000, "Number of children per array tree node")
	cmd.Flags.Float64Var(&opts.resolution, "resolution", 1000, "Bases per pixel")
	cmd.Flags.BoolVar(&opts.frequencies, "frequencies", false, "Summarize dense windows by value frequency")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("arraytree-query takes bedgraph and region, but got %v", argv)
		}
		return arrayTreeQuery(vcontext.Background(), env.Stdout, argv[0], argv[1], opts)
	})
	return cmd
}

// Run is the entry point of bio-summarytree.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-summarytree",
			Short:    "Hierarchical coverage indexes for genome browsers",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdBuild(),
				newCmdQuery(),
				newCmdSummary(),
				newCmdStats(),
				newCmdDump(),
				newCmdArrayTreeStats(),
				newCmdArrayTreeQuery(),
			},
		})
}
