package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/record"
	"github.com/sarchlab/cachesim/replay"
	"github.com/sarchlab/cachesim/trace"
)

func runSimulation(cmd *cobra.Command, _ []string) {
	setBits, _ := cmd.Flags().GetInt("set-bits")
	numWays, _ := cmd.Flags().GetInt("associativity")
	blockBits, _ := cmd.Flags().GetInt("block-bits")
	tracePath, _ := cmd.Flags().GetString("trace")
	verbose, _ := cmd.Flags().GetBool("verbose")
	recordPath, _ := cmd.Flags().GetString("record")

	if numWays < 1 {
		log.Fatalf("Error: associativity must be at least 1")
	}

	if setBits < 0 || blockBits < 0 || setBits+blockBits > 64 {
		log.Fatalf("Error: set and block bits must be non-negative " +
			"and fit in a 64-bit address")
	}

	traceFile, err := os.Open(tracePath)
	if err != nil {
		log.Fatalf("Error opening trace file: %v", err)
	}
	defer traceFile.Close()

	c := cache.New(setBits, numWays, blockBits)
	replayer := replay.NewReplayer(c)

	if verbose {
		replayer.AddListener(&accessPrinter{out: cmd.OutOrStdout()})
	}

	var (
		recorder record.DataRecorder
		runID    string
	)
	if recordPath != "" {
		recorder = record.New(recordPath)
		runID = record.NewRunID()

		recorder.CreateTable("runs", record.RunEntry{})
		recorder.CreateTable("accesses", record.AccessEntry{})
		replayer.AddListener(&accessRecorder{
			recorder: recorder,
			runID:    runID,
		})
	}

	stats, err := replayer.Run(trace.NewReader(traceFile))
	if err != nil {
		log.Fatalf("Error replaying trace: %v", err)
	}

	if recorder != nil {
		recorder.InsertData("runs", record.RunEntry{
			ID:             runID,
			TracePath:      tracePath,
			SetBits:        setBits,
			Associativity:  numWays,
			BlockBits:      blockBits,
			Hits:           stats.Hits,
			Misses:         stats.Misses,
			Evictions:      stats.Evictions,
			DirtyBytes:     stats.DirtyBytes,
			DirtyEvictions: stats.DirtyEvictions,
		})
		recorder.Flush()
	}

	printSummary(cmd.OutOrStdout(), stats)
}

func printSummary(w io.Writer, stats replay.Stats) {
	fmt.Fprintf(w,
		"hits:%d misses:%d evictions:%d dirty_bytes:%d dirty_evictions:%d\n",
		stats.Hits, stats.Misses, stats.Evictions,
		stats.DirtyBytes, stats.DirtyEvictions)
}

// An accessPrinter echoes each access with its outcome, in the trace's
// own record format.
type accessPrinter struct {
	out io.Writer
}

func (p *accessPrinter) NotifyAccess(
	_ uint64,
	acc trace.Access,
	res cache.Result,
) {
	line := fmt.Sprintf("%c %x,%d", acc.Op, acc.Addr, acc.Size)

	if res.Hit {
		line += " hit"
	} else {
		line += " miss"
	}

	if res.Eviction {
		line += " eviction"
	}

	fmt.Fprintln(p.out, line)
}

// An accessRecorder stores each access into the run database.
type accessRecorder struct {
	recorder record.DataRecorder
	runID    string
}

func (r *accessRecorder) NotifyAccess(
	seq uint64,
	acc trace.Access,
	res cache.Result,
) {
	r.recorder.InsertData("accesses", record.AccessEntry{
		RunID:        r.runID,
		Seq:          seq,
		Op:           string(rune(acc.Op)),
		Addr:         acc.Addr,
		Size:         acc.Size,
		Hit:          res.Hit,
		Eviction:     res.Eviction,
		BecameDirty:  res.BecameDirty,
		EvictedDirty: res.EvictedDirty,
	})
}
