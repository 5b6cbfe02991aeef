package main

import (
	"fmt"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/swiper/heap/collect"
)

var (
	runObjects int
	runCycles  int
	runSeed    uint64
	runYoung   uint64
	runOld     uint64
	runLarge   uint64
	runWorkers int
	runVerify  bool
)

func init() {
	cmd := newRunCmd()
	addWorkloadFlags(cmd)
	rootCmd.AddCommand(cmd)
}

// addWorkloadFlags registers the flags shared by every command that runs
// the synthetic workload.
func addWorkloadFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&runObjects, "objects", 10000, "Allocations per cycle")
	cmd.Flags().IntVar(&runCycles, "cycles", 4, "Explicit collections to run")
	cmd.Flags().Uint64Var(&runSeed, "seed", 1, "Random seed")
	cmd.Flags().Uint64Var(&runYoung, "young", 1<<20, "Young generation size in bytes")
	cmd.Flags().Uint64Var(&runOld, "old", 16<<20, "Old generation size in bytes")
	cmd.Flags().Uint64Var(&runLarge, "large", 16<<20, "Large object space size in bytes")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Collector workers (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&runVerify, "verify", false, "Verify heap invariants around every cycle")
}

func workloadFromFlags() workloadConfig {
	return workloadConfig{
		Objects:   runObjects,
		Cycles:    runCycles,
		Seed:      runSeed,
		YoungSize: runYoung,
		OldSize:   runOld,
		LargeSize: runLarge,
		Workers:   runWorkers,
		Verify:    runVerify,
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload and report every collection",
		Long: `The run command allocates random trees of objects, strings and arrays,
collects after every batch and prints what each cycle did. Cycles
triggered by a full young generation are reported too.

Example:
  gcctl run
  gcctl run --objects 50000 --cycles 10 --young 262144
  gcctl run --verify --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun()
		},
	}
	return cmd
}

type cycleReport struct {
	Cycle          int    `json:"cycle"`
	Reason         string `json:"reason"`
	PauseMicros    int64  `json:"pause_us"`
	Marked         uint64 `json:"marked"`
	MarkedBytes    uint64 `json:"marked_bytes"`
	Evacuated      uint64 `json:"evacuated"`
	EvacuatedBytes uint64 `json:"evacuated_bytes"`
	Promoted       uint64 `json:"promoted"`
	Retried        uint64 `json:"retried"`
	Reclaimed      uint64 `json:"reclaimed"`
	OldBefore      uint64 `json:"old_before"`
	OldAfter       uint64 `json:"old_after"`
	LargeFreed     uint64 `json:"large_freed"`
}

// pauseSummary describes the distribution of cycle pauses in
// microseconds.
type pauseSummary struct {
	Mean float64 `json:"mean_us"`
	P50  float64 `json:"p50_us"`
	P99  float64 `json:"p99_us"`
	Max  float64 `json:"max_us"`
}

type runReport struct {
	Seed       uint64        `json:"seed"`
	Cycles     []cycleReport `json:"cycles"`
	TotalPause time.Duration `json:"total_pause_ns"`
	Pauses     pauseSummary  `json:"pauses"`
	Reclaimed  uint64        `json:"reclaimed"`
	OldUsed    uint64        `json:"old_used"`
	LargeUsed  uint64        `json:"large_used"`
	PermUsed   uint64        `json:"perm_used"`
	Classes    int           `json:"classes"`
}

func newCycleReport(i int, res collect.Result) cycleReport {
	return cycleReport{
		Cycle:          i,
		Reason:         res.Reason.String(),
		PauseMicros:    res.Duration.Microseconds(),
		Marked:         res.Marked,
		MarkedBytes:    res.MarkedBytes,
		Evacuated:      res.Evacuated,
		EvacuatedBytes: res.EvacuatedBytes,
		Promoted:       res.Promoted,
		Retried:        res.Retried,
		Reclaimed:      res.Reclaimed,
		OldBefore:      res.OldBefore,
		OldAfter:       res.OldAfter,
		LargeFreed:     res.LargeFreed,
	}
}

func runRun() error {
	cfg := workloadFromFlags()
	printVerbose("Creating heap: young=%d old=%d large=%d\n", cfg.YoungSize, cfg.OldSize, cfg.LargeSize)

	w, err := newWorkload(cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Run(); err != nil {
		return fmt.Errorf("workload failed: %w", err)
	}

	report := buildRunReport(w)
	if jsonOut {
		return printJSON(report)
	}
	printRunReport(report)
	return nil
}

func buildRunReport(w *workload) runReport {
	stats := w.Heap().Stats()
	report := runReport{
		Seed:       w.cfg.Seed,
		TotalPause: stats.TotalPause,
		OldUsed:    stats.OldUsed,
		LargeUsed:  stats.LargeUsed,
		PermUsed:   stats.PermUsed,
		Classes:    stats.Classes,
	}
	for i, res := range w.Results() {
		report.Cycles = append(report.Cycles, newCycleReport(i+1, res))
		report.Reclaimed += res.Reclaimed
	}
	report.Pauses = summarizePauses(report.Cycles)
	return report
}

func summarizePauses(cycles []cycleReport) pauseSummary {
	if len(cycles) == 0 {
		return pauseSummary{}
	}
	sample := stats.Sample{Xs: make([]float64, 0, len(cycles))}
	for _, c := range cycles {
		sample.Xs = append(sample.Xs, float64(c.PauseMicros))
	}
	sample.Sort()
	_, hi := sample.Bounds()
	return pauseSummary{
		Mean: sample.Mean(),
		P50:  sample.Quantile(0.5),
		P99:  sample.Quantile(0.99),
		Max:  hi,
	}
}

func printRunReport(r runReport) {
	p := newPrinter()

	printInfo("Seed %d, %s\n", r.Seed, p.Sprintf("%d cycles", len(r.Cycles)))
	printInfo("\n")
	for _, c := range r.Cycles {
		printInfo("%s\n", p.Sprintf("cycle %d (%s): pause %v", c.Cycle, c.Reason, time.Duration(c.PauseMicros)*time.Microsecond))
		printInfo("%s\n", p.Sprintf("  marked     %d objects, %s", c.Marked, formatBytes(p, c.MarkedBytes)))
		printInfo("%s\n", p.Sprintf("  evacuated  %d objects, %s", c.Evacuated, formatBytes(p, c.EvacuatedBytes)))
		printInfo("%s\n", p.Sprintf("  promoted   %d (%d retried)", c.Promoted, c.Retried))
		printInfo("%s\n", p.Sprintf("  reclaimed  %s (%d large)", formatBytes(p, c.Reclaimed), c.LargeFreed))
		printInfo("%s\n", p.Sprintf("  old        %s -> %s", formatBytes(p, c.OldBefore), formatBytes(p, c.OldAfter)))
	}

	printInfo("\n")
	printInfo("Totals:\n")
	printInfo("%s\n", p.Sprintf("  pause      %v", r.TotalPause))
	printInfo("%s\n", p.Sprintf("  pauses     mean %.0fµs, p50 %.0fµs, p99 %.0fµs, max %.0fµs",
		r.Pauses.Mean, r.Pauses.P50, r.Pauses.P99, r.Pauses.Max))
	printInfo("%s\n", p.Sprintf("  reclaimed  %s", formatBytes(p, r.Reclaimed)))
	printInfo("%s\n", p.Sprintf("  old used   %s", formatBytes(p, r.OldUsed)))
	printInfo("%s\n", p.Sprintf("  large used %s", formatBytes(p, r.LargeUsed)))
	printInfo("%s\n", p.Sprintf("  perm used  %s (%d classes)", formatBytes(p, r.PermUsed), r.Classes))
}

// newPrinter returns the printer used for report numbers.
func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// formatBytes formats byte sizes in human-readable form
func formatBytes(p *message.Printer, n uint64) string {
	const unit = 1024
	if n < unit {
		return p.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return p.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
