package main

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/pprof/profile"
	"github.com/spf13/cobra"

	"github.com/joshuapare/swiper/heap/collect"
)

var profileOut string

// stringSampleLimit bounds the surviving strings listed with the profile.
const stringSampleLimit = 8

func init() {
	cmd := newProfileCmd()
	addWorkloadFlags(cmd)
	cmd.Flags().StringVarP(&profileOut, "output", "o", "heap.pb.gz", "Profile output file")
	rootCmd.AddCommand(cmd)
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Write a pprof profile of the live heap",
		Long: `The profile command runs the synthetic workload, collects once more
and writes the surviving objects grouped by class as a pprof profile
with two sample types: objects/count and space/bytes.

Example:
  gcctl profile -o heap.pb.gz
  go tool pprof -top -sample_index=space heap.pb.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile()
		},
	}
	return cmd
}

func runProfile() error {
	w, err := newWorkload(workloadFromFlags())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Run(); err != nil {
		return fmt.Errorf("workload failed: %w", err)
	}
	if _, err := w.Heap().Collect(collect.ReasonExplicit); err != nil {
		return fmt.Errorf("final collection failed: %w", err)
	}

	live := w.live()
	slices.SortFunc(live, func(a, b liveClass) int {
		if c := cmp.Compare(b.Bytes, a.Bytes); c != 0 {
			return c
		}
		return cmp.Compare(b.Objects, a.Objects)
	})

	samples, err := w.stringSamples(stringSampleLimit)
	if err != nil {
		return fmt.Errorf("failed to read strings: %w", err)
	}

	p := buildProfile(live, time.Now())
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	f, err := os.Create(profileOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", profileOut, err)
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	if jsonOut {
		return printJSON(struct {
			Output  string      `json:"output"`
			Classes []liveClass `json:"classes"`
			Strings []string    `json:"strings"`
		}{profileOut, live, samples})
	}

	printInfo("Wrote %s\n", profileOut)
	for _, lc := range live {
		printVerbose("  %-12s %8d objects %10d bytes\n", lc.Class, lc.Objects, lc.Bytes)
	}
	if len(samples) > 0 {
		printVerbose("Surviving strings:\n")
	}
	for _, text := range samples {
		printVerbose("  %q\n", text)
	}
	return nil
}

// buildProfile turns per-class totals into a profile with one function
// and location per class, so pprof's top and tree views group by class.
func buildProfile(live []liveClass, now time.Time) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "objects", Unit: "count"},
			{Type: "space", Unit: "bytes"},
		},
		DefaultSampleType: "space",
		PeriodType:        &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:            1,
		TimeNanos:         now.UnixNano(),
	}

	for i, lc := range live {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: lc.Class, SystemName: lc.Class}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{lc.Objects, lc.Bytes},
			Label:    map[string][]string{"class": {lc.Class}},
		})
	}
	return p
}
