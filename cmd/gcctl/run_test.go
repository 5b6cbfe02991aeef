package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		wantErr     bool
		wantContain []string
		wantJSON    bool
	}{
		{
			name:        "text report",
			wantContain: []string{"Seed 7, ", "(Explicit)", "marked", "Totals:", "perm used"},
		},
		{
			name:     "json report",
			wantJSON: true,
		},
		{
			name:        "single cycle without verification",
			setup:       func() { runCycles = 1; runVerify = false },
			wantContain: []string{"cycle 1 ("},
		},
		{
			name:    "out of memory",
			setup:   func() { runOld = 16 << 10; runLarge = 16 << 10; runVerify = false },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			jsonOut = tt.wantJSON
			if tt.setup != nil {
				tt.setup()
			}

			output, err := captureOutput(t, runRun)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err, output)

			if tt.wantJSON {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
		})
	}
}

func TestRunCommand_JSONCycles(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	output, err := captureOutput(t, runRun)
	require.NoError(t, err)

	var report runReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, uint64(7), report.Seed)
	require.NotEmpty(t, report.Cycles)

	var explicit int
	for i, c := range report.Cycles {
		assert.Equal(t, i+1, c.Cycle)
		assert.GreaterOrEqual(t, c.Marked, c.Evacuated)
		if c.Reason == "Explicit" {
			explicit++
		}
	}
	assert.Equal(t, 3, explicit)
	assert.Positive(t, report.Classes)
}

func TestRunCommand_Quiet(t *testing.T) {
	resetFlags(t)
	quiet = true

	output, err := captureOutput(t, runRun)
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestFormatBytes(t *testing.T) {
	p := newPrinter()
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1,023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{3 << 20, "3.0 MiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(p, tt.in), "formatBytes(%d)", tt.in)
	}
}

func TestSummarizePauses(t *testing.T) {
	assert.Equal(t, pauseSummary{}, summarizePauses(nil))

	var cycles []cycleReport
	for _, us := range []int64{40, 10, 30, 20, 100} {
		cycles = append(cycles, cycleReport{PauseMicros: us})
	}
	s := summarizePauses(cycles)
	assert.InDelta(t, 40.0, s.Mean, 1e-9)
	assert.Equal(t, 100.0, s.Max)
	assert.GreaterOrEqual(t, s.P50, 20.0)
	assert.LessOrEqual(t, s.P50, 40.0)
	assert.LessOrEqual(t, s.P99, s.Max)
	assert.GreaterOrEqual(t, s.P99, s.P50)
}
