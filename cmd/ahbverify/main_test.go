package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ahbverify/internal/history"
	"ahbverify/internal/report"
	"ahbverify/internal/scenario"
)

func execute(args ...string) int {
	root := newRootCmd()
	root.SetArgs(args)
	return exitCode(root.Execute())
}

func TestRunPasses(t *testing.T) {
	assert.Equal(t, report.ExitPass, execute("run", "--seed", "3", "--count", "8"))
}

func TestRunUsageErrors(t *testing.T) {
	assert.Equal(t, report.ExitUsage, execute("run", "--dut", "fpga"))
	assert.Equal(t, report.ExitUsage, execute("run", "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Equal(t, report.ExitUsage, execute("run", "--log-level", "LOUD"))
	assert.Equal(t, report.ExitUsage, execute("history", "list"))
}

func TestRunScenarioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: mem
dut: memory
transfer_count: 12
max_wait: 1
`), 0o644))

	db := filepath.Join(dir, "history.db")
	require.Equal(t, report.ExitPass, execute("--history", db, "run", "-c", path))
	require.Equal(t, report.ExitPass, execute("--history", db, "history", "list", "--scenario", "mem"))

	s, err := history.Open(db)
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.List("mem")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 12, recs[0].Observed)
}

func TestRunThenCheckTrace(t *testing.T) {
	tr := filepath.Join(t.TempDir(), "run.csv")
	require.Equal(t, report.ExitPass, execute("run", "--seed", "5", "--count", "6", "--trace", tr))
	assert.Equal(t, report.ExitPass, execute("check", tr))
	assert.Equal(t, report.ExitUsage, execute("check", tr+".missing"))
}

func TestBindFlagRejectsMissingFlag(t *testing.T) {
	root := newRootCmd()
	assert.Panics(t, func() {
		bindFlag(scenario.NewViper(), "seed", root.Flags().Lookup("no-such-flag"))
	})
}
