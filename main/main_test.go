package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/ics"
	"github.com/phil-mansfield/movingmesh/io"
)

func execute(t *testing.T, args ...string) string {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestExampleConfig(t *testing.T) {
	out := execute(t, "example-config")
	assert.Contains(t, out, "[Simulation]")
	assert.Contains(t, out, "[InitialConditions]")
}

const runFile = `
Simulation:
  MaxTime: 10
  MaxSteps: %d
  Boundary: periodic
  Reconstruction: green-gauss
  Riemann: hllc
Domain:
  XMax: 1
  YMax: 1
InitialConditions:
  Type: uniform
  NX: 6
  NY: 6
  Jitter: 0.2
  VelX: 0.3
Output:
  Directory: %s
  CheckpointEvery: 1
`

func TestRunAndRestart(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.yaml")
	second := filepath.Join(dir, "second.yaml")
	require.NoError(t, os.WriteFile(first, []byte(fmt.Sprintf(runFile, 2, dir)), 0644))
	require.NoError(t, os.WriteFile(second, []byte(fmt.Sprintf(runFile, 3, dir)), 0644))

	execute(t, "run", first)
	s, err := io.ReadCheckpointFile(io.CheckpointName(dir, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Steps)
	assert.Len(t, s.Positions, 36)

	execute(t, "restart", second, io.CheckpointName(dir, 2))
	resumed, err := io.ReadCheckpointFile(io.CheckpointName(dir, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.Steps)
	assert.Equal(t, s.RunID, resumed.RunID)
	assert.Greater(t, resumed.Time, s.Time)
}

func TestSodReference(t *testing.T) {
	ref := sodReference(hydro.EOS{Gamma: 1.4}, 0.5)
	assert.Equal(t, ics.SodLeft, ref(0.2, 0))
	assert.Equal(t, ics.SodRight, ref(0.5, 0))
	assert.Equal(t, ics.SodLeft, ref(0, 0.1))
	assert.Equal(t, ics.SodRight, ref(1, 0.1))
	assert.InDelta(t, 0.30313, ref(0.6, 0.1)[hydro.Pressure], 1e-4)
}
