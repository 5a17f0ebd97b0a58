package io

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phil-mansfield/table"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/sim"
)

// icColumns are the columns of an initial conditions or snapshot table:
// x, y, rho, vx, vy, p.
var icColumns = []int{0, 1, 2, 3, 4, 5}

// WriteSnapshot writes the real cells of info to w as a text table with the
// columns x y rho vx vy p V. The table can be read back by
// ReadInitialConditions.
func WriteSnapshot(w io.Writer, info *sim.StepInfo) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintf(buf, "# Step = %d, Time = %.10g\n", info.Step, info.Time)
	fmt.Fprintf(buf, "# %s\n", "x y rho vx vy p V")
	for i, x := range info.Positions {
		p := &info.Primitive[i]
		fmt.Fprintf(buf, "%.12g %.12g %.12g %.12g %.12g %.12g %.12g\n",
			x.X, x.Y, p[hydro.Density], p[hydro.VelX], p[hydro.VelY],
			p[hydro.Pressure], info.Volume[i])
	}
	return buf.Flush()
}

// ReadInitialConditions reads particle positions and primitive states from
// the text table in the named file.
func ReadInitialConditions(file string) ([]r2.Vec, []hydro.Primitive, error) {
	cols, err := table.ReadTable(file, icColumns, nil)
	if err != nil {
		return nil, nil, err
	}

	xs, ys := cols[0], cols[1]
	if len(xs) == 0 {
		return nil, nil, fmt.Errorf("Initial conditions file %s has no particles.", file)
	}

	pts := make([]r2.Vec, len(xs))
	prim := make([]hydro.Primitive, len(xs))
	for i := range pts {
		pts[i] = r2.Vec{X: xs[i], Y: ys[i]}
		prim[i] = hydro.Primitive{cols[2][i], cols[3][i], cols[4][i], cols[5][i]}
	}
	return pts, prim, nil
}

// every returns true if output with the given interval is due after info.
func every(n int, info *sim.StepInfo) bool {
	return n > 0 && (info.Step%n == 0 || info.Final)
}

// CheckpointObserver writes a checkpoint to Dir every Every steps and after
// the final step.
type CheckpointObserver struct {
	Dir   string
	Every int
	Log   *zap.Logger
}

// CheckpointName returns the name of the checkpoint written after the given
// step.
func CheckpointName(dir string, step int) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoint_%06d.mmc", step))
}

func (obs *CheckpointObserver) Observe(info *sim.StepInfo) error {
	if !every(obs.Every, info) {
		return nil
	}
	file := CheckpointName(obs.Dir, info.Step)
	if err := WriteCheckpointFile(file, info.Sim); err != nil {
		return err
	}
	if obs.Log != nil {
		obs.Log.Info("wrote checkpoint", zap.String("file", file), zap.Int("step", info.Step))
	}
	return nil
}

// SnapshotObserver writes a text snapshot to Dir every Every steps and after
// the final step.
type SnapshotObserver struct {
	Dir   string
	Every int
}

func (obs *SnapshotObserver) Observe(info *sim.StepInfo) error {
	if !every(obs.Every, info) {
		return nil
	}
	f, err := os.Create(filepath.Join(obs.Dir, fmt.Sprintf("snapshot_%06d.txt", info.Step)))
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, info); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
