/*package plot renders profiles and particle distributions of a running
simulation with matplotlib.

Figures are queued as a python script and nothing is drawn until Execute is
called, usually once at the end of a run.
*/
package plot

import (
	"fmt"
	"path/filepath"

	plt "github.com/phil-mansfield/pyplot"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/sim"
)

const referencePoints = 400

// Axis selects the coordinate which profiles are plotted against.
type Axis int

const (
	X Axis = iota
	Y
)

func (a Axis) String() string {
	if a == Y {
		return "y"
	}
	return "x"
}

// Reference is a known solution which is drawn under the measured profiles.
type Reference func(x, t float64) hydro.Primitive

// ProfileObserver queues density, velocity and pressure profiles and a
// particle map every Every steps and after the final step.
type ProfileObserver struct {
	Dir   string
	Every int
	Axis  Axis
	// Reference is optional.
	Reference Reference

	files []string
}

// Files returns the names of every image queued so far.
func (obs *ProfileObserver) Files() []string { return obs.files }

var profiles = []struct {
	name, label string
	v           int
}{
	{"density", `$\rho$`, hydro.Density},
	{"velocity", `$v$`, hydro.VelX},
	{"pressure", `$P$`, hydro.Pressure},
}

func (obs *ProfileObserver) Observe(info *sim.StepInfo) error {
	if obs.Every <= 0 || (info.Step%obs.Every != 0 && !info.Final) {
		return nil
	}

	n := len(info.Positions)
	xs, ys := make([]float64, n), make([]float64, n)
	for i, p := range info.Positions {
		xs[i], ys[i] = p.X, p.Y
	}
	axis := xs
	if obs.Axis == Y {
		axis = ys
	}

	for _, prof := range profiles {
		vals := make([]float64, n)
		v := prof.v
		if v == hydro.VelX && obs.Axis == Y {
			v = hydro.VelY
		}
		for i := range vals {
			vals[i] = info.Primitive[i][v]
		}

		plt.Figure()
		if obs.Reference != nil {
			rx, ry := obs.reference(axis, info.Time, v)
			plt.Plot(rx, ry, "r", plt.LW(2))
		}
		plt.Plot(axis, vals, "ok")
		plt.Title(fmt.Sprintf("Step %d, $t$ = %.4g", info.Step, info.Time))
		plt.XLabel(fmt.Sprintf("$%s$", obs.Axis), plt.FontSize(16))
		plt.YLabel(prof.label, plt.FontSize(16))
		obs.save(fmt.Sprintf("%s_%06d.png", prof.name, info.Step))
	}

	plt.Figure(plt.FigSize(8, 8))
	plt.Plot(xs, ys, "ok")
	plt.Title(fmt.Sprintf("Step %d, $t$ = %.4g", info.Step, info.Time))
	plt.XLabel(`$x$`, plt.FontSize(16))
	plt.YLabel(`$y$`, plt.FontSize(16))
	obs.save(fmt.Sprintf("particles_%06d.png", info.Step))

	return nil
}

// reference samples the reference solution across the range of axis.
func (obs *ProfileObserver) reference(axis []float64, t float64, v int) (xs, ys []float64) {
	lo, hi := floats.Min(axis), floats.Max(axis)
	xs = make([]float64, referencePoints)
	floats.Span(xs, lo, hi)

	ys = make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = obs.Reference(x, t)[v]
	}
	return xs, ys
}

func (obs *ProfileObserver) save(name string) {
	file := filepath.Join(obs.Dir, name)
	plt.SaveFig(file)
	obs.files = append(obs.files, file)
}

// Execute draws every queued figure.
func Execute() { plt.Execute() }

// Reset discards every queued figure.
func Reset() { plt.Reset() }
