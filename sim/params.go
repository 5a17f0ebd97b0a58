package sim

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/movingmesh/hydro"
)

// Params are the numerical parameters of a run.
type Params struct {
	// Gamma is the adiabatic index of the gas.
	Gamma float64
	// CFL is the safety factor applied to the stable timestep.
	CFL float64
	// MaxSteps and MaxTime bound the run. Run stops when either is reached.
	MaxSteps int
	MaxTime  float64

	// Regularization steers generators towards the centers of mass of
	// their cells. Eta is the offset, in units of the cell radius, at which
	// steering starts and Chi is the steering speed in units of the sound
	// speed.
	Regularization bool
	Eta, Chi       float64

	// Workers is the number of goroutines used by the data-parallel
	// stages. Zero means GOMAXPROCS and one runs everything on the calling
	// goroutine.
	Workers int
}

// DefaultParams returns the parameters used when a configuration file does
// not set them.
func DefaultParams() Params {
	return Params{
		Gamma:          1.4,
		CFL:            0.5,
		MaxSteps:       1000,
		MaxTime:        1,
		Regularization: true,
		Eta:            0.25,
		Chi:            1,
		Workers:        1,
	}
}

// EOS returns the equation of state described by p.
func (p *Params) EOS() hydro.EOS { return hydro.EOS{Gamma: p.Gamma} }

// Validate returns an error describing the first invalid parameter.
func (p *Params) Validate() error {
	switch {
	case !(p.Gamma > 1) || math.IsInf(p.Gamma, 0):
		return fmt.Errorf("Gamma must be a finite number larger than 1, but is %g.", p.Gamma)
	case !(p.CFL > 0 && p.CFL <= 1):
		return fmt.Errorf("CFL must be in the range (0, 1], but is %g.", p.CFL)
	case p.MaxSteps <= 0:
		return fmt.Errorf("MaxSteps must be positive, but is %d.", p.MaxSteps)
	case !(p.MaxTime > 0) || math.IsInf(p.MaxTime, 0):
		return fmt.Errorf("MaxTime must be a positive, finite number, but is %g.", p.MaxTime)
	case p.Workers < 0:
		return fmt.Errorf("Workers must be non-negative, but is %d.", p.Workers)
	}

	if p.Regularization {
		if !(p.Eta > 0) {
			return fmt.Errorf("Eta must be positive, but is %g.", p.Eta)
		} else if !(p.Chi > 0) {
			return fmt.Errorf("Chi must be positive, but is %g.", p.Chi)
		}
	}
	return nil
}
