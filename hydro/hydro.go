/*package hydro contains the state vectors and the ideal-gas equation of state
shared by every stage of the solver.

Primitive states are pointwise (density, velocity, pressure). Conserved states
are either densities (mass, momentum, energy per unit volume) or, when stored
on a cell, volume-integrated totals. Which one is meant is always clear from
the function taking them.
*/
package hydro

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// NumVars is the number of fluid variables in two dimensions.
const NumVars = 4

// Indices into Primitive.
const (
	Density = iota
	VelX
	VelY
	Pressure
)

// Indices into Conserved.
const (
	Mass = iota
	MomX
	MomY
	Energy
)

// Primitive is the state (density, x-velocity, y-velocity, pressure).
type Primitive [NumVars]float64

// Conserved is the state (mass, x-momentum, y-momentum, total energy).
type Conserved [NumVars]float64

// Gradient holds the spatial gradient of every primitive variable.
type Gradient [NumVars]r2.Vec

// Velocity returns the velocity vector of a primitive state.
func (w *Primitive) Velocity() r2.Vec {
	return r2.Vec{X: w[VelX], Y: w[VelY]}
}

// Add adds v to u in place and returns u.
func (u *Conserved) Add(v *Conserved, scale float64) *Conserved {
	for k := range u {
		u[k] += scale * v[k]
	}
	return u
}

// EOS is an ideal-gas equation of state, p = (gamma - 1) rho e.
type EOS struct {
	Gamma float64
}

// Validate returns an error if the adiabatic index is unphysical.
func (e EOS) Validate() error {
	if !(e.Gamma > 1) || math.IsInf(e.Gamma, 0) {
		return fmt.Errorf("Gamma must be a finite number larger than 1, but is %g.", e.Gamma)
	}
	return nil
}

// Physical returns true if w has positive, finite density and pressure.
func Physical(w *Primitive) bool {
	return w[Density] > 0 && w[Pressure] > 0 &&
		!math.IsInf(w[Density], 0) && !math.IsInf(w[Pressure], 0)
}

// SoundSpeed returns the adiabatic sound speed of w.
func (e EOS) SoundSpeed(w *Primitive) float64 {
	return math.Sqrt(e.Gamma * w[Pressure] / w[Density])
}

// ToPrimitive converts the volume-integrated state u of a cell with the given
// volume into a primitive state.
func (e EOS) ToPrimitive(u *Conserved, vol float64) Primitive {
	var w Primitive
	w[Density] = u[Mass] / vol
	w[VelX] = u[MomX] / u[Mass]
	w[VelY] = u[MomY] / u[Mass]

	kinetic := 0.5 * w[Density] * (w[VelX]*w[VelX] + w[VelY]*w[VelY])
	w[Pressure] = (u[Energy]/vol - kinetic) * (e.Gamma - 1)
	return w
}

// ToConserved converts w into a conserved state integrated over vol. Passing
// vol = 1 gives conserved densities.
func (e EOS) ToConserved(w *Primitive, vol float64) Conserved {
	var u Conserved
	rho := w[Density]
	u[Mass] = rho * vol
	u[MomX] = rho * w[VelX] * vol
	u[MomY] = rho * w[VelY] * vol
	u[Energy] = e.EnergyDensity(w) * vol
	return u
}

// EnergyDensity returns the total energy per unit volume of w.
func (e EOS) EnergyDensity(w *Primitive) float64 {
	v2 := w[VelX]*w[VelX] + w[VelY]*w[VelY]
	return w[Pressure]/(e.Gamma-1) + 0.5*w[Density]*v2
}

// Flux returns the flux density of w through a stationary face with normal
// along +x.
func (e EOS) Flux(w *Primitive) Conserved {
	rho, u, v, p := w[Density], w[VelX], w[VelY], w[Pressure]
	en := e.EnergyDensity(w)
	return Conserved{rho * u, rho*u*u + p, rho * u * v, u * (en + p)}
}
