/*package ics generates initial conditions for test problems.

All generators place particles on a cell-centered lattice and perturb them
with a seeded random offset. Exact lattices are full of cocircular point
sets, so a small jitter is required for a well-defined tessellation.
*/
package ics

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/boundary"
	"github.com/phil-mansfield/movingmesh/hydro"
)

// DefaultJitter is the lattice perturbation used by the command line tool,
// as a fraction of the lattice spacing.
const DefaultJitter = 0.01

// Lattice returns nx*ny points at the centers of a regular grid covering dom.
// Each point is displaced by up to jitter/2 lattice spacings along each
// axis. Points are ordered with x varying fastest.
func Lattice(dom boundary.Domain, nx, ny int, jitter float64, seed int64) ([]r2.Vec, error) {
	if err := dom.Validate(); err != nil {
		return nil, err
	} else if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("Lattice dimensions must be positive, but are %d x %d.", nx, ny)
	} else if jitter < 0 || jitter >= 1 {
		return nil, fmt.Errorf("Jitter must be in the range [0, 1), but is %g.", jitter)
	}

	size := dom.Size()
	dx, dy := size.X/float64(nx), size.Y/float64(ny)
	gen := rand.New(rand.NewSource(seed))

	pts := make([]r2.Vec, 0, nx*ny)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			ox := jitter * (gen.Float64() - 0.5)
			oy := jitter * (gen.Float64() - 0.5)
			pts = append(pts, r2.Vec{
				X: dom.Min.X + (float64(ix)+0.5+ox)*dx,
				Y: dom.Min.Y + (float64(iy)+0.5+oy)*dy,
			})
		}
	}
	return pts, nil
}

// Uniform assigns the state w to every point.
func Uniform(pts []r2.Vec, w hydro.Primitive) []hydro.Primitive {
	prim := make([]hydro.Primitive, len(pts))
	for i := range prim {
		prim[i] = w
	}
	return prim
}

// Split assigns left to points with x < x0 and right to all others.
func Split(pts []r2.Vec, x0 float64, left, right hydro.Primitive) []hydro.Primitive {
	prim := make([]hydro.Primitive, len(pts))
	for i, p := range pts {
		if p.X < x0 {
			prim[i] = left
		} else {
			prim[i] = right
		}
	}
	return prim
}

// SodLeft and SodRight are the states of Sod's shock tube.
var (
	SodLeft  = hydro.Primitive{1, 0, 0, 1}
	SodRight = hydro.Primitive{0.125, 0, 0, 0.1}
)

// Sod returns a jittered lattice with Sod's shock tube states on either
// side of the vertical line through the middle of dom.
func Sod(dom boundary.Domain, nx, ny int, jitter float64, seed int64) ([]r2.Vec, []hydro.Primitive, error) {
	pts, err := Lattice(dom, nx, ny, jitter, seed)
	if err != nil {
		return nil, nil, err
	}
	x0 := 0.5 * (dom.Min.X + dom.Max.X)
	return pts, Split(pts, x0, SodLeft, SodRight), nil
}
