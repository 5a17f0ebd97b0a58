package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/mesh"
)

// meshVelocities returns the velocity of each real generator: the fluid
// velocity of its cell plus, with regularization on, a drift towards the
// cell's center of mass which ramps up smoothly between 0.9 and 1.1 times
// Eta cell radii.
func meshVelocities(p *Params, eos hydro.EOS, geo *mesh.Geometry,
	pos []r2.Vec, prim []hydro.Primitive, total int) []r2.Vec {

	vel := make([]r2.Vec, total)
	for i := 0; i < geo.NumReal; i++ {
		vel[i] = prim[i].Velocity()
		if !p.Regularization {
			continue
		}

		d := r2.Sub(geo.COM[i], pos[i])
		dist := r2.Norm(d)
		lim := p.Eta * math.Sqrt(geo.Volume[i]/math.Pi)
		if dist <= 0.9*lim {
			continue
		}

		speed := p.Chi * eos.SoundSpeed(&prim[i])
		if dist < 1.1*lim {
			speed *= (dist - 0.9*lim) / (0.2 * lim)
		}
		vel[i] = r2.Add(vel[i], r2.Scale(speed/dist, d))
	}
	return vel
}

// faceVelocities returns the velocity of each face: the mean of its two
// generator velocities, corrected for the offset of the face centroid from
// the generators' midpoint.
func faceVelocities(geo *mesh.Geometry, pos, vel []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, geo.NumFaces())
	for f := range out {
		i, j := geo.I[f], geo.J[f]
		xi, xj := pos[i], pos[j]
		wi, wj := vel[i], vel[j]

		mid := r2.Scale(0.5, r2.Add(xi, xj))
		dx := r2.Sub(xj, xi)
		corr := r2.Dot(r2.Sub(wi, wj), r2.Sub(geo.FaceCOM[f], mid)) / r2.Norm2(dx)

		out[f] = r2.Add(r2.Scale(0.5, r2.Add(wi, wj)), r2.Scale(corr, dx))
	}
	return out
}
