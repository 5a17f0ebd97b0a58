package riemann

import (
	"math"

	"github.com/phil-mansfield/movingmesh/hydro"
)

const (
	newtonTol   = 1e-12
	newtonIters = 100
	pressureMin = 1e-14
)

// starState holds the solution of the exact Riemann problem between the
// two nonlinear waves.
type starState struct {
	p, u float64
}

// pressureFunc evaluates the Rankine-Hugoniot (p > pk) or isentropic
// (p <= pk) relation between state k and the star region and its derivative
// with respect to p.
func pressureFunc(g, p, rho, pk, ck float64) (f, df float64) {
	if p > pk {
		a := 2 / ((g + 1) * rho)
		b := (g - 1) / (g + 1) * pk
		root := math.Sqrt(a / (p + b))
		return (p - pk) * root, root * (1 - 0.5*(p-pk)/(b+p))
	}

	ratio := p / pk
	f = 2 * ck / (g - 1) * (math.Pow(ratio, (g-1)/(2*g)) - 1)
	df = math.Pow(ratio, -(g+1)/(2*g)) / (rho * ck)
	return f, df
}

// solveStar finds the star-region pressure and velocity with Newton
// iteration started from the primitive-variable estimate.
func solveStar(g float64, l, r *hydro.Primitive, cL, cR float64) starState {
	rhoL, uL, pL := l[hydro.Density], l[hydro.VelX], l[hydro.Pressure]
	rhoR, uR, pR := r[hydro.Density], r[hydro.VelX], r[hydro.Pressure]
	du := uR - uL

	p := 0.5*(pL+pR) - 0.125*du*(rhoL+rhoR)*(cL+cR)
	p = math.Max(pressureMin, p)

	for i := 0; i < newtonIters; i++ {
		fl, dfl := pressureFunc(g, p, rhoL, pL, cL)
		fr, dfr := pressureFunc(g, p, rhoR, pR, cR)

		next := p - (fl+fr+du)/(dfl+dfr)
		if next < pressureMin {
			next = pressureMin
		}
		change := 2 * math.Abs(next-p) / (next + p)
		p = next
		if change < newtonTol {
			break
		}
	}

	fl, _ := pressureFunc(g, p, rhoL, pL, cL)
	fr, _ := pressureFunc(g, p, rhoR, pR, cR)
	return starState{p: p, u: 0.5*(uL+uR) + 0.5*(fr-fl)}
}

// Sample returns the exact self-similar solution of the Riemann problem
// between l and r at x/t = s. States are one-dimensional: VelX is the
// velocity along the problem axis and VelY is a passively advected
// tangential velocity. Regions of vacuum have zero density and pressure.
func Sample(l, r *hydro.Primitive, eos hydro.EOS, s float64) hydro.Primitive {
	g := eos.Gamma
	cL, cR := eos.SoundSpeed(l), eos.SoundSpeed(r)
	uL, uR := l[hydro.VelX], r[hydro.VelX]

	if 2/(g-1)*(cL+cR) <= uR-uL {
		return sampleVacuum(g, l, r, cL, cR, s)
	}

	star := solveStar(g, l, r, cL, cR)
	if s <= star.u {
		return sampleSide(g, l, cL, star, s, -1)
	}
	return sampleSide(g, r, cR, star, s, +1)
}

// sampleSide samples the wave structure on one side of the contact. dir is
// -1 for the left wave and +1 for the right wave. The left wave is handled
// as the mirror image (x -> -x, u -> -u) of a right wave.
func sampleSide(g float64, w *hydro.Primitive, c float64, star starState, s, dir float64) hydro.Primitive {
	rho, u, vt, p := w[hydro.Density], dir*w[hydro.VelX], w[hydro.VelY], w[hydro.Pressure]
	us, ss := dir*star.u, dir*s
	ratio := star.p / p

	var out hydro.Primitive
	out[hydro.VelY] = vt

	if star.p > p {
		// Shock.
		speed := u + c*math.Sqrt((g+1)/(2*g)*ratio+(g-1)/(2*g))
		if ss >= speed {
			return *w
		}
		g6 := (g - 1) / (g + 1)
		out[hydro.Density] = rho * (ratio + g6) / (g6*ratio + 1)
		out[hydro.VelX] = dir * us
		out[hydro.Pressure] = star.p
		return out
	}

	// Rarefaction.
	head := u + c
	if ss >= head {
		return *w
	}
	cStar := c * math.Pow(ratio, (g-1)/(2*g))
	tail := us + cStar
	if ss <= tail {
		out[hydro.Density] = rho * math.Pow(ratio, 1/g)
		out[hydro.VelX] = dir * us
		out[hydro.Pressure] = star.p
		return out
	}

	base := 2/(g+1) - (g-1)/((g+1)*c)*(u-ss)
	out[hydro.Density] = rho * math.Pow(base, 2/(g-1))
	out[hydro.VelX] = dir * 2 / (g + 1) * (-c + (g-1)/2*u + ss)
	out[hydro.Pressure] = p * math.Pow(base, 2*g/(g-1))
	return out
}

// sampleVacuum samples a Riemann problem whose rarefactions are strong
// enough to open a vacuum between them.
func sampleVacuum(g float64, l, r *hydro.Primitive, cL, cR, s float64) hydro.Primitive {
	uL, uR := l[hydro.VelX], r[hydro.VelX]
	frontL := uL + 2*cL/(g-1)
	frontR := uR - 2*cR/(g-1)

	switch {
	case s <= frontL:
		return sampleSide(g, l, cL, starState{p: 0, u: frontL}, s, -1)
	case s >= frontR:
		return sampleSide(g, r, cR, starState{p: 0, u: frontR}, s, +1)
	}

	var out hydro.Primitive
	out[hydro.VelX] = 0.5 * (frontL + frontR)
	return out
}
