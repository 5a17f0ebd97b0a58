/*package riemann computes numerical fluxes across moving faces.

Every solver works on a one-dimensional problem along +x: states are rotated
so that VelX is the velocity normal to the face and VelY the tangential
velocity, and the face's own normal velocity is subtracted before solving.
*/
package riemann

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
)

// Kind is a Riemann solver.
type Kind int

const (
	Exact Kind = iota
	HLL
	HLLC
)

var (
	// ErrUnknownSolver is returned for unrecognized solver names.
	ErrUnknownSolver = errors.New("unknown Riemann solver")
	// ErrNonPositive is returned when a state with non-positive density or
	// pressure reaches a solver.
	ErrNonPositive = errors.New("non-positive density or pressure")
)

var (
	kindNames = map[string]Kind{
		"exact": Exact,
		"hll":   HLL,
		"hllc":  HLLC,
	}
	kindPrintNames = []string{"exact", "hll", "hllc"}
)

// ParseKind returns the Kind with the given (case-insensitive) name.
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := append([]string{}, kindPrintNames...)
		sort.Strings(names)
		return 0, fmt.Errorf("%w '%s': valid choices are %s",
			ErrUnknownSolver, name, strings.Join(names, ", "))
	}
	return k, nil
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindPrintNames) {
		return kindPrintNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// flux1D returns the flux through a stationary face with normal +x.
type flux1D func(eos hydro.EOS, l, r *hydro.Primitive) hydro.Conserved

// Solver computes fluxes with one of the Kinds.
type Solver struct {
	Kind Kind
	EOS  hydro.EOS

	flux flux1D
}

// New returns a Solver of the given kind.
func New(kind Kind, eos hydro.EOS) (*Solver, error) {
	if err := eos.Validate(); err != nil {
		return nil, err
	}

	s := &Solver{Kind: kind, EOS: eos}
	switch kind {
	case Exact:
		s.flux = exactFlux
	case HLL:
		s.flux = hllFlux
	case HLLC:
		s.flux = hllcFlux
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSolver, kind)
	}
	return s, nil
}

// Rotate returns w with its velocity rotated counter-clockwise by theta.
func Rotate(w hydro.Primitive, theta float64) hydro.Primitive {
	sin, cos := math.Sincos(theta)
	vx, vy := w[hydro.VelX], w[hydro.VelY]
	w[hydro.VelX] = cos*vx - sin*vy
	w[hydro.VelY] = sin*vx + cos*vy
	return w
}

// RotateFlux returns f with its momentum flux rotated counter-clockwise by
// theta.
func RotateFlux(f hydro.Conserved, theta float64) hydro.Conserved {
	sin, cos := math.Sincos(theta)
	fx, fy := f[hydro.MomX], f[hydro.MomY]
	f[hydro.MomX] = cos*fx - sin*fy
	f[hydro.MomY] = sin*fx + cos*fy
	return f
}

// toFace expresses w in the frame of a face with unit normal n moving with
// normal speed wn.
func toFace(w *hydro.Primitive, n r2.Vec, wn float64) hydro.Primitive {
	v := w.Velocity()
	out := *w
	out[hydro.VelX] = r2.Dot(n, v) - wn
	out[hydro.VelY] = r2.Cross(n, v)
	return out
}

// Flux returns the lab-frame flux per unit area through a face with unit
// normal n, pointing from left to right, which moves with velocity faceVel.
func (s *Solver) Flux(left, right *hydro.Primitive, n, faceVel r2.Vec) (hydro.Conserved, error) {
	if !hydro.Physical(left) || !hydro.Physical(right) {
		return hydro.Conserved{}, fmt.Errorf(
			"%w: left = %v, right = %v", ErrNonPositive, *left, *right)
	}

	wn := r2.Dot(faceVel, n)
	l, r := toFace(left, n, wn), toFace(right, n, wn)
	f := s.flux(s.EOS, &l, &r)

	// Return to the lab frame. The face frame only moves along n, so the
	// tangential momentum flux is unchanged.
	fm, fn, ft := f[hydro.Mass], f[hydro.MomX], f[hydro.MomY]
	fe := f[hydro.Energy] + wn*fn + 0.5*wn*wn*fm
	fn += wn * fm

	return hydro.Conserved{
		fm,
		fn*n.X - ft*n.Y,
		fn*n.Y + ft*n.X,
		fe,
	}, nil
}

// Timestep returns the smallest sound-crossing time, R / (|v| + c), over all
// cells with positive volume, where R is the radius of a circle with the
// cell's volume.
func (s *Solver) Timestep(prim []hydro.Primitive, vol []float64) float64 {
	if len(prim) < len(vol) {
		panic(fmt.Sprintf("len(prim) = %d, but len(vol) = %d.", len(prim), len(vol)))
	}

	dt := math.Inf(+1)
	for i, v := range vol {
		if v <= 0 {
			continue
		}
		r := math.Sqrt(v / math.Pi)
		w := &prim[i]
		speed := r2.Norm(w.Velocity()) + s.EOS.SoundSpeed(w)
		dt = math.Min(dt, r/speed)
	}
	return dt
}

// waveSpeeds returns the pressure-based estimates of the left and right
// wave speeds.
func waveSpeeds(eos hydro.EOS, l, r *hydro.Primitive) (sl, sr float64) {
	g := eos.Gamma
	rhoL, uL, pL := l[hydro.Density], l[hydro.VelX], l[hydro.Pressure]
	rhoR, uR, pR := r[hydro.Density], r[hydro.VelX], r[hydro.Pressure]
	cL, cR := eos.SoundSpeed(l), eos.SoundSpeed(r)

	pStar := 0.5*(pL+pR) - 0.125*(uR-uL)*(rhoL+rhoR)*(cL+cR)
	pStar = math.Max(0, pStar)

	q := func(p float64) float64 {
		if pStar <= p {
			return 1
		}
		return math.Sqrt(1 + (g+1)/(2*g)*(pStar/p-1))
	}

	return uL - cL*q(pL), uR + cR*q(pR)
}

func hllFlux(eos hydro.EOS, l, r *hydro.Primitive) hydro.Conserved {
	sl, sr := waveSpeeds(eos, l, r)
	switch {
	case sl >= 0:
		return eos.Flux(l)
	case sr <= 0:
		return eos.Flux(r)
	}

	fl, fr := eos.Flux(l), eos.Flux(r)
	ul, ur := eos.ToConserved(l, 1), eos.ToConserved(r, 1)

	var f hydro.Conserved
	for k := range f {
		f[k] = (sr*fl[k] - sl*fr[k] + sl*sr*(ur[k]-ul[k])) / (sr - sl)
	}
	return f
}

func hllcFlux(eos hydro.EOS, l, r *hydro.Primitive) hydro.Conserved {
	sl, sr := waveSpeeds(eos, l, r)
	switch {
	case sl >= 0:
		return eos.Flux(l)
	case sr <= 0:
		return eos.Flux(r)
	}

	rhoL, uL, pL := l[hydro.Density], l[hydro.VelX], l[hydro.Pressure]
	rhoR, uR, pR := r[hydro.Density], r[hydro.VelX], r[hydro.Pressure]

	sStar := (pR - pL + rhoL*uL*(sl-uL) - rhoR*uR*(sr-uR)) /
		(rhoL*(sl-uL) - rhoR*(sr-uR))

	w, sk := l, sl
	if sStar < 0 {
		w, sk = r, sr
	}

	rho, u, v, p := w[hydro.Density], w[hydro.VelX], w[hydro.VelY], w[hydro.Pressure]
	uk := eos.ToConserved(w, 1)
	fk := eos.Flux(w)

	scale := rho * (sk - u) / (sk - sStar)
	star := hydro.Conserved{
		scale,
		scale * sStar,
		scale * v,
		scale * (uk[hydro.Energy]/rho + (sStar-u)*(sStar+p/(rho*(sk-u)))),
	}

	var f hydro.Conserved
	for k := range f {
		f[k] = fk[k] + sk*(star[k]-uk[k])
	}
	return f
}

func exactFlux(eos hydro.EOS, l, r *hydro.Primitive) hydro.Conserved {
	w := Sample(l, r, eos, 0)
	return eos.Flux(&w)
}
