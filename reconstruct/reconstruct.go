/*package reconstruct estimates cell gradients and extrapolates cell states
to the left and right sides of every face.

Gradients are computed for real cells only. Ghost gradients are copied from
their real counterparts by the boundary package before extrapolation.
*/
package reconstruct

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/mesh"
	"github.com/phil-mansfield/movingmesh/par"
)

// Kind is a gradient reconstruction scheme.
type Kind int

const (
	// Constant uses zero gradients, giving a first order scheme.
	Constant Kind = iota
	// GreenGauss uses the Voronoi Green-Gauss estimate, which is exact for
	// linear fields.
	GreenGauss
	// LeastSquares fits a linear field to the neighbors of each cell.
	LeastSquares
)

// ErrUnknownScheme is returned for unrecognized reconstruction schemes.
var ErrUnknownScheme = errors.New("unknown reconstruction scheme")

var (
	kindNames = map[string]Kind{
		"constant":      Constant,
		"green-gauss":   GreenGauss,
		"least-squares": LeastSquares,
	}
	kindPrintNames = []string{"constant", "green-gauss", "least-squares"}
)

// ParseKind returns the Kind with the given (case-insensitive) name.
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := append([]string{}, kindPrintNames...)
		sort.Strings(names)
		return 0, fmt.Errorf("%w '%s': valid choices are %s",
			ErrUnknownScheme, name, strings.Join(names, ", "))
	}
	return k, nil
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindPrintNames) {
		return kindPrintNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is the state of every particle, real and ghost, needed to
// reconstruct face states. Pos, COM, Prim and MeshVel have one entry per
// particle; Geo describes the first Geo.NumReal of them.
type Field struct {
	Topo    *mesh.Topology
	Geo     *mesh.Geometry
	Pos     []r2.Vec
	COM     []r2.Vec
	Prim    []hydro.Primitive
	MeshVel []r2.Vec
	EOS     hydro.EOS
	Workers int
}

func (f *Field) check() {
	n := f.Topo.NumPoints
	if len(f.Pos) != n || len(f.COM) != n || len(f.Prim) != n || len(f.MeshVel) != n {
		panic(fmt.Sprintf("Field has %d particles, but len(Pos) = %d, "+
			"len(COM) = %d, len(Prim) = %d, len(MeshVel) = %d.",
			n, len(f.Pos), len(f.COM), len(f.Prim), len(f.MeshVel)))
	}
}

// outward returns the normal of face fi pointing out of cell i.
func (f *Field) outward(fi, i int) r2.Vec {
	if f.Geo.I[fi] == i {
		return f.Geo.Normal[fi]
	}
	return r2.Scale(-1, f.Geo.Normal[fi])
}

// Reconstructor computes gradients and face states.
type Reconstructor struct {
	Kind Kind
	// Limiter is true if gradients should be passed through Limit before
	// extrapolation.
	Limiter bool
}

// New returns a slope-limited Reconstructor of the given kind.
func New(kind Kind) (*Reconstructor, error) {
	switch kind {
	case Constant, GreenGauss, LeastSquares:
		return &Reconstructor{Kind: kind, Limiter: true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, kind)
}

// Gradient returns the unlimited gradient of every primitive variable. The
// returned slice has one entry per particle and only real entries are set.
func (r *Reconstructor) Gradient(f *Field) ([]hydro.Gradient, error) {
	f.check()
	grad := make([]hydro.Gradient, f.Topo.NumPoints)
	numReal := f.Geo.NumReal

	var err error
	switch r.Kind {
	case Constant:
		return grad, nil
	case GreenGauss:
		err = par.For(numReal, f.Workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				grad[i] = greenGauss(f, i)
			}
			return nil
		})
	case LeastSquares:
		err = par.For(numReal, f.Workers, func(lo, hi int) error {
			fit := newLSQ()
			for i := lo; i < hi; i++ {
				grad[i] = fit.gradient(f, i)
			}
			return nil
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, r.Kind)
	}
	if err != nil {
		return nil, err
	}
	return grad, nil
}

// greenGauss returns the gradient of cell i,
//
//     (1/V) sum_j A_ij (phi_j - phi_i) (n_ij / 2 + c_ij / |r_ij|)
//
// where c_ij is the offset of the face centroid from the midpoint of the two
// generators.
func greenGauss(f *Field, i int) hydro.Gradient {
	var g hydro.Gradient
	vol := f.Geo.Volume[i]
	if !f.Geo.Valid[i] || vol <= 0 {
		return g
	}

	xi := f.Pos[i]
	neighbors, ridges := f.Topo.Neighborhood(i)
	for k, j := range neighbors {
		fi := f.Geo.RidgeFace[ridges[k]]
		xj := f.Pos[j]

		dist := r2.Norm(r2.Sub(xj, xi))
		mid := r2.Scale(0.5, r2.Add(xi, xj))
		c := r2.Sub(f.Geo.FaceCOM[fi], mid)
		w := r2.Add(r2.Scale(0.5, f.outward(fi, i)), r2.Scale(1/dist, c))
		w = r2.Scale(f.Geo.Area[fi]/vol, w)

		for v := 0; v < hydro.NumVars; v++ {
			g[v] = r2.Add(g[v], r2.Scale(f.Prim[j][v]-f.Prim[i][v], w))
		}
	}
	return g
}

// lsq holds the matrices reused by least squares fits.
type lsq struct {
	chol mat.Cholesky
	a    *mat.SymDense
	b    *mat.Dense
	x    *mat.Dense
}

func newLSQ() *lsq {
	return &lsq{
		a: mat.NewSymDense(2, nil),
		b: mat.NewDense(2, hydro.NumVars, nil),
		x: mat.NewDense(2, hydro.NumVars, nil),
	}
}

// gradient fits phi_j - phi_i = G . (x_j - x_i) over the neighbors of i,
// weighting each neighbor by A_ij / |x_j - x_i|^2. Cells with a singular fit
// get zero gradients.
func (fit *lsq) gradient(f *Field, i int) hydro.Gradient {
	var g hydro.Gradient
	if !f.Geo.Valid[i] {
		return g
	}

	var axx, axy, ayy float64
	var bx, by [hydro.NumVars]float64

	xi := f.Pos[i]
	neighbors, ridges := f.Topo.Neighborhood(i)
	for k, j := range neighbors {
		fi := f.Geo.RidgeFace[ridges[k]]
		d := r2.Sub(f.Pos[j], xi)
		w := f.Geo.Area[fi] / r2.Norm2(d)

		axx += w * d.X * d.X
		axy += w * d.X * d.Y
		ayy += w * d.Y * d.Y
		for v := 0; v < hydro.NumVars; v++ {
			dphi := f.Prim[j][v] - f.Prim[i][v]
			bx[v] += w * dphi * d.X
			by[v] += w * dphi * d.Y
		}
	}

	fit.a.SetSym(0, 0, axx)
	fit.a.SetSym(0, 1, axy)
	fit.a.SetSym(1, 1, ayy)
	for v := 0; v < hydro.NumVars; v++ {
		fit.b.Set(0, v, bx[v])
		fit.b.Set(1, v, by[v])
	}

	if ok := fit.chol.Factorize(fit.a); !ok {
		return g
	}
	if err := fit.chol.SolveTo(fit.x, fit.b); err != nil {
		return g
	}

	for v := 0; v < hydro.NumVars; v++ {
		g[v] = r2.Vec{X: fit.x.At(0, v), Y: fit.x.At(1, v)}
	}
	return g
}

// Limit scales the gradient of each variable in each real cell by the
// largest factor in [0, 1] for which the extrapolated value at every face
// centroid stays within the range of the cell and its neighbors.
func Limit(f *Field, grad []hydro.Gradient) {
	for i := 0; i < f.Geo.NumReal; i++ {
		neighbors, ridges := f.Topo.Neighborhood(i)

		lo, hi := f.Prim[i], f.Prim[i]
		for _, j := range neighbors {
			for v := 0; v < hydro.NumVars; v++ {
				lo[v] = math.Min(lo[v], f.Prim[j][v])
				hi[v] = math.Max(hi[v], f.Prim[j][v])
			}
		}

		alpha := [hydro.NumVars]float64{1, 1, 1, 1}
		for _, ri := range ridges {
			dx := r2.Sub(f.Geo.FaceCOM[f.Geo.RidgeFace[ri]], f.COM[i])
			for v := 0; v < hydro.NumVars; v++ {
				dphi := r2.Dot(grad[i][v], dx)
				var psi float64
				switch {
				case dphi > 0:
					psi = (hi[v] - f.Prim[i][v]) / dphi
				case dphi < 0:
					psi = (lo[v] - f.Prim[i][v]) / dphi
				default:
					psi = 1
				}
				alpha[v] = math.Min(alpha[v], psi)
			}
		}

		for v := 0; v < hydro.NumVars; v++ {
			grad[i][v] = r2.Scale(math.Max(alpha[v], 0), grad[i][v])
		}
	}
}

// States holds the reconstructed primitive states on either side of each
// face. Left belongs to Geometry.I and Right to Geometry.J.
type States struct {
	Left, Right []hydro.Primitive
	// Fallbacks counts face sides which were reverted to first order.
	Fallbacks int
}

// Extrapolate predicts the state of each cell at the centroid of each of its
// faces, half a timestep ahead. grad must hold gradients for every particle,
// ghosts included. Sides with non-positive density or pressure revert to the
// cell value.
func (r *Reconstructor) Extrapolate(f *Field, grad []hydro.Gradient, dt float64) (*States, error) {
	f.check()
	if len(grad) != f.Topo.NumPoints {
		panic(fmt.Sprintf("len(grad) = %d, but there are %d particles.",
			len(grad), f.Topo.NumPoints))
	}

	nf := f.Geo.NumFaces()
	st := &States{
		Left:  make([]hydro.Primitive, nf),
		Right: make([]hydro.Primitive, nf),
	}

	var fallbacks int64
	err := par.For(nf, f.Workers, func(lo, hi int) error {
		n := int64(0)
		for fi := lo; fi < hi; fi++ {
			var ok bool
			st.Left[fi], ok = predict(f, grad, f.Geo.I[fi], fi, dt)
			if !ok {
				n++
			}
			st.Right[fi], ok = predict(f, grad, f.Geo.J[fi], fi, dt)
			if !ok {
				n++
			}
		}
		atomic.AddInt64(&fallbacks, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	st.Fallbacks = int(fallbacks)
	return st, nil
}

// predict returns the state of cell i at the centroid of face fi and time
// dt/2 and false if it had to fall back to the cell value.
func predict(f *Field, grad []hydro.Gradient, i, fi int, dt float64) (hydro.Primitive, bool) {
	w := f.Prim[i]
	g := &grad[i]
	dx := r2.Sub(f.Geo.FaceCOM[fi], f.COM[i])

	rho, p := w[hydro.Density], w[hydro.Pressure]
	a := r2.Sub(w.Velocity(), f.MeshVel[i])
	div := g[hydro.VelX].X + g[hydro.VelY].Y

	var dwdt hydro.Primitive
	dwdt[hydro.Density] = -r2.Dot(a, g[hydro.Density]) - rho*div
	dwdt[hydro.VelX] = -r2.Dot(a, g[hydro.VelX]) - g[hydro.Pressure].X/rho
	dwdt[hydro.VelY] = -r2.Dot(a, g[hydro.VelY]) - g[hydro.Pressure].Y/rho
	dwdt[hydro.Pressure] = -r2.Dot(a, g[hydro.Pressure]) - f.EOS.Gamma*p*div

	var out hydro.Primitive
	for v := 0; v < hydro.NumVars; v++ {
		out[v] = w[v] + r2.Dot(g[v], dx) + 0.5*dt*dwdt[v]
	}

	if !hydro.Physical(&out) || math.IsNaN(out[hydro.VelX]) || math.IsNaN(out[hydro.VelY]) {
		return w, false
	}
	return out, true
}
