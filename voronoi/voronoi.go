/*package voronoi maps a set of generator points to the ridges and vertices of
their Voronoi diagram.

This is the only place the solver does general-purpose computational
geometry. Everything downstream consumes a Diagram and never looks at how it
was built, so any Engine which is deterministic for a fixed input can be
swapped in.
*/
package voronoi

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// Unbounded marks a ridge vertex which lies at infinity.
const Unbounded = -1

const (
	// superScale is the size of the enclosing triangle in units of the
	// point set's extent.
	superScale = 20.0
	// circleEps is the relative tolerance used for in-circle tests. Points
	// which are cocircular to within this tolerance are treated as outside.
	circleEps = 1e-10
	// flatEps is the relative cross product below which a triangle is
	// considered flat.
	flatEps = 1e-13
)

var (
	// ErrTooFewPoints is returned when fewer than three points are given.
	ErrTooFewPoints = errors.New("voronoi: too few points")
	// ErrDegeneratePoint is returned when a point duplicates another point
	// or cannot be inserted without creating a flat triangle.
	ErrDegeneratePoint = errors.New("voronoi: degenerate point")
)

// Ridge is the boundary shared by the cells of two generators. Points are
// sorted so that Points[0] < Points[1]. Vertices index into
// Diagram.Vertices and may be Unbounded.
type Ridge struct {
	Points   [2]int
	Vertices [2]int
}

// Bounded returns true if neither end of the ridge is at infinity.
func (r *Ridge) Bounded() bool {
	return r.Vertices[0] != Unbounded && r.Vertices[1] != Unbounded
}

// Diagram is a Voronoi diagram given as a ridge list and a vertex table.
type Diagram struct {
	Vertices []r2.Vec
	Ridges   []Ridge
}

// Engine builds Voronoi diagrams. Implementations must return identical
// diagrams for identical input.
type Engine interface {
	Tessellate(pts []r2.Vec) (*Diagram, error)
}

// Delaunay is an Engine which computes the Delaunay triangulation with
// Bowyer-Watson insertion and returns its dual.
type Delaunay struct{}

var _ Engine = Delaunay{}

type triangle struct {
	v  [3]int
	cc r2.Vec
	r2 float64
}

type edge struct{ a, b int }

func (e edge) key() edge {
	if e.a > e.b {
		return edge{e.b, e.a}
	}
	return e
}

// newTriangle creates a counter-clockwise triangle and its circumcircle. It
// returns false if the corners are collinear.
func newTriangle(pts []r2.Vec, a, b, c int) (triangle, bool) {
	pa, pb, pc := pts[a], pts[b], pts[c]
	ab, ac := r2.Sub(pb, pa), r2.Sub(pc, pa)

	cross := r2.Cross(ab, ac)
	if cross < 0 {
		b, c = c, b
		ab, ac = ac, ab
		cross = -cross
	}
	if cross <= flatEps*r2.Norm(ab)*r2.Norm(ac) {
		return triangle{}, false
	}

	ab2, ac2 := r2.Norm2(ab), r2.Norm2(ac)
	d := 2 * cross
	u := r2.Vec{
		X: (ac.Y*ab2 - ab.Y*ac2) / d,
		Y: (ab.X*ac2 - ac.X*ab2) / d,
	}

	return triangle{
		v:  [3]int{a, b, c},
		cc: r2.Add(pa, u),
		r2: r2.Norm2(u),
	}, true
}

// inCircle returns true if p is strictly inside the circumcircle of t.
func (t *triangle) inCircle(p r2.Vec) bool {
	return r2.Norm2(r2.Sub(p, t.cc)) < t.r2*(1-circleEps)
}

// Tessellate computes the Voronoi diagram of pts. Ridges are sorted by their
// point pairs.
//
// TODO: locate the triangle containing each new point by walking from the
// previous insertion instead of scanning every triangle.
func (Delaunay) Tessellate(pts []r2.Vec) (*Diagram, error) {
	n := len(pts)
	if n < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, n)
	}

	all := make([]r2.Vec, n+3)
	copy(all, pts)

	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	span := math.Max(hi.X-lo.X, hi.Y-lo.Y)
	if !(span > 0) || math.IsInf(span, 0) {
		return nil, fmt.Errorf("%w: point set has extent %g", ErrDegeneratePoint, span)
	}
	mid := r2.Scale(0.5, r2.Add(lo, hi))
	s := superScale * span
	all[n] = r2.Vec{X: mid.X - s, Y: mid.Y - s}
	all[n+1] = r2.Vec{X: mid.X + s, Y: mid.Y - s}
	all[n+2] = r2.Vec{X: mid.X, Y: mid.Y + s}

	super, _ := newTriangle(all, n, n+1, n+2)
	tris := make([]triangle, 0, 2*n+4)
	tris = append(tris, super)

	cavity := []edge{}
	count := map[edge]int{}

	for i := 0; i < n; i++ {
		p := all[i]
		cavity = cavity[:0]
		clear(count)

		kept := tris[:0]
		for _, t := range tris {
			if !t.inCircle(p) {
				kept = append(kept, t)
				continue
			}
			for k := 0; k < 3; k++ {
				e := edge{t.v[k], t.v[(k+1)%3]}
				cavity = append(cavity, e)
				count[e.key()]++
			}
		}
		tris = kept

		if len(cavity) == 0 {
			return nil, fmt.Errorf("%w: point %d at %v", ErrDegeneratePoint, i, p)
		}

		for _, e := range cavity {
			if count[e.key()] != 1 {
				continue
			}
			// Cavity edges run counter-clockwise, so p must lie to their left.
			side := r2.Cross(r2.Sub(all[e.b], all[e.a]), r2.Sub(p, all[e.a]))
			t, ok := newTriangle(all, e.a, e.b, i)
			if !ok || side <= 0 {
				return nil, fmt.Errorf(
					"%w: point %d at %v is not strictly inside its cavity at edge (%d, %d)",
					ErrDegeneratePoint, i, p, e.a, e.b,
				)
			}
			tris = append(tris, t)
		}
	}

	return dual(tris, n), nil
}

// dual converts a triangulation into a Voronoi diagram, discarding every
// triangle that touches the enclosing triangle.
func dual(tris []triangle, n int) *Diagram {
	d := &Diagram{}
	index := make(map[edge]int, 3*len(tris)/2)

	for ti := range tris {
		t := &tris[ti]
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
			continue
		}

		vid := len(d.Vertices)
		d.Vertices = append(d.Vertices, t.cc)

		for k := 0; k < 3; k++ {
			key := edge{t.v[k], t.v[(k+1)%3]}.key()
			if ri, ok := index[key]; ok {
				d.Ridges[ri].Vertices[1] = vid
				continue
			}
			index[key] = len(d.Ridges)
			d.Ridges = append(d.Ridges, Ridge{
				Points:   [2]int{key.a, key.b},
				Vertices: [2]int{vid, Unbounded},
			})
		}
	}

	sort.Slice(d.Ridges, func(i, j int) bool {
		pi, pj := d.Ridges[i].Points, d.Ridges[j].Points
		if pi[0] != pj[0] {
			return pi[0] < pj[0]
		}
		return pi[1] < pj[1]
	})

	return d
}
