package mesh

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/par"
)

const (
	// closureEps is the largest relative residual |sum A n| / sum A allowed
	// for a closed cell.
	closureEps = 1e-8
	// radiusFactor scales the distance to a cell's farthest vertex into the
	// radius inside which other generators can change the cell.
	radiusFactor = 2.01
)

// GeometryError reports a cell whose geometry could not be computed.
type GeometryError struct {
	Particle int
	Reason   string
}

func (err *GeometryError) Error() string {
	return fmt.Sprintf("geometry of particle %d: %s", err.Particle, err.Reason)
}

// Geometry holds the cell and face geometry of a tessellation. Cell arrays
// have one entry per real particle. Face arrays have one entry per kept
// ridge with at least one real generator.
type Geometry struct {
	NumReal int

	Volume []float64
	COM    []r2.Vec
	Radius []float64
	Valid  []bool

	// I is always a real particle and I < J.
	I, J []int
	Area []float64
	// Normal points from I to J and is the rotation frame of the face.
	Normal  []r2.Vec
	FaceCOM []r2.Vec

	// RidgeFace maps ridges in Topology.Ridges to faces. Ridges between
	// two ghosts map to -1.
	RidgeFace []int
}

// NumFaces returns the number of faces.
func (g *Geometry) NumFaces() int { return len(g.I) }

// Invalid returns the real cells whose polygon could not be closed.
func (g *Geometry) Invalid() []int {
	out := []int{}
	for i, ok := range g.Valid {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

// Compute calculates the geometry of the first numReal cells of topo and of
// every face touching them. pts must be the points topo was built from and
// real particles must come before ghosts.
func Compute(topo *Topology, pts []r2.Vec, numReal, workers int) (*Geometry, error) {
	if len(pts) != topo.NumPoints {
		panic(fmt.Sprintf("Topology has %d points, but %d positions were given.",
			topo.NumPoints, len(pts)))
	} else if numReal > len(pts) {
		panic(fmt.Sprintf("numReal = %d, but there are only %d points.",
			numReal, len(pts)))
	}

	g := &Geometry{
		NumReal:   numReal,
		Volume:    make([]float64, numReal),
		COM:       make([]r2.Vec, numReal),
		Radius:    make([]float64, numReal),
		Valid:     make([]bool, numReal),
		RidgeFace: make([]int, len(topo.Ridges)),
	}

	err := par.For(numReal, workers, func(lo, hi int) error {
		var buf cellBuffer
		for i := lo; i < hi; i++ {
			if err := buf.compute(topo, pts, i, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.faces(topo, pts, numReal)
	return g, nil
}

// faces fills in the face arrays.
func (g *Geometry) faces(topo *Topology, pts []r2.Vec, numReal int) {
	n := 0
	for ri, r := range topo.Ridges {
		if r.Points[0] < numReal {
			g.RidgeFace[ri] = n
			n++
		} else {
			g.RidgeFace[ri] = -1
		}
	}

	g.I, g.J = make([]int, n), make([]int, n)
	g.Area = make([]float64, n)
	g.Normal, g.FaceCOM = make([]r2.Vec, n), make([]r2.Vec, n)

	for ri, r := range topo.Ridges {
		f := g.RidgeFace[ri]
		if f < 0 {
			continue
		}
		i, j := r.Points[0], r.Points[1]
		v0, v1 := topo.Vertices[r.Vertices[0]], topo.Vertices[r.Vertices[1]]
		d := r2.Sub(pts[j], pts[i])

		g.I[f], g.J[f] = i, j
		g.Area[f] = r2.Norm(r2.Sub(v1, v0))
		g.Normal[f] = r2.Unit(d)
		g.FaceCOM[f] = r2.Scale(0.5, r2.Add(v0, v1))
	}
}

// cellBuffer holds the per-cell scratch space reused across cells.
type cellBuffer struct {
	vertices []int
	angles   []float64
}

func (buf *cellBuffer) Len() int { return len(buf.vertices) }
func (buf *cellBuffer) Less(a, b int) bool {
	return buf.angles[a] < buf.angles[b]
}
func (buf *cellBuffer) Swap(a, b int) {
	buf.vertices[a], buf.vertices[b] = buf.vertices[b], buf.vertices[a]
	buf.angles[a], buf.angles[b] = buf.angles[b], buf.angles[a]
}

// compute writes the volume, center of mass, radius and validity of cell i
// into g.
func (buf *cellBuffer) compute(topo *Topology, pts []r2.Vec, i int, g *Geometry) error {
	x := pts[i]
	if math.IsNaN(x.X) || math.IsNaN(x.Y) || math.IsInf(x.X, 0) || math.IsInf(x.Y, 0) {
		return &GeometryError{Particle: i, Reason: fmt.Sprintf("position %v is not finite", x)}
	}

	neighbors, ridges := topo.Neighborhood(i)

	buf.vertices = buf.vertices[:0]
	var residual r2.Vec
	totalArea := 0.0
	for k, ri := range ridges {
		r := &topo.Ridges[ri]
		for _, v := range r.Vertices {
			if !containsInt(buf.vertices, v) {
				buf.vertices = append(buf.vertices, v)
			}
		}

		area := r2.Norm(r2.Sub(topo.Vertices[r.Vertices[1]], topo.Vertices[r.Vertices[0]]))
		n := r2.Unit(r2.Sub(pts[neighbors[k]], x))
		residual = r2.Add(residual, r2.Scale(area, n))
		totalArea += area
	}

	buf.angles = buf.angles[:0]
	for _, v := range buf.vertices {
		d := r2.Sub(topo.Vertices[v], x)
		buf.angles = append(buf.angles, math.Atan2(d.Y, d.X))
	}
	sort.Sort(buf)

	vol, maxDist := 0.0, 0.0
	var moment r2.Vec
	nv := len(buf.vertices)
	for k := 0; k < nv; k++ {
		a := r2.Sub(topo.Vertices[buf.vertices[k]], x)
		b := r2.Sub(topo.Vertices[buf.vertices[(k+1)%nv]], x)

		tri := 0.5 * r2.Cross(a, b)
		vol += tri
		moment = r2.Add(moment, r2.Scale(tri/3, r2.Add(a, b)))
		maxDist = math.Max(maxDist, r2.Norm(a))
	}

	valid := !topo.Suspect[i] && nv >= 3 && vol > 0 &&
		r2.Norm(residual) <= closureEps*totalArea

	g.Valid[i] = valid
	if valid {
		g.Volume[i] = vol
		g.COM[i] = r2.Add(x, r2.Scale(1/vol, moment))
		g.Radius[i] = radiusFactor * maxDist
	} else {
		g.Volume[i] = 0
		g.COM[i] = x
		g.Radius[i] = math.Inf(+1)
	}

	return nil
}

func containsInt(xs []int, x int) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}
