/*package mesh turns Voronoi diagrams into the flat adjacency and geometry
arrays used by the hydrodynamics.

Everything in this package is rebuilt from scratch every step. Nothing here
holds state across steps.
*/
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/voronoi"
)

// zeroRidgeEps is the ridge length, relative to the separation of its two
// generators, below which a ridge is treated as having no area.
const zeroRidgeEps = 1e-10

// Topology is the neighbor graph of a tessellation in compressed sparse row
// form. The neighbors of particle i are Neighbors[Offsets[i]:Offsets[i+1]]
// and the ridge shared with each of them is stored at the same position in
// Ridge.
type Topology struct {
	NumPoints int

	Neighbors []int
	Ridge     []int
	Counts    []int
	Offsets   []int

	// Ridges is the face graph: one entry per kept ridge.
	Ridges   []voronoi.Ridge
	Vertices []r2.Vec

	// Suspect marks generators which touched an unbounded ridge.
	Suspect []bool
}

// Neighborhood returns the neighbors of particle i and the ridges shared with
// them.
func (t *Topology) Neighborhood(i int) (neighbors, ridges []int) {
	lo, hi := t.Offsets[i], t.Offsets[i+1]
	return t.Neighbors[lo:hi], t.Ridge[lo:hi]
}

// Tessellator wraps a voronoi.Engine and produces Topologies.
type Tessellator struct {
	Engine voronoi.Engine
}

// NewTessellator returns a Tessellator using the default Delaunay engine.
func NewTessellator() *Tessellator {
	return &Tessellator{Engine: voronoi.Delaunay{}}
}

// Tessellate computes the Topology of pts. Unbounded ridges are dropped and
// their generators are marked suspect. Ridges with zero length are dropped.
func (tess *Tessellator) Tessellate(pts []r2.Vec) (*Topology, error) {
	d, err := tess.Engine.Tessellate(pts)
	if err != nil {
		return nil, fmt.Errorf("could not tessellate %d points: %w", len(pts), err)
	}

	n := len(pts)
	t := &Topology{
		NumPoints: n,
		Counts:    make([]int, n),
		Offsets:   make([]int, n+1),
		Suspect:   make([]bool, n),
		Vertices:  d.Vertices,
		Ridges:    make([]voronoi.Ridge, 0, len(d.Ridges)),
	}

	for _, r := range d.Ridges {
		i, j := r.Points[0], r.Points[1]
		if !r.Bounded() {
			t.Suspect[i], t.Suspect[j] = true, true
			continue
		}

		length := r2.Norm(r2.Sub(d.Vertices[r.Vertices[1]], d.Vertices[r.Vertices[0]]))
		sep := r2.Norm(r2.Sub(pts[j], pts[i]))
		if length <= zeroRidgeEps*sep {
			continue
		}

		t.Ridges = append(t.Ridges, r)
		t.Counts[i]++
		t.Counts[j]++
	}

	for i := 0; i < n; i++ {
		t.Offsets[i+1] = t.Offsets[i] + t.Counts[i]
	}

	total := t.Offsets[n]
	t.Neighbors = make([]int, total)
	t.Ridge = make([]int, total)

	fill := make([]int, n)
	copy(fill, t.Offsets[:n])
	for ri, r := range t.Ridges {
		i, j := r.Points[0], r.Points[1]

		t.Neighbors[fill[i]], t.Ridge[fill[i]] = j, ri
		fill[i]++
		t.Neighbors[fill[j]], t.Ridge[fill[j]] = i, ri
		fill[j]++
	}

	return t, nil
}
