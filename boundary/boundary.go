/*package boundary synthesizes the ghost particles which close the
tessellation at the edges of the domain and copies fields from real
particles onto them.

Ghosts are regenerated from scratch every step. Particles [0, NumReal) are
real and particles [NumReal, NumReal + len(Ref)) are ghosts, with ghost k an
image of real particle Ref[k].
*/
package boundary

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/mesh"
)

// Kind is the type of boundary condition applied on every wall of the
// domain.
type Kind int

const (
	Reflective Kind = iota
	Periodic
)

// ErrUnknownKind is returned when a boundary condition name is not
// recognized.
var ErrUnknownKind = errors.New("unknown boundary condition")

var kindNames = map[string]Kind{
	"reflective": Reflective,
	"periodic":   Periodic,
}

// Names returns the recognized boundary condition names in sorted order.
func Names() []string {
	names := make([]string, 0, len(kindNames))
	for name := range kindNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseKind returns the Kind with the given (case-insensitive) name.
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w '%s': valid choices are %s",
			ErrUnknownKind, name, strings.Join(Names(), ", "))
	}
	return k, nil
}

var kindPrintNames = []string{"reflective", "periodic"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindPrintNames) {
		return kindPrintNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Domain is an axis-aligned rectangle.
type Domain struct {
	Min, Max r2.Vec
}

// Size returns the side lengths of the domain.
func (d Domain) Size() r2.Vec { return r2.Sub(d.Max, d.Min) }

// Volume returns the area of the domain.
func (d Domain) Volume() float64 {
	s := d.Size()
	return s.X * s.Y
}

// Validate returns an error if the domain has non-positive or non-finite
// extent.
func (d Domain) Validate() error {
	s := d.Size()
	if !(s.X > 0) || !(s.Y > 0) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) {
		return fmt.Errorf("Domain must have positive, finite extent, but has "+
			"Min = %v and Max = %v.", d.Min, d.Max)
	}
	return nil
}

// Contains returns true if p is inside the domain expanded by margin on every
// side.
func (d Domain) Contains(p r2.Vec, margin float64) bool {
	return p.X >= d.Min.X-margin && p.X <= d.Max.X+margin &&
		p.Y >= d.Min.Y-margin && p.Y <= d.Max.Y+margin
}

// Ghosts describes the ghost particles generated by one call to
// Manager.Update.
type Ghosts struct {
	NumReal int
	// Ref is the real particle each ghost is an image of.
	Ref []int
	// Shift is the wall crossed along each axis: -1 for the lower wall, +1
	// for the upper wall and 0 if the axis is not crossed.
	Shift [][2]int8
}

// Len returns the number of ghosts.
func (g *Ghosts) Len() int { return len(g.Ref) }

// Total returns the number of real particles plus the number of ghosts.
func (g *Ghosts) Total() int { return g.NumReal + len(g.Ref) }

// condition is implemented by each Kind.
type condition interface {
	// image maps coordinate x across the walls at lo and hi in direction s.
	image(x, lo, hi float64, s int8) float64
	// parity is the factor applied to vector components along an axis with
	// shift s.
	parity(s int8) float64
}

type reflective struct{}
type periodic struct{}

func (reflective) image(x, lo, hi float64, s int8) float64 {
	switch {
	case s < 0:
		return 2*lo - x
	case s > 0:
		return 2*hi - x
	}
	return x
}

func (reflective) parity(s int8) float64 {
	if s != 0 {
		return -1
	}
	return +1
}

func (periodic) image(x, lo, hi float64, s int8) float64 {
	return x + float64(s)*(hi-lo)
}

func (periodic) parity(s int8) float64 { return +1 }

// Manager generates ghosts for one domain and boundary condition.
type Manager struct {
	Kind   Kind
	Domain Domain

	cond condition
}

// NewManager returns a Manager for the given boundary condition and domain.
// It fails if either is invalid.
func NewManager(kind Kind, dom Domain) (*Manager, error) {
	if err := dom.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{Kind: kind, Domain: dom}
	switch kind {
	case Reflective:
		m.cond = reflective{}
	case Periodic:
		m.cond = periodic{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return m, nil
}

// InitialMargin returns the margin used for the first padding pass: a few
// mean interparticle spacings.
func (m *Manager) InitialMargin(numReal int) float64 {
	if numReal <= 0 {
		return m.MaxMargin()
	}
	return math.Min(2.5*math.Sqrt(m.Domain.Volume()/float64(numReal)), m.MaxMargin())
}

// MaxMargin returns the largest margin which can generate new ghosts.
func (m *Manager) MaxMargin() float64 {
	s := m.Domain.Size()
	return math.Max(s.X, s.Y)
}

// Image returns the image of x for the given shift.
func (m *Manager) Image(x r2.Vec, s [2]int8) r2.Vec {
	lo, hi := m.Domain.Min, m.Domain.Max
	return r2.Vec{
		X: m.cond.image(x.X, lo.X, hi.X, s[0]),
		Y: m.cond.image(x.Y, lo.Y, hi.Y, s[1]),
	}
}

// Update creates every image of the real particles which lies within margin
// of the domain. It returns the ghost description and a position array
// holding the real particles followed by the ghosts.
func (m *Manager) Update(reals []r2.Vec, margin float64) (*Ghosts, []r2.Vec) {
	g := &Ghosts{NumReal: len(reals)}
	pos := make([]r2.Vec, len(reals), 2*len(reals))
	copy(pos, reals)

	for sy := int8(-1); sy <= 1; sy++ {
		for sx := int8(-1); sx <= 1; sx++ {
			if sx == 0 && sy == 0 {
				continue
			}
			s := [2]int8{sx, sy}
			for i, x := range reals {
				img := m.Image(x, s)
				if !m.Domain.Contains(img, margin) || m.mirrorsOnto(x, s) {
					continue
				}
				g.Ref = append(g.Ref, i)
				g.Shift = append(g.Shift, s)
				pos = append(pos, img)
			}
		}
	}

	return g, pos
}

// Required returns the margin demanded by the geometry of the real cells
// and the particle which demands it. Invalid cells demand an infinite margin.
func (m *Manager) Required(geo *mesh.Geometry) (margin float64, particle int) {
	particle = -1
	for i := 0; i < geo.NumReal; i++ {
		if geo.Radius[i] > margin {
			margin, particle = geo.Radius[i], i
		}
	}
	return margin, particle
}

// Flagged returns a slice marking each real particle which shares a face
// with a ghost.
func (m *Manager) Flagged(topo *mesh.Topology, g *Ghosts) []bool {
	flags := make([]bool, g.NumReal)
	for i := range flags {
		neighbors, _ := topo.Neighborhood(i)
		for _, j := range neighbors {
			if j >= g.NumReal {
				flags[i] = true
				break
			}
		}
	}
	return flags
}

func checkLen(name string, n int, g *Ghosts) {
	if n != g.Total() {
		panic(fmt.Sprintf("%s has length %d, but there are %d particles.",
			name, n, g.Total()))
	}
}

// PrimitiveToGhost copies the primitive states of real particles onto their
// ghosts. Velocities are transformed like vectors.
func (m *Manager) PrimitiveToGhost(g *Ghosts, prim []hydro.Primitive) {
	checkLen("prim", len(prim), g)
	for k, ref := range g.Ref {
		w := prim[ref]
		s := g.Shift[k]
		w[hydro.VelX] *= m.cond.parity(s[0])
		w[hydro.VelY] *= m.cond.parity(s[1])
		prim[g.NumReal+k] = w
	}
}

// GradientToGhost copies the gradients of real particles onto their ghosts.
// Derivatives along a mirrored axis change sign, as do the gradients of
// mirrored velocity components.
func (m *Manager) GradientToGhost(g *Ghosts, grad []hydro.Gradient) {
	checkLen("grad", len(grad), g)
	for k, ref := range g.Ref {
		s := g.Shift[k]
		px, py := m.cond.parity(s[0]), m.cond.parity(s[1])

		var out hydro.Gradient
		for c := 0; c < hydro.NumVars; c++ {
			pc := 1.0
			switch c {
			case hydro.VelX:
				pc = px
			case hydro.VelY:
				pc = py
			}
			out[c] = r2.Vec{X: pc * px * grad[ref][c].X, Y: pc * py * grad[ref][c].Y}
		}
		grad[g.NumReal+k] = out
	}
}

// VectorToGhost copies a vector field, such as the mesh velocity, from real
// particles onto their ghosts.
func (m *Manager) VectorToGhost(g *Ghosts, vec []r2.Vec) {
	checkLen("vec", len(vec), g)
	for k, ref := range g.Ref {
		s := g.Shift[k]
		vec[g.NumReal+k] = r2.Vec{
			X: m.cond.parity(s[0]) * vec[ref].X,
			Y: m.cond.parity(s[1]) * vec[ref].Y,
		}
	}
}

// PositionToGhost maps a position field, such as the cell centers of mass,
// from real particles onto their ghosts.
func (m *Manager) PositionToGhost(g *Ghosts, pos []r2.Vec) {
	checkLen("pos", len(pos), g)
	for k, ref := range g.Ref {
		pos[g.NumReal+k] = m.Image(pos[ref], g.Shift[k])
	}
}

// OnWall returns true if x lies exactly on a reflective wall. Such a
// particle coincides with its own mirror image.
func (m *Manager) OnWall(x r2.Vec) bool {
	if m.Kind != Reflective {
		return false
	}
	lo, hi := m.Domain.Min, m.Domain.Max
	return x.X == lo.X || x.X == hi.X || x.Y == lo.Y || x.Y == hi.Y
}

// mirrorsOnto returns true if shift s reflects x across a wall which x lies
// on, so that the image would duplicate x or another of its images.
func (m *Manager) mirrorsOnto(x r2.Vec, s [2]int8) bool {
	if m.Kind != Reflective {
		return false
	}
	lo, hi := m.Domain.Min, m.Domain.Max
	return (s[0] < 0 && x.X == lo.X) || (s[0] > 0 && x.X == hi.X) ||
		(s[1] < 0 && x.Y == lo.Y) || (s[1] > 0 && x.Y == hi.Y)
}

// Wrap moves real particles which have left the domain back inside it, in
// place. Periodic domains wrap positions onto [Min, Max). Reflective domains
// mirror them back across the crossed wall and, if data is non-nil, reverse
// the momentum of the mirrored particles normal to that wall.
func (m *Manager) Wrap(pos []r2.Vec, data []hydro.Conserved) {
	if data != nil && len(data) != len(pos) {
		panic(fmt.Sprintf("len(data) = %d, but len(pos) = %d.", len(data), len(pos)))
	}

	lo, hi := m.Domain.Min, m.Domain.Max
	for i := range pos {
		var mx, my bool
		pos[i].X, mx = m.wrap1(pos[i].X, lo.X, hi.X)
		pos[i].Y, my = m.wrap1(pos[i].Y, lo.Y, hi.Y)
		if data == nil {
			continue
		}
		if mx {
			data[i][hydro.MomX] = -data[i][hydro.MomX]
		}
		if my {
			data[i][hydro.MomY] = -data[i][hydro.MomY]
		}
	}
}

// wrap1 wraps one coordinate and reports whether it was mirrored.
func (m *Manager) wrap1(x, lo, hi float64) (float64, bool) {
	switch m.Kind {
	case Periodic:
		l := hi - lo
		x = lo + math.Mod(x-lo, l)
		if x < lo {
			x += l
		}
		if x >= hi {
			x = lo
		}
		return x, false
	default:
		if x < lo {
			return 2*lo - x, true
		} else if x > hi {
			return 2*hi - x, true
		}
	}
	return x, false
}
