package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/boundary"
	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/ics"
	"github.com/phil-mansfield/movingmesh/mesh"
	"github.com/phil-mansfield/movingmesh/reconstruct"
	"github.com/phil-mansfield/movingmesh/riemann"
	"github.com/phil-mansfield/movingmesh/voronoi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var unitBox = boundary.Domain{Max: r2.Vec{X: 1, Y: 1}}

func newIntegrator(
	t testing.TB, dom boundary.Domain, bc boundary.Kind,
	rk reconstruct.Kind, sk riemann.Kind, edit func(*Params), opts ...Option,
) *Integrator {
	p := DefaultParams()
	if edit != nil {
		edit(&p)
	}
	in, err := New(p, dom, bc, rk, sk, opts...)
	require.NoError(t, err)
	return in
}

func wave(p r2.Vec) hydro.Primitive {
	return hydro.Primitive{
		1 + 0.3*math.Sin(2*math.Pi*p.X),
		0.4,
		-0.3 + 0.1*math.Cos(2*math.Pi*p.Y),
		1 + 0.2*math.Cos(2*math.Pi*p.X),
	}
}

func TestConservation(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 12, 12, 0.3, 3)
	require.NoError(t, err)
	prim := make([]hydro.Primitive, len(pts))
	for i := range pts {
		prim[i] = wave(pts[i])
	}

	for _, rk := range []reconstruct.Kind{reconstruct.GreenGauss, reconstruct.LeastSquares} {
		for _, sk := range []riemann.Kind{riemann.Exact, riemann.HLL, riemann.HLLC} {
			in := newIntegrator(t, unitBox, boundary.Periodic, rk, sk, func(p *Params) {
				p.MaxSteps, p.MaxTime, p.Workers = 8, 10, 3
			})
			s, err := in.Initialize(pts, prim)
			require.NoError(t, err)

			before := s.Totals()
			require.NoError(t, in.Run(context.Background(), s))
			after := s.Totals()

			assert.Equal(t, 8, s.Steps)
			for k := 0; k < hydro.NumVars; k++ {
				eps := 1e-10 * math.Max(1, math.Abs(before[k]))
				assert.InDelta(t, before[k], after[k], eps, "%s/%s: var %d", rk, sk, k)
			}
			for i, p := range s.Positions {
				assert.True(t, unitBox.Contains(p, 0), "%s/%s: particle %d at %v", rk, sk, i, p)
			}
		}
	}
}

func TestEquilibrium(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 10, 10, 0.2, 5)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	for _, rk := range []reconstruct.Kind{reconstruct.GreenGauss, reconstruct.LeastSquares} {
		in := newIntegrator(t, unitBox, boundary.Reflective, rk, riemann.HLLC, func(p *Params) {
			p.MaxSteps, p.Regularization = 5, false
		})
		s, err := in.Initialize(pts, prim)
		require.NoError(t, err)
		start := append([]hydro.Conserved{}, s.Data...)

		require.NoError(t, in.Run(context.Background(), s))
		for i := range s.Data {
			for k := 0; k < hydro.NumVars; k++ {
				assert.InDelta(t, start[i][k], s.Data[i][k], 1e-12, "%s: particle %d, var %d", rk, i, k)
			}
			assert.InDelta(t, pts[i].X, s.Positions[i].X, 1e-12)
			assert.InDelta(t, pts[i].Y, s.Positions[i].Y, 1e-12)
		}
	}
}

func TestUniformFlow(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 10, 10, 0.2, 8)
	require.NoError(t, err)
	w := hydro.Primitive{1, 0.5, 0.25, 1}

	in := newIntegrator(t, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC,
		func(p *Params) { p.MaxSteps, p.Regularization = 6, false })
	s, err := in.Initialize(pts, ics.Uniform(pts, w))
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background(), s))

	snap, err := in.Snapshot(s)
	require.NoError(t, err)
	for i, got := range snap.Primitive {
		for k := 0; k < hydro.NumVars; k++ {
			assert.InDelta(t, w[k], got[k], 1e-9, "particle %d, var %d", i, k)
		}
	}
}

func TestSodShockTube(t *testing.T) {
	if testing.Short() {
		t.Skip("shock tube is slow")
	}

	dom := boundary.Domain{Max: r2.Vec{X: 1, Y: 0.05}}
	pts, prim, err := ics.Sod(dom, 80, 4, 0.1, 11)
	require.NoError(t, err)

	in := newIntegrator(t, dom, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC,
		func(p *Params) { p.MaxTime, p.Workers = 0.1, 2 })
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background(), s))
	assert.Equal(t, 0.1, s.Time)

	snap, err := in.Snapshot(s)
	require.NoError(t, err)

	eos := in.Params.EOS()
	var errRho, errU, errP, vol float64
	for i, w := range snap.Primitive {
		x := snap.COM[i].X
		want := riemann.Sample(&ics.SodLeft, &ics.SodRight, eos, (x-0.5)/s.Time)
		v := snap.Volume[i]
		errRho += v * math.Abs(w[hydro.Density]-want[hydro.Density])
		errU += v * math.Abs(w[hydro.VelX]-want[hydro.VelX])
		errP += v * math.Abs(w[hydro.Pressure]-want[hydro.Pressure])
		vol += v
	}

	assert.InDelta(t, dom.Volume(), vol, 1e-10)
	assert.Less(t, errRho/vol, 0.05, "density")
	assert.Less(t, errU/vol, 0.1, "velocity")
	assert.Less(t, errP/vol, 0.05, "pressure")
}

func TestNewErrors(t *testing.T) {
	good := DefaultParams()
	bad := DefaultParams()
	bad.CFL = 1.5

	_, err := New(bad, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC)
	assert.Error(t, err)
	_, err = New(good, unitBox, boundary.Kind(7), reconstruct.GreenGauss, riemann.HLLC)
	assert.True(t, errors.Is(err, boundary.ErrUnknownKind))
	_, err = New(good, unitBox, boundary.Periodic, reconstruct.Kind(9), riemann.HLLC)
	assert.True(t, errors.Is(err, reconstruct.ErrUnknownScheme))
	_, err = New(good, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.Kind(9))
	assert.True(t, errors.Is(err, riemann.ErrUnknownSolver))
	_, err = New(good, boundary.Domain{}, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC)
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	table := []func(*Params){
		func(p *Params) { p.Gamma = 1 },
		func(p *Params) { p.Gamma = math.Inf(1) },
		func(p *Params) { p.CFL = 0 },
		func(p *Params) { p.MaxSteps = 0 },
		func(p *Params) { p.MaxTime = -1 },
		func(p *Params) { p.Workers = -2 },
		func(p *Params) { p.Eta = 0 },
		func(p *Params) { p.Chi = -1 },
	}

	for i, edit := range table {
		p := DefaultParams()
		edit(&p)
		assert.Error(t, p.Validate(), "%d) expected an error", i+1)
	}

	p := DefaultParams()
	p.Regularization, p.Eta = false, 0
	assert.NoError(t, p.Validate())
}

func TestInitializeErrors(t *testing.T) {
	in := newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC, nil)
	pts, err := ics.Lattice(unitBox, 4, 4, 0.1, 1)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	_, err = in.Initialize(pts, prim[:3])
	assert.Error(t, err)
	_, err = in.Initialize(nil, nil)
	assert.Error(t, err)

	outside := append([]r2.Vec{}, pts...)
	outside[2] = r2.Vec{X: 1.5, Y: 0.5}
	_, err = in.Initialize(outside, prim)
	assert.Error(t, err)

	cold := append([]hydro.Primitive{}, prim...)
	cold[5][hydro.Pressure] = 0
	_, err = in.Initialize(pts, cold)
	assert.Error(t, err)

	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	assert.Equal(t, 16, s.NumReal())
	assert.InDelta(t, 1, s.Totals()[hydro.Mass], 1e-12)
}

func TestRunLimits(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 6, 6, 0.2, 2)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	var infos []StepInfo
	obs := ObserverFunc(func(info *StepInfo) error {
		infos = append(infos, *info)
		return nil
	})

	in := newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC,
		func(p *Params) { p.MaxSteps = 3 }, WithObserver(obs), WithLogger(zaptest.NewLogger(t)))
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background(), s))

	require.Len(t, infos, 3)
	assert.Equal(t, 3, s.Steps)
	assert.Less(t, s.Time, in.Params.MaxTime)
	for i, info := range infos {
		assert.Equal(t, i+1, info.Step)
		assert.Greater(t, info.Dt, 0.0)
		assert.False(t, info.Final)
		assert.Len(t, info.Primitive, len(pts))
	}

	// Resuming past MaxSteps does nothing.
	require.NoError(t, in.Run(context.Background(), s))
	assert.Len(t, infos, 3)
}

func TestFinalStep(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 6, 6, 0.2, 2)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	var last *StepInfo
	in := newIntegrator(t, unitBox, boundary.Periodic, reconstruct.Constant, riemann.HLL,
		func(p *Params) { p.MaxTime = 1e-3 },
		WithObserver(ObserverFunc(func(info *StepInfo) error {
			last = info
			return nil
		})))
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background(), s))

	require.NotNil(t, last)
	assert.True(t, last.Final)
	assert.Equal(t, 1e-3, s.Time)

	_, err = in.Step(s)
	assert.True(t, errors.Is(err, ErrComplete))
}

func TestRunStops(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 6, 6, 0.2, 2)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC, nil)
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	assert.True(t, errors.Is(in.Run(ctx, s), context.Canceled))
	assert.Equal(t, 0, s.Steps)

	stop := errors.New("stop")
	in = newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC, nil,
		WithObserver(ObserverFunc(func(*StepInfo) error { return stop })))
	err = in.Run(context.Background(), s)
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 1, s.Steps)
}

func TestInvariantError(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 6, 6, 0.2, 2)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	in := newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC, nil)
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	s.Data[14][hydro.Energy] = -1

	_, err = in.Step(s)
	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 14, ie.I)
	assert.True(t, errors.Is(err, riemann.ErrNonPositive))
}

func TestInitializeWalls(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 8, 8, 0.2, 4)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	onWall := append([]r2.Vec{}, pts...)
	onWall[0].X = 0

	in := newIntegrator(t, unitBox, boundary.Reflective, reconstruct.GreenGauss, riemann.HLLC, nil)
	_, err = in.Initialize(onWall, prim)
	assert.ErrorContains(t, err, "reflective wall")

	// Periodic domains are half-open: x = 1 is x = 0.
	onWall[0], onWall[1] = r2.Vec{X: 1, Y: 0.5}, r2.Vec{X: 0.5, Y: 0}
	in = newIntegrator(t, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC, nil)
	s, err := in.Initialize(onWall, prim)
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: 0, Y: 0.5}, s.Positions[0])
	assert.Equal(t, r2.Vec{X: 0.5, Y: 0}, s.Positions[1])
	assert.InDelta(t, 1, s.Totals()[hydro.Mass], 1e-12)

	onWall[1] = r2.Vec{X: 0, Y: 0.5}
	_, err = in.Initialize(onWall, prim)
	assert.ErrorContains(t, err, "Particles 0 and 1")
}

func TestObserverSeesEndOfStep(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 8, 8, 0.2, 6)
	require.NoError(t, err)
	prim := make([]hydro.Primitive, len(pts))
	for i := range pts {
		prim[i] = wave(pts[i])
	}

	var last *StepInfo
	obs := ObserverFunc(func(info *StepInfo) error {
		last = info
		return nil
	})
	edit := func(p *Params) { p.MaxSteps = 3 }

	in := newIntegrator(t, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC,
		edit, WithObserver(obs))
	s, err := in.Initialize(pts, prim)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background(), s))

	require.NotNil(t, last)
	snap, err := in.Snapshot(s)
	require.NoError(t, err)
	assert.Equal(t, s.Time, last.Time)
	assert.Equal(t, s.Positions, last.Positions)
	assert.Equal(t, snap.Primitive, last.Primitive)
	assert.Equal(t, snap.Volume, last.Volume)
	assert.Equal(t, snap.COM, last.COM)
	assert.Greater(t, last.BoundaryCells, 0)
	assert.Less(t, last.BoundaryCells, len(pts))

	// Reusing the observed mesh does not change the evolution.
	plain := newIntegrator(t, unitBox, boundary.Periodic, reconstruct.GreenGauss, riemann.HLLC, edit)
	s2, err := plain.Initialize(pts, prim)
	require.NoError(t, err)
	require.NoError(t, plain.Run(context.Background(), s2))
	assert.Equal(t, s.Data, s2.Data)
	assert.Equal(t, s.Positions, s2.Positions)
}

// openEngine is a Delaunay engine which detaches one ridge of particle
// target from its vertices on the calls selected by open.
type openEngine struct {
	target int
	calls  int
	open   func(call int) bool
}

func (e *openEngine) Tessellate(pts []r2.Vec) (*voronoi.Diagram, error) {
	d, err := voronoi.Delaunay{}.Tessellate(pts)
	call := e.calls
	e.calls++
	if err != nil || !e.open(call) {
		return d, err
	}
	for k := range d.Ridges {
		if r := &d.Ridges[k]; r.Points[0] == e.target && r.Bounded() {
			r.Vertices[1] = voronoi.Unbounded
			break
		}
	}
	return d, nil
}

func TestGhostPadding(t *testing.T) {
	pts, err := ics.Lattice(unitBox, 10, 10, 0.2, 9)
	require.NoError(t, err)
	prim := ics.Uniform(pts, hydro.Primitive{1, 0, 0, 1})

	for _, bc := range []boundary.Kind{boundary.Reflective, boundary.Periodic} {
		// Open only on the first pass after initialization.
		engine := &openEngine{target: 0, open: func(call int) bool { return call == 1 }}
		in := newIntegrator(t, unitBox, bc, reconstruct.GreenGauss, riemann.HLLC, nil,
			WithEngine(engine))
		s, err := in.Initialize(pts, prim)
		require.NoError(t, err, "%s", bc)

		snap, err := in.Snapshot(s)
		require.NoError(t, err, "%s", bc)
		assert.Equal(t, 2, snap.Passes, "%s", bc)
		assert.Greater(t, snap.Margin, in.Boundary().InitialMargin(len(pts)), "%s", bc)
		assert.Equal(t, 3, engine.calls, "%s", bc)

		// Never closes.
		engine = &openEngine{target: 0, open: func(int) bool { return true }}
		in = newIntegrator(t, unitBox, bc, reconstruct.GreenGauss, riemann.HLLC, nil,
			WithEngine(engine))
		_, err = in.Initialize(pts, prim)
		var ge *mesh.GeometryError
		require.True(t, errors.As(err, &ge), "%s: %v", bc, err)
		assert.Equal(t, 0, ge.Particle, "%s", bc)
		assert.Greater(t, engine.calls, 1, "%s", bc)
	}
}
