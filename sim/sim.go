/*package sim advances a moving-mesh hydrodynamics simulation.

An Integrator owns the configured boundary condition, reconstruction scheme
and Riemann solver. A Simulation holds the only state which survives between
steps: real particle positions, their volume-integrated conserved
quantities, and the time and step counters. Every other array, including the
mesh and the ghosts, is rebuilt by each call to Step.
*/
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/boundary"
	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/mesh"
	"github.com/phil-mansfield/movingmesh/par"
	"github.com/phil-mansfield/movingmesh/reconstruct"
	"github.com/phil-mansfield/movingmesh/riemann"
	"github.com/phil-mansfield/movingmesh/voronoi"
)

// ErrComplete is returned by Step when the simulation has already reached
// MaxTime.
var ErrComplete = errors.New("simulation has reached MaxTime")

// InvariantError reports a cell or face whose state could not be passed to
// the Riemann solver.
type InvariantError struct {
	// Face is -1 if the conserved data of real particle I is itself
	// unphysical.
	Step, Face int
	// I and J are the face's generators. Ref is the real particle behind J,
	// which equals J unless J is a ghost.
	I, J, Ref int
	Err       error
}

func (err *InvariantError) Error() string {
	if err.Face < 0 {
		return fmt.Sprintf("step %d: particle %d: %v", err.Step, err.I, err.Err)
	}
	return fmt.Sprintf("step %d: face %d between particles %d and %d "+
		"(real particle %d): %v", err.Step, err.Face, err.I, err.J, err.Ref, err.Err)
}

func (err *InvariantError) Unwrap() error { return err.Err }

// Simulation is the persistent state of a run.
type Simulation struct {
	Positions []r2.Vec
	Data      []hydro.Conserved
	Time      float64
	Steps     int
	RunID     uuid.UUID
}

// NumReal returns the number of real particles.
func (s *Simulation) NumReal() int { return len(s.Positions) }

// Totals returns the sum of each conserved quantity over all particles.
func (s *Simulation) Totals() hydro.Conserved {
	col := make([]float64, len(s.Data))
	var out hydro.Conserved
	for k := range out {
		for i := range s.Data {
			col[i] = s.Data[i][k]
		}
		out[k] = floats.Sum(col)
	}
	return out
}

// StepInfo describes a completed step. Observers must not modify it.
type StepInfo struct {
	Step      int
	Time, Dt  float64
	Final     bool
	NumGhosts int
	Passes    int
	Margin    float64
	Fallbacks int
	// BoundaryCells is the number of real cells which share a face with a
	// ghost.
	BoundaryCells int

	// Positions, Primitive, Volume and COM describe the real cells at Time,
	// after the step.
	Positions []r2.Vec
	Primitive []hydro.Primitive
	Volume    []float64
	COM       []r2.Vec

	Sim *Simulation
}

// Observer is called after every step taken by Integrator.Run.
type Observer interface {
	Observe(info *StepInfo) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(info *StepInfo) error

func (f ObserverFunc) Observe(info *StepInfo) error { return f(info) }

// Integrator advances Simulations.
type Integrator struct {
	Params Params

	bounds *boundary.Manager
	tess   *mesh.Tessellator
	recon  *reconstruct.Reconstructor
	solver *riemann.Solver

	log       *zap.Logger
	observers []Observer
}

// Option configures an Integrator.
type Option func(*Integrator)

// WithLogger sets the logger used for per-step diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(in *Integrator) { in.log = log }
}

// WithObserver adds an Observer.
func WithObserver(obs Observer) Option {
	return func(in *Integrator) { in.observers = append(in.observers, obs) }
}

// WithEngine replaces the Voronoi engine.
func WithEngine(e voronoi.Engine) Option {
	return func(in *Integrator) { in.tess.Engine = e }
}

// WithLimiter turns slope limiting on or off.
func WithLimiter(on bool) Option {
	return func(in *Integrator) { in.recon.Limiter = on }
}

// New returns an Integrator for the given parameters and components. Every
// component is validated here, so a returned Integrator never fails because
// of its configuration.
func New(p Params, dom boundary.Domain, bc boundary.Kind,
	rk reconstruct.Kind, sk riemann.Kind, opts ...Option) (*Integrator, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	bounds, err := boundary.NewManager(bc, dom)
	if err != nil {
		return nil, err
	}
	recon, err := reconstruct.New(rk)
	if err != nil {
		return nil, err
	}
	solver, err := riemann.New(sk, p.EOS())
	if err != nil {
		return nil, err
	}

	in := &Integrator{
		Params: p,
		bounds: bounds,
		tess:   mesh.NewTessellator(),
		recon:  recon,
		solver: solver,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.Params.Workers = par.Workers(p.Workers)

	return in, nil
}

// Boundary returns the boundary manager used by in.
func (in *Integrator) Boundary() *boundary.Manager { return in.bounds }

// meshState is the transient mesh of one step.
type meshState struct {
	ghosts *boundary.Ghosts
	pos    []r2.Vec
	topo   *mesh.Topology
	geo    *mesh.Geometry
	passes int
	margin float64
}

func (ms *meshState) boundaryCells(bounds *boundary.Manager) int {
	n := 0
	for _, flagged := range bounds.Flagged(ms.topo, ms.ghosts) {
		if flagged {
			n++
		}
	}
	return n
}

// buildMesh generates ghosts and tessellates, enlarging the ghost margin
// until every real cell is closed and its radius is covered.
func (in *Integrator) buildMesh(reals []r2.Vec) (*meshState, error) {
	margin := in.bounds.InitialMargin(len(reals))
	maxMargin := in.bounds.MaxMargin()

	for pass := 1; ; pass++ {
		g, pos := in.bounds.Update(reals, margin)
		topo, err := in.tess.Tessellate(pos)
		if err != nil {
			return nil, err
		}
		geo, err := mesh.Compute(topo, pos, len(reals), in.Params.Workers)
		if err != nil {
			return nil, err
		}

		ms := &meshState{g, pos, topo, geo, pass, margin}
		required, worst := in.bounds.Required(geo)
		if required <= margin {
			return ms, nil
		}

		if margin >= maxMargin {
			if invalid := geo.Invalid(); len(invalid) > 0 {
				return nil, &mesh.GeometryError{
					Particle: invalid[0],
					Reason: fmt.Sprintf("cell could not be closed with a ghost "+
						"margin of %g", margin),
				}
			}
			return ms, nil
		}

		in.log.Debug("enlarging ghost margin",
			zap.Int("pass", pass), zap.Float64("margin", margin),
			zap.Float64("required", required), zap.Int("particle", worst))
		margin = math.Min(math.Max(required, 1.5*margin), maxMargin)
	}
}

// Initialize creates a Simulation from the positions and primitive states
// of the real particles.
func (in *Integrator) Initialize(pos []r2.Vec, prim []hydro.Primitive) (*Simulation, error) {
	if len(pos) != len(prim) {
		return nil, fmt.Errorf("%d positions were given, but %d states.", len(pos), len(prim))
	} else if len(pos) == 0 {
		return nil, fmt.Errorf("No particles were given.")
	}

	dom := in.bounds.Domain
	for i := range pos {
		if !dom.Contains(pos[i], 0) {
			return nil, fmt.Errorf("Particle %d at %v is outside the domain %v to %v.",
				i, pos[i], dom.Min, dom.Max)
		} else if !hydro.Physical(&prim[i]) {
			return nil, fmt.Errorf("Particle %d has the unphysical state %v.", i, prim[i])
		}
	}

	s := &Simulation{
		Positions: append([]r2.Vec{}, pos...),
		Data:      make([]hydro.Conserved, len(pos)),
		RunID:     uuid.New(),
	}

	// Periodic domains are half-open, so particles on an upper wall move to
	// the lower one.
	in.bounds.Wrap(s.Positions, nil)
	seen := make(map[r2.Vec]int, len(pos))
	for i, x := range s.Positions {
		if in.bounds.OnWall(x) {
			return nil, fmt.Errorf("Particle %d at %v lies on a reflective wall.", i, x)
		} else if j, ok := seen[x]; ok {
			return nil, fmt.Errorf("Particles %d and %d both lie at %v.", j, i, x)
		}
		seen[x] = i
	}

	ms, err := in.buildMesh(s.Positions)
	if err != nil {
		return nil, fmt.Errorf("could not build the initial mesh: %w", err)
	}
	eos := in.Params.EOS()
	for i := range s.Data {
		s.Data[i] = eos.ToConserved(&prim[i], ms.geo.Volume[i])
	}

	in.log.Info("initialized simulation",
		zap.String("run_id", s.RunID.String()), zap.Int("particles", len(pos)),
		zap.Int("ghosts", ms.ghosts.Len()))
	return s, nil
}

// Snapshot rebuilds the mesh of s and returns the state of its real cells
// without advancing it. The returned StepInfo has Dt = 0.
func (in *Integrator) Snapshot(s *Simulation) (*StepInfo, error) {
	ms, err := in.buildMesh(s.Positions)
	if err != nil {
		return nil, err
	}

	info := &StepInfo{
		Step:          s.Steps,
		Time:          s.Time,
		Final:         s.Time >= in.Params.MaxTime,
		NumGhosts:     ms.ghosts.Len(),
		Passes:        ms.passes,
		Margin:        ms.margin,
		BoundaryCells: ms.boundaryCells(in.bounds),
		Sim:           s,
	}
	in.describe(s, ms, info)
	return info, nil
}

// describe fills the per-cell arrays of info from the current state of s,
// tessellated as ms.
func (in *Integrator) describe(s *Simulation, ms *meshState, info *StepInfo) {
	eos := in.Params.EOS()
	prim := make([]hydro.Primitive, s.NumReal())
	for i := range prim {
		prim[i] = eos.ToPrimitive(&s.Data[i], ms.geo.Volume[i])
	}

	info.Positions = append([]r2.Vec{}, s.Positions...)
	info.Primitive = prim
	info.Volume = ms.geo.Volume[:s.NumReal()]
	info.COM = ms.geo.COM[:s.NumReal()]
}

// Step advances s by one timestep and returns the timestep. It does not
// update s.Time or s.Steps.
func (in *Integrator) Step(s *Simulation) (float64, error) {
	info, err := in.step(s, nil)
	if err != nil {
		return 0, err
	}
	return info.Dt, nil
}

// step advances s by one timestep. ms is the mesh of the current positions
// of s, or nil if it has not been built yet. The returned StepInfo does not
// contain per-cell arrays.
func (in *Integrator) step(s *Simulation, ms *meshState) (*StepInfo, error) {
	p := &in.Params
	eos := p.EOS()
	n := s.NumReal()

	remaining := p.MaxTime - s.Time
	if remaining <= 0 {
		return nil, ErrComplete
	}

	if ms == nil {
		var err error
		if ms, err = in.buildMesh(s.Positions); err != nil {
			return nil, fmt.Errorf("step %d: %w", s.Steps, err)
		}
	}
	g, geo := ms.ghosts, ms.geo
	total := g.Total()

	prim := make([]hydro.Primitive, total)
	for i := 0; i < n; i++ {
		prim[i] = eos.ToPrimitive(&s.Data[i], geo.Volume[i])
		if !hydro.Physical(&prim[i]) {
			return nil, &InvariantError{
				Step: s.Steps, Face: -1, I: i, J: -1, Ref: i,
				Err: fmt.Errorf("%w: %v", riemann.ErrNonPositive, prim[i]),
			}
		}
	}
	in.bounds.PrimitiveToGhost(g, prim)

	com := make([]r2.Vec, total)
	copy(com, geo.COM)
	in.bounds.PositionToGhost(g, com)

	vel := meshVelocities(p, eos, geo, ms.pos, prim, total)
	in.bounds.VectorToGhost(g, vel)

	dt := p.CFL * in.solver.Timestep(prim[:n], geo.Volume)
	if !(dt > 0) {
		return nil, fmt.Errorf("step %d: timestep is %g", s.Steps, dt)
	}
	final := false
	if dt >= remaining {
		dt, final = remaining, true
	}

	field := &reconstruct.Field{
		Topo: ms.topo, Geo: geo, Pos: ms.pos, COM: com,
		Prim: prim, MeshVel: vel, EOS: eos, Workers: p.Workers,
	}
	grad, err := in.recon.Gradient(field)
	if err != nil {
		return nil, err
	}
	if in.recon.Limiter {
		reconstruct.Limit(field, grad)
	}
	in.bounds.GradientToGhost(g, grad)

	states, err := in.recon.Extrapolate(field, grad, dt)
	if err != nil {
		return nil, err
	}

	faceVel := faceVelocities(geo, ms.pos, vel)
	fluxes := make([]hydro.Conserved, geo.NumFaces())
	err = par.For(len(fluxes), p.Workers, func(lo, hi int) error {
		for f := lo; f < hi; f++ {
			flux, err := in.solver.Flux(&states.Left[f], &states.Right[f],
				geo.Normal[f], faceVel[f])
			if err != nil {
				j := geo.J[f]
				ref := j
				if j >= n {
					ref = g.Ref[j-n]
				}
				return &InvariantError{
					Step: s.Steps, Face: f, I: geo.I[f], J: j, Ref: ref, Err: err,
				}
			}
			fluxes[f] = flux
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Ghost storage is never updated: flux through a ghost face is carried
	// entirely by the real cell.
	for f := range fluxes {
		i, j := geo.I[f], geo.J[f]
		scale := dt * geo.Area[f]
		s.Data[i].Add(&fluxes[f], -scale)
		if j < n {
			s.Data[j].Add(&fluxes[f], scale)
		}
	}

	info := &StepInfo{
		Step:          s.Steps,
		Time:          s.Time,
		Dt:            dt,
		Final:         final,
		NumGhosts:     g.Len(),
		Passes:        ms.passes,
		Margin:        ms.margin,
		Fallbacks:     states.Fallbacks,
		BoundaryCells: ms.boundaryCells(in.bounds),
		Sim:           s,
	}

	for i := 0; i < n; i++ {
		s.Positions[i] = r2.Add(s.Positions[i], r2.Scale(dt, vel[i]))
	}
	in.bounds.Wrap(s.Positions, s.Data)

	return info, nil
}

// Run steps s until MaxTime or MaxSteps is reached. ctx is checked between
// steps, so a cancelled run always stops on a step boundary.
func (in *Integrator) Run(ctx context.Context, s *Simulation) error {
	p := &in.Params
	in.log.Info("starting run",
		zap.String("run_id", s.RunID.String()), zap.Int("step", s.Steps),
		zap.Float64("time", s.Time), zap.Int("workers", p.Workers))

	var ms *meshState
	for s.Time < p.MaxTime && s.Steps < p.MaxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := in.step(s, ms)
		if err != nil {
			return err
		}

		s.Steps++
		if info.Final {
			s.Time = p.MaxTime
		} else {
			s.Time += info.Dt
		}
		info.Step, info.Time = s.Steps, s.Time

		// Observers see the state at the end of the step. Its mesh is reused
		// by the next step.
		ms = nil
		if len(in.observers) > 0 {
			if ms, err = in.buildMesh(s.Positions); err != nil {
				return fmt.Errorf("step %d: %w", s.Steps, err)
			}
			in.describe(s, ms, info)
		}

		in.log.Debug("step",
			zap.Int("step", info.Step), zap.Float64("time", info.Time),
			zap.Float64("dt", info.Dt), zap.Int("ghosts", info.NumGhosts),
			zap.Int("boundary_cells", info.BoundaryCells),
			zap.Int("passes", info.Passes), zap.Int("fallbacks", info.Fallbacks))
		if info.Fallbacks > 0 {
			in.log.Warn("reverted face states to first order",
				zap.Int("step", info.Step), zap.Int("count", info.Fallbacks))
		}

		for _, obs := range in.observers {
			if err := obs.Observe(info); err != nil {
				return fmt.Errorf("observer failed after step %d: %w", info.Step, err)
			}
		}
	}

	in.log.Info("run complete",
		zap.String("run_id", s.RunID.String()), zap.Int("steps", s.Steps),
		zap.Float64("time", s.Time))
	return nil
}
