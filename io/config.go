package io

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"

	"github.com/phil-mansfield/movingmesh/boundary"
	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/ics"
	"github.com/phil-mansfield/movingmesh/reconstruct"
	"github.com/phil-mansfield/movingmesh/riemann"
	"github.com/phil-mansfield/movingmesh/sim"
)

const ExampleRunFile = `[Simulation]

#######################
# Required Parameters #
#######################

# Time at which the run stops.
MaxTime = 0.2

# Boundary condition of the domain. One of [ reflective | periodic ].
Boundary = reflective

# Gradient estimate used to reconstruct face states. One of
# [ constant | green-gauss | least-squares ]. constant gives a first order
# scheme.
Reconstruction = green-gauss

# Riemann solver. One of [ exact | hll | hllc ].
Riemann = hllc

#######################
# Optional Parameters #
#######################

# Adiabatic index of the gas.
# Gamma = 1.4

# Safety factor applied to the timestep. Must be in (0, 1].
# CFL = 0.5

# The run also stops after this many steps.
# MaxSteps = 1000

# Set to false to turn off the slope limiter.
# Limiter = true

# Mesh regularization steers each generator towards the center of mass of
# its cell once they are more than Eta cell radii apart. The steering speed is
# Chi times the local sound speed.
# Regularization = true
# Eta = 0.25
# Chi = 1

# Number of goroutines used for geometry, gradients and fluxes. 0 uses every
# available core.
# Workers = 1

[Domain]

# Lower left and upper right corners of the domain.
XMin = 0
XMax = 1
YMin = 0
YMax = 0.1

[InitialConditions]

# One of [ sod | uniform | file ]. sod and uniform generate particles on an
# NX x NY lattice. file reads the columns x y rho vx vy p from a text table.
Type = sod
NX = 100
NY = 10

#######################
# Optional Parameters #
#######################

# Lattice perturbation in units of the lattice spacing, and the seed used to
# generate it.
# Jitter = 0.01
# Seed = 0

# State used by Type = uniform.
# Density = 1
# VelX = 0
# VelY = 0
# Pressure = 1

# Table read by Type = file.
# File = path/to/ics.txt

[Output]

# Directory which checkpoints, snapshots and plots are written to.
Directory = path/to/output/dir

#######################
# Optional Parameters #
#######################

# Write a binary checkpoint, a text snapshot or a profile plot every N steps
# and at the end of the run. 0 turns the output off.
# CheckpointEvery = 100
# SnapshotEvery = 0
# PlotEvery = 0

# Output files which are useful for profiling and debugging.
# LogFile = log.out
# ProfileFile = prof.out`
)

type SimulationConfig struct {
	// Required
	MaxTime        float64 `yaml:"MaxTime"`
	Boundary       string  `yaml:"Boundary"`
	Reconstruction string  `yaml:"Reconstruction"`
	Riemann        string  `yaml:"Riemann"`

	// Optional
	Gamma          float64 `yaml:"Gamma"`
	CFL            float64 `yaml:"CFL"`
	MaxSteps       int     `yaml:"MaxSteps"`
	Limiter        bool    `yaml:"Limiter"`
	Regularization bool    `yaml:"Regularization"`
	Eta            float64 `yaml:"Eta"`
	Chi            float64 `yaml:"Chi"`
	Workers        int     `yaml:"Workers"`
}

func (con *SimulationConfig) ValidMaxTime() bool {
	return con.MaxTime > 0 && !math.IsInf(con.MaxTime, 0)
}
func (con *SimulationConfig) ValidBoundary() bool {
	_, err := boundary.ParseKind(con.Boundary)
	return err == nil
}
func (con *SimulationConfig) ValidReconstruction() bool {
	_, err := reconstruct.ParseKind(con.Reconstruction)
	return err == nil
}
func (con *SimulationConfig) ValidRiemann() bool {
	_, err := riemann.ParseKind(con.Riemann)
	return err == nil
}

// Params returns the integrator parameters described by con.
func (con *SimulationConfig) Params() sim.Params {
	return sim.Params{
		Gamma:          con.Gamma,
		CFL:            con.CFL,
		MaxSteps:       con.MaxSteps,
		MaxTime:        con.MaxTime,
		Regularization: con.Regularization,
		Eta:            con.Eta,
		Chi:            con.Chi,
		Workers:        con.Workers,
	}
}

// Kinds parses the names of the boundary condition, reconstruction scheme
// and Riemann solver.
func (con *SimulationConfig) Kinds() (boundary.Kind, reconstruct.Kind, riemann.Kind, error) {
	bk, err := boundary.ParseKind(con.Boundary)
	if err != nil {
		return 0, 0, 0, err
	}
	rk, err := reconstruct.ParseKind(con.Reconstruction)
	if err != nil {
		return 0, 0, 0, err
	}
	sk, err := riemann.ParseKind(con.Riemann)
	if err != nil {
		return 0, 0, 0, err
	}
	return bk, rk, sk, nil
}

type DomainConfig struct {
	XMin float64 `yaml:"XMin"`
	XMax float64 `yaml:"XMax"`
	YMin float64 `yaml:"YMin"`
	YMax float64 `yaml:"YMax"`
}

func (con *DomainConfig) Domain() boundary.Domain {
	return boundary.Domain{
		Min: r2.Vec{X: con.XMin, Y: con.YMin},
		Max: r2.Vec{X: con.XMax, Y: con.YMax},
	}
}

type InitialConditionsConfig struct {
	// Required
	Type string `yaml:"Type"`
	NX   int    `yaml:"NX"`
	NY   int    `yaml:"NY"`

	// Optional
	Jitter   float64 `yaml:"Jitter"`
	Seed     int     `yaml:"Seed"`
	Density  float64 `yaml:"Density"`
	VelX     float64 `yaml:"VelX"`
	VelY     float64 `yaml:"VelY"`
	Pressure float64 `yaml:"Pressure"`
	File     string  `yaml:"File"`
}

var icTypes = []string{"sod", "uniform", "file"}

func (con *InitialConditionsConfig) ValidType() bool {
	t := strings.ToLower(strings.TrimSpace(con.Type))
	for _, name := range icTypes {
		if t == name {
			return true
		}
	}
	return false
}
func (con *InitialConditionsConfig) ValidLattice() bool {
	return con.NX > 0 && con.NY > 0
}
func (con *InitialConditionsConfig) ValidJitter() bool {
	return con.Jitter >= 0 && con.Jitter < 1
}
func (con *InitialConditionsConfig) ValidFile() bool {
	return con.File != ""
}

type OutputConfig struct {
	// Required
	Directory string `yaml:"Directory"`

	// Optional
	CheckpointEvery int    `yaml:"CheckpointEvery"`
	SnapshotEvery   int    `yaml:"SnapshotEvery"`
	PlotEvery       int    `yaml:"PlotEvery"`
	LogFile         string `yaml:"LogFile"`
	ProfileFile     string `yaml:"ProfileFile"`
}

func (con *OutputConfig) ValidDirectory() bool {
	return con.Directory != ""
}
func (con *OutputConfig) ValidLogFile() bool {
	return con.LogFile != ""
}
func (con *OutputConfig) ValidProfileFile() bool {
	return con.ProfileFile != ""
}

type RunWrapper struct {
	Simulation        SimulationConfig        `yaml:"Simulation"`
	Domain            DomainConfig            `yaml:"Domain"`
	InitialConditions InitialConditionsConfig `yaml:"InitialConditions"`
	Output            OutputConfig            `yaml:"Output"`
}

func DefaultRunWrapper() *RunWrapper {
	p := sim.DefaultParams()
	wrap := &RunWrapper{}

	con := &wrap.Simulation
	con.Gamma, con.CFL, con.MaxSteps = p.Gamma, p.CFL, p.MaxSteps
	con.Limiter = true
	con.Regularization, con.Eta, con.Chi = p.Regularization, p.Eta, p.Chi
	con.Workers = p.Workers

	ic := &wrap.InitialConditions
	ic.Jitter = ics.DefaultJitter
	ic.Density, ic.Pressure = 1, 1

	wrap.Output.CheckpointEvery = 100
	return wrap
}

// CheckInit returns an error describing the first invalid parameter in wrap.
func (wrap *RunWrapper) CheckInit() error {
	con, ic, out := &wrap.Simulation, &wrap.InitialConditions, &wrap.Output

	if !con.ValidMaxTime() {
		return fmt.Errorf("Invalid/non-existent 'MaxTime' value.")
	} else if !con.ValidBoundary() {
		return fmt.Errorf("Invalid/non-existent 'Boundary' value. Must be one "+
			"of [ %s ].", strings.Join(boundary.Names(), " | "))
	} else if !con.ValidReconstruction() {
		return fmt.Errorf("Invalid/non-existent 'Reconstruction' value. Must " +
			"be one of [ constant | green-gauss | least-squares ].")
	} else if !con.ValidRiemann() {
		return fmt.Errorf("Invalid/non-existent 'Riemann' value. Must be one " +
			"of [ exact | hll | hllc ].")
	}

	p := con.Params()
	if err := p.Validate(); err != nil {
		return err
	}
	dom := wrap.Domain.Domain()
	if err := dom.Validate(); err != nil {
		return err
	}

	if !ic.ValidType() {
		return fmt.Errorf("Invalid/non-existent 'Type' value. Must be one of "+
			"[ %s ].", strings.Join(icTypes, " | "))
	}
	if strings.ToLower(strings.TrimSpace(ic.Type)) == "file" {
		if !ic.ValidFile() {
			return fmt.Errorf("'File' must be set when 'Type' is file.")
		}
	} else if !ic.ValidLattice() {
		return fmt.Errorf("Invalid/non-existent 'NX' and 'NY' values: %d x %d.", ic.NX, ic.NY)
	} else if !ic.ValidJitter() {
		return fmt.Errorf("'Jitter' must be in the range [0, 1), but is %g.", ic.Jitter)
	}

	if !out.ValidDirectory() {
		return fmt.Errorf("Invalid/non-existent 'Directory' value.")
	} else if out.CheckpointEvery < 0 || out.SnapshotEvery < 0 || out.PlotEvery < 0 {
		return fmt.Errorf("Output intervals must be non-negative, but are "+
			"CheckpointEvery = %d, SnapshotEvery = %d, PlotEvery = %d.",
			out.CheckpointEvery, out.SnapshotEvery, out.PlotEvery)
	}

	return nil
}

// InitialConditions generates or reads the particles described by wrap.
func (wrap *RunWrapper) InitialConditions() ([]r2.Vec, []hydro.Primitive, error) {
	ic := &wrap.InitialConditions
	dom := wrap.Domain.Domain()
	seed := int64(ic.Seed)

	switch strings.ToLower(strings.TrimSpace(ic.Type)) {
	case "sod":
		return ics.Sod(dom, ic.NX, ic.NY, ic.Jitter, seed)
	case "uniform":
		pts, err := ics.Lattice(dom, ic.NX, ic.NY, ic.Jitter, seed)
		if err != nil {
			return nil, nil, err
		}
		w := hydro.Primitive{ic.Density, ic.VelX, ic.VelY, ic.Pressure}
		return pts, ics.Uniform(pts, w), nil
	case "file":
		return ReadInitialConditions(ic.File)
	}
	return nil, nil, fmt.Errorf("Unrecognized initial conditions type '%s'.", ic.Type)
}

// ReadRunConfig reads and checks a run configuration file. Files ending in
// .yaml or .yml are decoded as YAML and everything else as gcfg. Parameters
// which the file does not set keep the values of DefaultRunWrapper.
func ReadRunConfig(fname string) (*RunWrapper, error) {
	wrap := DefaultRunWrapper()

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yaml", ".yml":
		f, err := os.Open(fname)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(wrap); err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", fname, err)
		}
	default:
		if err := gcfg.ReadFileInto(wrap, fname); err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", fname, err)
		}
	}

	if err := wrap.CheckInit(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return wrap, nil
}
