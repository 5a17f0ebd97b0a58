package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/ics"
	"github.com/phil-mansfield/movingmesh/io"
	"github.com/phil-mansfield/movingmesh/plot"
	"github.com/phil-mansfield/movingmesh/riemann"
	"github.com/phil-mansfield/movingmesh/sim"
)

var (
	verbose bool
	logger  *zap.Logger
)

// FileGroup holds the optional profiling output of a run.
type FileGroup struct {
	prof *os.File
}

func (fg *FileGroup) Close() error {
	if fg.prof == nil {
		return nil
	}
	pprof.StopCPUProfile()
	return fg.prof.Close()
}

func newLogger(logFile string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}
	return config.Build()
}

var rootCmd = &cobra.Command{
	Use:   "mmsim",
	Short: "Moving-mesh hydrodynamics on Voronoi tessellations",
	Long: `mmsim solves the two-dimensional Euler equations with a finite-volume
scheme on a Voronoi mesh whose generators move with the flow.

Runs are described by a configuration file. Print an annotated example with
  mmsim example-config`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger("")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Start a run from its initial conditions",
	Long: `Reads a run configuration (gcfg, or YAML if the file ends in .yaml or
.yml), generates the initial conditions and integrates until MaxTime or
MaxSteps. An interrupt stops the run at the end of the current step and
writes a checkpoint which can be resumed with 'mmsim restart'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMain(cmd.Context(), args[0], "")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <config> <checkpoint>",
	Short: "Resume a run from a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMain(cmd.Context(), args[0], args[1])
	},
}

var exampleConfigCmd = &cobra.Command{
	Use:   "example-config",
	Short: "Print an annotated example configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), io.ExampleRunFile)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every step")
	rootCmd.AddCommand(runCmd, restartCmd, exampleConfigCmd)
}

func runMain(ctx context.Context, configFile, checkpoint string) error {
	wrap, err := io.ReadRunConfig(configFile)
	if err != nil {
		return err
	}
	out := &wrap.Output

	if out.ValidLogFile() {
		if logger, err = newLogger(out.LogFile); err != nil {
			return err
		}
	}
	fg := &FileGroup{}
	defer fg.Close()
	if out.ValidProfileFile() {
		if fg.prof, err = os.Create(out.ProfileFile); err != nil {
			return err
		}
		if err = pprof.StartCPUProfile(fg.prof); err != nil {
			return err
		}
	}

	if err = os.MkdirAll(out.Directory, 0755); err != nil {
		return err
	}

	con := &wrap.Simulation
	bk, rk, sk, err := con.Kinds()
	if err != nil {
		return err
	}

	profiles := &plot.ProfileObserver{Dir: out.Directory, Every: out.PlotEvery}
	if strings.EqualFold(strings.TrimSpace(wrap.InitialConditions.Type), "sod") {
		dom := wrap.Domain.Domain()
		profiles.Reference = sodReference(
			con.Params().EOS(), 0.5*(dom.Min.X+dom.Max.X),
		)
	}

	in, err := sim.New(con.Params(), wrap.Domain.Domain(), bk, rk, sk,
		sim.WithLogger(logger),
		sim.WithLimiter(con.Limiter),
		sim.WithObserver(&io.CheckpointObserver{
			Dir: out.Directory, Every: out.CheckpointEvery, Log: logger,
		}),
		sim.WithObserver(&io.SnapshotObserver{Dir: out.Directory, Every: out.SnapshotEvery}),
		sim.WithObserver(profiles),
	)
	if err != nil {
		return err
	}

	var s *sim.Simulation
	if checkpoint == "" {
		pos, prim, err := wrap.InitialConditions()
		if err != nil {
			return err
		}
		if s, err = in.Initialize(pos, prim); err != nil {
			return err
		}
	} else {
		if s, err = io.ReadCheckpointFile(checkpoint); err != nil {
			return err
		}
		logger.Info("resuming run", zap.String("checkpoint", checkpoint),
			zap.String("run_id", s.RunID.String()), zap.Int("step", s.Steps))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = in.Run(ctx, s)
	if errors.Is(err, context.Canceled) {
		file := io.CheckpointName(out.Directory, s.Steps)
		logger.Warn("run interrupted", zap.Int("step", s.Steps), zap.String("checkpoint", file))
		if werr := io.WriteCheckpointFile(file, s); werr != nil {
			return werr
		}
	}
	if len(profiles.Files()) > 0 {
		plot.Execute()
	}
	return err
}

// sodReference returns the exact solution of a shock tube whose initial
// discontinuity lies at x0.
func sodReference(eos hydro.EOS, x0 float64) plot.Reference {
	return func(x, t float64) hydro.Primitive {
		if t <= 0 {
			if x < x0 {
				return ics.SodLeft
			}
			return ics.SodRight
		}
		return riemann.Sample(&ics.SodLeft, &ics.SodRight, eos, (x-x0)/t)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
