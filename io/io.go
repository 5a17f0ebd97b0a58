/*package io reads and writes run configurations, checkpoints, snapshots and
initial conditions.

The binary format used for checkpoints is as follows:
    |-- 1 --||-- 2 --||-- 3 --||-- ... 4 ... --||-- ... 5 ... --|

    1 - (int32) Flag indicating the endianness of the file. 0 indicates a big
        endian byte ordering and -1 indicates a little endian byte order.
    2 - (int32) Size of a CheckpointHeader. Checked for consistency.
    3 - (CheckpointHeader) Meta-information about the run.
    4 - ([][2]float64) Contiguous block of x, y particle positions.
    5 - ([][4]float64) Contiguous block of mass, x-momentum, y-momentum and
        energy for each particle.
*/
package io

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/phil-mansfield/movingmesh/hydro"
	"github.com/phil-mansfield/movingmesh/sim"
)

const (
	// Endianness used by default when writing checkpoints. Checkpoints of any
	// endianness can be read.
	DefaultEndiannessFlag int32 = -1
)

// ErrBadCheckpoint is returned when a file is not a valid checkpoint.
var ErrBadCheckpoint = errors.New("malformed checkpoint")

// CheckpointHeader describes meta-information about a checkpoint.
type CheckpointHeader struct {
	Step    int64   // Number of steps taken
	Time    float64 // Simulation time
	NumReal int64   // Number of particles
	NumVars int64   // Number of conserved variables per particle
	RunID   uuid.UUID
}

var (
	headerSize = int32(binary.Size(CheckpointHeader{}))
	vecSize    = int64(binary.Size(r2.Vec{}))
	dataSize   = int64(binary.Size(hydro.Conserved{}))
)

// endianness is a utility function converting an endianness flag to a
// byte order.
func endianness(flag int32) (binary.ByteOrder, error) {
	switch flag {
	case 0:
		return binary.BigEndian, nil
	case -1:
		return binary.LittleEndian, nil
	}
	return nil, fmt.Errorf("%w: unrecognized endianness flag %d", ErrBadCheckpoint, flag)
}

// WriteCheckpoint writes the state of s to w.
func WriteCheckpoint(w io.Writer, s *sim.Simulation) error {
	if len(s.Positions) != len(s.Data) {
		panic(fmt.Sprintf("Simulation has %d positions, but %d data entries.",
			len(s.Positions), len(s.Data)))
	}

	order, _ := endianness(DefaultEndiannessFlag)
	hd := CheckpointHeader{
		Step:    int64(s.Steps),
		Time:    s.Time,
		NumReal: int64(len(s.Positions)),
		NumVars: hydro.NumVars,
		RunID:   s.RunID,
	}

	for _, x := range []interface{}{
		DefaultEndiannessFlag, headerSize, &hd, s.Positions, s.Data,
	} {
		if err := binary.Write(w, order, x); err != nil {
			return err
		}
	}
	return nil
}

// ReadCheckpoint reads a Simulation from r. size is the number of bytes in
// the checkpoint and is used to reject truncated files.
func ReadCheckpoint(r io.Reader, size int64) (*sim.Simulation, error) {
	// order doesn't matter for this read, since flags are symmetric.
	var flag, hdSize int32
	if err := binary.Read(r, binary.LittleEndian, &flag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	order, err := endianness(flag)
	if err != nil {
		return nil, err
	}

	if err := binary.Read(r, order, &hdSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	} else if hdSize != headerSize {
		return nil, fmt.Errorf("%w: expected a header size of %d, found %d",
			ErrBadCheckpoint, headerSize, hdSize)
	}

	hd := &CheckpointHeader{}
	if err := binary.Read(r, order, hd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if hd.NumVars != hydro.NumVars {
		return nil, fmt.Errorf("%w: expected %d variables per particle, found %d",
			ErrBadCheckpoint, hydro.NumVars, hd.NumVars)
	} else if hd.NumReal < 0 || hd.Step < 0 {
		return nil, fmt.Errorf("%w: header has %d particles and %d steps",
			ErrBadCheckpoint, hd.NumReal, hd.Step)
	}

	expected := 8 + int64(headerSize) + hd.NumReal*(vecSize+dataSize)
	if size != expected {
		return nil, fmt.Errorf("%w: a checkpoint with %d particles has %d "+
			"bytes, but the file has %d", ErrBadCheckpoint, hd.NumReal, expected, size)
	}

	s := &sim.Simulation{
		Positions: make([]r2.Vec, hd.NumReal),
		Data:      make([]hydro.Conserved, hd.NumReal),
		Time:      hd.Time,
		Steps:     int(hd.Step),
		RunID:     hd.RunID,
	}
	if err := binary.Read(r, order, s.Positions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if err := binary.Read(r, order, s.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	return s, nil
}

// WriteCheckpointFile writes the state of s to the named file.
func WriteCheckpointFile(file string, s *sim.Simulation) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := WriteCheckpoint(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCheckpointFile reads a Simulation from the named file.
func ReadCheckpointFile(file string) (*sim.Simulation, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s, err := ReadCheckpoint(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return s, nil
}
