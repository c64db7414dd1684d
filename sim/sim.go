// Package sim advances a voxel model through time: an explicit FTCS
// conduction stencil over Solid cells, an implicit lumped-capacitance
// convection coupling between each air zone and its bounding surface, and an
// optional Stefan-Boltzmann radiation substep. It generalizes the teacher's
// Calculations/DomainManipulator pipeline (run.go) -- an ordered list of
// per-step operations applied to every cell, with a convergence/logging
// wrapper around the loop -- to this engine's three ordered substeps.
package sim

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/voxel"
)

// State is the Simulator's lifecycle, mirroring the spec's Built -> Ready ->
// Running -> Terminated progression.
type State int

const (
	Built State = iota
	Ready
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Built:
		return "Built"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotPrepared is returned by New, AdvanceOne and Run when the model is
// not prepared: Prepare was never called, or the model was edited since.
type ErrNotPrepared struct{}

func (e *ErrNotPrepared) Error() string { return "sim: voxel model is not prepared" }

// ErrUnstable is returned by New when alpha*dt/ds^2 exceeds the explicit
// conduction stencil's CFL limit for some material in the model's table.
type ErrUnstable struct {
	Material string
	Fo       float64 // Fourier number alpha*dt/ds^2
	Limit    float64
}

func (e *ErrUnstable) Error() string {
	return fmt.Sprintf("sim: unstable: material %s has Fo=%.4f > limit %.4f", e.Material, e.Fo, e.Limit)
}

// ErrNumericDivergence is returned by AdvanceOne when a cell's temperature
// escapes a sane physical range, signaling a numerical blow-up rather than a
// slow drift.
type ErrNumericDivergence struct {
	Cell int
	T    float64
}

func (e *ErrNumericDivergence) Error() string {
	return fmt.Sprintf("sim: numeric divergence at cell %d: T=%.3g", e.Cell, e.T)
}

// stabilityLimit is the Fourier-number bound for a 3D explicit 7-point
// (6-neighbor) FTCS Laplacian: alpha*dt/ds^2 <= 1/6.
const stabilityLimit = 1.0 / 6.0

// cflWarnLimit is the Fourier number above which New logs a warning that a
// material is close to the stability limit.
const cflWarnLimit = 1.0 / 10.0

// Sink receives the model after a completed step: after every step under
// AdvanceOne, and at Run's record_every_s pacing under Run. memsink,
// disksink and plotsink are the collaborators the spec names; any type
// satisfying this interface can be attached.
type Sink interface {
	Record(step int, t float64, m *voxel.Model) error
}

// Options configures a Simulator beyond the voxel model itself.
type Options struct {
	Radiation *Radiation // nil disables the radiation substep
	Sinks     []Sink
	Workers   int // z-slab conduction worker count; 0 uses GOMAXPROCS
}

// Simulator advances a prepared voxel.Model one timestep at a time.
type Simulator struct {
	model *voxel.Model
	p     params.Parameters
	opts  Options

	tNext []float64 // conduction scratch buffer, len(model.T)
	state State
	t     float64
	step  int

	bilan *Bilan

	log *logrus.Logger
}

// New builds a Simulator over a prepared model, checking CFL stability for
// every Solid material in the model's table before returning Ready, and
// records the model's initial energy as the bilan baseline.
func New(m *voxel.Model, opts Options) (*Simulator, error) {
	if !m.Prepared() {
		return nil, &ErrNotPrepared{}
	}
	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	ds := m.Params().Ds
	dt := m.Params().Dt
	for _, name := range m.Table().Names() {
		mat, err := m.Table().Lookup(name)
		if err != nil {
			return nil, err
		}
		if mat.Kind != material.Solid {
			continue
		}
		fo := mat.Alpha * dt / (ds * ds)
		if fo > stabilityLimit {
			return nil, &ErrUnstable{Material: name, Fo: fo, Limit: stabilityLimit}
		}
		if fo > cflWarnLimit {
			log.WithFields(logrus.Fields{"material": name, "Fo": fo}).Warn("sim: Fourier number close to the stability limit")
		}
	}

	s := &Simulator{
		model: m,
		p:     m.Params(),
		opts:  opts,
		tNext: make([]float64, len(m.T)),
		state: Ready,
		bilan: newBilan(),
		log:   log,
	}
	s.bilan.record(0, s.totalEnergy())
	return s, nil
}

// State reports the simulator's current lifecycle state.
func (s *Simulator) State() State { return s.state }

// Bilan returns the running energy-conservation tracker.
func (s *Simulator) Bilan() *Bilan { return s.bilan }

// Model returns the underlying voxel model being advanced.
func (s *Simulator) Model() *voxel.Model { return s.model }

// AdvanceOne runs one timestep: conduction, then convection coupling, then
// (if configured) radiation, then records the step's energy and notifies
// every attached sink unconditionally. It is the raw single-step primitive;
// Run applies the spec's record_every_s pacing on top of the same substeps.
func (s *Simulator) AdvanceOne() error {
	if err := s.advanceSubsteps(); err != nil {
		return err
	}
	for _, sink := range s.opts.Sinks {
		if err := sink.Record(s.step, s.t, s.model); err != nil {
			return err
		}
	}
	return nil
}

// advanceSubsteps runs conduction, convection, and (if configured) radiation,
// checks for numeric divergence, advances t/step, and records the bilan
// sample -- everything AdvanceOne and Run share, except sink notification,
// whose cadence differs between the two.
func (s *Simulator) advanceSubsteps() error {
	if s.state == Terminated {
		return fmt.Errorf("sim: cannot advance a terminated simulator")
	}
	if !s.model.Prepared() {
		return &ErrNotPrepared{}
	}
	s.state = Running

	s.conductionSubstep()
	s.convectionSubstep()
	if s.opts.Radiation != nil {
		s.opts.Radiation.apply(s.model, s.p)
	}

	for idx, t := range s.model.T {
		if math.IsNaN(t) || math.IsInf(t, 0) || math.Abs(t) > 1e6 {
			s.state = Terminated
			return &ErrNumericDivergence{Cell: idx, T: t}
		}
	}

	s.t += s.p.Dt
	s.step++
	s.bilan.record(s.t, s.totalEnergy())
	s.log.WithFields(logrus.Fields{"step": s.step, "t": s.t}).Debug("advanced one step")
	return nil
}

// Run advances the simulator for durationS seconds (rounded to the nearest
// whole number of dt steps), notifying every sink after step 0 and whenever
// t >= nextRecordTime, incrementing nextRecordTime by recordEveryS exactly
// once per check regardless of how many intervals t overshot -- no
// catch-up notifications are sent for skipped intervals. Terminates early
// and returns the error if a step fails (e.g. NumericDivergence); the bilan
// accumulated up to that point is still returned. A completed run leaves
// the simulator Terminated.
func (s *Simulator) Run(durationS, recordEveryS float64) (*Bilan, error) {
	steps := int(math.Round(durationS / s.p.Dt))
	nextRecordTime := recordEveryS
	for i := 0; i < steps; i++ {
		if err := s.advanceSubsteps(); err != nil {
			return s.bilan, err
		}
		if i == 0 || s.t >= nextRecordTime {
			for _, sink := range s.opts.Sinks {
				if err := sink.Record(s.step, s.t, s.model); err != nil {
					return s.bilan, err
				}
			}
			if s.t >= nextRecordTime {
				nextRecordTime += recordEveryS
			}
		}
	}
	s.state = Terminated
	return s.bilan, nil
}

// conductionSubstep runs the explicit FTCS Laplacian over Solid cells,
// partitioned into contiguous z-slabs processed concurrently -- the teacher's
// per-cell stencil runner generalized from a flat cell slice (science.go's
// Mixing) to disjoint z ranges over the dense array, since z-slabs never
// write to each other's cells within a single substep (each slab only reads
// its neighbors' T, never writes them).
func (s *Simulator) conductionSubstep() {
	copy(s.tNext, s.model.T)

	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > s.p.Nz {
		workers = s.p.Nz
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	slab := (s.p.Nz + workers - 1) / workers
	for w := 0; w < workers; w++ {
		k0 := w * slab
		k1 := k0 + slab
		if k1 > s.p.Nz {
			k1 = s.p.Nz
		}
		if k0 >= k1 {
			continue
		}
		wg.Add(1)
		go func(k0, k1 int) {
			defer wg.Done()
			s.conductionSlab(k0, k1)
		}(k0, k1)
	}
	wg.Wait()

	s.model.T, s.tNext = s.tNext, s.model.T
}

func (s *Simulator) conductionSlab(k0, k1 int) {
	m := s.model
	ds2 := s.p.Ds * s.p.Ds
	for k := k0; k < k1; k++ {
		for j := 0; j < s.p.Ny; j++ {
			for i := 0; i < s.p.Nx; i++ {
				idx := m.Idx(i, j, k)
				if m.Kind[idx] != material.Solid {
					continue
				}
				lap := 0.0
				lap += neighborDelta(m, i, j, k, -1, 0, 0, idx)
				lap += neighborDelta(m, i, j, k, 1, 0, 0, idx)
				lap += neighborDelta(m, i, j, k, 0, -1, 0, idx)
				lap += neighborDelta(m, i, j, k, 0, 1, 0, idx)
				lap += neighborDelta(m, i, j, k, 0, 0, -1, idx)
				lap += neighborDelta(m, i, j, k, 0, 0, 1, idx)
				s.tNext[idx] = m.T[idx] + m.Alpha[idx]*s.p.Dt/ds2*lap
			}
		}
	}
}

// neighborDelta returns (T_neighbor - T_self) for the neighbor at (i+di,
// j+dj, k+dk), or 0 if that neighbor is outside the grid (an adiabatic,
// zero-flux edge).
func neighborDelta(m *voxel.Model, i, j, k, di, dj, dk, selfIdx int) float64 {
	ni, nj, nk := i+di, j+dj, k+dk
	p := m.Params()
	if ni < 0 || ni >= p.Nx || nj < 0 || nj >= p.Ny || nk < 0 || nk >= p.Nz {
		return 0
	}
	return m.T[m.Idx(ni, nj, nk)] - m.T[selfIdx]
}

// convectionIterMax and convectionTol bound the convection substep's
// fixed-point iteration over the surface-mean/reverse-flux coupling: at most
// convectionIterMax passes, stopping early once the zone temperature moves
// by less than convectionTol between passes.
const (
	convectionIterMax = 2
	convectionTol     = 0.01 // K
)

// convectionSubstep couples each air zone to its bounding surface with an
// implicit (backward-Euler closed form) lumped-capacitance update, repeating
// the surface-mean/reverse-flux correction up to convectionIterMax times (or
// until it stops moving the zone temperature), then adds any internal power
// input once, after the iteration settles.
func (s *Simulator) convectionSubstep() {
	m := s.model
	ds2 := s.p.Ds * s.p.Ds
	ds3 := ds2 * s.p.Ds
	hA := s.p.HConv * ds2

	for zoneID, zone := range m.Zones() {
		si := m.Surfaces(zoneID)
		n := len(si.I)
		if n == 0 {
			continue
		}
		cellIdx := make([]int, n)
		for idx := 0; idx < n; idx++ {
			cellIdx[idx] = m.Idx(si.I[idx], si.J[idx], si.K[idx])
		}

		if zone.C == 0 {
			continue // I2: should not occur, guarded rather than dividing by zero
		}

		tAir := zone.T
		for iter := 0; iter < convectionIterMax; iter++ {
			sumT := 0.0
			for _, ci := range cellIdx {
				sumT += m.T[ci]
			}
			surfMean := sumT / float64(n)

			kAir := hA * float64(n) * s.p.Dt / zone.C
			tNew := (tAir + kAir*surfMean) / (1 + kAir)
			deltaAir := tNew - tAir
			tAir = tNew

			for _, ci := range cellIdx {
				q := hA * (m.T[ci] - tAir) * s.p.Dt // J, heat leaving the solid cell into the zone
				m.T[ci] -= q / (m.RhoCp[ci] * ds3)
			}

			if math.Abs(deltaAir) < convectionTol {
				break
			}
		}

		if zone.PInput != 0 {
			tAir += zone.PInput * s.p.Dt / zone.C
		}
		s.bilan.addZoneEnergy(zoneID, zone.C*(tAir-zone.T))
		zone.T = tAir
	}
}

// totalEnergy sums internal energy across Solid cells and air zones,
// relative to 0 degrees Celsius, used by Bilan to track conservation.
func (s *Simulator) totalEnergy() float64 {
	m := s.model
	ds3 := s.p.Ds * s.p.Ds * s.p.Ds
	e := 0.0
	for idx, kind := range m.Kind {
		if kind == material.Solid {
			e += m.RhoCp[idx] * m.T[idx] * ds3
		}
	}
	for _, z := range m.Zones() {
		e += z.C * z.T
	}
	return e
}
