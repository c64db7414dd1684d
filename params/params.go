// Package params holds the physical dimensions and time/space discretization
// a voxel model is built from. Parameters is pure data with a validating
// constructor, mirroring the shape of the teacher's VarGridConfig: a plain
// struct with derived grid-size fields computed from physical extents and a
// step size.
package params

import (
	"fmt"
	"math"
)

// Parameters describes the physical box being simulated and its
// discretization. Temperatures are in degrees Celsius throughout the engine
// (see DESIGN.md for the unit-choice rationale); the radiation substep is the
// only place that converts to Kelvin internally.
type Parameters struct {
	Lx, Ly, Lz float64 // physical extents, m
	Ds         float64 // spatial step, m
	Dt         float64 // time step, s

	TIntInit    float64 // initial interior (solid/air) temperature
	TExtInit    float64 // initial exterior fixed-boundary temperature
	TGroundInit float64 // initial ground fixed-boundary temperature

	HConv float64 // convection coefficient, W/(m^2*K)

	// Derived grid sizes, set by New.
	Nx, Ny, Nz int
}

// ErrBadParameter is returned by New when a physical input is invalid.
type ErrBadParameter struct {
	Field  string
	Reason string
}

func (e *ErrBadParameter) Error() string {
	return fmt.Sprintf("params: bad parameter %s: %s", e.Field, e.Reason)
}

// New validates p's physical inputs and returns a copy with derived grid
// sizes filled in. N = round(L/ds) + 1 along each axis.
func New(p Parameters) (Parameters, error) {
	for field, v := range map[string]float64{"Lx": p.Lx, "Ly": p.Ly, "Lz": p.Lz} {
		if v <= 0 {
			return Parameters{}, &ErrBadParameter{Field: field, Reason: "must be > 0"}
		}
	}
	if p.Ds <= 0 {
		return Parameters{}, &ErrBadParameter{Field: "Ds", Reason: "must be > 0"}
	}
	if p.Dt <= 0 {
		return Parameters{}, &ErrBadParameter{Field: "Dt", Reason: "must be > 0"}
	}

	p.Nx = gridSize(p.Lx, p.Ds)
	p.Ny = gridSize(p.Ly, p.Ds)
	p.Nz = gridSize(p.Lz, p.Ds)

	total := int64(p.Nx) * int64(p.Ny) * int64(p.Nz)
	if total <= 0 || total > math.MaxInt32 {
		return Parameters{}, &ErrBadParameter{Field: "Nx*Ny*Nz", Reason: "grid size overflows or is non-positive"}
	}

	return p, nil
}

func gridSize(length, ds float64) int {
	return int(math.Round(length/ds)) + 1
}

// NumCells returns Nx*Ny*Nz.
func (p Parameters) NumCells() int {
	return p.Nx * p.Ny * p.Nz
}
