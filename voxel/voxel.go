// Package voxel holds the dense 3D voxel grid a Simulator advances: the
// co-aligned temperature/material fields, the air-zone registry, and the
// construction operations (fill_box/set_cell/extrude_plan/prepare) used to
// build a model before it is frozen and handed to a simulator.
//
// Cells are flattened row-major with x varying fastest:
//
//	idx(i,j,k) = (k*Ny+j)*Nx + i
//
// Per-cell kind is an explicit tagged encoding rather than a single
// sign-overloaded float (the source material this spec was distilled from
// packs "solid diffusivity / fixed / air-zone-id" into one float's sign,
// which this redesign deliberately avoids -- see DESIGN.md "Redesign-flag
// decisions"): a Kind value plus, depending on Kind, either a diffusivity
// (Alpha, Solid only, the coefficient the conduction stencil reads) or a
// zone id (ZoneID, Air only). Lambda and RhoCp are the per-cell conductivity
// and volumetric heat capacity; RhoCp converts convective and radiative heat
// into a temperature change. Both are zero for every non-Solid cell
// (invariant I2).
package voxel

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/params"
)

// Point3 is a world-coordinate point, built on top of ctessum/geom's 2D
// Point (X, Y) plus a Z field -- geom itself has no 3D point type, and
// fill_box's construction API is the one place in this engine that talks in
// world coordinates rather than grid indices.
type Point3 struct {
	geom.Point
	Z float64
}

// NewPoint3 constructs a Point3 from world coordinates in meters.
func NewPoint3(x, y, z float64) Point3 {
	return Point3{Point: geom.Point{X: x, Y: y}, Z: z}
}

// ErrOutOfBounds is returned when a construction operation references a
// grid index or a plan shape outside the model's extents.
type ErrOutOfBounds struct {
	Reason string
}

func (e *ErrOutOfBounds) Error() string { return "voxel: out of bounds: " + e.Reason }

// ErrAirZoneFusionUnsupported is returned when an edit would merge two
// distinct, already-registered air zones into one.
type ErrAirZoneFusionUnsupported struct {
	ZoneA, ZoneB int32
}

func (e *ErrAirZoneFusionUnsupported) Error() string {
	return fmt.Sprintf("voxel: cannot fuse air zones %d and %d: unsupported", e.ZoneA, e.ZoneB)
}

// AirZone is a lumped-capacitance node: identity, scalar temperature,
// accumulated volume, derived heat capacity, and an optional constant
// internal power input.
type AirZone struct {
	ID     int32
	Name   string
	T      float64
	Volume float64 // m^3
	C      float64 // J/K, set by Model.Prepare
	PInput float64 // W
}

// SurfaceIndex holds the three parallel coordinate slices of solid cells
// adjacent to an air zone, as produced by the surface detector (package
// surface) during Prepare.
type SurfaceIndex struct {
	I, J, K []int
}

// Model is the central dense-array entity described in spec section 3.
type Model struct {
	params params.Parameters
	table  *material.Table

	T          []float64
	Kind       []material.Kind
	Alpha      []float64 // diffusivity, Solid cells only
	Lambda     []float64 // W/(m*K), Solid cells only
	RhoCp      []float64 // J/(m^3*K), Solid cells only
	Emissivity []float64 // gray-body longwave emissivity, Solid cells only
	ZoneID     []int32   // negative zone id, Air cells only; 0 otherwise

	zones      map[int32]*AirZone
	nextZoneID int32 // next id to allocate is nextZoneID-1

	surfaces map[int32]SurfaceIndex

	prepared bool
}

// New allocates a Model of the size implied by p. The zero value of Kind is
// Solid, so New explicitly marks every cell FixedBoundary at T=TExtInit
// until a caller fills it in: an un-filled region behaves as an exterior
// fixed boundary rather than as a Solid cell with zero coefficients.
func New(p params.Parameters, table *material.Table) (*Model, error) {
	n := p.NumCells()
	m := &Model{
		params:     p,
		table:      table,
		T:          make([]float64, n),
		Kind:       make([]material.Kind, n),
		Alpha:      make([]float64, n),
		Lambda:     make([]float64, n),
		RhoCp:      make([]float64, n),
		Emissivity: make([]float64, n),
		ZoneID:     make([]int32, n),
		zones:      make(map[int32]*AirZone),
		nextZoneID: -1,
		surfaces:   make(map[int32]SurfaceIndex),
	}
	for i := range m.Kind {
		m.Kind[i] = material.FixedBoundary
		m.T[i] = p.TExtInit
	}
	return m, nil
}

// Params returns the parameter block this model was built from.
func (m *Model) Params() params.Parameters { return m.params }

// Table returns the material table this model was built from.
func (m *Model) Table() *material.Table { return m.table }

// Idx returns the flat row-major index of cell (i,j,k).
func (m *Model) Idx(i, j, k int) int {
	return (k*m.params.Ny+j)*m.params.Nx + i
}

func (m *Model) inBounds(i, j, k int) bool {
	return i >= 0 && i < m.params.Nx && j >= 0 && j < m.params.Ny && k >= 0 && k < m.params.Nz
}

// At returns the current temperature of cell (i,j,k).
func (m *Model) At(i, j, k int) float64 { return m.T[m.Idx(i, j, k)] }

// Zones returns the air-zone registry. Callers must not mutate the returned
// map's entries outside of Model's own methods.
func (m *Model) Zones() map[int32]*AirZone { return m.zones }

// Surfaces returns the convection-surface index for zone id, valid only
// after Prepare.
func (m *Model) Surfaces(zoneID int32) SurfaceIndex { return m.surfaces[zoneID] }

func worldToIndex(x, ds float64) int {
	return int(math.Round(x / ds))
}

func clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// FillBox writes material (and, for Solid/FixedBoundary cells, an optional
// temperature override) to every cell whose center lies in the inclusive
// box [p1, p2] after each corner is converted to a grid index by
// round-to-nearest and clamped to [0, N).
func (m *Model) FillBox(p1, p2 Point3, materialName string, tOverride *float64) error {
	mat, err := m.table.Lookup(materialName)
	if err != nil {
		return err
	}
	i1 := clamp(worldToIndex(p1.X, m.params.Ds), 0, m.params.Nx-1)
	i2 := clamp(worldToIndex(p2.X, m.params.Ds), 0, m.params.Nx-1)
	j1 := clamp(worldToIndex(p1.Y, m.params.Ds), 0, m.params.Ny-1)
	j2 := clamp(worldToIndex(p2.Y, m.params.Ds), 0, m.params.Ny-1)
	k1 := clamp(worldToIndex(p1.Z, m.params.Ds), 0, m.params.Nz-1)
	k2 := clamp(worldToIndex(p2.Z, m.params.Ds), 0, m.params.Nz-1)
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	if j1 > j2 {
		j1, j2 = j2, j1
	}
	if k1 > k2 {
		k1, k2 = k2, k1
	}

	var idxs []int
	for k := k1; k <= k2; k++ {
		for j := j1; j <= j2; j++ {
			for i := i1; i <= i2; i++ {
				idxs = append(idxs, m.Idx(i, j, k))
			}
		}
	}
	return m.applyBatch(idxs, mat, tOverride)
}

// SetCell applies materialName to the single cell (i,j,k). If this turns a
// Solid cell into Air, the cell joins whichever existing air zone it is
// adjacent to (the "canonical" zone the spec refers to); if it is adjacent
// to two or more distinct zones, fusion is unsupported and an error is
// returned. If it turns an Air cell back into Solid/FixedBoundary, the
// cell's former zone's volume is decremented.
func (m *Model) SetCell(i, j, k int, materialName string) error {
	if !m.inBounds(i, j, k) {
		return &ErrOutOfBounds{Reason: fmt.Sprintf("cell (%d,%d,%d) outside grid", i, j, k)}
	}
	mat, err := m.table.Lookup(materialName)
	if err != nil {
		return err
	}
	return m.applyBatch([]int{m.Idx(i, j, k)}, mat, nil)
}

// ExtrudePlan applies a 2D material plan across the z slab [k1,k2), where
// k1,k2 are derived from zFrom,zTo by round-to-nearest, to build up
// horizontal layers (floor stacks, etc). plan must be shaped [Ny][Nx]; each
// entry is an id looked up in idToMaterial.
func (m *Model) ExtrudePlan(zFrom, zTo float64, plan [][]int, idToMaterial map[int]string) error {
	if len(plan) != m.params.Ny {
		return &ErrOutOfBounds{Reason: fmt.Sprintf("plan has %d rows, want Ny=%d", len(plan), m.params.Ny)}
	}
	for _, row := range plan {
		if len(row) != m.params.Nx {
			return &ErrOutOfBounds{Reason: fmt.Sprintf("plan row has %d cols, want Nx=%d", len(row), m.params.Nx)}
		}
	}
	k1 := clamp(worldToIndex(zFrom, m.params.Ds), 0, m.params.Nz-1)
	k2 := clamp(worldToIndex(zTo, m.params.Ds), 0, m.params.Nz)
	if k2 < k1 {
		k1, k2 = k2, k1
	}

	byMaterial := make(map[string][]int)
	for j, row := range plan {
		for i, id := range row {
			name, ok := idToMaterial[id]
			if !ok {
				return &ErrOutOfBounds{Reason: fmt.Sprintf("plan id %d at (%d,%d) has no material mapping", id, i, j)}
			}
			for k := k1; k < k2; k++ {
				byMaterial[name] = append(byMaterial[name], m.Idx(i, j, k))
			}
		}
	}
	for name, idxs := range byMaterial {
		mat, err := m.table.Lookup(name)
		if err != nil {
			return err
		}
		if err := m.applyBatch(idxs, mat, nil); err != nil {
			return err
		}
	}
	return nil
}

// applyBatch is the shared implementation behind FillBox/SetCell/ExtrudePlan.
// It resolves air-zone membership by looking at which existing zones the
// batch's cells (and their six neighbors) already touch: none -> allocate a
// fresh zone; exactly one -> join it; more than one -> fusion error.
func (m *Model) applyBatch(idxs []int, mat material.Material, tOverride *float64) error {
	if mat.Kind == material.Air {
		zoneID, err := m.resolveZone(idxs)
		if err != nil {
			return err
		}
		for _, idx := range idxs {
			m.convertToAir(idx, zoneID)
		}
		m.invalidate()
		return nil
	}

	for _, idx := range idxs {
		if m.Kind[idx] == material.Air {
			m.releaseFromZone(idx)
		}
		m.Kind[idx] = mat.Kind
		m.ZoneID[idx] = 0
		if mat.Kind == material.Solid {
			m.Alpha[idx] = mat.Alpha
			m.Lambda[idx] = mat.Lambda
			m.RhoCp[idx] = mat.Rho * mat.Cp
			m.Emissivity[idx] = mat.Emissivity
		} else {
			m.Alpha[idx] = 0
			m.Lambda[idx] = 0
			m.RhoCp[idx] = 0
			m.Emissivity[idx] = 0
		}
		if tOverride != nil {
			m.T[idx] = *tOverride
		} else if mat.Kind == material.Solid {
			m.T[idx] = m.params.TIntInit
		} else {
			m.T[idx] = m.params.TExtInit
		}
	}
	m.invalidate()
	return nil
}

func (m *Model) resolveZone(idxs []int) (int32, error) {
	inBatch := make(map[int]bool, len(idxs))
	for _, idx := range idxs {
		inBatch[idx] = true
	}
	touched := make(map[int32]bool)
	for _, idx := range idxs {
		if m.Kind[idx] == material.Air {
			touched[m.ZoneID[idx]] = true
		}
		for _, nb := range m.neighbors(idx) {
			if inBatch[nb] {
				continue
			}
			if m.Kind[nb] == material.Air {
				touched[m.ZoneID[nb]] = true
			}
		}
	}
	switch len(touched) {
	case 0:
		id := m.nextZoneID
		m.nextZoneID--
		m.zones[id] = &AirZone{ID: id, T: m.params.TIntInit}
		return id, nil
	case 1:
		for id := range touched {
			return id, nil
		}
	}
	ids := make([]int32, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	return 0, &ErrAirZoneFusionUnsupported{ZoneA: ids[0], ZoneB: ids[1]}
}

func (m *Model) neighbors(idx int) []int {
	k := idx / (m.params.Nx * m.params.Ny)
	rem := idx % (m.params.Nx * m.params.Ny)
	j := rem / m.params.Nx
	i := rem % m.params.Nx

	var out []int
	if i > 0 {
		out = append(out, m.Idx(i-1, j, k))
	}
	if i < m.params.Nx-1 {
		out = append(out, m.Idx(i+1, j, k))
	}
	if j > 0 {
		out = append(out, m.Idx(i, j-1, k))
	}
	if j < m.params.Ny-1 {
		out = append(out, m.Idx(i, j+1, k))
	}
	if k > 0 {
		out = append(out, m.Idx(i, j, k-1))
	}
	if k < m.params.Nz-1 {
		out = append(out, m.Idx(i, j, k+1))
	}
	return out
}

func (m *Model) convertToAir(idx int, zoneID int32) {
	ds3 := m.params.Ds * m.params.Ds * m.params.Ds
	if m.Kind[idx] == material.Air {
		if m.ZoneID[idx] == zoneID {
			return // already a member; nothing changes
		}
		m.releaseFromZone(idx)
	}
	m.Kind[idx] = material.Air
	m.ZoneID[idx] = zoneID
	m.Alpha[idx] = 0
	m.Lambda[idx] = 0
	m.RhoCp[idx] = 0
	m.Emissivity[idx] = 0
	m.T[idx] = m.params.TIntInit
	m.zones[zoneID].Volume += ds3
}

func (m *Model) releaseFromZone(idx int) {
	ds3 := m.params.Ds * m.params.Ds * m.params.Ds
	if z, ok := m.zones[m.ZoneID[idx]]; ok {
		z.Volume -= ds3
	}
}

// Prepare finalizes air-zone capacities and builds the convection-surface
// index. It is idempotent: calling it again after further edits recomputes
// both from current state.
func (m *Model) Prepare(rhoAir, cpAir float64, surfaceOf func(*Model) (map[int32]SurfaceIndex, error)) error {
	for _, z := range m.zones {
		z.C = z.Volume * rhoAir * cpAir
	}
	surfaces, err := surfaceOf(m)
	if err != nil {
		return err
	}
	m.surfaces = surfaces
	m.prepared = true
	return nil
}

// Prepared reports whether Prepare has been called since the last edit.
func (m *Model) Prepared() bool { return m.prepared }

// invalidate marks the model as no longer prepared; construction operations
// call this automatically after every edit they apply, so that building a
// Simulator on, or advancing one over, an edited model fails with
// sim.ErrNotPrepared until Prepare is called again.
func (m *Model) invalidate() { m.prepared = false }

// TotalZoneVolume sums the registered volume of all zones (reported by the
// thermovox build summary).
func (m *Model) TotalZoneVolume() float64 {
	vols := make([]float64, 0, len(m.zones))
	for _, z := range m.zones {
		vols = append(vols, z.Volume)
	}
	return floats.Sum(vols)
}
