// Package surface detects, for each air zone in a voxel model, the set of
// adjacent Solid cells that bound it -- the convection surface a Simulator
// exchanges heat across. Detection is a one-shot, six-direction
// shift-and-mask pass over the dense grid, generalizing the teacher's
// direction-by-direction neighbor walk (neighbors.go) from pointer-linked
// cells to flat-array index arithmetic.
package surface

import (
	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/voxel"
)

// direction is one of the six axis-aligned steps a cell can be shifted by to
// find its neighbor on that face.
type direction struct {
	di, dj, dk int
}

var directions = [6]direction{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// Detect scans m and returns, for every air zone currently registered, the
// set of Solid cells with at least one face touching that zone's Air cells.
// A Solid cell bordering two different zones appears in each of those
// zones' indexes, and at most once within any one zone's index, however
// many of its faces touch that zone.
func Detect(m *voxel.Model) (map[int32]voxel.SurfaceIndex, error) {
	p := m.Params()
	seen := make(map[int32]map[int]bool, len(m.Zones()))
	for id := range m.Zones() {
		seen[id] = make(map[int]bool)
	}

	for k := 0; k < p.Nz; k++ {
		for j := 0; j < p.Ny; j++ {
			for i := 0; i < p.Nx; i++ {
				idx := m.Idx(i, j, k)
				if m.Kind[idx] != material.Solid {
					continue
				}
				for _, d := range directions {
					ni, nj, nk := i+d.di, j+d.dj, k+d.dk
					if ni < 0 || ni >= p.Nx || nj < 0 || nj >= p.Ny || nk < 0 || nk >= p.Nz {
						continue
					}
					nIdx := m.Idx(ni, nj, nk)
					zoneID := m.ZoneID[nIdx]
					if zoneID == 0 {
						continue // neighbor is not an Air cell
					}
					if !seen[zoneID][idx] {
						seen[zoneID][idx] = true
					}
				}
			}
		}
	}

	out := make(map[int32]voxel.SurfaceIndex, len(seen))
	for zoneID, members := range seen {
		var si voxel.SurfaceIndex
		for idx := range members {
			k := idx / (p.Nx * p.Ny)
			rem := idx % (p.Nx * p.Ny)
			j := rem / p.Nx
			i := rem % p.Nx
			si.I = append(si.I, i)
			si.J = append(si.J, j)
			si.K = append(si.K, k)
		}
		out[zoneID] = si
	}
	return out, nil
}
