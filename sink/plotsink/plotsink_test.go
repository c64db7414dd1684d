package plotsink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/voxel"
)

func testModel(t *testing.T) *voxel.Model {
	t.Helper()
	p, err := params.New(params.Parameters{Lx: 0.3, Ly: 0.2, Lz: 0.2, Ds: 0.1, Dt: 1, TIntInit: 15})
	if err != nil {
		t.Fatalf("params.New: %v", err)
	}
	tbl, err := material.NewTable([]material.Material{{Name: "BETON", Kind: material.Solid, Lambda: 1, Rho: 1, Cp: 1}})
	if err != nil {
		t.Fatalf("material.NewTable: %v", err)
	}
	m, err := voxel.New(p, tbl)
	if err != nil {
		t.Fatalf("voxel.New: %v", err)
	}
	if err := m.FillBox(voxel.NewPoint3(0, 0, 0), voxel.NewPoint3(0.3, 0.2, 0.2), "BETON", nil); err != nil {
		t.Fatalf("FillBox: %v", err)
	}
	return m
}

func TestTemperatureProfileMatchesGrid(t *testing.T) {
	m := testModel(t)
	xs, ts := TemperatureProfile(m, 1, 1)
	if len(xs) != m.Params().Nx || len(ts) != m.Params().Nx {
		t.Fatalf("profile length = (%d,%d), want Nx=%d", len(xs), len(ts), m.Params().Nx)
	}
	for i, x := range xs {
		if x != float64(i)*m.Params().Ds {
			t.Errorf("xs[%d] = %v, want %v", i, x, float64(i)*m.Params().Ds)
		}
	}
}

func TestSinkWritesPNGPerStep(t *testing.T) {
	dir := t.TempDir()
	m := testModel(t)
	s := New(dir, 1, 1)
	if err := s.Record(1, 0, m); err != nil {
		t.Fatalf("Record: %v", err)
	}
	path := filepath.Join(dir, "step-000001.png")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected PNG at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Errorf("PNG file is empty")
	}
}
