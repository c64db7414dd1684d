// Package materiallib is the out-of-core "library of material constants"
// collaborator: a built-in default set of named construction materials, and
// a loader for overriding/extending that set from a TOML file on disk. File
// loads are memoized per Library so that repeatedly building scenes against
// the same library file in one process only touches disk once, the same
// requestcache.Memory pattern
// emissions/slca/bea/matrix.go uses to avoid re-reading the same Excel
// workbook.
package materiallib

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/unit"

	"github.com/voxeltherm/thermovox/material"
)

// Default returns the built-in material set: a handful of common building
// materials plus the two non-solid kinds every scene needs.
func Default() []material.Material {
	return []material.Material{
		{Name: "PARPAING", Kind: material.Solid, Lambda: 1.05, Rho: 1400, Cp: 1000},
		{Name: "BETON", Kind: material.Solid, Lambda: 1.75, Rho: 2300, Cp: 1000},
		{Name: "TERRE", Kind: material.Solid, Lambda: 1.40, Rho: 1700, Cp: 1800},
		{Name: "PARQUET", Kind: material.Solid, Lambda: 0.14, Rho: 600, Cp: 1600, Emissivity: 0.9},
		{Name: "ISOLANT", Kind: material.Solid, Lambda: 0.04, Rho: 30, Cp: 1450, Emissivity: 0.9},
		{Name: "AIR", Kind: material.Air, Rho: 1.2, Cp: 1005},
		{Name: "EXTERIEUR", Kind: material.FixedBoundary},
	}
}

// DefaultTable builds a frozen material.Table from Default.
func DefaultTable() (*material.Table, error) {
	return material.NewTable(Default())
}

// entry is the TOML record shape for one material in a library file.
type entry struct {
	Name       string
	Kind       string // "solid", "fixed_boundary", "air"
	Lambda     float64
	Rho        float64
	Cp         float64
	Emissivity float64
}

type libraryFile struct {
	Material []entry
}

func kindFromString(s string) (material.Kind, error) {
	switch s {
	case "solid", "":
		return material.Solid, nil
	case "fixed_boundary":
		return material.FixedBoundary, nil
	case "air":
		return material.Air, nil
	default:
		return 0, fmt.Errorf("materiallib: unknown material kind %q", s)
	}
}

// SI dimensions of a library entry's physical fields.
var (
	conductivityDims = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 1, unit.TimeDim: -3, unit.TemperatureDim: -1}
	densityDims      = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -3}
	specificHeatDims = unit.Dimensions{unit.LengthDim: 2, unit.TimeDim: -2, unit.TemperatureDim: -1}
	diffusivityDims  = unit.Dimensions{unit.LengthDim: 2, unit.TimeDim: -1}
)

// checkAlphaDimensions recomputes diffusivity = lambda/(rho*cp) through
// ctessum/unit's Mul/Div, which derive the result's dimensions from the
// operands rather than taking them on faith, and checks the result against
// diffusivityDims. The operands' dimensions are this package's fixed
// conductivityDims, densityDims and specificHeatDims, not read from the
// library file, so the check passes for any numeric values: swapped or
// mis-scaled lambda, rho or cp values are not detected.
func checkAlphaDimensions(lambda, rho, cp float64) error {
	lambdaU := unit.New(lambda, conductivityDims)
	rhoU := unit.New(rho, densityDims)
	cpU := unit.New(cp, specificHeatDims)
	alphaU := unit.Div(lambdaU, unit.Mul(rhoU, cpU))
	return alphaU.Check(diffusivityDims)
}

func (e entry) toMaterial() (material.Material, error) {
	kind, err := kindFromString(e.Kind)
	if err != nil {
		return material.Material{}, err
	}
	if kind == material.Solid {
		if e.Rho <= 0 || e.Cp <= 0 {
			return material.Material{}, fmt.Errorf("materiallib: %s: rho and cp must be > 0", e.Name)
		}
		if err := checkAlphaDimensions(e.Lambda, e.Rho, e.Cp); err != nil {
			return material.Material{}, fmt.Errorf("materiallib: %s: %w", e.Name, err)
		}
	}
	return material.Material{
		Name:       e.Name,
		Kind:       kind,
		Lambda:     e.Lambda,
		Rho:        e.Rho,
		Cp:         e.Cp,
		Emissivity: e.Emissivity,
	}, nil
}

// Library loads and memoizes material library files from disk.
type Library struct {
	cacheOnce sync.Once
	cache     *requestcache.Cache
}

func (l *Library) fileCache() *requestcache.Cache {
	l.cacheOnce.Do(func() {
		l.cache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			path := req.(string)
			var lf libraryFile
			if _, err := toml.DecodeFile(path, &lf); err != nil {
				return nil, fmt.Errorf("materiallib: decoding %s: %w", path, err)
			}
			return lf, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(64))
	})
	return l.cache
}

// Load reads a TOML library file, validates each entry's physical
// dimensions, and merges it on top of Default() (a library entry with the
// same name as a default material replaces it) into a frozen material.Table.
func (l *Library) Load(path string) (*material.Table, error) {
	r := l.fileCache().NewRequest(context.Background(), path, path)
	raw, err := r.Result()
	if err != nil {
		return nil, err
	}
	lf := raw.(libraryFile)

	byName := make(map[string]material.Material)
	for _, m := range Default() {
		byName[m.Name] = m
	}
	for _, e := range lf.Material {
		m, err := e.toMaterial()
		if err != nil {
			return nil, err
		}
		byName[m.Name] = m
	}

	materials := make([]material.Material, 0, len(byName))
	for _, m := range byName {
		materials = append(materials, m)
	}
	return material.NewTable(materials)
}
