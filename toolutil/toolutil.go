// Package toolutil loads a scene description for the authoring tool: the
// physical parameters, the material fills that build the voxel model, and
// the derived-output expressions evaluated at export time. It follows
// inmaputil/config.go's convention of hanging configuration off a
// lnashier/viper instance rather than unmarshaling straight into a struct,
// so a scene file's variables can also be overridden from the environment
// or the command line the same way InMAP's own config does.
package toolutil

import (
	"fmt"
	"math"
	"os"

	"github.com/Knetic/govaluate"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/materiallib"
	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/voxel"
)

// LoadScene reads a scene file (TOML, JSON, or YAML -- whatever viper's
// configured decoders accept) from path into a fresh viper instance.
func LoadScene(path string) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigFile(path)
	if err := cfg.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("toolutil: reading scene file %s: %w", path, err)
	}
	return cfg, nil
}

// BuildParameters extracts the Parameters block from a scene configuration.
func BuildParameters(cfg *viper.Viper) (params.Parameters, error) {
	p := params.Parameters{
		Lx:          cfg.GetFloat64("Params.Lx"),
		Ly:          cfg.GetFloat64("Params.Ly"),
		Lz:          cfg.GetFloat64("Params.Lz"),
		Ds:          cfg.GetFloat64("Params.Ds"),
		Dt:          cfg.GetFloat64("Params.Dt"),
		TIntInit:    cfg.GetFloat64("Params.TIntInit"),
		TExtInit:    cfg.GetFloat64("Params.TExtInit"),
		TGroundInit: cfg.GetFloat64("Params.TGroundInit"),
		HConv:       cfg.GetFloat64("Params.HConv"),
	}
	return params.New(p)
}

// BuildTable resolves the scene's material table: the built-in defaults,
// optionally overridden/extended by a library file named in
// Params.MaterialLibrary. Library files are loaded through one
// process-wide materiallib.Library, so repeated scene loads against the
// same library file read it from disk once.
func BuildTable(cfg *viper.Viper) (*material.Table, error) {
	libPath := os.ExpandEnv(cfg.GetString("Params.MaterialLibrary"))
	if libPath == "" {
		return materiallib.DefaultTable()
	}
	return sceneLibrary.Load(libPath)
}

// sceneLibrary memoizes the material library files BuildTable loads.
var sceneLibrary materiallib.Library

// fillSpec is one entry of the scene's Fills list.
type fillSpec struct {
	From     []float64
	To       []float64
	Material string
}

// extrusionSpec is one entry of the scene's Extrusions list.
type extrusionSpec struct {
	ZFrom     float64
	ZTo       float64
	Plan      [][]int
	Materials map[int]string
}

// ApplyScene builds a voxel model for cfg's Params block and fills it
// according to the scene's Fills and Extrusions lists, in the order they
// appear in the scene file.
func ApplyScene(cfg *viper.Viper) (*voxel.Model, error) {
	p, err := BuildParameters(cfg)
	if err != nil {
		return nil, err
	}
	table, err := BuildTable(cfg)
	if err != nil {
		return nil, err
	}
	m, err := voxel.New(p, table)
	if err != nil {
		return nil, err
	}

	var fills []fillSpec
	if err := cfg.UnmarshalKey("Fills", &fills); err != nil {
		return nil, fmt.Errorf("toolutil: parsing Fills: %w", err)
	}
	for i, f := range fills {
		if len(f.From) != 3 || len(f.To) != 3 {
			return nil, fmt.Errorf("toolutil: Fills[%d]: From/To must each have 3 elements", i)
		}
		from := voxel.NewPoint3(f.From[0], f.From[1], f.From[2])
		to := voxel.NewPoint3(f.To[0], f.To[1], f.To[2])
		if err := m.FillBox(from, to, f.Material, nil); err != nil {
			return nil, fmt.Errorf("toolutil: Fills[%d]: %w", i, err)
		}
	}

	var extrusions []extrusionSpec
	if err := cfg.UnmarshalKey("Extrusions", &extrusions); err != nil {
		return nil, fmt.Errorf("toolutil: parsing Extrusions: %w", err)
	}
	for i, e := range extrusions {
		if err := m.ExtrudePlan(e.ZFrom, e.ZTo, e.Plan, e.Materials); err != nil {
			return nil, fmt.Errorf("toolutil: Extrusions[%d]: %w", i, err)
		}
	}

	return m, nil
}

// defaultExportFunctions mirrors io.go's NewOutputter default function set:
// exp and log are available to every export expression.
func defaultExportFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"exp": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("toolutil: exp takes 1 argument, got %d", len(args))
			}
			return math.Exp(args[0].(float64)), nil
		},
		"log": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("toolutil: log takes 1 argument, got %d", len(args))
			}
			return math.Log(args[0].(float64)), nil
		},
	}
}

// EvalExports evaluates each named expression in exprs against the same
// vars map, for the scene's Export block -- derived report quantities like
// energy-per-volume that are a function of the recorded bilan rather than
// a raw field.
func EvalExports(exprs map[string]string, vars map[string]float64) (map[string]float64, error) {
	funcs := defaultExportFunctions()
	params := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		params[k] = v
	}
	out := make(map[string]float64, len(exprs))
	for name, expr := range exprs {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, funcs)
		if err != nil {
			return nil, fmt.Errorf("toolutil: export %s: %w", name, err)
		}
		result, err := e.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("toolutil: evaluating export %s: %w", name, err)
		}
		f, err := cast.ToFloat64E(result)
		if err != nil {
			return nil, fmt.Errorf("toolutil: export %s did not evaluate to a number: %w", name, err)
		}
		out[name] = f
	}
	return out, nil
}
