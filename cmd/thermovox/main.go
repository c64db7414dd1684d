// Command thermovox is the authoring and run tool for voxel-grid building
// heat-transport scenes: build a model from a scene file and print a
// summary, run a built-in demo or a scene file for a number of steps while
// recording sinks, export a finished run's bilan to a report, or serve the
// RPC-style tool interface over a websocket.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lnashier/viper"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/materiallib"
	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/report"
	"github.com/voxeltherm/thermovox/rpcserver"
	"github.com/voxeltherm/thermovox/sim"
	"github.com/voxeltherm/thermovox/sink/disksink"
	"github.com/voxeltherm/thermovox/sink/memsink"
	"github.com/voxeltherm/thermovox/sink/plotsink"
	"github.com/voxeltherm/thermovox/surface"
	"github.com/voxeltherm/thermovox/toolutil"
	"github.com/voxeltherm/thermovox/voxel"
)

// Cfg holds the tool's configuration, the same *viper.Viper-backed shape
// inmaputil/cmd.go's Cfg uses so flags and environment variables
// (THERMOVOX_<NAME>) resolve through one lookup. Scene files are read into
// their own viper instance by toolutil.LoadScene.
type Cfg struct {
	*viper.Viper

	Root, buildCmd, demoCmd, runCmd, reportCmd, serveCmd *cobra.Command
}

var logger = logrus.StandardLogger()

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func initializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}
	cfg.SetEnvPrefix("THERMOVOX")
	cfg.AutomaticEnv()

	cfg.Root = &cobra.Command{
		Use:   "thermovox",
		Short: "A voxel-grid building heat-transport simulator.",
		Long: `thermovox builds and runs a voxel-grid conduction/convection/radiation
simulation of a building interior from a scene file.`,
		// Rebind to the running subcommand's flags: an option registered on
		// several subcommands is otherwise bound to the last flagset only.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.BindPFlags(cmd.Flags())
		},
		DisableAutoGenTag: true,
	}

	cfg.buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build a model from a scene file and print a summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			scene, err := toolutil.LoadScene(cfg.GetString("scene"))
			if err != nil {
				return err
			}
			m, err := toolutil.ApplyScene(scene)
			if err != nil {
				return err
			}
			printSummary(cmd, m)
			return nil
		},
		DisableAutoGenTag: true,
	}

	cfg.demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run a small built-in demo scene for a number of steps.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := demoModel()
			if err != nil {
				return err
			}
			if err := m.Prepare(1.2, 1005, surface.Detect); err != nil {
				return fmt.Errorf("thermovox: preparing demo model: %w", err)
			}
			return runSteps(cmd, m, cfg.GetInt("steps"), cfg.GetString("out"))
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a scene file for a number of steps, recording sinks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			scene, err := toolutil.LoadScene(cfg.GetString("scene"))
			if err != nil {
				return err
			}
			m, err := toolutil.ApplyScene(scene)
			if err != nil {
				return err
			}
			if err := m.Prepare(1.2, 1005, surface.Detect); err != nil {
				return fmt.Errorf("thermovox: preparing model: %w", err)
			}
			return runSteps(cmd, m, cfg.GetInt("steps"), cfg.GetString("out"))
		},
		DisableAutoGenTag: true,
	}

	cfg.reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Run a scene file and export its bilan to an XLSX workbook and a PDF summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			scene, err := toolutil.LoadScene(cfg.GetString("scene"))
			if err != nil {
				return err
			}
			m, err := toolutil.ApplyScene(scene)
			if err != nil {
				return err
			}
			if err := m.Prepare(1.2, 1005, surface.Detect); err != nil {
				return fmt.Errorf("thermovox: preparing model: %w", err)
			}
			s, err := sim.New(m, sim.Options{})
			if err != nil {
				return err
			}
			for i := 0; i < cfg.GetInt("steps"); i++ {
				if err := s.AdvanceOne(); err != nil {
					return err
				}
			}
			out := cfg.GetString("out")
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			if err := report.WriteXLSX(s.Bilan(), filepath.Join(out, "bilan.xlsx")); err != nil {
				return err
			}
			return report.WritePDF(s.Bilan(), filepath.Join(out, "bilan.pdf"))
		},
		DisableAutoGenTag: true,
	}

	cfg.serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the RPC-style tool interface over a websocket.",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := cfg.GetString("addr")
			logger.WithField("addr", addr).Info("starting rpcserver")
			return rpcserver.ListenAndServe(addr)
		},
		DisableAutoGenTag: true,
	}

	cfg.Root.AddCommand(cfg.buildCmd, cfg.demoCmd, cfg.runCmd, cfg.reportCmd, cfg.serveCmd)

	// options mirrors inmaputil/cmd.go's option-table pattern: one entry per
	// flag, registered on every flagset that should expose it and bound into
	// cfg.Viper so "--steps" and "THERMOVOX_STEPS" resolve the same way.
	options := []struct {
		name, usage string
		defaultVal  interface{}
		flagsets    []*pflag.FlagSet
	}{
		{name: "scene", usage: "path to the scene file", defaultVal: "",
			flagsets: []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.runCmd.Flags(), cfg.reportCmd.Flags()}},
		{name: "out", usage: "output directory for recorded sinks/reports", defaultVal: "./out",
			flagsets: []*pflag.FlagSet{cfg.demoCmd.Flags(), cfg.runCmd.Flags(), cfg.reportCmd.Flags()}},
		{name: "steps", usage: "number of steps to advance", defaultVal: 10,
			flagsets: []*pflag.FlagSet{cfg.demoCmd.Flags(), cfg.runCmd.Flags(), cfg.reportCmd.Flags()}},
		{name: "addr", usage: "address to listen on", defaultVal: ":8090",
			flagsets: []*pflag.FlagSet{cfg.serveCmd.Flags()}},
	}
	for _, option := range options {
		for _, set := range option.flagsets {
			switch v := option.defaultVal.(type) {
			case string:
				set.String(option.name, v, option.usage)
			case int:
				set.Int(option.name, v, option.usage)
			default:
				panic(fmt.Errorf("thermovox: invalid option default type: %T", option.defaultVal))
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	return cfg
}

// printSummary reports a built model's grid and zone sizes to cmd's output.
func printSummary(cmd *cobra.Command, m *voxel.Model) {
	p := m.Params()
	cmd.Printf("grid: %dx%dx%d (%d cells)\n", p.Nx, p.Ny, p.Nz, p.NumCells())
	cmd.Printf("air zones: %d, total zone volume: %.4f m^3\n", len(m.Zones()), m.TotalZoneVolume())
}

// runSteps advances a prepared model and feeds each step to an in-memory
// snapshot ring, a CDF/diskv archive, and a per-step temperature-profile
// plot, the way a run command's output sinks split across quick-look,
// durable, and visual forms.
func runSteps(cmd *cobra.Command, m *voxel.Model, steps int, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("thermovox: creating output directory: %w", err)
	}
	disk, err := disksink.New(outDir)
	if err != nil {
		return fmt.Errorf("thermovox: creating disksink: %w", err)
	}
	mem := memsink.New(steps)
	plot := plotsink.New(outDir, m.Params().Ny/2, m.Params().Nz/2)

	s, err := sim.New(m, sim.Options{
		Radiation: sim.NewRadiation(m.Params().TExtInit + 273.15),
		Sinks:     []sim.Sink{mem, disk, plot},
	})
	if err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := s.AdvanceOne(); err != nil {
			return fmt.Errorf("thermovox: step %d: %w", i, err)
		}
	}
	mean, stddev := s.Bilan().DriftStats()
	cmd.Printf("ran %d steps: state=%s drift mean=%.4f%% stddev=%.4f%%\n", steps, s.State(), mean, stddev)
	if latest, ok := mem.Latest(); ok {
		cmd.Printf("last recorded snapshot: step=%d t=%.1fs\n", latest.Step, latest.T)
	}
	return nil
}

// demoModel builds a small built-in scene: a concrete shell enclosing one
// air zone, so `thermovox demo` has something to run without a scene file.
func demoModel() (*voxel.Model, error) {
	p, err := params.New(params.Parameters{
		Lx: 0.6, Ly: 0.6, Lz: 0.6, Ds: 0.1, Dt: 10,
		TIntInit: 20, TExtInit: 2, TGroundInit: 8, HConv: 8,
	})
	if err != nil {
		return nil, err
	}
	defaults := materiallib.Default()
	table, err := material.NewTable(defaults)
	if err != nil {
		return nil, err
	}
	m, err := voxel.New(p, table)
	if err != nil {
		return nil, err
	}
	if err := m.FillBox(voxel.NewPoint3(0, 0, 0), voxel.NewPoint3(0.6, 0.6, 0.6), "BETON", nil); err != nil {
		return nil, err
	}
	if err := m.FillBox(voxel.NewPoint3(0.1, 0.1, 0.1), voxel.NewPoint3(0.5, 0.5, 0.5), "AIR", nil); err != nil {
		return nil, err
	}
	return m, nil
}

func main() {
	cfg := initializeConfig()
	if err := cfg.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
