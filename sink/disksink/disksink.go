// Package disksink is the on-disk Sink collaborator: it archives each
// recorded step's temperature field to a per-step NetCDF ('classic' format)
// file via ctessum/cdf, and keeps a keyed side channel of per-zone
// temperatures in a diskv key/value store for cheap random access without
// re-opening a CDF file. Transient write failures are retried with
// exponential backoff, the same pattern cloud/blob.go uses for its
// retry-on-transient-error object-store writes.
package disksink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/peterbourgon/diskv"

	"github.com/voxeltherm/thermovox/voxel"
)

// Sink writes one NetCDF snapshot file per recorded step under Dir, plus a
// diskv-backed key/value log of "zone:<id>:<step>" -> temperature entries.
type Sink struct {
	Dir string
	kv  *diskv.Diskv
}

// New builds a Sink rooted at dir, creating it if necessary. The
// zone-temperature side channel's diskv store lives in the "zones"
// subdirectory of dir.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disksink: %w", err)
	}
	kv := diskv.New(diskv.Options{
		BasePath:     filepath.Join(dir, "zones"),
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: uint64(1 << 20),
	})
	return &Sink{Dir: dir, kv: kv}, nil
}

// Record satisfies sim.Sink: it writes a NetCDF snapshot of m.T and logs
// each zone's current temperature to the diskv side channel.
func (s *Sink) Record(step int, t float64, m *voxel.Model) error {
	op := func() error { return s.writeSnapshot(step, t, m) }
	if err := backoff.Retry(op, backoff.NewExponentialBackOff()); err != nil {
		return fmt.Errorf("disksink: step %d: %w", step, err)
	}
	for zoneID, zone := range m.Zones() {
		key := fmt.Sprintf("zone:%d:%06d", zoneID, step)
		if err := s.kv.Write(key, []byte(fmt.Sprintf("%.6f", zone.T))); err != nil {
			return fmt.Errorf("disksink: zone log: %w", err)
		}
	}
	return nil
}

func (s *Sink) writeSnapshot(step int, t float64, m *voxel.Model) error {
	p := m.Params()
	path := filepath.Join(s.Dir, fmt.Sprintf("step-%06d.cdf", step))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := cdf.NewHeader([]string{"x", "y", "z"}, []int{p.Nx, p.Ny, p.Nz})
	h.AddAttribute("", "t", []float64{t})
	h.AddVariable("temperature", []string{"z", "y", "x"}, m.T)
	h.Define()

	cf, err := cdf.Create(f, h)
	if err != nil {
		return err
	}
	w := cf.Writer("temperature", nil, nil)
	if _, err := w.Write(m.T); err != nil {
		return err
	}
	return nil
}

// ZoneTemperature reads back the logged temperature for zoneID at step.
func (s *Sink) ZoneTemperature(zoneID int32, step int) (float64, error) {
	key := fmt.Sprintf("zone:%d:%06d", zoneID, step)
	b, err := s.kv.Read(key)
	if err != nil {
		return 0, err
	}
	var v float64
	if _, err := fmt.Sscanf(string(b), "%f", &v); err != nil {
		return 0, err
	}
	return v, nil
}
