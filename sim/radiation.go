package sim

import (
	"math"

	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/voxel"
)

// stefanBoltzmann is sigma, W/(m^2*K^4).
const stefanBoltzmann = 5.670374419e-8

// celsiusToKelvin converts a temperature in the engine's native unit (deg C)
// to Kelvin, used only inside the radiation substep.
const celsiusToKelvin = 273.15

// Radiation models gray-body longwave exchange between each surface cell
// bounding an air zone and an external sky temperature TSky (absolute,
// Kelvin) -- the building radiates to (or absorbs from) the exterior
// environment rather than redistributing heat within its own enclosure. It
// is optional: a Simulator built with a nil *Radiation in its Options skips
// this substep entirely, matching the spec's "optional Stefan-Boltzmann
// radiation" (the enable_external toggle named in the configuration list).
type Radiation struct {
	TSky float64 // Kelvin
}

// NewRadiation builds a radiation substep exchanging against tSkyKelvin.
// Each surface cell's own Emissivity (set from its material at construction
// time) governs how strongly it radiates.
func NewRadiation(tSkyKelvin float64) *Radiation { return &Radiation{TSky: tSkyKelvin} }

// apply runs one radiation exchange pass across every zone's surface,
// exchanging each surface cell independently against the configured sky
// temperature (no intra-enclosure redistribution, so a uniform body still
// loses net energy to a colder sky).
func (r *Radiation) apply(m *voxel.Model, p params.Parameters) {
	ds2 := p.Ds * p.Ds
	ds3 := ds2 * p.Ds
	tSky4 := r.TSky * r.TSky * r.TSky * r.TSky

	for zoneID := range m.Zones() {
		si := m.Surfaces(zoneID)
		for idx := range si.I {
			cellIdx := m.Idx(si.I[idx], si.J[idx], si.K[idx])
			tSurf := m.T[cellIdx] + celsiusToKelvin
			qRad := m.Emissivity[cellIdx] * stefanBoltzmann * ds2 * (math.Pow(tSurf, 4) - tSky4) * p.Dt
			m.T[cellIdx] -= qRad / (m.RhoCp[cellIdx] * ds3)
		}
	}
}
