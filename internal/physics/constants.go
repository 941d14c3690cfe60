// Package physics holds the emergence model that turns geometric operators
// into metric updates, plus the EQGFT routines used by the simulation tasks.
package physics

import "github.com/aigoflow/mmss-service/internal/models"

// SI constants
const (
	HBAR          = 1.054571817e-34  // J·s
	C             = 299792458.0      // m/s
	ElectronMass  = 9.1093837015e-31 // kg
	FineStructure = 1.0 / 137.035999084
)

// ZitterAmplitude is λ = ħ / (2 mₑ c)
const ZitterAmplitude = HBAR / (2 * ElectronMass * C)

const (
	baselineCoherence = 0.9990
	baselineEntropy   = 0.0500
	baselineWinding   = 8.9997
	maxCoherence      = 0.9999
)

// ElectronMassFromAmplitude inverts the zitterbewegung amplitude relation
func ElectronMassFromAmplitude(amplitude float64) float64 {
	return HBAR / (2 * C * amplitude)
}

// BaselineMetrics is the state of a freshly started system
func BaselineMetrics() models.GeometricMetrics {
	return models.GeometricMetrics{
		VGeometric:            baselineCoherence,
		SGeometric:            baselineEntropy,
		QOscillator:           baselineWinding,
		QuaternionCoherence:   baselineCoherence,
		EmergentElectronMass:  ElectronMassFromAmplitude(ZitterAmplitude),
		FineStructureConstant: FineStructure,
		ZitterbewegungEntropy: baselineEntropy,
		TopologicalWinding:    baselineWinding,
		CustomMetrics:         map[string]any{},
	}
}
