package physics

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aigoflow/mmss-service/internal/models"
)

// AsymmetryParams configures SimulateEqgftAsymmetry
type AsymmetryParams struct {
	Kappa           float64
	NEvents         int64
	SystematicError float64
	Seed            uint64
}

// ParseAsymmetryParams reads kappa, n_events, systematic_error and seed with defaults
func ParseAsymmetryParams(params []byte) AsymmetryParams {
	p := AsymmetryParams{
		Kappa:           floatParam(params, "kappa", 0.2),
		NEvents:         intParam(params, "n_events", 50000),
		SystematicError: floatParam(params, "systematic_error", 1e-4),
		Seed:            uint64(intParam(params, "seed", 0)),
	}
	if p.NEvents <= 0 {
		p.NEvents = 1
	}
	if p.NEvents > maxEvents {
		p.NEvents = maxEvents
	}
	return p
}

const maxEvents = 10_000_000

// ErrOutOfDomain marks parameters the EQGFT formulas are not defined for
var ErrOutOfDomain = errors.New("parameter out of domain")

// Validate requires |κα| < 1 and a finite, non-negative systematic error
func (p AsymmetryParams) Validate() error {
	if !finite(p.Kappa) {
		return fmt.Errorf("%w: kappa must be finite", ErrOutOfDomain)
	}
	if a := PolarizationAsymmetry(p.Kappa); math.Abs(a) >= 1 {
		return fmt.Errorf("%w: |kappa·α| = %g must be below 1", ErrOutOfDomain, math.Abs(a))
	}
	if !finite(p.SystematicError) || p.SystematicError < 0 {
		return fmt.Errorf("%w: systematic_error must be finite and non-negative", ErrOutOfDomain)
	}
	return nil
}

// PolarizationAsymmetry is 𝒜 = κα
func PolarizationAsymmetry(kappa float64) float64 {
	return kappa * FineStructure
}

// SensitivityCurve pairs event counts with the expected significance
type SensitivityCurve struct {
	Sigma   []float64 `json:"sigma"`
	NValues []int64   `json:"n_values"`
}

// CalculateSensitivityCurve computes σ(n) = |A| / sqrt((1-A²)/n)
func CalculateSensitivityCurve(a float64, nValues []int64) SensitivityCurve {
	sigma := make([]float64, len(nValues))
	for i, n := range nValues {
		sigma[i] = math.Abs(a) / math.Sqrt((1-a*a)/float64(n))
	}
	return SensitivityCurve{Sigma: sigma, NValues: nValues}
}

// SensitivityGrid returns 1, 1+step, ... up to n inclusive
func SensitivityGrid(n, step int64) []int64 {
	if step <= 0 {
		step = 1
	}
	out := make([]int64, 0, n/step+1)
	for v := int64(1); v <= n; v += step {
		out = append(out, v)
	}
	return out
}

// ExperimentResult is a simulated polarization asymmetry measurement
type ExperimentResult struct {
	NEvents             int64   `json:"n_events"`
	NPlus               int64   `json:"n_plus"`
	NMinus              int64   `json:"n_minus"`
	ATrue               float64 `json:"a_true"`
	AMeas               float64 `json:"a_meas"`
	StatError           float64 `json:"stat_error"`
	SysError            float64 `json:"sys_error"`
	TotalError          float64 `json:"total_error"`
	SignificanceVsQED   float64 `json:"significance_vs_qed"`
	ConsistentWithEQGFT bool    `json:"consistent_with_eqgft"`
}

// SimulateExperiment draws N₊ ~ Binom(N, (1+A)/2) and evaluates the measurement
func SimulateExperiment(p AsymmetryParams, rng *rand.Rand) ExperimentResult {
	aTrue := PolarizationAsymmetry(p.Kappa)
	pPlus := (1 + aTrue) / 2

	var nPlus int64
	for i := int64(0); i < p.NEvents; i++ {
		if rng.Float64() < pPlus {
			nPlus++
		}
	}
	nMinus := p.NEvents - nPlus
	aMeas := float64(nPlus-nMinus) / float64(p.NEvents)
	stat := math.Sqrt((1 - aMeas*aMeas) / float64(p.NEvents))
	total := math.Sqrt(stat*stat + p.SystematicError*p.SystematicError)

	res := ExperimentResult{
		NEvents:             p.NEvents,
		NPlus:               nPlus,
		NMinus:              nMinus,
		ATrue:               aTrue,
		AMeas:               aMeas,
		StatError:           stat,
		SysError:            p.SystematicError,
		TotalError:          total,
		ConsistentWithEQGFT: math.Abs(aMeas-aTrue) <= total,
	}
	if total > 0 {
		res.SignificanceVsQED = math.Abs(aMeas) / total
	}
	return res
}

// NewRand returns a PCG source; seed 0 means a random seed
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// HopfionParams configures GenerateHopfionField
type HopfionParams struct {
	GridSize int
	Extent   float64
	Radius   float64
}

const maxHopfionGrid = 32

// ParseHopfionParams reads grid_size, extent and radius with defaults
func ParseHopfionParams(params []byte) HopfionParams {
	p := HopfionParams{
		GridSize: int(intParam(params, "grid_size", 12)),
		Extent:   floatParam(params, "extent", 5.0),
		Radius:   floatParam(params, "radius", 1.0),
	}
	if p.GridSize < 2 {
		p.GridSize = 2
	}
	if p.GridSize > maxHopfionGrid {
		p.GridSize = maxHopfionGrid
	}
	if p.Extent <= 0 || !finite(p.Extent) {
		p.Extent = 5.0
	}
	if p.Radius <= 0 || !finite(p.Radius) {
		p.Radius = 1.0
	}
	return p
}

// GenerateHopfionField evaluates the N_H = 1 Hopf-map initial guess on a
// GridSize³ lattice spanning [-Extent, Extent] and normalizes every sample to S³.
func GenerateHopfionField(p HopfionParams) models.HopfionField {
	n := p.GridSize
	step := 2 * p.Extent / float64(n-1)
	r := p.Radius
	qx := make([][4]float64, 0, n*n*n)

	for i := 0; i < n; i++ {
		x := -p.Extent + float64(i)*step
		for j := 0; j < n; j++ {
			y := -p.Extent + float64(j)*step
			for k := 0; k < n; k++ {
				z := -p.Extent + float64(k)*step
				rho2 := x*x + y*y + z*z
				a := r / (rho2 + r*r)
				q := [4]float64{
					(rho2 - r*r) * a,
					2 * r * x * a,
					2 * r * y * a,
					2 * r * z * a,
				}
				norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
				if norm > 0 {
					for c := range q {
						q[c] /= norm
					}
				}
				qx = append(qx, q)
			}
		}
	}

	return models.HopfionField{
		QX:       qx,
		NH:       1,
		GridSize: n,
		Extent:   p.Extent,
	}
}
