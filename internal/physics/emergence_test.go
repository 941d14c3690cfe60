package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/models"
)

func TestBaselineMassMatchesElectron(t *testing.T) {
	m := BaselineMetrics()
	assert.InEpsilon(t, ElectronMass, m.EmergentElectronMass, 1e-9)
	assert.InEpsilon(t, FineStructure, m.FineStructureConstant, 1e-12)
	assert.Equal(t, m.QuaternionCoherence, m.VGeometric)
}

func TestQuaternionRotationRaisesCoherence(t *testing.T) {
	e := NewEmergence(nil)
	before := e.Metrics()

	after, err := e.ApplyOperator(models.OperatorQuaternionRotation, []byte(`{}`))
	require.NoError(t, err)

	assert.Greater(t, after.VGeometric, before.VGeometric)
	assert.Equal(t, after.QuaternionCoherence, after.VGeometric)
	assert.LessOrEqual(t, after.QuaternionCoherence, maxCoherence)
}

func TestQuaternionRotationClampsCoherence(t *testing.T) {
	e := NewEmergence(nil)
	for i := 0; i < 200; i++ {
		_, err := e.ApplyOperator(models.OperatorQuaternionRotation, []byte(`{"theta": 3.14159, "axis": [0, 5, 0]}`))
		require.NoError(t, err)
	}
	assert.Equal(t, maxCoherence, e.Metrics().QuaternionCoherence)
}

func TestZitterbewegungScalesMass(t *testing.T) {
	e := NewEmergence(nil)
	m, err := e.ApplyOperator(models.OperatorZitterbewegung, []byte(`{"frequency_scale": 2.0}`))
	require.NoError(t, err)

	assert.InEpsilon(t, 2*ElectronMass, m.EmergentElectronMass, 1e-9)
	assert.InDelta(t, baselineWinding+0.0001, m.TopologicalWinding, 1e-12)
	assert.Equal(t, m.TopologicalWinding, m.QOscillator)
}

func TestGeometricDerivationClampsEntropy(t *testing.T) {
	e := NewEmergence(nil)
	m, err := e.ApplyOperator(models.OperatorGeometricDerivation, []byte(`{"delta": -1000}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0001, m.SGeometric)
	assert.Equal(t, m.SGeometric, m.ZitterbewegungEntropy)
}

func TestSemanticSynthesisWritesAnchor(t *testing.T) {
	e := NewEmergence(nil)
	m, err := e.ApplyOperator(models.OperatorSemanticSynthesis, []byte(`{"anchor": "electron", "coherence_hint": 0.5}`))
	require.NoError(t, err)

	v, ok := m.CustomMetrics["anchor:electron"].(float64)
	require.True(t, ok)
	assert.InDelta(t, m.QuaternionCoherence*5, v, 1e-12)
}

func TestFineStructureFollowsCoherence(t *testing.T) {
	e := NewEmergence(nil)
	m, err := e.ApplyOperator(models.OperatorQuaternionRotation, []byte(`{"theta": 1}`))
	require.NoError(t, err)
	assert.InDelta(t, FineStructure/m.QuaternionCoherence, m.FineStructureConstant, 1e-15)
}

func TestExtractScalar(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{`2.5`, 2.5, true},
		{`{"value": 3}`, 3, true},
		{`{"scale": 4, "amount": 7}`, 7, true},
		{`{"other": 1}`, 0, false},
		{`"text"`, 0, false},
	}
	for _, tc := range cases {
		got, ok := ExtractScalar([]byte(tc.in))
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestIntegrateQuaternion(t *testing.T) {
	e := NewEmergence(nil)
	m := e.IntegrateQuaternion(models.Quaternion{W: 1, X: 0.5})
	assert.Equal(t, 1.0, m.CustomMetrics["q_w"])
	assert.Equal(t, 0.5, m.CustomMetrics["q_x"])
}

func TestMetricsAreCopies(t *testing.T) {
	e := NewEmergence(nil)
	m := e.Metrics()
	m.CustomMetrics["leak"] = true
	_, leaked := e.Metrics().CustomMetrics["leak"]
	assert.False(t, leaked)
}

func TestHopfionFieldIsUnitQuaternions(t *testing.T) {
	field := GenerateHopfionField(HopfionParams{GridSize: 4, Extent: 2, Radius: 1})

	require.Len(t, field.QX, 64)
	assert.Equal(t, uint64(1), field.NH)
	for _, q := range field.QX {
		norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		assert.InDelta(t, 1.0, norm, 1e-9)
	}
}

func TestParseHopfionParamsBounds(t *testing.T) {
	p := ParseHopfionParams([]byte(`{"grid_size": 1000, "radius": -1}`))
	assert.Equal(t, maxHopfionGrid, p.GridSize)
	assert.Equal(t, 1.0, p.Radius)
	assert.Equal(t, 5.0, p.Extent)
}

func TestSensitivityCurve(t *testing.T) {
	a := PolarizationAsymmetry(0.2)
	grid := SensitivityGrid(5001, 1000)
	assert.Equal(t, []int64{1, 1001, 2001, 3001, 4001, 5001}, grid)

	curve := CalculateSensitivityCurve(a, grid)
	require.Len(t, curve.Sigma, len(grid))
	for i := 1; i < len(curve.Sigma); i++ {
		assert.Greater(t, curve.Sigma[i], curve.Sigma[i-1])
	}
}

func TestSimulateExperimentIsDeterministicPerSeed(t *testing.T) {
	p := AsymmetryParams{Kappa: 0.2, NEvents: 20000, SystematicError: 1e-4}
	r1 := SimulateExperiment(p, NewRand(42))
	r2 := SimulateExperiment(p, NewRand(42))

	assert.Equal(t, r1, r2)
	assert.Equal(t, p.NEvents, r1.NPlus+r1.NMinus)
	assert.Greater(t, r1.TotalError, r1.StatError)
}

func TestNonFiniteOperatorLeavesStateUnchanged(t *testing.T) {
	e := NewEmergence(nil)
	before := e.Metrics()

	_, err := e.ApplyOperator(models.OperatorQuaternionRotation, []byte(`{"theta": 1e400}`))
	require.ErrorIs(t, err, ErrNonFinite)
	assert.Equal(t, before, e.Metrics())

	_, err = e.ApplyOperator(models.OperatorZitterbewegung, []byte(`{"frequency_scale": 1e400}`))
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.NoError(t, CheckFinite(e.Metrics()))
}

func TestCheckFiniteCustomMetrics(t *testing.T) {
	m := BaselineMetrics()
	require.NoError(t, CheckFinite(m))

	m.CustomMetrics["bad"] = math.Inf(1)
	assert.ErrorIs(t, CheckFinite(m), ErrNonFinite)
}

func TestAsymmetryParamsValidate(t *testing.T) {
	tests := []struct {
		name  string
		p     AsymmetryParams
		valid bool
	}{
		{"default", AsymmetryParams{Kappa: 0.2, SystematicError: 1e-4}, true},
		{"negative kappa", AsymmetryParams{Kappa: -100}, true},
		{"kappa above 1/alpha", AsymmetryParams{Kappa: 200}, false},
		{"kappa just above 1/alpha", AsymmetryParams{Kappa: 138}, false},
		{"infinite kappa", AsymmetryParams{Kappa: math.Inf(1)}, false},
		{"negative systematic error", AsymmetryParams{Kappa: 0.2, SystematicError: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrOutOfDomain)
			}
		})
	}
}

func TestParseHopfionParamsRejectsInfinite(t *testing.T) {
	p := ParseHopfionParams([]byte(`{"extent": 1e400, "radius": 1e400}`))
	assert.Equal(t, 5.0, p.Extent)
	assert.Equal(t, 1.0, p.Radius)
}
