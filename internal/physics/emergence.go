package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/aigoflow/mmss-service/internal/models"
)

// ErrNonFinite marks an operator result that left the real numbers
var ErrNonFinite = errors.New("metric is not finite")

// Emergence applies the SYS7..SYS1 cascade to a metrics state.
// It is not safe for concurrent use; callers serialize access.
type Emergence struct {
	metrics models.GeometricMetrics
}

func NewEmergence(initial *models.GeometricMetrics) *Emergence {
	m := BaselineMetrics()
	if initial != nil {
		m = initial.Clone()
	}
	return &Emergence{metrics: m}
}

// Metrics returns a copy of the current state
func (e *Emergence) Metrics() models.GeometricMetrics {
	return e.metrics.Clone()
}

// Reset replaces the current state
func (e *Emergence) Reset(m models.GeometricMetrics) {
	e.metrics = m.Clone()
}

// ApplyOperator stores and returns the result of Next. On error the state is unchanged.
func (e *Emergence) ApplyOperator(op models.GeometricOperator, params []byte) (models.GeometricMetrics, error) {
	next, err := e.Next(op, params)
	if err != nil {
		return e.metrics.Clone(), err
	}
	e.metrics = next.Clone()
	return next, nil
}

// Next computes the state op would produce without storing it. Operators that are
// executed outside the cascade only refresh the derived quantities.
func (e *Emergence) Next(op models.GeometricOperator, params []byte) (models.GeometricMetrics, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}
	magnitude, ok := ExtractScalar(params)
	if !ok {
		magnitude = 1.0
	}
	next := e.metrics.Clone()
	m := &next

	switch op {
	case models.OperatorQuaternionRotation:
		theta := floatParam(params, "theta", magnitude)
		axis := axisParam(params, [3]float64{0, 1, 0})
		axisNorm := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
		boost := math.Abs(math.Sin(theta*0.5)) * 0.005 * math.Max(axisNorm, 1e-6)
		m.QuaternionCoherence = clamp(m.QuaternionCoherence+boost, 0, maxCoherence)
		m.VGeometric = m.QuaternionCoherence

	case models.OperatorZitterbewegung:
		freqScale := floatParam(params, "frequency_scale", math.Abs(magnitude))
		scaled := math.Abs(ZitterAmplitude / math.Max(freqScale, 1e-6))
		m.EmergentElectronMass = ElectronMassFromAmplitude(scaled)
		m.TopologicalWinding = math.Max(m.TopologicalWinding+(freqScale-1.0)*0.0001, 0)
		m.QOscillator = math.Max(m.TopologicalWinding, 0)

	case models.OperatorGeometricDerivation:
		delta := floatParam(params, "delta", magnitude)
		m.SGeometric = clamp(m.SGeometric+delta*0.001, 0.0001, 1.0)
		m.ZitterbewegungEntropy = m.SGeometric

	case models.OperatorSemanticSynthesis:
		hint := floatParam(params, "coherence_hint", 0.95)
		anchor := gjson.GetBytes(params, "anchor")
		name := "quantum-atom"
		if anchor.Type == gjson.String {
			name = anchor.String()
		}
		if m.CustomMetrics == nil {
			m.CustomMetrics = map[string]any{}
		}
		m.CustomMetrics[fmt.Sprintf("anchor:%s", name)] = math.Max(m.QuaternionCoherence*hint*10.0, 0)
	}

	m.FineStructureConstant = math.Min(FineStructure/math.Max(m.QuaternionCoherence, 1e-6), 1.0)
	if m.ZitterbewegungEntropy <= 0 {
		m.ZitterbewegungEntropy = baselineEntropy
	}
	if m.EmergentElectronMass <= 0 {
		m.EmergentElectronMass = ElectronMassFromAmplitude(ZitterAmplitude)
	}
	if m.QuaternionCoherence <= 0 {
		m.QuaternionCoherence = baselineCoherence
	}
	if m.TopologicalWinding <= 0 {
		m.TopologicalWinding = m.QOscillator
	}

	if err := CheckFinite(next); err != nil {
		return models.GeometricMetrics{}, fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

// CheckFinite rejects NaN or infinite scalars, including numeric custom metrics
func CheckFinite(m models.GeometricMetrics) error {
	for i, v := range m.Vector() {
		if !finite(v) {
			return fmt.Errorf("%w: %s", ErrNonFinite, models.MetricLabels[i])
		}
	}
	for key, raw := range m.CustomMetrics {
		if v, ok := raw.(float64); ok && !finite(v) {
			return fmt.Errorf("%w: custom_metrics[%s]", ErrNonFinite, key)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IntegrateQuaternion records q into the custom metrics
func (e *Emergence) IntegrateQuaternion(q models.Quaternion) models.GeometricMetrics {
	if e.metrics.CustomMetrics == nil {
		e.metrics.CustomMetrics = map[string]any{}
	}
	e.metrics.CustomMetrics["q_w"] = q.W
	e.metrics.CustomMetrics["q_x"] = q.X
	e.metrics.CustomMetrics["q_y"] = q.Y
	e.metrics.CustomMetrics["q_z"] = q.Z
	return e.metrics.Clone()
}

// ExtractScalar reads a bare number, or the first of magnitude/value/amount/scale
func ExtractScalar(params []byte) (float64, bool) {
	root := gjson.ParseBytes(params)
	if root.Type == gjson.Number {
		return root.Float(), true
	}
	if !root.IsObject() {
		return 0, false
	}
	for _, key := range []string{"magnitude", "value", "amount", "scale"} {
		if v := root.Get(key); v.Type == gjson.Number {
			return v.Float(), true
		}
	}
	return 0, false
}

func floatParam(params []byte, key string, def float64) float64 {
	v := gjson.GetBytes(params, key)
	if v.Type != gjson.Number {
		return def
	}
	return v.Float()
}

func intParam(params []byte, key string, def int64) int64 {
	v := gjson.GetBytes(params, key)
	if v.Type != gjson.Number || v.Int() < 0 {
		return def
	}
	return v.Int()
}

func axisParam(params []byte, def [3]float64) [3]float64 {
	v := gjson.GetBytes(params, "axis")
	if !v.IsArray() {
		return def
	}
	items := v.Array()
	if len(items) < 3 {
		return def
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		if items[i].Type != gjson.Number {
			return def
		}
		out[i] = items[i].Float()
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
