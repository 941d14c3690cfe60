package models

import (
	"maps"
)

// GeometricMetrics is the scalar state of the simulated system
type GeometricMetrics struct {
	VGeometric            float64        `json:"v_geometric"`
	SGeometric            float64        `json:"s_geometric"`
	QOscillator           float64        `json:"q_oscillator"`
	QuaternionCoherence   float64        `json:"quaternion_coherence"`
	EmergentElectronMass  float64        `json:"emergent_electron_mass"`
	FineStructureConstant float64        `json:"fine_structure_constant"`
	ZitterbewegungEntropy float64        `json:"zitterbewegung_entropy"`
	TopologicalWinding    float64        `json:"topological_winding"`
	CustomMetrics         map[string]any `json:"custom_metrics"`
}

// MetricLabels is the fixed order used by Vector
var MetricLabels = []string{
	"v_geometric",
	"s_geometric",
	"q_oscillator",
	"quaternion_coherence",
	"emergent_electron_mass",
	"fine_structure_constant",
	"zitterbewegung_entropy",
	"topological_winding",
}

// Clone returns a deep enough copy that CustomMetrics can be mutated independently
func (m GeometricMetrics) Clone() GeometricMetrics {
	out := m
	out.CustomMetrics = make(map[string]any, len(m.CustomMetrics))
	maps.Copy(out.CustomMetrics, m.CustomMetrics)
	return out
}

// Vector returns the scalar metrics in MetricLabels order
func (m GeometricMetrics) Vector() []float64 {
	return []float64{
		m.VGeometric,
		m.SGeometric,
		m.QOscillator,
		m.QuaternionCoherence,
		m.EmergentElectronMass,
		m.FineStructureConstant,
		m.ZitterbewegungEntropy,
		m.TopologicalWinding,
	}
}

// Field looks up a scalar metric by its JSON name
func (m GeometricMetrics) Field(name string) (float64, bool) {
	for i, label := range MetricLabels {
		if label == name {
			return m.Vector()[i], true
		}
	}
	return 0, false
}

// Env exposes the scalar metrics as an expression environment
func (m GeometricMetrics) Env() map[string]any {
	env := make(map[string]any, len(MetricLabels)+1)
	for i, v := range m.Vector() {
		env[MetricLabels[i]] = v
	}
	custom := make(map[string]any, len(m.CustomMetrics))
	maps.Copy(custom, m.CustomMetrics)
	env["custom_metrics"] = custom
	return env
}

// VectorizedMetrics is the response of /api/metrics/vectorized
type VectorizedMetrics struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Quaternion is a 4-component rotation
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
