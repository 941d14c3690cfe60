package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/models"
)

func ptr(v float64) *float64 { return &v }

func testMetrics() models.GeometricMetrics {
	return models.GeometricMetrics{
		VGeometric:            1.0,
		SGeometric:            0.9,
		QOscillator:           1.0,
		QuaternionCoherence:   0.9,
		EmergentElectronMass:  9.1e-31,
		FineStructureConstant: 1.0 / 137.0,
		ZitterbewegungEntropy: 0.5,
		TopologicalWinding:    8.9,
		CustomMetrics:         map[string]any{},
	}
}

func TestRegisterAndApplyRule(t *testing.T) {
	engine := NewEngine()
	count, err := engine.Register(models.MetricRule{Name: "boost_v", DeltaV: ptr(0.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m := testMetrics()
	fired, err := engine.Apply("boost_v", &m)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 1.5, m.VGeometric)
	assert.Equal(t, 1.0, m.CustomMetrics["rule:boost_v"])
}

func TestDeltaSIsClamped(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Register(models.MetricRule{Name: "entropy", DeltaS: ptr(0.5)})
	require.NoError(t, err)

	m := testMetrics()
	require.NoError(t, engine.ApplyAll(&m))
	assert.Equal(t, 1.0, m.SGeometric)
}

func TestEmptyNameRejected(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Register(models.MetricRule{Name: "   "})
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.True(t, engine.IsEmpty())
}

func TestRegisterReplaces(t *testing.T) {
	engine := NewEngine()
	_, _ = engine.Register(models.MetricRule{Name: "r", DeltaQ: ptr(1)})
	count, err := engine.Register(models.MetricRule{Name: "r", DeltaQ: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m := testMetrics()
	require.NoError(t, engine.ApplyAll(&m))
	assert.Equal(t, 3.0, m.QOscillator)
}

func TestRemoveRule(t *testing.T) {
	engine := NewEngine()
	_, _ = engine.Register(models.MetricRule{Name: "a"})
	_, _ = engine.Register(models.MetricRule{Name: "b"})

	count, err := engine.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"b"}, engine.Names())

	_, err = engine.Remove("missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestWhenCondition(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Register(models.MetricRule{
		Name:   "high_coherence",
		DeltaV: ptr(1),
		When:   "quaternion_coherence > 0.95",
	})
	require.NoError(t, err)

	m := testMetrics()
	fired, err := engine.Apply("high_coherence", &m)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 1.0, m.VGeometric)

	m.QuaternionCoherence = 0.99
	fired, err = engine.Apply("high_coherence", &m)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 2.0, m.VGeometric)
}

func TestInvalidWhenRejected(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Register(models.MetricRule{Name: "bad", When: "quaternion_coherence +"})
	assert.ErrorIs(t, err, ErrInvalidWhen)

	_, err = engine.Register(models.MetricRule{Name: "not_bool", When: "v_geometric + 1"})
	assert.ErrorIs(t, err, ErrInvalidWhen)
}

func TestLoadDirAndRemoveSource(t *testing.T) {
	dir := t.TempDir()
	preset := `
rules:
  - name: preset_v
    delta_v: 0.25
  - name: preset_q
    delta_q: -0.5
    when: "topological_winding > 1"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(preset), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	engine := NewEngine()
	n, err := engine.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"preset_q", "preset_v"}, engine.Names())
	assert.Equal(t, "base.yaml", engine.List()[0].Source)

	assert.Equal(t, 2, engine.RemoveSource("base.yaml"))
	assert.True(t, engine.IsEmpty())
}

func TestLoadDirMissingIsEmpty(t *testing.T) {
	engine := NewEngine()
	n, err := engine.LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParsePresetsRejectsInvalidRule(t *testing.T) {
	_, err := ParsePresets([]byte("rules:\n  - name: \"\"\n"))
	assert.ErrorIs(t, err, ErrEmptyName)
}
