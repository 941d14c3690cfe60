package services

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/mmss-service/internal/models"
)

// rootAnchorID is stable across restarts
var rootAnchorID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mmss:anchor:root"))

// Vectorized returns the scalar metrics in label order
func (s *TaskService) Vectorized() models.VectorizedMetrics {
	m := s.Metrics()
	return vectorize(m)
}

func vectorize(m models.GeometricMetrics) models.VectorizedMetrics {
	labels := make([]string, len(models.MetricLabels))
	copy(labels, models.MetricLabels)
	return models.VectorizedMetrics{Labels: labels, Values: m.Vector()}
}

// Packet builds the visualization packet for the current state
func (s *TaskService) Packet() models.VisualizationPacket {
	m := s.Metrics()

	anchors := []models.SemanticAnchor{{
		ID:          rootAnchorID,
		Name:        "root",
		Description: "Emergent system state",
		Position:    [4]float64{m.QuaternionCoherence, m.VGeometric, m.SGeometric, m.QOscillator},
		Metadata:    json.RawMessage(`{"kind":"root"}`),
	}}

	var names []string
	for key := range m.CustomMetrics {
		if strings.HasPrefix(key, "anchor:") {
			names = append(names, strings.TrimPrefix(key, "anchor:"))
		}
	}
	sort.Strings(names)
	for _, name := range names {
		weight, _ := m.CustomMetrics["anchor:"+name].(float64)
		meta, _ := json.Marshal(map[string]any{"kind": "semantic", "weight": weight})
		anchors = append(anchors, models.SemanticAnchor{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte("mmss:anchor:"+name)),
			Name:        name,
			Description: "Semantic synthesis anchor",
			Position:    [4]float64{weight, m.VGeometric, m.SGeometric, m.QOscillator},
			Metadata:    meta,
		})
	}

	return models.VisualizationPacket{
		PacketID:     ulid.Make().String(),
		Timestamp:    time.Now(),
		Metrics:      m,
		Anchors:      anchors,
		MetricVector: vectorize(m),
	}
}
