package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SemanticAnchor pins a named concept to a point in quaternion space
type SemanticAnchor struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Position    [4]float64      `json:"position"`
	Metadata    json.RawMessage `json:"metadata"`
}

// VisualizationPacket is the payload plotted by the dashboard
type VisualizationPacket struct {
	PacketID     string            `json:"packet_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Metrics      GeometricMetrics  `json:"metrics"`
	Anchors      []SemanticAnchor  `json:"anchors"`
	MetricVector VectorizedMetrics `json:"metric_vector"`
}

// VisualizationResponse wraps the packet on the wire
type VisualizationResponse struct {
	Packet VisualizationPacket `json:"packet"`
}

// HopfionField samples a unit-quaternion field on a cubic grid
type HopfionField struct {
	QX       [][4]float64 `json:"q_x"`
	NH       uint64       `json:"n_h"`
	GridSize int          `json:"grid_size"`
	Extent   float64      `json:"extent"`
}
