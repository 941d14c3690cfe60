package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
)

// Wire types shared with the service
type (
	Metrics                  = models.GeometricMetrics
	VectorizedMetrics        = models.VectorizedMetrics
	TaskCommand              = models.GeometricTaskCommand
	TaskState                = models.TaskState
	TaskSummary              = models.TaskSummary
	SubmitResponse           = models.SubmitResponse
	VisualizationPacket      = models.VisualizationPacket
	HopfionField             = models.HopfionField
	LLMQuery                 = models.LLMQuery
	ResearchCampaignRequest  = models.ResearchCampaignRequest
	ResearchCampaignResponse = models.ResearchCampaignResponse
	MetricRule               = models.MetricRule
	RegisterRuleResponse     = models.RegisterRuleResponse
)

// HealthStatus represents service health information
type HealthStatus struct {
	ServiceName  string    `json:"service_name"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	Capabilities []string  `json:"capabilities"`
	Endpoint     string    `json:"endpoint"`
	NATSTopic    string    `json:"nats_topic,omitempty"`
	Version      string    `json:"version"`
}

// TaskEvent is published by the service when a queued task finishes
type TaskEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Status    TaskState `json:"status"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BackpressureReport is published periodically on the monitoring topic
type BackpressureReport struct {
	ServiceName      string    `json:"service_name"`
	Dispatcher       string    `json:"dispatcher"`
	PendingMessages  int64     `json:"pending_messages"`
	ActiveProcessing int64     `json:"active_processing"`
	CompletedTasks   int64     `json:"completed_tasks"`
	FailedTasks      int64     `json:"failed_tasks"`
	Timestamp        time.Time `json:"timestamp"`
	WorkerCount      int       `json:"worker_count"`
	QueueCapacity    int       `json:"queue_capacity"`
	Status           string    `json:"status"`
}

// APIError carries a non-2xx response and its plain-text body
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mmss api error %d: %s", e.StatusCode, e.Message)
}
