package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeometricOperator names the operation a task applies to the system
type GeometricOperator string

const (
	OperatorQuaternionRotation     GeometricOperator = "QuaternionRotation"
	OperatorZitterbewegung         GeometricOperator = "Zitterbewegung"
	OperatorGeometricDerivation    GeometricOperator = "GeometricDerivation"
	OperatorSemanticSynthesis      GeometricOperator = "SemanticSynthesis"
	OperatorSimulateEqgftAsymmetry GeometricOperator = "SimulateEqgftAsymmetry"
	OperatorGenerateHopfionField   GeometricOperator = "GenerateHopfionField"
	OperatorCustomPythonScript     GeometricOperator = "CustomPythonScript"
)

// Operators lists every known operator in declaration order
var Operators = []GeometricOperator{
	OperatorQuaternionRotation,
	OperatorZitterbewegung,
	OperatorGeometricDerivation,
	OperatorSemanticSynthesis,
	OperatorSimulateEqgftAsymmetry,
	OperatorGenerateHopfionField,
	OperatorCustomPythonScript,
}

// Valid reports whether op is one of the known operators
func (op GeometricOperator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

func (op *GeometricOperator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("geometric_operator must be a string: %w", err)
	}
	candidate := GeometricOperator(s)
	if !candidate.Valid() {
		return fmt.Errorf("unknown geometric_operator %q", s)
	}
	*op = candidate
	return nil
}

// GeometricTaskCommand is the unit of work submitted by clients and planned by the LLM gateway
type GeometricTaskCommand struct {
	TaskName             string            `json:"task_name"`
	GeometricOperator    GeometricOperator `json:"geometric_operator"`
	TargetModule         string            `json:"target_module"`
	Parameters           json.RawMessage   `json:"parameters"`
	ExpectedOutputMetric string            `json:"expected_output_metric"`
	TaskID               *uuid.UUID        `json:"task_id,omitempty"`
}

// ParamsJSON returns the parameters, or an empty object when none were given
func (c *GeometricTaskCommand) ParamsJSON() []byte {
	if len(c.Parameters) == 0 || string(c.Parameters) == "null" {
		return []byte("{}")
	}
	return c.Parameters
}

// TaskState is the lifecycle phase of a task
type TaskState string

const (
	TaskPending    TaskState = "Pending"
	TaskInProgress TaskState = "InProgress"
	TaskCompleted  TaskState = "Completed"
	TaskFailed     TaskState = "Failed"
)

// Terminal reports whether no further transitions can happen
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskRecord is the stored view of a submitted task
type TaskRecord struct {
	TaskID    uuid.UUID            `json:"task_id"`
	Command   GeometricTaskCommand `json:"command"`
	Status    TaskState            `json:"status"`
	Metrics   *GeometricMetrics    `json:"metrics,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TaskSummary is returned by the list and status endpoints
type TaskSummary struct {
	TaskID    uuid.UUID         `json:"task_id"`
	TaskName  string            `json:"task_name"`
	Operator  GeometricOperator `json:"geometric_operator"`
	Status    TaskState         `json:"status"`
	Metrics   *GeometricMetrics `json:"metrics,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r *TaskRecord) Summary() TaskSummary {
	return TaskSummary{
		TaskID:    r.TaskID,
		TaskName:  r.Command.TaskName,
		Operator:  r.Command.GeometricOperator,
		Status:    r.Status,
		Metrics:   r.Metrics,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SubmitResponse acknowledges an accepted task
type SubmitResponse struct {
	TaskID uuid.UUID `json:"task_id"`
	Status TaskState `json:"status"`
}

// TaskExecutionResult is produced by a synchronous execution
type TaskExecutionResult struct {
	TaskID  uuid.UUID        `json:"task_id"`
	Success bool             `json:"success"`
	Metrics GeometricMetrics `json:"metrics"`
	Output  json.RawMessage  `json:"output"`
	Error   string           `json:"error,omitempty"`
}
