package models

import "encoding/json"

// LLMQuery is the body of /api/llm/query and /api/llm/plan-eqgft-task
type LLMQuery struct {
	Query   string          `json:"query"`
	Context json.RawMessage `json:"context,omitempty"`
}

// ResearchCampaignRequest drives an iterative plan-execute loop
type ResearchCampaignRequest struct {
	Goal               string          `json:"goal"`
	MaxSteps           *int            `json:"max_steps,omitempty"`
	OptimizationTarget string          `json:"optimization_target"`
	TargetValue        *float64        `json:"target_value,omitempty"`
	Context            json.RawMessage `json:"context,omitempty"`
}

// ResearchStepSummary records one executed campaign step
type ResearchStepSummary struct {
	Step          int                  `json:"step"`
	Task          GeometricTaskCommand `json:"task"`
	ResultMetrics GeometricMetrics     `json:"result_metrics"`
	Improvement   float64              `json:"improvement"`
	Progress      float64              `json:"progress"`
}

// ResearchCampaignResponse is the full campaign outcome
type ResearchCampaignResponse struct {
	Goal               string                `json:"goal"`
	OptimizationTarget string                `json:"optimization_target"`
	TargetValue        float64               `json:"target_value"`
	CompletedSteps     int                   `json:"completed_steps"`
	GoalProgress       float64               `json:"goal_progress"`
	History            []ResearchStepSummary `json:"history"`
	FinalMetrics       GeometricMetrics      `json:"final_metrics"`
}

// IsNullJSON reports whether raw is absent or the JSON literal null
func IsNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
