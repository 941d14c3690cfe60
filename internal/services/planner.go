package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/mmss-service/internal/llm"
	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/physics"
)

const (
	defaultCampaignSteps = 5
	maxCampaignSteps     = 50
	goalReached          = 0.999
)

// PlannerService connects the LLM gateway to the task processor
type PlannerService struct {
	gateway llm.Gateway
	tasks   *TaskService
}

func NewPlannerService(gateway llm.Gateway, tasks *TaskService) *PlannerService {
	if gateway == nil {
		gateway = llm.DisabledGateway{}
	}
	return &PlannerService{gateway: gateway, tasks: tasks}
}

// Plan asks the gateway for one command. A missing context is replaced with the current metrics.
func (p *PlannerService) Plan(ctx context.Context, q models.LLMQuery) (*models.GeometricTaskCommand, error) {
	taskContext := q.Context
	if models.IsNullJSON(taskContext) {
		b, err := json.Marshal(map[string]any{"current_metrics": p.tasks.Metrics()})
		if err != nil {
			return nil, err
		}
		taskContext = b
	}
	return p.gateway.PlanTask(ctx, q.Query, taskContext)
}

// RunCampaign iterates plan and execute until the target is reached or the steps run out
func (p *PlannerService) RunCampaign(ctx context.Context, req models.ResearchCampaignRequest) (*models.ResearchCampaignResponse, error) {
	maxSteps := defaultCampaignSteps
	if req.MaxSteps != nil {
		maxSteps = *req.MaxSteps
	}
	if maxSteps < 0 {
		maxSteps = 0
	}
	if maxSteps > maxCampaignSteps {
		maxSteps = maxCampaignSteps
	}

	target := DefaultTarget(req.OptimizationTarget)
	if req.TargetValue != nil {
		target = *req.TargetValue
	}

	current := p.tasks.Metrics()
	best := EvaluateProgress(current, req.OptimizationTarget, target)
	history := []models.ResearchStepSummary{}

	userContext := req.Context
	if models.IsNullJSON(userContext) {
		userContext = json.RawMessage("null")
	}

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		llmContext, err := json.Marshal(map[string]any{
			"goal":                req.Goal,
			"optimization_target": req.OptimizationTarget,
			"target_value":        target,
			"current_metrics":     current,
			"history":             history,
			"goal_progress":       best,
			"user_context":        userContext,
		})
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf("Design the next geometric operator to move the system toward `%s` focusing on `%s`. Return a single GeometricTaskCommand JSON.",
			req.Goal, req.OptimizationTarget)

		cmd, err := p.gateway.PlanTask(ctx, query, llmContext)
		if err != nil {
			slog.Warn("LLM research step failed, using fallback command", "step", step, "error", err)
			cmd = FallbackTask(req.OptimizationTarget, target)
		}
		cmd.TaskID = nil

		result, err := p.tasks.Run(ctx, *cmd)
		if err != nil {
			return nil, fmt.Errorf("campaign step %d: %w", step, err)
		}

		current = result.Metrics
		progress := EvaluateProgress(current, req.OptimizationTarget, target)
		improvement := math.Max(progress-best, 0)
		if progress > best {
			best = progress
		}

		recorded := *cmd
		recorded.TaskID = nil
		history = append(history, models.ResearchStepSummary{
			Step:          step,
			Task:          recorded,
			ResultMetrics: current,
			Improvement:   improvement,
			Progress:      progress,
		})

		if progress >= goalReached {
			break
		}
	}

	resp := &models.ResearchCampaignResponse{
		Goal:               req.Goal,
		OptimizationTarget: req.OptimizationTarget,
		TargetValue:        target,
		CompletedSteps:     len(history),
		GoalProgress:       best,
		History:            history,
		FinalMetrics:       current,
	}

	id := ulid.Make().String()
	if err := p.tasks.GetRepository().Campaign().SaveCampaign(ctx, id, resp); err != nil {
		slog.Warn("Failed to store campaign", "campaign_id", id, "error", err)
	}
	slog.Info("Research campaign finished",
		"campaign_id", id,
		"target", req.OptimizationTarget,
		"steps", resp.CompletedSteps,
		"goal_progress", resp.GoalProgress)
	return resp, nil
}

// DefaultTarget is the target value used when a campaign does not specify one
func DefaultTarget(target string) float64 {
	switch target {
	case "topological_winding":
		return 9.0
	case "quaternion_coherence":
		return 0.9999
	case "emergent_electron_mass":
		return physics.ElectronMass
	case "fine_structure_constant":
		return physics.FineStructure
	default:
		return 1.0
	}
}

// EvaluateProgress maps the distance to target onto [0, 1]
func EvaluateProgress(m models.GeometricMetrics, target string, targetValue float64) float64 {
	current, ok := m.Field(target)
	if !ok {
		current = m.VGeometric
	}
	denominator := math.Max(math.Abs(targetValue), 1e-6)
	distance := math.Abs(targetValue - current)
	return math.Min(math.Max(1-distance/denominator, 0), 1)
}

// FallbackTask is the command used when the gateway cannot plan a step
func FallbackTask(target string, targetValue float64) *models.GeometricTaskCommand {
	cmd := &models.GeometricTaskCommand{ExpectedOutputMetric: target}
	switch target {
	case "topological_winding", "q_oscillator":
		cmd.TaskName = "Fallback Zitterbewegung tuning"
		cmd.GeometricOperator = models.OperatorZitterbewegung
		cmd.TargetModule = "sys6_resonator"
		cmd.Parameters = mustJSON(map[string]any{"frequency_scale": targetValue / 9.0})
	case "quaternion_coherence", "v_geometric":
		cmd.TaskName = "Fallback Quaternion coherence"
		cmd.GeometricOperator = models.OperatorQuaternionRotation
		cmd.TargetModule = "sys7_core"
		cmd.Parameters = json.RawMessage(`{"theta":0.25,"axis":[0.0,1.0,0.0]}`)
	case "emergent_electron_mass":
		cmd.TaskName = "Fallback mass adjustment"
		cmd.GeometricOperator = models.OperatorZitterbewegung
		cmd.TargetModule = "sys6_resonator"
		cmd.Parameters = json.RawMessage(`{"frequency_scale":1.0}`)
	case "fine_structure_constant":
		cmd.TaskName = "Fallback α tuning"
		cmd.GeometricOperator = models.OperatorQuaternionRotation
		cmd.TargetModule = "sys7_alpha"
		cmd.Parameters = json.RawMessage(`{"theta":0.1}`)
	default:
		cmd.TaskName = "Fallback geometric derivation"
		cmd.GeometricOperator = models.OperatorGeometricDerivation
		cmd.TargetModule = "sys5_topology"
		cmd.Parameters = json.RawMessage(`{"delta":0.01}`)
	}
	return cmd
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
