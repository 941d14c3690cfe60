package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/physics"
	"github.com/aigoflow/mmss-service/internal/repository"
	"github.com/aigoflow/mmss-service/internal/rules"
)

var (
	ErrInvalidCommand = errors.New("invalid task command")
	ErrTaskFinished   = errors.New("task already finished")
	ErrTaskRunning    = errors.New("task already running")
)

// Dispatcher hands submitted tasks to whatever executes them
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// TaskService owns the shared metrics state and the task lifecycle
type TaskService struct {
	repo       repository.Repository
	rules      *rules.Engine
	scripts    *ScriptRunner
	monitoring *MonitoringService
	dispatcher Dispatcher

	mu        sync.Mutex
	emergence *physics.Emergence
	hopfion   *models.HopfionField
}

// NewTaskService seeds the metrics from the last completed task, or the baseline
func NewTaskService(ctx context.Context, repo repository.Repository, engine *rules.Engine, scripts *ScriptRunner, monitoring *MonitoringService) (*TaskService, error) {
	latest, err := repo.Task().LatestMetrics(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		slog.Info("Restored metrics from last completed task",
			"quaternion_coherence", latest.QuaternionCoherence,
			"topological_winding", latest.TopologicalWinding)
	}
	if engine == nil {
		engine = rules.NewEngine()
	}
	return &TaskService{
		repo:       repo,
		rules:      engine,
		scripts:    scripts,
		monitoring: monitoring,
		emergence:  physics.NewEmergence(latest),
	}, nil
}

// SetDispatcher installs the dispatcher used by Submit. Without one, tasks stay Pending
// until Execute is called directly.
func (s *TaskService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *TaskService) Rules() *rules.Engine {
	return s.rules
}

func (s *TaskService) GetRepository() repository.Repository {
	return s.repo
}

// Submit stores the command as Pending and dispatches it
func (s *TaskService) Submit(ctx context.Context, cmd models.GeometricTaskCommand) (*models.SubmitResponse, error) {
	rec, err := s.create(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, rec.TaskID); err != nil {
			rec.Status = models.TaskFailed
			rec.Error = fmt.Sprintf("dispatch failed: %v", err)
			rec.UpdatedAt = time.Now()
			if uerr := s.repo.Task().UpdateTask(ctx, rec); uerr != nil {
				slog.Error("Failed to mark undispatched task", "task_id", rec.TaskID, "error", uerr)
			}
			return nil, fmt.Errorf("failed to dispatch task %s: %w", rec.TaskID, err)
		}
	}

	return &models.SubmitResponse{TaskID: rec.TaskID, Status: rec.Status}, nil
}

// Run stores the command and executes it synchronously, bypassing the dispatcher
func (s *TaskService) Run(ctx context.Context, cmd models.GeometricTaskCommand) (*models.TaskExecutionResult, error) {
	rec, err := s.create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, rec.TaskID)
}

func (s *TaskService) create(ctx context.Context, cmd models.GeometricTaskCommand) (*models.TaskRecord, error) {
	if !cmd.GeometricOperator.Valid() {
		return nil, fmt.Errorf("%w: unknown geometric_operator %q", ErrInvalidCommand, cmd.GeometricOperator)
	}
	if models.IsNullJSON(cmd.Parameters) {
		cmd.Parameters = json.RawMessage("{}")
	}

	id := uuid.New()
	if cmd.TaskID != nil {
		id = *cmd.TaskID
	}
	cmd.TaskID = &id

	now := time.Now()
	rec := &models.TaskRecord{
		TaskID:    id,
		Command:   cmd,
		Status:    models.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Task().CreateTask(ctx, rec); err != nil {
		return nil, err
	}

	s.repo.Event().LogEvent(ctx, "info", "task_submitted", cmd.TaskName, map[string]interface{}{
		"task_id":  id.String(),
		"operator": string(cmd.GeometricOperator),
	})
	return rec, nil
}

// Execute claims a Pending task and runs it to completion. Operator failures are
// recorded on the task and reported through the result. The error covers storage
// problems and tasks that are already finished or claimed by another worker.
func (s *TaskService) Execute(ctx context.Context, id uuid.UUID) (result *models.TaskExecutionResult, err error) {
	rec, err := s.repo.Task().GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, rec.Status)
	}

	start := time.Now()
	if err := s.repo.Task().ClaimTask(ctx, id, start); err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return nil, fmt.Errorf("%w: %s", ErrTaskRunning, id)
		}
		return nil, err
	}
	rec.Status = models.TaskInProgress
	rec.UpdatedAt = start
	if s.monitoring != nil {
		s.monitoring.IncrementActive()
		defer s.monitoring.DecrementActive()
	}

	metrics, output, runErr := s.runRecovered(ctx, rec.Command)

	rec.UpdatedAt = time.Now()
	result = &models.TaskExecutionResult{TaskID: id, Output: output}
	if runErr != nil {
		rec.Status = models.TaskFailed
		rec.Error = runErr.Error()
		result.Error = rec.Error
		result.Metrics = s.Metrics()
	} else {
		rec.Status = models.TaskCompleted
		rec.Metrics = &metrics
		result.Success = true
		result.Metrics = metrics
	}
	if len(result.Output) == 0 {
		result.Output = json.RawMessage("null")
	}

	if err := s.repo.Task().UpdateTask(ctx, rec); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if runErr != nil {
		if s.monitoring != nil {
			s.monitoring.RecordFailed()
		}
		slog.Error("Task failed",
			"task_id", id,
			"operator", rec.Command.GeometricOperator,
			"duration_ms", duration.Milliseconds(),
			"error", runErr)
		s.repo.Event().LogEvent(ctx, "error", "task_failed", rec.Error, map[string]interface{}{"task_id": id.String()})
	} else {
		if s.monitoring != nil {
			s.monitoring.RecordCompleted()
		}
		slog.Info("Task completed",
			"task_id", id,
			"operator", rec.Command.GeometricOperator,
			"duration_ms", duration.Milliseconds())
		s.repo.Event().LogEvent(ctx, "info", "task_completed", rec.Command.TaskName, map[string]interface{}{
			"task_id":     id.String(),
			"duration_ms": duration.Milliseconds(),
		})
	}
	return result, nil
}

func (s *TaskService) runRecovered(ctx context.Context, cmd models.GeometricTaskCommand) (metrics models.GeometricMetrics, output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return s.run(ctx, cmd)
}

func (s *TaskService) run(ctx context.Context, cmd models.GeometricTaskCommand) (models.GeometricMetrics, json.RawMessage, error) {
	params := cmd.ParamsJSON()

	switch cmd.GeometricOperator {
	case models.OperatorSimulateEqgftAsymmetry:
		p := physics.ParseAsymmetryParams(params)
		if err := p.Validate(); err != nil {
			return models.GeometricMetrics{}, nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		a := physics.PolarizationAsymmetry(p.Kappa)
		curve := physics.CalculateSensitivityCurve(a, physics.SensitivityGrid(p.NEvents, 1000))
		experiment := physics.SimulateExperiment(p, physics.NewRand(p.Seed))
		custom := map[string]any{
			"polarization_asymmetry": a,
			"sensitivity_curve":      curve,
			"simulated_experiment":   experiment,
		}
		output, err := json.Marshal(map[string]any{"polarization_asymmetry": a, "simulated_experiment": experiment})
		if err != nil {
			return models.GeometricMetrics{}, nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		metrics, err := s.commit(func(m *models.GeometricMetrics) { m.CustomMetrics = custom })
		return metrics, output, err

	case models.OperatorGenerateHopfionField:
		field := physics.GenerateHopfionField(physics.ParseHopfionParams(params))
		output, _ := json.Marshal(map[string]any{"grid_size": field.GridSize, "n_h": field.NH, "points": len(field.QX)})
		metrics, err := s.commit(func(m *models.GeometricMetrics) {
			if m.CustomMetrics == nil {
				m.CustomMetrics = map[string]any{}
			}
			m.CustomMetrics["hopfion_n_h"] = float64(field.NH)
			m.CustomMetrics["hopfion_points"] = float64(len(field.QX))
		})
		if err != nil {
			return models.GeometricMetrics{}, nil, err
		}
		s.mu.Lock()
		s.hopfion = &field
		s.mu.Unlock()
		return metrics, output, nil

	case models.OperatorCustomPythonScript:
		script := gjson.GetBytes(params, "script")
		if script.Type != gjson.String {
			return models.GeometricMetrics{}, nil, fmt.Errorf("%w: script parameter must be a string", ErrInvalidCommand)
		}
		if s.scripts == nil {
			return models.GeometricMetrics{}, nil, ErrScriptsDisabled
		}
		custom, err := s.scripts.Run(ctx, script.String())
		if err != nil {
			return models.GeometricMetrics{}, nil, err
		}
		output, _ := json.Marshal(custom)
		metrics, err := s.commit(func(m *models.GeometricMetrics) { m.CustomMetrics = custom })
		return metrics, output, err

	default:
		s.mu.Lock()
		defer s.mu.Unlock()
		m, err := s.emergence.Next(cmd.GeometricOperator, params)
		if err != nil {
			return models.GeometricMetrics{}, nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		m, err = s.finishLocked(m)
		return m, nil, err
	}
}

// commit mutates a copy of the shared metrics under the lock and stores it via finishLocked
func (s *TaskService) commit(mutate func(m *models.GeometricMetrics)) (models.GeometricMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.emergence.Metrics()
	mutate(&m)
	return s.finishLocked(m)
}

// finishLocked applies the rules and stores m. A non-finite result is rejected and
// the shared metrics stay as they were.
func (s *TaskService) finishLocked(m models.GeometricMetrics) (models.GeometricMetrics, error) {
	if err := s.rules.ApplyAll(&m); err != nil {
		slog.Warn("Metric rule evaluation failed", "error", err)
	}
	if err := physics.CheckFinite(m); err != nil {
		return models.GeometricMetrics{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	s.emergence.Reset(m)
	return m.Clone(), nil
}

// RecoverInterrupted marks tasks left InProgress by a previous process as Failed and
// returns the IDs still Pending, oldest first.
func (s *TaskService) RecoverInterrupted(ctx context.Context) ([]uuid.UUID, error) {
	running, err := s.repo.Task().ListTasksByStatus(ctx, models.TaskInProgress)
	if err != nil {
		return nil, err
	}
	for _, rec := range running {
		rec.Status = models.TaskFailed
		rec.Error = "interrupted by service restart"
		rec.UpdatedAt = time.Now()
		if err := s.repo.Task().UpdateTask(ctx, rec); err != nil {
			return nil, err
		}
		s.repo.Event().LogEvent(ctx, "warn", "task_interrupted", rec.Command.TaskName, map[string]interface{}{"task_id": rec.TaskID.String()})
	}

	pending, err := s.repo.Task().ListTasksByStatus(ctx, models.TaskPending)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for _, rec := range pending {
		ids = append(ids, rec.TaskID)
	}
	if len(running) > 0 || len(ids) > 0 {
		slog.Info("Recovered tasks from previous run", "interrupted", len(running), "pending", len(ids))
	}
	return ids, nil
}

// Status returns the summary of one task
func (s *TaskService) Status(ctx context.Context, id uuid.UUID) (*models.TaskSummary, error) {
	rec, err := s.repo.Task().GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := rec.Summary()
	return &sum, nil
}

// List returns every task, newest first
func (s *TaskService) List(ctx context.Context) ([]models.TaskSummary, error) {
	recs, err := s.repo.Task().ListTasks(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.TaskSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Summary())
	}
	return out, nil
}

// Records returns the full stored records, newest first
func (s *TaskService) Records(ctx context.Context) ([]*models.TaskRecord, error) {
	return s.repo.Task().ListTasks(ctx, 0)
}

// Metrics returns a copy of the current metrics
func (s *TaskService) Metrics() models.GeometricMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergence.Metrics()
}

// HopfionField returns the last generated field, or nil
func (s *TaskService) HopfionField() *models.HopfionField {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hopfion
}

// IntegrateQuaternion records an externally measured quaternion into the metrics
func (s *TaskService) IntegrateQuaternion(q models.Quaternion) models.GeometricMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergence.IntegrateQuaternion(q)
}
