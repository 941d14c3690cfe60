package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/store"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func newRecord(name string, created time.Time) *models.TaskRecord {
	return &models.TaskRecord{
		TaskID: uuid.New(),
		Command: models.GeometricTaskCommand{
			TaskName:          name,
			GeometricOperator: models.OperatorQuaternionRotation,
			TargetModule:      "sys7",
			Parameters:        json.RawMessage(`{"theta":0.5}`),
		},
		Status:    models.TaskPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateAndGetTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := newRecord("rotate", time.Now())

	require.NoError(t, repo.Task().CreateTask(ctx, rec))

	got, err := repo.Task().GetTask(ctx, rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, got.TaskID)
	assert.Equal(t, models.TaskPending, got.Status)
	assert.Equal(t, "rotate", got.Command.TaskName)
	assert.Equal(t, models.OperatorQuaternionRotation, got.Command.GeometricOperator)
	assert.JSONEq(t, `{"theta":0.5}`, string(got.Command.Parameters))
	assert.Nil(t, got.Metrics)
}

func TestCreateDuplicateTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := newRecord("dup", time.Now())

	require.NoError(t, repo.Task().CreateTask(ctx, rec))
	err := repo.Task().CreateTask(ctx, rec)
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestGetMissingTask(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Task().GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUpdateTaskStoresMetrics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := newRecord("update", time.Now())
	require.NoError(t, repo.Task().CreateTask(ctx, rec))

	rec.Status = models.TaskCompleted
	rec.Metrics = &models.GeometricMetrics{QuaternionCoherence: 0.9995, CustomMetrics: map[string]any{"k": 1.0}}
	rec.UpdatedAt = time.Now()
	require.NoError(t, repo.Task().UpdateTask(ctx, rec))

	got, err := repo.Task().GetTask(ctx, rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	require.NotNil(t, got.Metrics)
	assert.InDelta(t, 0.9995, got.Metrics.QuaternionCoherence, 1e-12)

	latest, err := repo.Task().LatestMetrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 0.9995, latest.QuaternionCoherence, 1e-12)
}

func TestUpdateMissingTask(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Task().UpdateTask(context.Background(), newRecord("ghost", time.Now()))
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListTasksNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now()
	older := newRecord("older", base.Add(-time.Minute))
	newer := newRecord("newer", base)
	require.NoError(t, repo.Task().CreateTask(ctx, older))
	require.NoError(t, repo.Task().CreateTask(ctx, newer))

	list, err := repo.Task().ListTasks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Command.TaskName)
	assert.Equal(t, "older", list[1].Command.TaskName)

	limited, err := repo.Task().ListTasks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLatestMetricsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	m, err := repo.Task().LatestMetrics(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEventsAndCampaigns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Event().LogEvent(ctx, "info", "task_submitted", "submitted", map[string]interface{}{"n": 1}))
	events, err := repo.Event().RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "task_submitted", events[0].Code)
	assert.EqualValues(t, 1, events[0].Meta["n"])

	res := &models.ResearchCampaignResponse{Goal: "raise coherence", OptimizationTarget: "quaternion_coherence", CompletedSteps: 2, GoalProgress: 0.5}
	require.NoError(t, repo.Campaign().SaveCampaign(ctx, uuid.NewString(), res))
	campaigns, err := repo.Campaign().ListCampaigns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "raise coherence", campaigns[0].Goal)
	assert.Equal(t, 2, campaigns[0].CompletedSteps)
}

func TestClaimTaskOnlyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := newRecord("claim", time.Now())
	require.NoError(t, repo.Task().CreateTask(ctx, rec))

	require.NoError(t, repo.Task().ClaimTask(ctx, rec.TaskID, time.Now()))
	got, err := repo.Task().GetTask(ctx, rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, got.Status)

	err = repo.Task().ClaimTask(ctx, rec.TaskID, time.Now())
	assert.ErrorIs(t, err, ErrNotPending)

	err = repo.Task().ClaimTask(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListTasksByStatusOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now()
	older := newRecord("older", base.Add(-time.Minute))
	newer := newRecord("newer", base)
	done := newRecord("done", base)
	done.Status = models.TaskCompleted
	for _, rec := range []*models.TaskRecord{newer, older, done} {
		require.NoError(t, repo.Task().CreateTask(ctx, rec))
	}

	pending, err := repo.Task().ListTasksByStatus(ctx, models.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "older", pending[0].Command.TaskName)
	assert.Equal(t, "newer", pending[1].Command.TaskName)
}
