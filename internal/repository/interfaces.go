package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrDuplicateTask = errors.New("task already exists")
	ErrNotPending    = errors.New("task is not pending")
)

// Repository aggregates all repository interfaces
type Repository interface {
	Task() TaskRepositoryInterface
	Event() EventRepositoryInterface
	Campaign() CampaignRepositoryInterface
}

// TaskRepositoryInterface defines task storage operations
type TaskRepositoryInterface interface {
	CreateTask(ctx context.Context, rec *models.TaskRecord) error
	UpdateTask(ctx context.Context, rec *models.TaskRecord) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.TaskRecord, error)
	ListTasks(ctx context.Context, limit int) ([]*models.TaskRecord, error)
	// ClaimTask moves a Pending task to InProgress in one statement. Any other
	// state yields ErrNotPending.
	ClaimTask(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListTasksByStatus returns the matching tasks, oldest first
	ListTasksByStatus(ctx context.Context, status models.TaskState) ([]*models.TaskRecord, error)
	// LatestMetrics returns the metrics of the most recently completed task, or nil
	LatestMetrics(ctx context.Context) (*models.GeometricMetrics, error)
}

// EventRepositoryInterface defines event logging operations
type EventRepositoryInterface interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
	RecentEvents(ctx context.Context, limit int) ([]*models.Event, error)
}

// CampaignRepositoryInterface stores research campaign outcomes
type CampaignRepositoryInterface interface {
	SaveCampaign(ctx context.Context, id string, res *models.ResearchCampaignResponse) error
	ListCampaigns(ctx context.Context, limit int) ([]*models.ResearchCampaignResponse, error)
}
