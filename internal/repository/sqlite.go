package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db           *store.DB
	taskRepo     TaskRepositoryInterface
	eventRepo    EventRepositoryInterface
	campaignRepo CampaignRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:           db,
		taskRepo:     &SQLiteTaskRepository{db: db},
		eventRepo:    &SQLiteEventRepository{db: db},
		campaignRepo: &SQLiteCampaignRepository{db: db},
	}
}

func (r *SQLiteRepository) Task() TaskRepositoryInterface {
	return r.taskRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

func (r *SQLiteRepository) Campaign() CampaignRepositoryInterface {
	return r.campaignRepo
}

// SQLiteTaskRepository persists task records
type SQLiteTaskRepository struct {
	db *store.DB
}

func (r *SQLiteTaskRepository) CreateTask(ctx context.Context, rec *models.TaskRecord) error {
	cmdJSON, err := json.Marshal(rec.Command)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO tasks(
		task_id, created_ts, updated_ts, task_name, operator, target_module, command_json, status, metrics_json, error)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.TaskID.String(), store.UnixSeconds(rec.CreatedAt), store.UnixSeconds(rec.UpdatedAt),
		rec.Command.TaskName, string(rec.Command.GeometricOperator), rec.Command.TargetModule,
		string(cmdJSON), string(rec.Status), metricsJSON(rec.Metrics), rec.Error)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, rec.TaskID)
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *SQLiteTaskRepository) UpdateTask(ctx context.Context, rec *models.TaskRecord) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET updated_ts=?, status=?, metrics_json=?, error=? WHERE task_id=?`,
		store.UnixSeconds(rec.UpdatedAt), string(rec.Status), metricsJSON(rec.Metrics), rec.Error, rec.TaskID.String())
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, rec.TaskID)
	}
	return nil
}

func (r *SQLiteTaskRepository) ClaimTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET updated_ts=?, status=? WHERE task_id=? AND status=?`,
		store.UnixSeconds(at), string(models.TaskInProgress), id.String(), string(models.TaskPending))
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *SQLiteTaskRepository) ListTasksByStatus(ctx context.Context, status models.TaskState) ([]*models.TaskRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status=? ORDER BY created_ts ASC, rowid ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const taskColumns = `task_id, created_ts, updated_ts, command_json, status, metrics_json, error`

func (r *SQLiteTaskRepository) GetTask(ctx context.Context, id uuid.UUID) (*models.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id=?`, id.String())
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return rec, err
}

func (r *SQLiteTaskRepository) ListTasks(ctx context.Context, limit int) ([]*models.TaskRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteTaskRepository) LatestMetrics(ctx context.Context) (*models.GeometricMetrics, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT metrics_json FROM tasks
		WHERE status=? AND metrics_json != '' ORDER BY updated_ts DESC LIMIT 1`, string(models.TaskCompleted)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest metrics: %w", err)
	}
	var m models.GeometricMetrics
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode latest metrics: %w", err)
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.TaskRecord, error) {
	var (
		id, cmdJSON, status, mJSON, errStr string
		created, updated                   float64
	)
	if err := row.Scan(&id, &created, &updated, &cmdJSON, &status, &mJSON, &errStr); err != nil {
		return nil, err
	}
	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid stored task id %q: %w", id, err)
	}
	rec := &models.TaskRecord{
		TaskID:    taskID,
		Status:    models.TaskState(status),
		Error:     errStr,
		CreatedAt: store.FromUnixSeconds(created),
		UpdatedAt: store.FromUnixSeconds(updated),
	}
	if err := json.Unmarshal([]byte(cmdJSON), &rec.Command); err != nil {
		return nil, fmt.Errorf("failed to decode command for %s: %w", id, err)
	}
	if mJSON != "" {
		var m models.GeometricMetrics
		if err := json.Unmarshal([]byte(mJSON), &m); err != nil {
			return nil, fmt.Errorf("failed to decode metrics for %s: %w", id, err)
		}
		rec.Metrics = &m
	}
	return rec, nil
}

func metricsJSON(m *models.GeometricMetrics) string {
	if m == nil {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}

func (r *SQLiteEventRepository) RecentEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts, level, code, msg, meta FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			ev   models.Event
			ts   float64
			meta string
		)
		if err := rows.Scan(&ts, &ev.Level, &ev.Code, &ev.Message, &meta); err != nil {
			return nil, err
		}
		ev.Timestamp = store.FromUnixSeconds(ts)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &ev.Meta)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// SQLiteCampaignRepository stores research campaign results
type SQLiteCampaignRepository struct {
	db *store.DB
}

func (r *SQLiteCampaignRepository) SaveCampaign(ctx context.Context, id string, res *models.ResearchCampaignResponse) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode campaign: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO campaigns(id, ts, goal, optimization_target, completed_steps, goal_progress, result_json)
		VALUES(?,?,?,?,?,?,?)`,
		id, store.UnixSeconds(time.Now()), res.Goal, res.OptimizationTarget, res.CompletedSteps, res.GoalProgress, string(b))
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

func (r *SQLiteCampaignRepository) ListCampaigns(ctx context.Context, limit int) ([]*models.ResearchCampaignResponse, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT result_json FROM campaigns ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ResearchCampaignResponse
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var res models.ResearchCampaignResponse
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("failed to decode campaign: %w", err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
