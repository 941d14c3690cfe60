package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
)

var ErrQueueFull = errors.New("task queue is full")

// TaskExecutor runs a stored task
type TaskExecutor interface {
	Execute(ctx context.Context, id uuid.UUID) (*models.TaskExecutionResult, error)
}

// generateWorkerID creates a unique worker ID using timestamp and random bytes
func generateWorkerID() string {
	timestamp := time.Now().UnixNano()
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	return fmt.Sprintf("worker-%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// LocalDispatcher executes tasks on an in-process worker pool
type LocalDispatcher struct {
	queue       chan uuid.UUID
	exec        TaskExecutor
	monitoring  *MonitoringService
	concurrency int
	wg          sync.WaitGroup
}

func NewLocalDispatcher(exec TaskExecutor, monitoring *MonitoringService, concurrency, queueSize int) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &LocalDispatcher{
		queue:       make(chan uuid.UUID, queueSize),
		exec:        exec,
		monitoring:  monitoring,
		concurrency: concurrency,
	}
}

// Start launches the workers; they exit when ctx is cancelled
func (d *LocalDispatcher) Start(ctx context.Context) {
	slog.Info("Local dispatcher starting", "concurrency", d.concurrency, "queue_size", cap(d.queue))
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.worker(ctx, generateWorkerID())
	}
}

// Dispatch enqueues id without blocking
func (d *LocalDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	select {
	case d.queue <- id:
		if d.monitoring != nil {
			d.monitoring.IncrementPending()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Resume enqueues ids left Pending by a previous run, blocking while the queue is full.
// It returns how many were enqueued before ctx ended.
func (d *LocalDispatcher) Resume(ctx context.Context, ids []uuid.UUID) (int, error) {
	for i, id := range ids {
		select {
		case d.queue <- id:
			if d.monitoring != nil {
				d.monitoring.IncrementPending()
			}
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(ids), nil
}

// Wait blocks until every worker has exited
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

func (d *LocalDispatcher) worker(ctx context.Context, workerID string) {
	defer d.wg.Done()
	slog.Debug("Local worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Local worker shutting down", "worker_id", workerID)
			return
		case id := <-d.queue:
			if d.monitoring != nil {
				d.monitoring.DecrementPending()
			}
			// Run to completion even during shutdown
			if _, err := d.exec.Execute(context.WithoutCancel(ctx), id); err != nil {
				slog.Error("Task execution error", "worker_id", workerID, "task_id", id, "error", err)
			}
		}
	}
}
