package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/mmss-service/internal/config"
)

type MonitoringService struct {
	nats           *nats.Conn
	config         *config.Config
	pendingCount   int64 // atomic counter
	activeCount    int64 // atomic counter for active processing
	completedCount int64
	failedCount    int64
	dispatcher     string
}

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
	Status           string    `json:"status"` // healthy, warning, critical
}

// NewMonitoringService creates the counters. natsConn may be nil, in which case
// reports are only served over HTTP.
func NewMonitoringService(natsConn *nats.Conn, cfg *config.Config) *MonitoringService {
	dispatcher := "local"
	if natsConn != nil {
		dispatcher = "nats"
	}
	return &MonitoringService{
		nats:       natsConn,
		config:     cfg,
		dispatcher: dispatcher,
	}
}

func (m *MonitoringService) Start(ctx context.Context) error {
	if m.nats == nil {
		return nil
	}
	slog.Info("Starting monitoring service",
		"topic", m.config.MonitoringTopic,
		"threshold", m.config.BackpressureThreshold)

	go m.monitorBackpressure(ctx)
	return nil
}

func (m *MonitoringService) monitorBackpressure(ctx context.Context) {
	// Different intervals based on load
	highLoadTicker := time.NewTicker(1 * time.Second)
	lowLoadTicker := time.NewTicker(10 * time.Second)
	defer highLoadTicker.Stop()
	defer lowLoadTicker.Stop()

	currentTicker := lowLoadTicker
	for {
		select {
		case <-ctx.Done():
			return
		case <-currentTicker.C:
			report := m.Report()

			if report.PendingMessages > 0 && currentTicker == lowLoadTicker {
				currentTicker = highLoadTicker
				slog.Debug("Switched to high-frequency monitoring", "pending", report.PendingMessages)
			} else if report.PendingMessages == 0 && currentTicker == highLoadTicker {
				currentTicker = lowLoadTicker
				slog.Debug("Switched to low-frequency monitoring")
			}

			m.publish(report)
		}
	}
}

// Report snapshots the counters
func (m *MonitoringService) Report() BackpressureReport {
	pending := atomic.LoadInt64(&m.pendingCount)
	active := atomic.LoadInt64(&m.activeCount)
	return BackpressureReport{
		ServiceName:      m.config.ServiceName,
		Dispatcher:       m.dispatcher,
		PendingMessages:  pending,
		ActiveProcessing: active,
		CompletedTasks:   atomic.LoadInt64(&m.completedCount),
		FailedTasks:      atomic.LoadInt64(&m.failedCount),
		Timestamp:        time.Now(),
		WorkerCount:      m.config.Concurrency,
		QueueCapacity:    m.queueCapacity(),
		Status:           m.calculateStatus(pending, active),
	}
}

func (m *MonitoringService) queueCapacity() int {
	if m.dispatcher == "nats" {
		return m.config.MaxMsgs
	}
	return m.config.QueueSize
}

func (m *MonitoringService) publish(report BackpressureReport) {
	reportData, err := json.Marshal(report)
	if err != nil {
		slog.Error("Failed to marshal backpressure report", "error", err)
		return
	}

	topic := fmt.Sprintf("%s.%s", m.config.MonitoringTopic, m.config.ServiceName)
	if err := m.nats.Publish(topic, reportData); err != nil {
		slog.Warn("Failed to publish backpressure report", "error", err)
		return
	}

	if report.PendingMessages > 0 || report.Status != "healthy" {
		slog.Info("Backpressure report",
			"pending", report.PendingMessages,
			"active", report.ActiveProcessing,
			"status", report.Status)
	}
}

func (m *MonitoringService) calculateStatus(pending, active int64) string {
	total := pending + active
	threshold := int64(m.config.BackpressureThreshold)

	if total == 0 {
		return "healthy"
	} else if total < threshold {
		return "warning"
	}
	return "critical"
}

// IncrementPending atomically increments pending message count
func (m *MonitoringService) IncrementPending() {
	atomic.AddInt64(&m.pendingCount, 1)
}

// DecrementPending atomically decrements pending message count
func (m *MonitoringService) DecrementPending() {
	atomic.AddInt64(&m.pendingCount, -1)
}

// IncrementActive atomically increments active processing count
func (m *MonitoringService) IncrementActive() {
	atomic.AddInt64(&m.activeCount, 1)
}

// DecrementActive atomically decrements active processing count
func (m *MonitoringService) DecrementActive() {
	atomic.AddInt64(&m.activeCount, -1)
}

func (m *MonitoringService) RecordCompleted() {
	atomic.AddInt64(&m.completedCount, 1)
}

func (m *MonitoringService) RecordFailed() {
	atomic.AddInt64(&m.failedCount, 1)
}

// GetPendingCount returns current pending count
func (m *MonitoringService) GetPendingCount() int64 {
	return atomic.LoadInt64(&m.pendingCount)
}

// GetActiveCount returns current active count
func (m *MonitoringService) GetActiveCount() int64 {
	return atomic.LoadInt64(&m.activeCount)
}
