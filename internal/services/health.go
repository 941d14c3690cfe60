package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/mmss-service/internal/config"
)

const serviceVersion = "1.0.0"

type HealthService struct {
	nats    *nats.Conn
	config  *config.Config
	started time.Time
	llm     bool
	scripts bool
}

type HealthStatus struct {
	ServiceName  string    `json:"service_name"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	Capabilities []string  `json:"capabilities"`
	Endpoint     string    `json:"endpoint"`
	NATSTopic    string    `json:"nats_topic,omitempty"`
	Version      string    `json:"version"`
}

// NewHealthService reports liveness. natsConn may be nil.
func NewHealthService(natsConn *nats.Conn, cfg *config.Config, llmEnabled, scriptsEnabled bool) *HealthService {
	return &HealthService{
		nats:    natsConn,
		config:  cfg,
		started: time.Now(),
		llm:     llmEnabled,
		scripts: scriptsEnabled,
	}
}

func (h *HealthService) healthTopic() string {
	return fmt.Sprintf("mmss.%s.health", h.config.ServiceName)
}

func (h *HealthService) Start(ctx context.Context) error {
	if h.nats == nil {
		return nil
	}

	sub, err := h.nats.Subscribe(h.healthTopic(), func(msg *nats.Msg) {
		statusData, err := json.Marshal(h.Status())
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}
		if err := msg.Respond(statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", h.healthTopic())

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	go h.publishHeartbeats(ctx)
	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("mmss.%s.heartbeat", h.config.ServiceName)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statusData, err := json.Marshal(h.Status())
			if err != nil {
				continue
			}
			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

// Status describes the running service
func (h *HealthService) Status() HealthStatus {
	caps := []string{"geometric-operators", "eqgft-asymmetry", "hopfion-field", "metric-rules"}
	if h.llm {
		caps = append(caps, "llm-planning")
	}
	if h.scripts {
		caps = append(caps, "custom-scripts")
	}

	status := HealthStatus{
		ServiceName:  h.config.ServiceName,
		Status:       "ok",
		StartedAt:    h.started,
		Capabilities: caps,
		Endpoint:     fmt.Sprintf("http://localhost%s", h.config.HTTPAddr),
		Version:      serviceVersion,
	}
	if h.nats != nil {
		status.NATSTopic = h.config.Subject
	}
	return status
}
