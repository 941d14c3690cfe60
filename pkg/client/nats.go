package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// NATSTaskClient submits tasks and waits for their completion over NATS
type NATSTaskClient struct {
	conn          *nats.Conn
	clientID      string
	serviceName   string
	submitSubject string
	eventPrefix   string
	timeout       time.Duration
}

type submitReply struct {
	TaskID uuid.UUID `json:"task_id"`
	Status TaskState `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// NewNATSTaskClient connects with the service's default subjects
func NewNATSTaskClient(natsURL, clientID string) (*NATSTaskClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if clientID == "" {
		clientID = "mmss-client"
	}
	return &NATSTaskClient{
		conn:          conn,
		clientID:      clientID,
		serviceName:   "mmss",
		submitSubject: "mmss.tasks.submit",
		eventPrefix:   "mmss.tasks.events",
		timeout:       30 * time.Second,
	}, nil
}

// WithSubjects overrides the service name, submit subject and event prefix
func (c *NATSTaskClient) WithSubjects(serviceName, submitSubject, eventPrefix string) *NATSTaskClient {
	c.serviceName = serviceName
	c.submitSubject = submitSubject
	c.eventPrefix = eventPrefix
	return c
}

// Submit enqueues a command and returns the accepted task
func (c *NATSTaskClient) Submit(ctx context.Context, cmd TaskCommand) (*SubmitResponse, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("mmss.tasks.reply.%s.%s", c.clientID, reqID)

	msg, err := c.request(ctx, c.submitSubject, replySubject, data)
	if err != nil {
		return nil, err
	}

	var reply submitReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse submit reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return &SubmitResponse{TaskID: reply.TaskID, Status: reply.Status}, nil
}

// WaitForEvent blocks until the completion event of id arrives
func (c *NATSTaskClient) WaitForEvent(ctx context.Context, id uuid.UUID) (*TaskEvent, error) {
	subject := fmt.Sprintf("%s.%s", c.eventPrefix, id)
	sub, err := c.conn.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to task events: %w", err)
	}
	defer sub.Unsubscribe()

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var event TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse task event: %w", err)
	}
	return &event, nil
}

// CheckHealth asks the service for its health status
func (c *NATSTaskClient) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	healthTopic := fmt.Sprintf("mmss.%s.health", c.serviceName)
	replySubject := fmt.Sprintf("mmss.health.reply.%s.%s", c.clientID, ulid.Make().String())

	msg, err := c.request(ctx, healthTopic, replySubject, []byte("{}"))
	if err != nil {
		return nil, err
	}
	var health HealthStatus
	if err := json.Unmarshal(msg.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

// request subscribes to replySubject before publishing so the reply cannot be missed
func (c *NATSTaskClient) request(ctx context.Context, subject, replySubject string, data []byte) (*nats.Msg, error) {
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.PublishRequest(subject, replySubject, data); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}
	slog.Debug("Published request, waiting for reply", "subject", subject, "reply_subject", replySubject)

	select {
	case msg := <-replyChan:
		return msg, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("request timeout after %v", c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch streams backpressure reports and heartbeats until ctx is cancelled.
// Reports are read from <monitoringTopic>.<serviceName>, the subject the service
// publishes on. Either callback may be nil.
func (c *NATSTaskClient) Watch(ctx context.Context, monitoringTopic string, onReport func(BackpressureReport), onHeartbeat func(HealthStatus)) error {
	var subs []*nats.Subscription
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	if onReport != nil {
		sub, err := c.conn.Subscribe(MonitoringSubject(monitoringTopic, c.serviceName), func(msg *nats.Msg) {
			var report BackpressureReport
			if err := json.Unmarshal(msg.Data, &report); err != nil {
				slog.Warn("Failed to parse backpressure report", "subject", msg.Subject, "error", err)
				return
			}
			onReport(report)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to monitoring topic: %w", err)
		}
		subs = append(subs, sub)
	}

	if onHeartbeat != nil {
		sub, err := c.conn.Subscribe(fmt.Sprintf("mmss.%s.heartbeat", c.serviceName), func(msg *nats.Msg) {
			var status HealthStatus
			if err := json.Unmarshal(msg.Data, &status); err != nil {
				slog.Warn("Failed to parse heartbeat", "subject", msg.Subject, "error", err)
				return
			}
			onHeartbeat(status)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to heartbeats: %w", err)
		}
		subs = append(subs, sub)
	}

	<-ctx.Done()
	return nil
}

// MonitoringSubject is the subject a service publishes its backpressure reports on
func MonitoringSubject(monitoringTopic, serviceName string) string {
	return monitoringTopic + "." + serviceName
}

func (c *NATSTaskClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
