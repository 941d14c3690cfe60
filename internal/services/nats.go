package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/aigoflow/mmss-service/internal/config"
	"github.com/aigoflow/mmss-service/internal/models"
)

// TaskRunner is the part of TaskService the NATS dispatcher drives
type TaskRunner interface {
	TaskExecutor
	Submit(ctx context.Context, cmd models.GeometricTaskCommand) (*models.SubmitResponse, error)
}

// TaskMessage is the work-queue payload
type TaskMessage struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskEvent is published on <EventPrefix>.<task_id> after execution
type TaskEvent struct {
	TaskID    uuid.UUID        `json:"task_id"`
	Status    models.TaskState `json:"status"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	WorkerID  string           `json:"worker_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// SubmitReply answers a request on the submit subject
type SubmitReply struct {
	TaskID uuid.UUID        `json:"task_id,omitempty"`
	Status models.TaskState `json:"status,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// NATSDispatcher queues tasks on a JetStream work-queue stream
type NATSDispatcher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	runner     TaskRunner
	cfg        *config.Config
	monitoring *MonitoringService
}

// ConnectNATS opens the connection shared by the dispatcher, health and monitoring
func ConnectNATS(cfg *config.Config) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.NatsURL, nats.Name(cfg.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func NewNATSDispatcher(conn *nats.Conn, cfg *config.Config, monitoring *MonitoringService) (*NATSDispatcher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &NATSDispatcher{
		conn:       conn,
		js:         js,
		cfg:        cfg,
		monitoring: monitoring,
	}, nil
}

// SetRunner installs the service whose tasks are executed
func (s *NATSDispatcher) SetRunner(runner TaskRunner) {
	s.runner = runner
}

// Dispatch publishes the task id; the id doubles as the JetStream dedup key
func (s *NATSDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	data, err := json.Marshal(TaskMessage{TaskID: id})
	if err != nil {
		return err
	}
	if _, err := s.js.Publish(s.cfg.Subject, data, nats.MsgId(id.String()), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	if s.monitoring != nil {
		s.monitoring.IncrementPending()
	}
	return nil
}

// Start ensures the stream, subscribes the submit subject and runs workers until ctx ends
func (s *NATSDispatcher) Start(ctx context.Context) error {
	if s.runner == nil {
		return errors.New("nats dispatcher has no task runner")
	}
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	submitSub, err := s.conn.Subscribe(s.cfg.SubmitSubject, func(msg *nats.Msg) {
		s.handleSubmit(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to submit subject: %w", err)
	}
	defer submitSub.Unsubscribe()

	slog.Info("NATS dispatcher starting",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"submit_subject", s.cfg.SubmitSubject,
		"consumer", s.cfg.Durable,
		"concurrency", s.cfg.Concurrency)

	for i := 0; i < s.cfg.Concurrency; i++ {
		go s.worker(ctx, consumer, generateWorkerID())
	}

	<-ctx.Done()
	slog.Info("NATS dispatcher shutting down")
	return nil
}

func (s *NATSDispatcher) ensureStream() error {
	streamInfo, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:       s.cfg.Stream,
			Subjects:   []string{s.cfg.Subject},
			MaxMsgs:    int64(s.cfg.MaxMsgs),
			MaxAge:     s.cfg.MaxAge,
			Storage:    nats.FileStorage,
			Retention:  nats.WorkQueuePolicy,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		slog.Info("Created NATS stream", "name", s.cfg.Stream)
		return nil
	}

	for _, subject := range streamInfo.Config.Subjects {
		if subject == s.cfg.Subject {
			slog.Info("NATS stream already exists", "name", s.cfg.Stream, "messages", streamInfo.State.Msgs)
			return nil
		}
	}

	newConfig := streamInfo.Config
	newConfig.Subjects = append(newConfig.Subjects, s.cfg.Subject)
	if _, err := s.js.UpdateStream(&newConfig); err != nil {
		return fmt.Errorf("failed to update stream with new subject: %w", err)
	}
	slog.Info("Updated NATS stream with new subject", "name", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

func (s *NATSDispatcher) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable,
		nats.ManualAck(),
		nats.AckWait(s.cfg.AckWait),
		nats.MaxDeliver(s.cfg.MaxDeliver))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}
	slog.Info("Created NATS consumer", "durable", s.cfg.Durable)
	return sub, nil
}

func (s *NATSDispatcher) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	slog.Info("NATS worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("NATS worker shutting down", "worker_id", workerID)
			return
		default:
			msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				slog.Error("Failed to fetch messages", "worker_id", workerID, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range msgs {
				if meta, err := msg.Metadata(); err == nil && meta.NumDelivered == 1 && s.monitoring != nil {
					s.monitoring.DecrementPending()
				}
				s.processMessage(ctx, msg, workerID)
			}
		}
	}
}

func (s *NATSDispatcher) processMessage(ctx context.Context, msg *nats.Msg, workerID string) {
	var tm TaskMessage
	if err := json.Unmarshal(msg.Data, &tm); err != nil {
		slog.Error("Failed to parse task message",
			"worker_id", workerID,
			"error", err,
			"data", string(msg.Data))
		// Malformed payloads will never parse; drop them
		msg.Term()
		return
	}

	result, err := s.runner.Execute(context.WithoutCancel(ctx), tm.TaskID)
	if err != nil {
		if errors.Is(err, ErrTaskFinished) || errors.Is(err, ErrTaskRunning) {
			slog.Warn("Skipping redelivered task", "worker_id", workerID, "task_id", tm.TaskID, "reason", err)
			msg.Ack()
			return
		}
		slog.Error("Task execution error", "worker_id", workerID, "task_id", tm.TaskID, "error", err)
		msg.Nak()
		return
	}

	event := TaskEvent{
		TaskID:    tm.TaskID,
		Status:    models.TaskCompleted,
		Success:   result.Success,
		Error:     result.Error,
		WorkerID:  workerID,
		Timestamp: time.Now(),
	}
	if !result.Success {
		event.Status = models.TaskFailed
	}
	s.publishEvent(event)

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("Failed to acknowledge message",
			"worker_id", workerID,
			"task_id", tm.TaskID,
			"error", ackErr)
	}
}

func (s *NATSDispatcher) publishEvent(event TaskEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s", s.cfg.EventPrefix, event.TaskID)
	if err := s.conn.Publish(subject, data); err != nil {
		slog.Warn("Failed to publish task event", "subject", subject, "error", err)
	}
}

func (s *NATSDispatcher) handleSubmit(ctx context.Context, msg *nats.Msg) {
	var reply SubmitReply

	var cmd models.GeometricTaskCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		reply.Error = fmt.Sprintf("invalid command: %v", err)
	} else if resp, err := s.runner.Submit(ctx, cmd); err != nil {
		reply.Error = err.Error()
	} else {
		reply.TaskID = resp.TaskID
		reply.Status = resp.Status
	}

	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		slog.Error("Failed to respond to submit request", "error", err)
	}
}

func (s *NATSDispatcher) GetConnection() *nats.Conn {
	return s.conn
}
