package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/config"
	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/pkg/client"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func natsTestConfig(url string) *config.Config {
	cfg := testConfig()
	cfg.NatsURL = url
	cfg.Stream = "MMSS_TEST"
	cfg.Subject = "mmss.test.tasks"
	cfg.Durable = "mmss-test-workers"
	cfg.EventPrefix = "mmss.test.events"
	cfg.SubmitSubject = "mmss.test.submit"
	cfg.MaxMsgs = 100
	cfg.MaxAge = time.Hour
	cfg.AckWait = 5 * time.Second
	cfg.MaxDeliver = 3
	return cfg
}

type natsHarness struct {
	srv     *server.Server
	cfg     *config.Config
	conn    *nats.Conn
	svc     *TaskService
	monitor *MonitoringService
	client  *client.NATSTaskClient
}

// startNATSService wires a task service to a JetStream dispatcher and waits
// until the submit subject answers.
func startNATSService(t *testing.T) *natsHarness {
	t.Helper()
	s := runJetStream(t)
	cfg := natsTestConfig(s.ClientURL())

	conn, err := ConnectNATS(cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	svc := newTestService(t, nil)
	monitor := NewMonitoringService(conn, cfg)
	svc.monitoring = monitor

	d, err := NewNATSDispatcher(conn, cfg, monitor)
	require.NoError(t, err)
	d.SetRunner(svc)
	svc.SetDispatcher(d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Malformed submits are answered without creating a task.
	assert.Eventually(t, func() bool {
		_, err := conn.Request(cfg.SubmitSubject, []byte("{"), 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	nc, err := client.NewNATSTaskClient(cfg.NatsURL, "test")
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	nc.WithSubjects(cfg.ServiceName, cfg.SubmitSubject, cfg.EventPrefix)

	return &natsHarness{srv: s, cfg: cfg, conn: conn, svc: svc, monitor: monitor, client: nc}
}

func TestNATSSubmitExecutesAndPublishesEvent(t *testing.T) {
	h := startNATSService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uuid.New()
	events, err := h.conn.SubscribeSync(h.cfg.EventPrefix + "." + id.String())
	require.NoError(t, err)
	require.NoError(t, h.conn.Flush())

	cmd := command(models.OperatorQuaternionRotation, `{"theta":0.4}`)
	cmd.TaskID = &id
	resp, err := h.client.Submit(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, id, resp.TaskID)
	assert.Equal(t, models.TaskPending, resp.Status)

	msg, err := events.NextMsgWithContext(ctx)
	require.NoError(t, err)
	var event TaskEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, id, event.TaskID)
	assert.Equal(t, models.TaskCompleted, event.Status)
	assert.True(t, event.Success)
	assert.NotEmpty(t, event.WorkerID)

	status, err := h.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, status.Status)
	require.NotNil(t, status.Metrics)
}

func TestNATSSubmitReportsInvalidCommand(t *testing.T) {
	h := startNATSService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.client.Submit(ctx, command("Teleport", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown geometric_operator")
}

func TestNATSClientWaitsForCompletion(t *testing.T) {
	h := startNATSService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uuid.New()
	type waitResult struct {
		event *client.TaskEvent
		err   error
	}
	waited := make(chan waitResult, 1)
	go func() {
		event, err := h.client.WaitForEvent(ctx, id)
		waited <- waitResult{event, err}
	}()
	assert.Eventually(t, func() bool {
		return h.srv.GlobalAccount().SubscriptionInterest(h.cfg.EventPrefix + "." + id.String())
	}, 5*time.Second, 10*time.Millisecond)

	// A failing operator still produces an event, marked Failed.
	cmd := command(models.OperatorSimulateEqgftAsymmetry, `{"kappa":500}`)
	cmd.TaskID = &id
	_, err := h.client.Submit(ctx, cmd)
	require.NoError(t, err)

	res := <-waited
	require.NoError(t, res.err)
	assert.Equal(t, id, res.event.TaskID)
	assert.Equal(t, models.TaskFailed, res.event.Status)
	assert.False(t, res.event.Success)
	assert.Contains(t, res.event.Error, "kappa")
}

func TestNATSRedeliveredFinishedTaskIsAcked(t *testing.T) {
	h := startNATSService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := h.svc.Submit(ctx, command(models.OperatorZitterbewegung, `{"frequency_scale":1}`))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		st, err := h.svc.Status(ctx, resp.TaskID)
		return err == nil && st.Status == models.TaskCompleted
	}, 5*time.Second, 20*time.Millisecond)
	before := h.svc.Metrics()

	// Publish the same id again without a dedup key, as a redelivery would.
	js, err := h.conn.JetStream()
	require.NoError(t, err)
	data, err := json.Marshal(TaskMessage{TaskID: resp.TaskID})
	require.NoError(t, err)
	_, err = js.Publish(h.cfg.Subject, data)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		info, err := js.ConsumerInfo(h.cfg.Stream, h.cfg.Durable)
		return err == nil && info.NumPending == 0 && info.NumAckPending == 0 && info.Delivered.Consumer >= 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.EqualValues(t, 1, h.monitor.Report().CompletedTasks)
	assert.Equal(t, before, h.svc.Metrics())

	stream, err := js.StreamInfo(h.cfg.Stream)
	require.NoError(t, err)
	assert.Zero(t, stream.State.Msgs)
}

func TestNATSHealthAndMonitoringReachClient(t *testing.T) {
	h := startNATSService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health := NewHealthService(h.conn, h.cfg, false, false)
	require.NoError(t, health.Start(ctx))
	require.NoError(t, h.conn.Flush())

	status, err := h.client.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.cfg.ServiceName, status.ServiceName)
	assert.Equal(t, serviceVersion, status.Version)

	reports := make(chan client.BackpressureReport, 16)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- h.client.Watch(ctx, h.cfg.MonitoringTopic, func(r client.BackpressureReport) {
			select {
			case reports <- r:
			default:
			}
		}, nil)
	}()

	// Keep publishing until the watcher's subscription is live.
	var got client.BackpressureReport
	assert.Eventually(t, func() bool {
		h.monitor.publish(h.monitor.Report())
		select {
		case got = <-reports:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, h.cfg.ServiceName, got.ServiceName)
	assert.Equal(t, "nats", got.Dispatcher)
	assert.Equal(t, h.cfg.MaxMsgs, got.QueueCapacity)

	cancel()
	assert.NoError(t, <-watchDone)
}
