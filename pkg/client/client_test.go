package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/models"
)

func TestBuildAsymmetryTask(t *testing.T) {
	cmd, err := BuildVisualizationTask("asymmetry", map[string]string{"kappa": "0.3", "n_events": "1000"})
	require.NoError(t, err)

	assert.Equal(t, models.OperatorSimulateEqgftAsymmetry, cmd.GeometricOperator)
	assert.Equal(t, "eqgft", cmd.TargetModule)
	assert.Equal(t, "asymmetry visualization", cmd.TaskName)
	assert.JSONEq(t, `{"kappa":0.3,"n_events":1000,"systematic_error":0.0001}`, string(cmd.Parameters))
}

func TestBuildHopfionTaskDefaults(t *testing.T) {
	cmd, err := BuildVisualizationTask("hopfion", map[string]string{"task_name": "knot"})
	require.NoError(t, err)

	assert.Equal(t, models.OperatorGenerateHopfionField, cmd.GeometricOperator)
	assert.Equal(t, "knot", cmd.TaskName)
	assert.JSONEq(t, `{"grid_size":12,"radius":1}`, string(cmd.Parameters))
}

func TestBuildScriptTask(t *testing.T) {
	cmd, err := BuildVisualizationTask("script", map[string]string{"script": "print('{}')"})
	require.NoError(t, err)

	assert.Equal(t, models.OperatorCustomPythonScript, cmd.GeometricOperator)
	assert.JSONEq(t, `{"script":"print('{}')"}`, string(cmd.Parameters))
}

func TestBuildVisualizationTaskErrors(t *testing.T) {
	_, err := BuildVisualizationTask("spiral", nil)
	assert.ErrorContains(t, err, "unknown visualization type")

	_, err = BuildVisualizationTask("asymmetry", map[string]string{"kappa": "strong"})
	assert.ErrorContains(t, err, "kappa must be a number")

	_, err = BuildVisualizationTask("hopfion", map[string]string{"grid_size": "1.5"})
	assert.ErrorContains(t, err, "grid_size must be an integer")
}

func TestWaitForTaskPollsUntilTerminal(t *testing.T) {
	id := uuid.New()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/"+id.String(), r.URL.Path)
		status := models.TaskInProgress
		if calls.Add(1) >= 3 {
			status = models.TaskCompleted
		}
		json.NewEncoder(w).Encode(models.TaskSummary{TaskID: id, Status: status})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.PollInterval = 5 * time.Millisecond

	st, err := c.WaitForTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, st.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestWaitForTaskHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.TaskSummary{Status: models.TaskPending})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.PollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForTask(ctx, uuid.New())
	assert.Error(t, err)
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).TaskStatus(context.Background(), uuid.New())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "task not found", apiErr.Message)
}

func TestSubmitTaskSendsCommand(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var cmd models.GeometricTaskCommand
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		assert.Equal(t, models.OperatorGenerateHopfionField, cmd.GeometricOperator)

		json.NewEncoder(w).Encode(models.SubmitResponse{TaskID: id, Status: models.TaskPending})
	}))
	defer srv.Close()

	cmd, err := BuildVisualizationTask("hopfion", nil)
	require.NoError(t, err)

	resp, err := NewHTTPClient(srv.URL+"/").SubmitTask(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, id, resp.TaskID)
	assert.Equal(t, models.TaskPending, resp.Status)
}

func TestHopfionFieldNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	field, err := NewHTTPClient(srv.URL).HopfionField(context.Background())
	require.NoError(t, err)
	assert.Nil(t, field)
}

func TestExportTasksCopiesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/export/tasks.parquet", r.URL.Path)
		w.Write([]byte("PAR1"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := NewHTTPClient(srv.URL).ExportTasks(context.Background(), &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, "PAR1", buf.String())
}
