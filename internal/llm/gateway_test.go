package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/mmss-service/internal/models"
)

func TestParseCommandPlainObject(t *testing.T) {
	cmd, err := ParseCommand(`{"task_name":"rotate","geometric_operator":"QuaternionRotation","target_module":"sys7","parameters":{"theta":0.3},"expected_output_metric":"quaternion_coherence"}`)
	require.NoError(t, err)
	assert.Equal(t, "rotate", cmd.TaskName)
	assert.Equal(t, models.OperatorQuaternionRotation, cmd.GeometricOperator)
	assert.JSONEq(t, `{"theta":0.3}`, string(cmd.Parameters))
}

func TestParseCommandFencedWithProse(t *testing.T) {
	reply := "Here is the plan:\n```json\n{\"task_name\":\"asym\",\"geometric_operator\":\"SimulateEqgftAsymmetry\",\"target_module\":\"eqgft\",\"expected_output_metric\":\"polarization_asymmetry\"}\n```\nGood luck."
	cmd, err := ParseCommand(reply)
	require.NoError(t, err)
	assert.Equal(t, models.OperatorSimulateEqgftAsymmetry, cmd.GeometricOperator)
	assert.JSONEq(t, `{}`, string(cmd.Parameters))
}

func TestParseCommandBracesInStrings(t *testing.T) {
	reply := `Sure {not json} then {"task_name":"s {x}","geometric_operator":"CustomPythonScript","target_module":"py","parameters":{"script":"print('{}')"},"expected_output_metric":"custom_metrics"}`
	cmd, err := ParseCommand(reply)
	require.NoError(t, err)
	assert.Equal(t, "s {x}", cmd.TaskName)
}

func TestParseCommandRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no object":        "I cannot help with that",
		"missing name":     `{"geometric_operator":"Zitterbewegung"}`,
		"unknown operator": `{"task_name":"x","geometric_operator":"Teleport"}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCommand(reply)
			assert.Error(t, err)
		})
	}
}

func TestDisabledGateway(t *testing.T) {
	_, err := DisabledGateway{}.PlanTask(context.Background(), "anything", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIGatewayPlansTask(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		content := `{"task_name":"derive","geometric_operator":"GeometricDerivation","target_module":"sys5","parameters":{"delta":0.01},"expected_output_metric":"s_geometric"}`
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gw := NewOpenAIGateway("test-key", "test-model", srv.URL+"/", 5*time.Second)
	cmd, err := gw.PlanTask(context.Background(), "lower the entropy", json.RawMessage(`{"current_metrics":{"s_geometric":0.05}}`))
	require.NoError(t, err)
	assert.Equal(t, models.OperatorGeometricDerivation, cmd.GeometricOperator)
	assert.Contains(t, gotBody, "lower the entropy")
	assert.Contains(t, gotBody, "test-model")
}

func TestOpenAIGatewayTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gw := NewOpenAIGateway("test-key", "test-model", srv.URL+"/", 100*time.Millisecond)
	start := time.Now()
	_, err := gw.PlanTask(context.Background(), "stall", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}
