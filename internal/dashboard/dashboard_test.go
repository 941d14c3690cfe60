package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageServed(t *testing.T) {
	r := chi.NewRouter()
	NewHandler().RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	for _, want := range []string{
		"/api/metrics", "/api/tasks", "/api/visualization/packet", "/api/visualization/hopfion-field",
		"/api/llm/query", "/api/llm/plan-eqgft-task", "/api/llm/research-campaign",
		"SimulateEqgftAsymmetry", "GenerateHopfionField", "CustomPythonScript",
		"setInterval", "clearInterval",
	} {
		assert.Contains(t, body, want)
	}
}
