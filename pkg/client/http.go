package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
)

// HTTPClient talks to the REST API
type HTTPClient struct {
	BaseURL      string
	HTTP         *http.Client
	PollInterval time.Duration
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTP:         &http.Client{Timeout: 5 * time.Minute},
		PollInterval: time.Second,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *HTTPClient) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.do(ctx, http.MethodGet, "/api/metrics", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) VectorizedMetrics(ctx context.Context) (*VectorizedMetrics, error) {
	var v VectorizedMetrics
	if err := c.do(ctx, http.MethodGet, "/api/metrics/vectorized", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context) ([]TaskSummary, error) {
	var tasks []TaskSummary
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *HTTPClient) SubmitTask(ctx context.Context, cmd TaskCommand) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks", cmd, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) TaskStatus(ctx context.Context, id uuid.UUID) (*TaskSummary, error) {
	var st TaskSummary
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id.String(), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForTask polls the task every PollInterval until it is Completed or Failed
func (c *HTTPClient) WaitForTask(ctx context.Context, id uuid.UUID) (*TaskSummary, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.TaskStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Status.Terminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) Packet(ctx context.Context) (*VisualizationPacket, error) {
	var resp models.VisualizationResponse
	if err := c.do(ctx, http.MethodGet, "/api/visualization/packet", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Packet, nil
}

// HopfionField returns nil when no field has been generated
func (c *HTTPClient) HopfionField(ctx context.Context) (*HopfionField, error) {
	var field *HopfionField
	if err := c.do(ctx, http.MethodGet, "/api/visualization/hopfion-field", nil, &field); err != nil {
		return nil, err
	}
	return field, nil
}

func (c *HTTPClient) Query(ctx context.Context, q LLMQuery) (*TaskCommand, error) {
	var cmd TaskCommand
	if err := c.do(ctx, http.MethodPost, "/api/llm/query", q, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (c *HTTPClient) PlanEqgftTask(ctx context.Context, q LLMQuery) (*TaskCommand, error) {
	var cmd TaskCommand
	if err := c.do(ctx, http.MethodPost, "/api/llm/plan-eqgft-task", q, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (c *HTTPClient) ResearchCampaign(ctx context.Context, req ResearchCampaignRequest) (*ResearchCampaignResponse, error) {
	var resp ResearchCampaignResponse
	if err := c.do(ctx, http.MethodPost, "/api/llm/research-campaign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ListRules(ctx context.Context) ([]MetricRule, error) {
	var rules []MetricRule
	if err := c.do(ctx, http.MethodGet, "/api/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *HTTPClient) RegisterRule(ctx context.Context, rule MetricRule) (*RegisterRuleResponse, error) {
	var resp RegisterRuleResponse
	if err := c.do(ctx, http.MethodPost, "/api/rules", rule, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) DeleteRule(ctx context.Context, name string) (*RegisterRuleResponse, error) {
	var resp RegisterRuleResponse
	if err := c.do(ctx, http.MethodDelete, "/api/rules/"+url.PathEscape(name), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ExportTasks downloads the Parquet export into w
func (c *HTTPClient) ExportTasks(ctx context.Context, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/export/tasks.parquet", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return io.Copy(w, resp.Body)
}
