package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aigoflow/mmss-service/internal/models"
)

const systemPrompt = `You plan tasks for a geometric simulation service.
Reply with exactly one JSON object and nothing else, using this schema:
{"task_name": string, "geometric_operator": string, "target_module": string,
 "parameters": object, "expected_output_metric": string}
geometric_operator must be one of: %s.
Parameter hints:
- QuaternionRotation: {"theta": number, "axis": [x, y, z]}
- Zitterbewegung: {"frequency_scale": number}
- GeometricDerivation: {"delta": number}
- SemanticSynthesis: {"coherence_hint": number, "anchor": string}
- SimulateEqgftAsymmetry: {"kappa": number, "n_events": integer, "systematic_error": number}
- GenerateHopfionField: {"grid_size": integer, "radius": number}
- CustomPythonScript: {"script": string} printing a JSON object of metrics`

// OpenAIGateway plans tasks with an OpenAI compatible chat completions endpoint
type OpenAIGateway struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGateway builds the gateway. A positive timeout bounds each PlanTask
// call, retries included.
func NewOpenAIGateway(apiKey, model, baseURL string, timeout time.Duration) *OpenAIGateway {
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGateway{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

func (g *OpenAIGateway) PlanTask(ctx context.Context, query string, taskContext json.RawMessage) (*models.GeometricTaskCommand, error) {
	if models.IsNullJSON(taskContext) {
		taskContext = json.RawMessage("{}")
	}

	names := make([]string, len(models.Operators))
	for i, op := range models.Operators {
		names[i] = string(op)
	}

	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Temperature: openai.Float(0.2),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, strings.Join(names, ", "))),
			openai.UserMessage(fmt.Sprintf("Query: %s\nContext: %s", query, taskContext)),
		},
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	slog.Debug("LLM reply received", "model", g.model, "reply_len", len(reply))

	cmd, err := ParseCommand(reply)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
