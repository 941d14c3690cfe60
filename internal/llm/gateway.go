// Package llm turns natural language requests into geometric task commands.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aigoflow/mmss-service/internal/models"
)

// ErrUnavailable is returned when no language model is configured
var ErrUnavailable = errors.New("llm gateway unavailable: OPENAI_API_KEY is not set")

// Gateway plans a single task for a query and a JSON context
type Gateway interface {
	PlanTask(ctx context.Context, query string, context json.RawMessage) (*models.GeometricTaskCommand, error)
}

// DisabledGateway is used when no model is configured
type DisabledGateway struct{}

func (DisabledGateway) PlanTask(context.Context, string, json.RawMessage) (*models.GeometricTaskCommand, error) {
	return nil, ErrUnavailable
}

// ParseCommand extracts the first JSON object from a model reply and decodes it
// as a command. Markdown code fences around the object are allowed.
func ParseCommand(reply string) (*models.GeometricTaskCommand, error) {
	raw, ok := extractObject(reply)
	if !ok {
		return nil, fmt.Errorf("llm reply contains no JSON object")
	}

	name := gjson.Get(raw, "task_name")
	if name.Type != gjson.String || strings.TrimSpace(name.String()) == "" {
		return nil, fmt.Errorf("llm reply is missing task_name")
	}
	op := gjson.Get(raw, "geometric_operator")
	if op.Type != gjson.String || !models.GeometricOperator(op.String()).Valid() {
		return nil, fmt.Errorf("llm reply has unknown geometric_operator %q", op.String())
	}

	var cmd models.GeometricTaskCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode llm command: %w", err)
	}
	if models.IsNullJSON(cmd.Parameters) {
		cmd.Parameters = json.RawMessage("{}")
	}
	return &cmd, nil
}

// extractObject returns the first balanced JSON object in s
func extractObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if fenced, ok := stripFence(s); ok {
		s = fenced
	}
	for start := strings.IndexByte(s, '{'); start >= 0; {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if gjson.Valid(candidate) {
						return candidate, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func stripFence(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}
