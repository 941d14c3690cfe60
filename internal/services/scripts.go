package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

var ErrScriptsDisabled = errors.New("custom scripts are disabled: PYTHON_BIN is not set")

// ScriptRunner executes CustomPythonScript tasks with an external interpreter
type ScriptRunner struct {
	bin     string
	timeout time.Duration
}

func NewScriptRunner(bin string, timeout time.Duration) *ScriptRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScriptRunner{bin: bin, timeout: timeout}
}

func (r *ScriptRunner) Enabled() bool {
	return r != nil && r.bin != ""
}

// Run executes script with "<bin> -c" and decodes the JSON object it prints.
// When the output has several lines, the last line holding an object wins.
func (r *ScriptRunner) Run(ctx context.Context, script string) (map[string]any, error) {
	if !r.Enabled() {
		return nil, ErrScriptsDisabled
	}
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: script is empty", ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, "-c", script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("script timed out after %s", r.timeout)
		}
		return nil, fmt.Errorf("script failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	slog.Debug("Script finished", "duration_ms", time.Since(start).Milliseconds(), "stdout_len", stdout.Len())

	return decodeScriptOutput(stdout.String())
}

func decodeScriptOutput(out string) (map[string]any, error) {
	out = strings.TrimSpace(out)
	var metrics map[string]any
	if err := json.Unmarshal([]byte(out), &metrics); err == nil && metrics != nil {
		return metrics, nil
	}

	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &metrics); err == nil && metrics != nil {
			return metrics, nil
		}
	}
	return nil, fmt.Errorf("script output is not a JSON object: %q", truncate(out, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
