package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aigoflow/mmss-service/internal/repository"
	"github.com/aigoflow/mmss-service/internal/rules"
	"github.com/aigoflow/mmss-service/internal/services"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// writeError maps service errors onto plain-text responses
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound), errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateTask),
		errors.Is(err, services.ErrInvalidCommand),
		errors.Is(err, services.ErrTaskFinished),
		errors.Is(err, services.ErrTaskRunning),
		errors.Is(err, rules.ErrEmptyName),
		errors.Is(err, rules.ErrInvalidWhen):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
