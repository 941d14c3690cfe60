package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/rules"
)

type RuleHandler struct {
	engine *rules.Engine
}

func NewRuleHandler(engine *rules.Engine) *RuleHandler {
	return &RuleHandler{engine: engine}
}

func (h *RuleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/rules", h.handleList)
	r.Post("/api/rules", h.handleRegister)
	r.Delete("/api/rules/{name}", h.handleRemove)
}

func (h *RuleHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.List())
}

func (h *RuleHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var rule models.MetricRule
	if err := decodeJSON(r, &rule); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rule.Source = ""

	count, err := h.engine.Register(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, models.RegisterRuleResponse{Registered: true, RuleCount: count})
}

func (h *RuleHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Remove(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, models.RegisterRuleResponse{Registered: false, RuleCount: count})
}
