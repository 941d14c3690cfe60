package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/services"
)

type LLMHandler struct {
	planner *services.PlannerService
}

func NewLLMHandler(planner *services.PlannerService) *LLMHandler {
	return &LLMHandler{planner: planner}
}

func (h *LLMHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/llm/query", h.handlePlan)
	r.Post("/api/llm/plan-eqgft-task", h.handlePlan)
	r.Post("/api/llm/research-campaign", h.handleCampaign)
}

func (h *LLMHandler) handlePlan(w http.ResponseWriter, r *http.Request) {
	var q models.LLMQuery
	if err := decodeJSON(r, &q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := h.planner.Plan(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, cmd)
}

func (h *LLMHandler) handleCampaign(w http.ResponseWriter, r *http.Request) {
	var req models.ResearchCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.planner.RunCampaign(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}
