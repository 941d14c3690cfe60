package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/mmss-service/internal/repository"
	"github.com/aigoflow/mmss-service/internal/services"
)

type SystemHandler struct {
	health     *services.HealthService
	monitoring *services.MonitoringService
	repo       repository.Repository
}

func NewSystemHandler(health *services.HealthService, monitoring *services.MonitoringService, repo repository.Repository) *SystemHandler {
	return &SystemHandler{health: health, monitoring: monitoring, repo: repo}
}

func (h *SystemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Get("/api/status", h.handleStatus)
	r.Get("/api/events", h.handleEvents)
	r.Get("/api/campaigns", h.handleCampaigns)
}

func (h *SystemHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.health.Status())
}

func (h *SystemHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.monitoring.Report())
}

func limitParam(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (h *SystemHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.Event().RecentEvents(r.Context(), limitParam(r, 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, events)
}

func (h *SystemHandler) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.repo.Campaign().ListCampaigns(r.Context(), limitParam(r, 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaigns)
}
