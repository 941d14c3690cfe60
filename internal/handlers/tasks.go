package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/internal/models"
	"github.com/aigoflow/mmss-service/internal/services"
)

type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/metrics", h.handleMetrics)
	r.Get("/api/metrics/vectorized", h.handleVectorized)
	r.Post("/api/metrics/quaternion", h.handleIntegrateQuaternion)
	r.Get("/api/tasks", h.handleListTasks)
	r.Post("/api/tasks", h.handleSubmitTask)
	r.Get("/api/tasks/{id}", h.handleTaskStatus)
	r.Get("/api/visualization/packet", h.handlePacket)
	r.Get("/api/visualization/hopfion-field", h.handleHopfionField)
	r.Get("/api/export/tasks.parquet", h.handleExport)
}

func (h *TaskHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tasks.Metrics())
}

func (h *TaskHandler) handleVectorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tasks.Vectorized())
}

func (h *TaskHandler) handleIntegrateQuaternion(w http.ResponseWriter, r *http.Request) {
	var q models.Quaternion
	if err := decodeJSON(r, &q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.tasks.IntegrateQuaternion(q))
}

func (h *TaskHandler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tasks)
}

func (h *TaskHandler) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var cmd models.GeometricTaskCommand
	if err := decodeJSON(r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.tasks.Submit(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *TaskHandler) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid task id: "+err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status)
}

func (h *TaskHandler) handlePacket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.VisualizationResponse{Packet: h.tasks.Packet()})
}

func (h *TaskHandler) handleHopfionField(w http.ResponseWriter, r *http.Request) {
	// Encodes as JSON null until a field has been generated
	writeJSON(w, h.tasks.HopfionField())
}

func (h *TaskHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := h.tasks.ExportTasks(r.Context(), &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.parquet"`)
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	_, _ = w.Write(buf.Bytes())
}
