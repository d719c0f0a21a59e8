package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/datapulse-live/internal/bootstrap"
	"github.com/rickgao/datapulse-live/internal/connection"
	"github.com/rickgao/datapulse-live/internal/version"
	"github.com/rickgao/datapulse-live/internal/visibility"
)

// Gate is the subset of *bootstrap.Gate served by the API.
type Gate interface {
	Status() bootstrap.Status
	Retry() bool
}

// Workspaces lists mounted subscriptions.
type Workspaces interface {
	Snapshots() []connection.Snapshot
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Phase       bootstrap.Phase `json:"phase"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	SlowStart   bool            `json:"slow_start"`
	HardFail    bool            `json:"hard_fail"`
	Version     string          `json:"version"`
}

// VisibilityRequest is the body of PUT /visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// VisibilityResponse is returned by the visibility routes.
type VisibilityResponse struct {
	Visible bool `json:"visible"`
}

type handler struct {
	gate       Gate
	workspaces Workspaces
	page       *visibility.Page
	logger     *slog.Logger
}

// New builds the HTTP router.
func New(gate Gate, workspaces Workspaces, page *visibility.Page, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		gate:       gate,
		workspaces: workspaces,
		page:       page,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", h.health)
	r.Post("/bootstrap/retry", h.retry)
	r.Get("/workspaces", h.listWorkspaces)
	r.Get("/workspaces/{workspace_id}", h.getWorkspace)
	r.Get("/visibility", h.getVisibility)
	r.Put("/visibility", h.setVisibility)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	s := h.gate.Status()
	status := http.StatusOK
	if s.Phase != bootstrap.PhaseReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		Phase:       s.Phase,
		Attempts:    s.Attempts,
		MaxAttempts: s.MaxAttempts,
		SlowStart:   s.SlowStart,
		HardFail:    s.HardFail,
		Version:     version.Version,
	})
}

func (h *handler) retry(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Retry() {
		writeError(w, http.StatusConflict, "not_unreachable", "gate is not in the unreachable phase")
		return
	}
	h.logger.Info("bootstrap retry requested", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	snaps := h.workspaces.Snapshots()
	if snaps == nil {
		snaps = []connection.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *handler) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspace_id")
	for _, s := range h.workspaces.Snapshots() {
		if s.WorkspaceID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "workspace not mounted")
}

func (h *handler) getVisibility(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VisibilityResponse{Visible: h.page.Visible()})
}

func (h *handler) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "visible is required")
		return
	}

	h.page.SetVisible(*req.Visible)
	writeJSON(w, http.StatusOK, VisibilityResponse{Visible: h.page.Visible()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
