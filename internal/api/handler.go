package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/obsidianstack/agentwatch/internal/alerts"
	"github.com/obsidianstack/agentwatch/internal/export"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Backend is the monitor surface the API reads and writes.
type Backend interface {
	GetHealthSummary() types.HealthSummary
	GetAllAgentHealth() map[string]*types.HealthSnapshot
	GetAgentHealth(agentID string) (*types.HealthSnapshot, bool)
	GetHealthAlerts(f alerts.Filter) []*types.HealthAlert
	AcknowledgeAlert(id string) error
	ResolveAlert(id string) error
	Thresholds() map[types.MetricType]types.HealthThreshold
	UpdateThreshold(th types.HealthThreshold) error
	RecordHealthMetric(agentID string, metric types.MetricType, value float64, unit string, threshold *types.HealthThreshold) error
	Export() export.Document
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	backend Backend
	mux     *http.ServeMux
}

// New creates a Handler wired to backend and registers all routes.
func New(backend Backend) http.Handler {
	h := &Handler{backend: backend, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/agents", h.listAgents)
	h.mux.HandleFunc("/api/v1/agents/", h.getAgent) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertAction) // {id}/ack | {id}/resolve
	h.mux.HandleFunc("/api/v1/thresholds", h.thresholds)
	h.mux.HandleFunc("/api/v1/metrics", h.record)
	h.mux.HandleFunc("/api/v1/export", h.export)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: the fleet summary.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.backend.GetHealthSummary())
}

// listAgents returns GET /api/v1/agents: every agent, sorted by ID.
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, BuildAgents(h.backend.GetAllAgentHealth()))
}

// getAgent returns GET /api/v1/agents/{id}.
func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if id == "" {
		h.listAgents(w, r)
		return
	}

	snap, ok := h.backend.GetAgentHealth(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "agent not found")
		return
	}
	jsonResp(w, http.StatusOK, toAgentResponse(snap))
}

// listAlerts returns GET /api/v1/alerts, newest first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	f := alerts.Filter{
		AgentID:         q.Get("agent"),
		IncludeResolved: q.Get("include_resolved") == "true",
	}
	if s := q.Get("severity"); s != "" {
		sev, err := types.ParseSeverity(s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Severity = sev
	}

	jsonResp(w, http.StatusOK, BuildAlerts(h.backend.GetHealthAlerts(f)))
}

// alertAction handles POST /api/v1/alerts/{id}/ack and /resolve.
func (h *Handler) alertAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	if rest == "" {
		h.listAlerts(w, r)
		return
	}
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		jsonErr(w, http.StatusNotFound, "unknown alert action")
		return
	}

	var err error
	switch action {
	case "ack":
		err = h.backend.AcknowledgeAlert(id)
	case "resolve":
		err = h.backend.ResolveAlert(id)
	default:
		jsonErr(w, http.StatusNotFound, "unknown alert action")
		return
	}
	if errors.Is(err, alerts.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, statusResponse{OK: true})
}

// thresholds handles GET and PUT /api/v1/thresholds.
func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		reg := h.backend.Thresholds()
		out := make([]types.HealthThreshold, 0, len(reg))
		for _, th := range reg {
			out = append(out, th)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].MetricType < out[j].MetricType })
		jsonResp(w, http.StatusOK, out)

	case http.MethodPut:
		var th types.HealthThreshold
		if !decodeBody(w, r, &th) {
			return
		}
		if err := h.backend.UpdateThreshold(th); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, th)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// record handles POST /api/v1/metrics.
func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req RecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.backend.RecordHealthMetric(req.AgentID, req.MetricType, req.Value, req.Unit, req.Threshold); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, statusResponse{OK: true})
}

// export returns GET /api/v1/export: the export document.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.backend.Export())
}

// --- helpers ----------------------------------------------------------------

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func sortMetrics(list []MetricResponse) {
	sort.Slice(list, func(i, j int) bool { return list[i].MetricType < list[j].MetricType })
}
