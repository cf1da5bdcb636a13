package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/agentwatch/internal/api"
	"github.com/obsidianstack/agentwatch/internal/notify"
	"github.com/obsidianstack/agentwatch/pkg/monitor"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// --- test helpers -----------------------------------------------------------

type nopChannel types.Channel

func (c nopChannel) Kind() types.Channel                       { return types.Channel(c) }
func (nopChannel) Send(context.Context, notify.Message) error { return nil }

func newMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	var opts []notify.DispatcherOption
	for _, kind := range types.Channels {
		opts = append(opts, notify.WithChannel(nopChannel(kind)))
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return monitor.New(
		monitor.WithClock(func() time.Time { return now }),
		monitor.WithDispatcher(notify.NewDispatcher(opts...)),
	)
}

func record(t *testing.T, m *monitor.Monitor, agent string, mt types.MetricType, v float64) {
	t.Helper()
	if err := m.RecordHealthMetric(agent, mt, v, "", nil); err != nil {
		t.Fatalf("RecordHealthMetric(%s, %s, %v): %v", agent, mt, v, err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path, "")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Empty(t *testing.T) {
	h := api.New(newMonitor(t))
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["total_agents"].(float64) != 0 {
		t.Errorf("total_agents: got %v, want 0", resp["total_agents"])
	}
	if resp["monitoring_active"] != false {
		t.Errorf("monitoring_active: got %v, want false", resp["monitoring_active"])
	}
}

func TestHealth_CountsAlerts(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "a-1", types.MetricCPUUsage, 97)
	record(t, m, "a-2", types.MetricCPUUsage, 10)

	var resp types.HealthSummary
	decode(t, get(t, api.New(m), "/api/v1/health"), &resp)

	if resp.TotalAgents != 2 {
		t.Errorf("TotalAgents: got %d, want 2", resp.TotalAgents)
	}
	if resp.ActiveAlerts != 1 {
		t.Errorf("ActiveAlerts: got %d, want 1", resp.ActiveAlerts)
	}
	if resp.StatusDistribution[types.StatusCritical] != 1 {
		t.Errorf("CRITICAL count: got %d, want 1", resp.StatusDistribution[types.StatusCritical])
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rr := do(t, api.New(newMonitor(t)), http.MethodPost, "/api/v1/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/agents ---------------------------------------------------------

func TestAgents_SortedByID(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "zeta", types.MetricCPUUsage, 10)
	record(t, m, "alpha", types.MetricMemoryUsage, 90)

	var resp []api.AgentResponse
	decode(t, get(t, api.New(m), "/api/v1/agents"), &resp)

	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
	if resp[0].AgentID != "alpha" || resp[1].AgentID != "zeta" {
		t.Errorf("order: got %s, %s", resp[0].AgentID, resp[1].AgentID)
	}
	if resp[0].OverallStatus != types.StatusWarning {
		t.Errorf("alpha status: got %s, want WARNING", resp[0].OverallStatus)
	}
	if len(resp[0].Alerts) != 1 || resp[0].Alerts[0].EscalationLevel != "LEVEL_1" {
		t.Errorf("alpha alerts: got %+v", resp[0].Alerts)
	}
	if len(resp[0].Recommendations) == 0 {
		t.Error("alpha: expected recommendations")
	}
}

func TestAgent_ByID(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "a-1", types.MetricResponseTime, 200)
	record(t, m, "a-1", types.MetricCPUUsage, 20)

	rr := get(t, api.New(m), "/api/v1/agents/a-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.AgentResponse
	decode(t, rr, &resp)

	if len(resp.Metrics) != 2 {
		t.Fatalf("metrics: got %d, want 2", len(resp.Metrics))
	}
	if resp.Metrics[0].MetricType != types.MetricCPUUsage {
		t.Errorf("metrics not sorted: first is %s", resp.Metrics[0].MetricType)
	}
	if resp.LastSeen != "2024-05-01T12:00:00Z" {
		t.Errorf("last_seen: got %q", resp.LastSeen)
	}
}

func TestAgent_NotFound(t *testing.T) {
	rr := get(t, api.New(newMonitor(t)), "/api/v1/agents/ghost")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_Filters(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "a-1", types.MetricCPUUsage, 97)    // critical
	record(t, m, "a-2", types.MetricMemoryUsage, 85) // warning
	h := api.New(m)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?severity=critical", 1},
		{"?severity=WARNING", 1},
		{"?agent=a-2", 1},
		{"?agent=nobody", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := get(t, h, "/api/v1/alerts"+tt.query)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d", rr.Code)
			}
			var resp []api.AlertResponse
			decode(t, rr, &resp)
			if len(resp) != tt.want {
				t.Errorf("got %d alerts, want %d", len(resp), tt.want)
			}
		})
	}
}

func TestAlerts_BadSeverity(t *testing.T) {
	rr := get(t, api.New(newMonitor(t)), "/api/v1/alerts?severity=loud")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestAlerts_AckAndResolve(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "a-1", types.MetricCPUUsage, 97)
	h := api.New(m)

	var list []api.AlertResponse
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if len(list) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(list))
	}
	id := list[0].ID

	if rr := do(t, h, http.MethodPost, "/api/v1/alerts/"+id+"/ack", ""); rr.Code != http.StatusOK {
		t.Fatalf("ack status: got %d, want 200", rr.Code)
	}
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if !list[0].Acknowledged {
		t.Error("alert not acknowledged")
	}

	if rr := do(t, h, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", ""); rr.Code != http.StatusOK {
		t.Fatalf("resolve status: got %d, want 200", rr.Code)
	}
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if len(list) != 0 {
		t.Errorf("active alerts after resolve: got %d, want 0", len(list))
	}
	decode(t, get(t, h, "/api/v1/alerts?include_resolved=true"), &list)
	if len(list) != 1 || !list[0].Resolved {
		t.Errorf("include_resolved: got %+v", list)
	}
}

func TestAlerts_ActionErrors(t *testing.T) {
	h := api.New(newMonitor(t))

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown id", http.MethodPost, "/api/v1/alerts/nope/ack", http.StatusNotFound},
		{"unknown action", http.MethodPost, "/api/v1/alerts/nope/snooze", http.StatusNotFound},
		{"missing action", http.MethodPost, "/api/v1/alerts/nope", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/api/v1/alerts/nope/ack", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, h, tt.method, tt.path, ""); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

// --- /api/v1/thresholds -----------------------------------------------------

func TestThresholds_GetSorted(t *testing.T) {
	var resp []types.HealthThreshold
	decode(t, get(t, api.New(newMonitor(t)), "/api/v1/thresholds"), &resp)

	if len(resp) != len(types.DefaultThresholds()) {
		t.Fatalf("len: got %d, want %d", len(resp), len(types.DefaultThresholds()))
	}
	for i := 1; i < len(resp); i++ {
		if resp[i-1].MetricType > resp[i].MetricType {
			t.Errorf("not sorted at %d: %s > %s", i, resp[i-1].MetricType, resp[i].MetricType)
		}
	}
}

func TestThresholds_Put(t *testing.T) {
	m := newMonitor(t)
	h := api.New(m)

	body := `{"metric_type":"cpu_usage","warning_threshold":50,"critical_threshold":70,"unit":"%"}`
	if rr := do(t, h, http.MethodPut, "/api/v1/thresholds", body); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if got := m.Thresholds()[types.MetricCPUUsage].WarningThreshold; got != 50 {
		t.Errorf("warning: got %v, want 50", got)
	}

	bad := `{"metric_type":"cpu_usage","warning_threshold":50,"critical_threshold":50}`
	if rr := do(t, h, http.MethodPut, "/api/v1/thresholds", bad); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid threshold status: got %d, want 400", rr.Code)
	}
	if got := m.Thresholds()[types.MetricCPUUsage].WarningThreshold; got != 50 {
		t.Errorf("registry changed by rejected update: warning %v", got)
	}
}

func TestThresholds_MethodNotAllowed(t *testing.T) {
	rr := do(t, api.New(newMonitor(t)), http.MethodDelete, "/api/v1/thresholds", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/metrics --------------------------------------------------------

func TestRecord(t *testing.T) {
	m := newMonitor(t)
	h := api.New(m)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"agent_id":"a-1","metric_type":"error_rate","value":20,"unit":"%"}`, http.StatusAccepted},
		{"missing agent", `{"metric_type":"error_rate","value":1}`, http.StatusBadRequest},
		{"malformed", `{"agent_id":`, http.StatusBadRequest},
		{"unknown field", `{"agent_id":"a-1","metric_type":"error_rate","value":1,"extra":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, h, http.MethodPost, "/api/v1/metrics", tt.body); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	snap, ok := m.GetAgentHealth("a-1")
	if !ok {
		t.Fatal("agent a-1 not recorded")
	}
	if snap.OverallStatus != types.StatusCritical {
		t.Errorf("status: got %s, want CRITICAL", snap.OverallStatus)
	}
}

func TestRecord_MethodNotAllowed(t *testing.T) {
	if rr := get(t, api.New(newMonitor(t)), "/api/v1/metrics"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/export ---------------------------------------------------------

func TestExport(t *testing.T) {
	m := newMonitor(t)
	record(t, m, "a-1", types.MetricCPUUsage, 97)

	rr := get(t, api.New(m), "/api/v1/export")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]json.RawMessage
	decode(t, rr, &resp)
	for _, key := range []string{"agents", "alerts"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}
