package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

func TestEvaluateMetric(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name      string
		mt        types.MetricType
		value     float64
		wantSev   types.Severity
		wantBound float64
	}{
		{"inside warning", types.MetricResponseTime, 500, "", 0},
		{"warning", types.MetricResponseTime, 2000, types.SeverityWarning, 1000},
		{"critical", types.MetricResponseTime, 6000, types.SeverityCritical, 5000},
		{"critical at bound", types.MetricCPUUsage, 95, types.SeverityCritical, 95},
		{"inverted warning", types.MetricContractSuccessRate, 85, types.SeverityWarning, 90},
		{"inverted critical", types.MetricTaskCompletionRate, 50, types.SeverityCritical, 60},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &types.HealthMetric{AgentID: "a1", MetricType: tc.mt, Value: tc.value}
			got := EvaluateMetric(m, defaults[tc.mt], now)
			if tc.wantSev == "" {
				if got != nil {
					t.Fatalf("EvaluateMetric = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("EvaluateMetric = nil, want alert")
			}
			if got.Severity != tc.wantSev {
				t.Errorf("Severity = %q, want %q", got.Severity, tc.wantSev)
			}
			if got.Threshold != tc.wantBound {
				t.Errorf("Threshold = %v, want %v", got.Threshold, tc.wantBound)
			}
			if got.ID == "" || got.AgentID != "a1" || got.MetricType != tc.mt {
				t.Errorf("identity fields not set: %+v", got)
			}
			if got.EscalationLevel != types.Level1 || got.Acknowledged || got.Resolved {
				t.Errorf("new alert state = %+v, want level 1, open", got)
			}
			if !got.Timestamp.Equal(now) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
			}
		})
	}
}

func TestEvaluateMetric_Message(t *testing.T) {
	m := &types.HealthMetric{AgentID: "a1", MetricType: types.MetricResponseTime, Value: 6000}
	got := EvaluateMetric(m, defaults[types.MetricResponseTime], time.Now())
	want := "response_time is 6000ms (critical threshold 5000ms)"
	if got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}

	m = &types.HealthMetric{AgentID: "a1", MetricType: types.MetricErrorRate, Value: 7.25, Unit: "pct"}
	got = EvaluateMetric(m, defaults[types.MetricErrorRate], time.Now())
	if !strings.Contains(got.Message, "7.25pct") || !strings.Contains(got.Message, "warning threshold 5pct") {
		t.Errorf("Message = %q, want metric unit and warning bound", got.Message)
	}
}

func TestEvaluateMetric_UniqueIDs(t *testing.T) {
	m := &types.HealthMetric{AgentID: "a1", MetricType: types.MetricCPUUsage, Value: 99}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a := EvaluateMetric(m, defaults[types.MetricCPUUsage], time.Now())
		if seen[a.ID] {
			t.Fatalf("duplicate alert ID %q", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestGenerateRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		metrics map[types.MetricType]float64
		status  types.HealthStatus
		want    []string
	}{
		{"healthy agent", map[types.MetricType]float64{types.MetricCPUUsage: 10}, types.StatusExcellent, nil},
		{
			"slow and critical",
			map[types.MetricType]float64{types.MetricResponseTime: 1500},
			types.StatusCritical,
			[]string{rules[0].hint, hintCritical},
		},
		{
			"ordered by rule",
			map[types.MetricType]float64{
				types.MetricCommunicationLatency: 900,
				types.MetricTaskCompletionRate:   50,
				types.MetricMemoryUsage:          85,
			},
			types.StatusWarning,
			[]string{rules[1].hint, rules[4].hint, rules[7].hint, hintWarning},
		},
		{"rate above floor", map[types.MetricType]float64{types.MetricContractSuccessRate: 95}, types.StatusGood, nil},
		{"exactly at warning", map[types.MetricType]float64{types.MetricCPUUsage: 85}, types.StatusGood, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshotWith(tc.metrics)
			snap.OverallStatus = tc.status
			got := GenerateRecommendations(snap, Thresholds(types.DefaultThresholds()))
			if len(got) != len(tc.want) {
				t.Fatalf("got %d hints %q, want %d", len(got), got, len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("hint[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestGenerateRecommendations_FollowsRegistry(t *testing.T) {
	reg := Thresholds(types.DefaultThresholds())
	snap := snapshotWith(map[types.MetricType]float64{types.MetricCPUUsage: 50})

	if got := GenerateRecommendations(snap, reg); len(got) != 0 {
		t.Fatalf("default registry: got %q, want no hints", got)
	}

	reg[types.MetricCPUUsage] = types.HealthThreshold{MetricType: types.MetricCPUUsage, WarningThreshold: 40, CriticalThreshold: 60}
	got := GenerateRecommendations(snap, reg)
	if len(got) != 1 || got[0] != rules[2].hint {
		t.Errorf("lowered warning: got %q, want the CPU hint", got)
	}

	// A per-metric override wins over the registry.
	snap.Metrics[types.MetricCPUUsage].Threshold = &types.HealthThreshold{
		MetricType: types.MetricCPUUsage, WarningThreshold: 70, CriticalThreshold: 90,
	}
	if got := GenerateRecommendations(snap, reg); len(got) != 0 {
		t.Errorf("override: got %q, want no hints", got)
	}

	// Metrics with no threshold produce no hint.
	delete(reg, types.MetricCPUUsage)
	snap.Metrics[types.MetricCPUUsage].Threshold = nil
	if got := GenerateRecommendations(snap, reg); len(got) != 0 {
		t.Errorf("no threshold: got %q, want no hints", got)
	}
}
