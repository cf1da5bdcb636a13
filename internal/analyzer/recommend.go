package analyzer

import (
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// rule emits hint when the metric's value is past its warning bound.
type rule struct {
	metric types.MetricType
	hint   string
}

// rules are evaluated in order; their order is the order of the output.
var rules = []rule{
	{types.MetricResponseTime, "Response time is high: optimize the processing path or add caching for hot requests"},
	{types.MetricMemoryUsage, "Memory usage is high: run memory cleanup and check for leaks or oversized buffers"},
	{types.MetricCPUUsage, "CPU usage is high: reduce concurrent load or scale the agent out"},
	{types.MetricErrorRate, "Error rate is elevated: inspect recent error logs and failing dependencies"},
	{types.MetricTaskCompletionRate, "Task completion rate is low: review task assignment and agent capacity"},
	{types.MetricHeartbeatFrequency, "Heartbeats are late: check agent connectivity and scheduler health"},
	{types.MetricContractSuccessRate, "Contract success rate is low: review contract terms and counterparty reliability"},
	{types.MetricCommunicationLatency, "Communication latency is high: check the network path between agents"},
}

// pastWarning reports whether value lies strictly beyond the warning bound
// in the threshold's worse direction.
func pastWarning(value float64, th types.HealthThreshold) bool {
	return value != th.WarningThreshold && th.Reaches(value, th.WarningThreshold)
}

// Blanket hints appended after the metric rules.
const (
	hintCritical = "Agent health is CRITICAL: immediate attention required"
	hintWarning  = "Agent health is degraded: monitor closely and address warnings"
)

// GenerateRecommendations returns rule-based hints for snap. A hint fires
// when its metric is past the warning bound that applies to it (the metric's
// own override, else reg), so hints follow the same thresholds as alerts.
// The snapshot's OverallStatus must already be up to date.
func GenerateRecommendations(snap *types.HealthSnapshot, reg Thresholds) []string {
	var out []string
	for _, r := range rules {
		m, ok := snap.Metrics[r.metric]
		if !ok {
			continue
		}
		th, ok := ThresholdFor(m, reg)
		if !ok {
			continue
		}
		if pastWarning(m.Value, th) {
			out = append(out, r.hint)
		}
	}

	switch snap.OverallStatus {
	case types.StatusCritical:
		out = append(out, hintCritical)
	case types.StatusWarning:
		out = append(out, hintWarning)
	}
	return out
}
