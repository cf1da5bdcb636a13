package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidThreshold is returned when a HealthThreshold fails validation.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Metric is a single immutable sample produced by a metric source.
type Metric struct {
	Source    string
	Name      string
	Value     float64
	Timestamp time.Time
}

// MetricType names a health dimension of an agent.
type MetricType string

// Registered metric types. Each one is seeded with a default threshold.
const (
	MetricResponseTime         MetricType = "response_time"
	MetricMemoryUsage          MetricType = "memory_usage"
	MetricCPUUsage             MetricType = "cpu_usage"
	MetricErrorRate            MetricType = "error_rate"
	MetricTaskCompletionRate   MetricType = "task_completion_rate"
	MetricHeartbeatFrequency   MetricType = "heartbeat_frequency"
	MetricContractSuccessRate  MetricType = "contract_success_rate"
	MetricCommunicationLatency MetricType = "communication_latency"
)

// HealthThreshold is the warning/critical boundary pair for one metric type.
//
// When CriticalThreshold is above WarningThreshold, higher values are worse.
// When it is below, the threshold is inverted: lower values are worse (used for
// completion and success rates) and every comparison is mirrored.
type HealthThreshold struct {
	MetricType        MetricType `json:"metric_type" yaml:"metric_type"`
	WarningThreshold  float64    `json:"warning_threshold" yaml:"warning"`
	CriticalThreshold float64    `json:"critical_threshold" yaml:"critical"`
	Unit              string     `json:"unit" yaml:"unit"`
	Description       string     `json:"description" yaml:"description"`
}

// Validate reports whether t can be placed in a threshold registry.
func (t HealthThreshold) Validate() error {
	if t.MetricType == "" {
		return fmt.Errorf("%w: metric type is required", ErrInvalidThreshold)
	}
	for name, v := range map[string]float64{"warning": t.WarningThreshold, "critical": t.CriticalThreshold} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: %s bound must be finite", ErrInvalidThreshold, t.MetricType, name)
		}
	}
	if t.WarningThreshold == t.CriticalThreshold {
		return fmt.Errorf("%w: %s: warning and critical bounds must differ", ErrInvalidThreshold, t.MetricType)
	}
	return nil
}

// Inverted reports whether lower values are worse for this threshold.
func (t HealthThreshold) Inverted() bool {
	return t.CriticalThreshold < t.WarningThreshold
}

// Reaches reports whether value has reached bound in the "worse" direction.
func (t HealthThreshold) Reaches(value, bound float64) bool {
	if t.Inverted() {
		return value <= bound
	}
	return value >= bound
}

// Breached returns the severity of the boundary value has crossed, or "" when
// value is inside the warning bound.
func (t HealthThreshold) Breached(value float64) Severity {
	switch {
	case t.Reaches(value, t.CriticalThreshold):
		return SeverityCritical
	case t.Reaches(value, t.WarningThreshold):
		return SeverityWarning
	default:
		return ""
	}
}

// Recovered reports whether value has fallen back inside bound, the threshold
// an alert was raised against.
func (t HealthThreshold) Recovered(value, bound float64) bool {
	if t.Inverted() {
		return value > bound
	}
	return value < bound
}

// DefaultThresholds returns the seed registry, one entry per registered type.
func DefaultThresholds() map[MetricType]HealthThreshold {
	list := []HealthThreshold{
		{MetricResponseTime, 1000, 5000, "ms", "Time taken to answer a request"},
		{MetricMemoryUsage, 80, 95, "%", "Resident memory as a share of the limit"},
		{MetricCPUUsage, 85, 95, "%", "CPU utilisation"},
		{MetricErrorRate, 5, 15, "%", "Share of operations that failed"},
		{MetricTaskCompletionRate, 80, 60, "%", "Share of assigned tasks completed"},
		{MetricHeartbeatFrequency, 60, 300, "s", "Seconds since the last heartbeat"},
		{MetricContractSuccessRate, 90, 75, "%", "Share of contracts fulfilled"},
		{MetricCommunicationLatency, 500, 2000, "ms", "Round-trip latency between agents"},
	}
	out := make(map[MetricType]HealthThreshold, len(list))
	for _, t := range list {
		out[t.MetricType] = t
	}
	return out
}

// HealthMetric is the latest value of one metric type for one agent.
type HealthMetric struct {
	AgentID    string
	MetricType MetricType
	Value      float64
	Unit       string
	Timestamp  time.Time
	// Threshold, when set, overrides the registry entry for this metric.
	Threshold *HealthThreshold
	Status    HealthStatus
}

// Clone returns a deep copy of m.
func (m *HealthMetric) Clone() *HealthMetric {
	cp := *m
	if m.Threshold != nil {
		th := *m.Threshold
		cp.Threshold = &th
	}
	return &cp
}
