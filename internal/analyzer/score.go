package analyzer

import (
	"math"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Per-metric score anchors.
const (
	scoreHealthy  = 100.0
	scoreCritical = 75.0
)

// Flat penalties subtracted from the averaged metric score per active alert.
const (
	penaltyCritical = 20.0
	penaltyWarning  = 10.0
)

// Status cut-offs used when no alert is active.
const (
	ThresholdExcellent = 90.0
	ThresholdGood      = 75.0
)

// Thresholds is a registry keyed by metric type.
type Thresholds map[types.MetricType]types.HealthThreshold

// ThresholdFor returns the threshold that applies to m: its own override
// first, then the registry entry.
func ThresholdFor(m *types.HealthMetric, reg Thresholds) (types.HealthThreshold, bool) {
	if m.Threshold != nil {
		return *m.Threshold, true
	}
	th, ok := reg[m.MetricType]
	return th, ok
}

// MetricScore maps one value onto 0–100 against th.
//
//	inside warning            → 100
//	between warning/critical  → 100 → 75, linear
//	past critical             → 75 → 0, linear in |value-critical| / |critical|
//
// For inverted thresholds the same bands apply with the direction mirrored.
func MetricScore(value float64, th types.HealthThreshold) float64 {
	if !th.Reaches(value, th.WarningThreshold) || value == th.WarningThreshold {
		return scoreHealthy
	}
	band := math.Abs(th.CriticalThreshold - th.WarningThreshold)
	if !th.Reaches(value, th.CriticalThreshold) {
		frac := math.Abs(value-th.WarningThreshold) / band
		return scoreHealthy - (scoreHealthy-scoreCritical)*frac
	}

	scale := math.Abs(th.CriticalThreshold)
	if scale == 0 {
		scale = band
	}
	excess := math.Abs(value-th.CriticalThreshold) / scale
	return math.Max(0, scoreCritical*(1-excess))
}

// CalculateHealthScore averages the score of every metric that has a
// threshold (100 when none do), subtracts the active-alert penalties and
// clamps the result to [0, 100].
func CalculateHealthScore(snap *types.HealthSnapshot, reg Thresholds) float64 {
	var (
		total  float64
		scored int
	)
	for _, m := range snap.Metrics {
		th, ok := ThresholdFor(m, reg)
		if !ok {
			continue
		}
		total += MetricScore(m.Value, th)
		scored++
	}

	score := scoreHealthy
	if scored > 0 {
		score = total / float64(scored)
	}

	for _, a := range snap.ActiveAlerts() {
		switch a.Severity {
		case types.SeverityCritical:
			score -= penaltyCritical
		case types.SeverityWarning:
			score -= penaltyWarning
		}
	}
	return clamp(score, 0, 100)
}

// DeriveStatus computes the overall status from active alerts first and the
// health score second. It is the only place OverallStatus is decided.
func DeriveStatus(snap *types.HealthSnapshot) types.HealthStatus {
	var warning bool
	for _, a := range snap.ActiveAlerts() {
		if a.Severity == types.SeverityCritical {
			return types.StatusCritical
		}
		if a.Severity == types.SeverityWarning {
			warning = true
		}
	}
	switch {
	case warning:
		return types.StatusWarning
	case snap.HealthScore >= ThresholdExcellent:
		return types.StatusExcellent
	case snap.HealthScore >= ThresholdGood:
		return types.StatusGood
	default:
		return types.StatusWarning
	}
}

// MetricStatus is the per-metric status stored on HealthMetric.Status.
func MetricStatus(value float64, th types.HealthThreshold) types.HealthStatus {
	switch th.Breached(value) {
	case types.SeverityCritical:
		return types.StatusCritical
	case types.SeverityWarning:
		return types.StatusWarning
	default:
		return types.StatusExcellent
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
