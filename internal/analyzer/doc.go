// Package analyzer turns agent metrics into health judgements.
//
// Every function is pure: thresholds, snapshots and the current time are
// passed in, nothing is read from package state.
//
// EvaluateMetric raises a HealthAlert when a value crosses its warning or
// critical bound. MetricScore and CalculateHealthScore produce the 0–100
// health score; DeriveStatus maps alerts and score onto a HealthStatus.
// GenerateRecommendations emits ordered operator hints.
//
// Score bands per metric: 100 inside warning, 100→75 between warning and
// critical, 75→0 beyond critical. Overall: mean metric score minus 20 per
// active CRITICAL alert and 10 per active WARNING alert, clamped to [0,100].
package analyzer
