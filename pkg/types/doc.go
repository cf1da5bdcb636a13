// Package types defines the value objects shared by every agentwatch package:
// metric samples, thresholds, per-agent health snapshots, alerts, escalation
// policies and notification channel settings.
//
// These are the canonical in-memory representations. The JSON export format
// lives in internal/export and converts field-for-field.
package types
