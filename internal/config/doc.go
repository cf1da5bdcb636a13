// Package config loads and watches the agentwatch configuration file.
//
// Top-level sections:
//   - monitor: metrics/health-check/alert-check intervals, alert retention,
//     dedup mode (reuse|append), subscriber timeout
//   - thresholds: overrides for the default threshold registry
//   - escalation: one entry per level 1–4: delay, contacts, channels, auto_escalate
//   - channels: console|log|email|slack: enabled, template, recipients, plus
//     slack webhook / mailgun settings resolved from environment variables
//   - sources: system | exposition | promql | tls metric adapters
//   - export: optional Redis publisher for the JSON export document
//   - http: dashboard REST/WebSocket listener and API-key auth
//
// Load(path) reads the YAML file, applies defaults (30s metrics, 60s health
// check, 15s alert check, 7d retention), then validates ranges and enums.
// Unknown channel identifiers are rejected here, never at dispatch time.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory and calls
// onChange with each successfully parsed revision.
package config
