// Package api implements the HTTP REST API served to dashboards.
//
// New(backend) returns an http.Handler that serves:
//
//	GET  /api/v1/health               : fleet summary (HealthSummary)
//	GET  /api/v1/agents               : all agent snapshots, sorted by ID
//	GET  /api/v1/agents/{id}          : one agent; 404 if unknown
//	GET  /api/v1/alerts               : alerts; ?severity= &agent= &include_resolved=true
//	POST /api/v1/alerts/{id}/ack      : acknowledge; 404 if unknown
//	POST /api/v1/alerts/{id}/resolve  : resolve; 404 if unknown
//	GET  /api/v1/thresholds           : threshold registry
//	PUT  /api/v1/thresholds           : install one threshold; 400 if invalid
//	POST /api/v1/metrics              : record one metric value
//	GET  /api/v1/export               : export document {agents, alerts}
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go. No external
// HTTP framework is used.
package api
