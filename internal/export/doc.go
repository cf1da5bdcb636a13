// Package export converts monitor state to and from the JSON document
// consumed by external dashboards, and ships that document to Redis.
//
// Document layout:
//
//	{"agents": {"<agentId>": snapshot}, "alerts": [alert, ...]}
//
// Snapshots reference their alerts by ID; ToState relinks them so that a
// snapshot and the alert list share the same *HealthAlert values.
//
// Publisher buffers documents and writes the newest to Redis (SET with TTL
// plus PUBLISH). When the buffer is full the oldest document is evicted.
// Failed writes are retried with truncated exponential backoff.
package export
