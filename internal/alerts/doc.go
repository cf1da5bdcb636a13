// Package alerts owns the lifecycle of health alerts: storage, breach
// deduplication, acknowledgement, auto-resolution, retention pruning and
// level-by-level escalation.
//
// A Store is not safe for concurrent use. The monitor serializes every call
// under its own mutex, so the store never takes a lock of its own.
package alerts
