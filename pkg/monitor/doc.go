// Package monitor is the public entry point of the health engine.
//
// A Monitor owns every agent snapshot, the alert store and the threshold
// registry behind one mutex. Metric ingestion, queries, acknowledgement and
// the background loop all go through it:
//
//	m := monitor.New()
//	m.Start()
//	defer m.Stop()
//	_ = m.RecordHealthMetric("agent-1", types.MetricResponseTime, 6000, "ms", nil)
//	snap, _ := m.GetAgentHealth("agent-1")
//
// Notifications and subscriber callbacks always run outside the lock.
// Values returned by query methods are copies; mutating them does not
// affect the monitor.
package monitor
