// Package source provides the pluggable metric producers polled by the
// collector. Each Source reports an ID, its poll interval and a Collect call
// returning the samples for one tick.
//
// Implemented sources: host CPU/memory via gopsutil (system.go), Prometheus
// text exposition scraping (exposition.go), PromQL instant queries
// (promql.go), TLS certificate expiry of an agent endpoint (cert.go) and an
// in-process function adapter (Func).
// Factory: New(config.Source, defaultInterval).
//
// Authentication (API key, bearer token, basic) is applied by the shared
// authRoundTripper in source.go.
package source
