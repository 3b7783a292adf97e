// Package queue wraps a durable queue backend with job construction,
// validation, and a typed event stream.
//
// The queue itself never deduplicates: several jobs for one tenant may
// coexist, and the idempotent summary upsert reconciles their results.
package queue
