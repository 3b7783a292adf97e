// Package worker runs the recomputation loop: claim a job, read the
// tenant's signal window, score it, persist the summary and audit
// event, and convert every failure into a retry-or-drop decision.
//
// The loop itself never crashes on a job error; panics and storage
// failures alike end in a bounded exponential backoff or, once the
// retry budget is spent, a dead-lettered drop that is always reported.
package worker
