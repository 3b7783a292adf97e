// Package scheduler periodically sweeps the signal store for active
// tenants and enqueues a low-priority recompute job for each, keeping
// every tenant's score fresh even when no explicit request arrives.
package scheduler
