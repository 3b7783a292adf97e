// Package scoring derives a tenant's composite visibility score and
// risk classification from a window of daily signal records.
//
// Compute is a pure function: callers pass the clock explicitly and the
// same window always yields the same result, which keeps recomputation
// idempotent and the package trivially testable.
package scoring
