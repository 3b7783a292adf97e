// Package core provides the domain models and interfaces for the
// recomputation orchestrator: the job and score types, the storage
// contracts, and the typed events emitted while jobs are processed.
//
// Core has no dependencies on the storage or worker packages, so
// every other package in the module can import it freely.
package core
