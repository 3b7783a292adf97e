// Package storage provides the persistence backends for the
// orchestrator: a GORM store covering the job queue, the summary and
// event tables, and the read-only signal records, plus a Redis-backed
// queue store for deployments that keep the queue off the database.
package storage
