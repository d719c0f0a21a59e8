// Package history records delivered job statuses to PostgreSQL.
//
// The Recorder is registered as an observer on the live status channel. It
// queues statuses without blocking the channel, batches them, and flushes on
// size or interval into the job_status_events table. Rows are append-only.
package history
