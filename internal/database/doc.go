// Package database provides the PostgreSQL connection pool used by the
// job status history sink.
package database
