// Package api provides the DataPulse backend REST client.
//
// Only the liveness probe is consumed by this repository: a single GET to
// the backend root (or configured health path) where any 2xx response means
// the backend is awake. Job submission and workspace CRUD live elsewhere.
package api
