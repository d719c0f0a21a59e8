// Package connection implements the live workspace status channel.
//
// A Subscription:
//   - Owns at most one WebSocket transport per workspace view
//   - Reconnects after a fixed delay when the transport drops unexpectedly
//   - Sends "ping" heartbeats while open and the page is visible
//   - Reconnects immediately when the page becomes visible again
//   - Delivers job_complete / job_error events to a single consumer callback
package connection
