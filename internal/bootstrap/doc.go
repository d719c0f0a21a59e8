// Package bootstrap implements the backend availability gate.
//
// The Gate:
//   - Skips probing when the backend was already confirmed awake this session
//   - Probes the backend root every 2s, up to 60 attempts, never overlapping
//   - Signals "still starting up" once after 20s
//   - Signals a hard failure once after 105s
//   - Ends in ready on the first successful probe, or unreachable once the
//     attempt budget is spent
package bootstrap
