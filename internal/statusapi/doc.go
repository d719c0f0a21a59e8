// Package statusapi exposes the bootstrap gate and live subscriptions over
// HTTP and lets an operator drive page visibility.
//
// Routes:
//
//	GET  /health                    gate phase and probe attempts (503 until ready)
//	POST /bootstrap/retry           restart probing after the gate gave up
//	GET  /workspaces                one snapshot per mounted subscription
//	GET  /workspaces/{workspace_id} a single subscription snapshot
//	GET  /visibility                current page visibility
//	PUT  /visibility                {"visible": bool}
package statusapi
