package bootstrap

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrStopped = errors.New("bootstrap gate stopped")
)

// Phase is the gate's decision state.
type Phase string

const (
	PhaseChecking    Phase = "checking"
	PhaseReady       Phase = "ready"
	PhaseUnreachable Phase = "unreachable"
)

// Event is a one-shot signal emitted to the observer.
type Event string

const (
	EventReady     Event = "ready"      // Backend confirmed awake
	EventSlowStart Event = "slow_start" // Still checking after SlowStartAfter
	EventHardFail  Event = "hard_fail"  // Still checking after HardFailAfter
	EventExhausted Event = "exhausted"  // MaxAttempts probes failed
)

// Observer receives gate events. It is invoked outside the gate's lock.
type Observer func(Event, Status)

// Prober issues one liveness probe.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProberFunc is a function adapter for Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Config holds gate timing policy.
type Config struct {
	ProbeInterval  time.Duration // Delay between a failed probe and the next one
	MaxAttempts    int           // Probe budget before giving up
	ProbeTimeout   time.Duration // Per-probe timeout
	SlowStartAfter time.Duration // When to emit EventSlowStart
	HardFailAfter  time.Duration // When to emit EventHardFail
}

// DefaultConfig returns the standard policy: ~2 minutes of probing.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:  2 * time.Second,
		MaxAttempts:    60,
		ProbeTimeout:   5 * time.Second,
		SlowStartAfter: 20 * time.Second,
		HardFailAfter:  105 * time.Second,
	}
}

// Status is a point-in-time view of the gate.
type Status struct {
	Phase       Phase `json:"phase"`
	Attempts    int   `json:"attempts"`
	MaxAttempts int   `json:"max_attempts"`
	SlowStart   bool  `json:"slow_start"`
	HardFail    bool  `json:"hard_fail"`
}
