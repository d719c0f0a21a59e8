package bootstrap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/datapulse-live/internal/clock"
)

// Gate decides whether the backend is reachable before the rest of the
// application starts.
type Gate struct {
	cfg      Config
	prober   Prober
	flag     Flag
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	mu        sync.Mutex
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
	run       uint64 // Bumped when a probe loop is resolved, stopped or restarted
	runCtx    context.Context
	runCancel context.CancelFunc
	phase     Phase
	attempts  int
	slowStart bool
	hardFail  bool
	changed   chan struct{}

	probeTimer clock.Timer
	slowTimer  clock.Timer
	hardTimer  clock.Timer
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used for probe and signal timers.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) {
		g.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// New creates a gate in the checking phase. flag may be nil, in which case
// every start probes.
func New(cfg Config, prober Prober, flag Flag, opts ...Option) *Gate {
	g := &Gate{
		cfg:     cfg,
		prober:  prober,
		flag:    flag,
		clock:   clock.Real(),
		logger:  slog.Default(),
		phase:   PhaseChecking,
		changed: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.flag == nil {
		g.flag = &MemoryFlag{}
	}

	return g
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Attempts returns the number of probes issued by the current loop.
func (g *Gate) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Status returns a snapshot for reporting.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Gate) statusLocked() Status {
	return Status{
		Phase:       g.phase,
		Attempts:    g.attempts,
		MaxAttempts: g.cfg.MaxAttempts,
		SlowStart:   g.slowStart,
		HardFail:    g.hardFail,
	}
}

// Start reads the persisted flag and either resolves immediately or begins
// probing. It does not block on the network beyond the flag read. Calling
// Start more than once has no effect.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.ctx, g.cancel = context.WithCancel(ctx)
	runCtx := g.ctx
	g.mu.Unlock()

	awake, err := g.flag.IsSet(runCtx)
	if err != nil {
		g.logger.Warn("read backend-awake flag, probing instead", "error", err)
		awake = false
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}

	if awake {
		g.logger.Info("backend previously confirmed awake, skipping probes")
		status := g.resolveLocked()
		g.mu.Unlock()
		g.emit(EventReady, status)
		return
	}

	g.beginLocked()
	g.mu.Unlock()

	g.logger.Info("probing backend",
		"interval", g.cfg.ProbeInterval,
		"max_attempts", g.cfg.MaxAttempts,
	)
}

// Wait blocks until the gate leaves the checking phase, the gate is
// stopped, or ctx is done.
func (g *Gate) Wait(ctx context.Context) (Phase, error) {
	for {
		g.mu.Lock()
		phase := g.phase
		stopped := g.stopped
		ch := g.changed
		g.mu.Unlock()

		if phase != PhaseChecking {
			return phase, nil
		}
		if stopped {
			return phase, ErrStopped
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return phase, ctx.Err()
		}
	}
}

// Retry restarts probing from the unreachable phase with a fresh attempt
// budget and fresh signal timers. It reports whether a new loop started.
func (g *Gate) Retry() bool {
	g.mu.Lock()
	if !g.started || g.stopped || g.phase != PhaseUnreachable {
		g.mu.Unlock()
		return false
	}
	g.beginLocked()
	g.mu.Unlock()

	g.logger.Info("manual retry, probing backend again")
	return true
}

// Stop cancels every pending timer and any in-flight probe. The phase is
// left as is. Safe to call more than once.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return
	}
	g.stopped = true
	g.endRunLocked()
	if g.cancel != nil {
		g.cancel()
	}
	g.signalLocked()
}

// beginLocked starts a probe loop with its three timers. Caller holds g.mu.
func (g *Gate) beginLocked() {
	g.endRunLocked()
	run := g.run
	g.runCtx, g.runCancel = context.WithCancel(g.ctx)

	g.phase = PhaseChecking
	g.attempts = 0
	g.slowStart = false
	g.hardFail = false

	g.probeTimer = g.clock.AfterFunc(0, func() { g.attempt(run) })
	g.slowTimer = g.clock.AfterFunc(g.cfg.SlowStartAfter, func() { g.onSlowStart(run) })
	g.hardTimer = g.clock.AfterFunc(g.cfg.HardFailAfter, func() { g.onHardFail(run) })

	g.signalLocked()
}

// attempt issues one probe. The next probe is only scheduled after this
// one returns, so probes never overlap.
func (g *Gate) attempt(run uint64) {
	g.mu.Lock()
	if run != g.run {
		g.mu.Unlock()
		return
	}
	g.probeTimer = nil
	g.attempts++
	attempt := g.attempts
	ctx := g.runCtx
	g.mu.Unlock()

	var probeCtx context.Context
	var cancel context.CancelFunc
	if g.cfg.ProbeTimeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	} else {
		probeCtx, cancel = context.WithCancel(ctx)
	}
	err := g.prober.Ping(probeCtx)
	cancel()

	if err == nil {
		g.succeed(run, attempt)
		return
	}

	g.mu.Lock()
	if run != g.run {
		g.mu.Unlock()
		return
	}

	g.logger.Debug("probe failed", "attempt", attempt, "error", err)

	if attempt < g.cfg.MaxAttempts {
		g.probeTimer = g.clock.AfterFunc(g.cfg.ProbeInterval, func() { g.attempt(run) })
		g.mu.Unlock()
		return
	}

	g.endRunLocked()
	g.phase = PhaseUnreachable
	g.signalLocked()
	status := g.statusLocked()
	g.mu.Unlock()

	g.logger.Warn("backend unreachable, probe budget exhausted", "attempts", attempt)
	g.emit(EventExhausted, status)
}

// succeed persists the awake flag and resolves the gate.
func (g *Gate) succeed(run uint64, attempt int) {
	g.mu.Lock()
	if run != g.run {
		g.mu.Unlock()
		return
	}
	ctx := g.ctx
	g.mu.Unlock()

	if err := g.flag.Set(ctx); err != nil {
		g.logger.Warn("persist backend-awake flag", "error", err)
	}

	g.mu.Lock()
	if run != g.run {
		g.mu.Unlock()
		return
	}
	status := g.resolveLocked()
	g.mu.Unlock()

	g.logger.Info("backend ready", "attempts", attempt)
	g.emit(EventReady, status)
}

// resolveLocked moves to ready and cancels all timers. Caller holds g.mu.
func (g *Gate) resolveLocked() Status {
	g.endRunLocked()
	g.phase = PhaseReady
	g.signalLocked()
	return g.statusLocked()
}

func (g *Gate) onSlowStart(run uint64) {
	g.mu.Lock()
	if run != g.run || g.phase != PhaseChecking {
		g.mu.Unlock()
		return
	}
	g.slowTimer = nil
	g.slowStart = true
	status := g.statusLocked()
	g.mu.Unlock()

	g.logger.Info("backend still starting up", "attempts", status.Attempts)
	g.emit(EventSlowStart, status)
}

// onHardFail marks the gate unreachable. Probing continues; a later
// success still resolves to ready.
func (g *Gate) onHardFail(run uint64) {
	g.mu.Lock()
	if run != g.run || g.phase != PhaseChecking {
		g.mu.Unlock()
		return
	}
	g.hardTimer = nil
	g.hardFail = true
	g.phase = PhaseUnreachable
	g.signalLocked()
	status := g.statusLocked()
	g.mu.Unlock()

	g.logger.Warn("backend not ready, giving up on wait", "attempts", status.Attempts)
	g.emit(EventHardFail, status)
}

// endRunLocked invalidates the current probe loop, stops its timers and
// cancels its in-flight probe. Caller holds g.mu.
func (g *Gate) endRunLocked() {
	g.run++
	g.stopTimersLocked()
	if g.runCancel != nil {
		g.runCancel()
		g.runCancel = nil
	}
}

func (g *Gate) stopTimersLocked() {
	for _, t := range []*clock.Timer{&g.probeTimer, &g.slowTimer, &g.hardTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (g *Gate) signalLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *Gate) emit(ev Event, status Status) {
	if g.observer != nil {
		g.observer(ev, status)
	}
}
