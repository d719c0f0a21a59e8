package bootstrap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/datapulse-live/internal/clock"
)

var errColdStart = errors.New("503 service unavailable")

// scriptedProber fails until the configured attempt succeeds.
type scriptedProber struct {
	mu        sync.Mutex
	calls     int
	succeedOn int // 1-based; 0 = never succeed
}

func (p *scriptedProber) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.succeedOn > 0 && p.calls >= p.succeedOn {
		return nil
	}
	return errColdStart
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// countingFlag wraps MemoryFlag and counts writes.
type countingFlag struct {
	MemoryFlag
	sets    atomic.Int32
	readErr error
}

func (f *countingFlag) IsSet(ctx context.Context) (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.MemoryFlag.IsSet(ctx)
}

func (f *countingFlag) Set(ctx context.Context) error {
	f.sets.Add(1)
	return f.MemoryFlag.Set(ctx)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event, _ Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestGate(prober Prober, flag Flag) (*Gate, *clock.Fake, *recorder) {
	clk := clock.NewFake()
	rec := &recorder{}
	g := New(DefaultConfig(), prober, flag,
		WithClock(clk),
		WithObserver(rec.observe),
	)
	return g, clk, rec
}

func equalEvents(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGate_FastPath(t *testing.T) {
	prober := &scriptedProber{succeedOn: 1}
	flag := &countingFlag{}
	flag.MemoryFlag.Set(context.Background())

	g, clk, rec := newTestGate(prober, flag)
	g.Start(context.Background())
	defer g.Stop()

	if got := g.Phase(); got != PhaseReady {
		t.Fatalf("phase = %s, want ready", got)
	}

	clk.Advance(5 * time.Minute)

	if got := prober.count(); got != 0 {
		t.Errorf("probes = %d, want 0", got)
	}
	if got := clk.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
	if got := flag.sets.Load(); got != 0 {
		t.Errorf("flag writes = %d, want 0", got)
	}
	if !equalEvents(rec.list(), []Event{EventReady}) {
		t.Errorf("events = %v, want [ready]", rec.list())
	}

	phase, err := g.Wait(context.Background())
	if err != nil || phase != PhaseReady {
		t.Errorf("Wait() = %s, %v; want ready, nil", phase, err)
	}
}

func TestGate_RetryThenSuccess(t *testing.T) {
	prober := &scriptedProber{succeedOn: 4}
	flag := &countingFlag{}

	g, clk, rec := newTestGate(prober, flag)
	g.Start(context.Background())
	defer g.Stop()

	if got := g.Phase(); got != PhaseChecking {
		t.Fatalf("phase = %s, want checking", got)
	}

	// Probes at t=0, 2s, 4s, 6s; the fourth succeeds.
	clk.Advance(5 * time.Second)
	if got := prober.count(); got != 3 {
		t.Fatalf("probes after 5s = %d, want 3", got)
	}
	if g.Phase() != PhaseChecking {
		t.Fatalf("phase = %s, want checking", g.Phase())
	}

	clk.Advance(time.Second)

	if got := g.Phase(); got != PhaseReady {
		t.Fatalf("phase = %s, want ready", got)
	}
	if got := prober.count(); got != 4 {
		t.Errorf("probes = %d, want 4", got)
	}
	if got := g.Attempts(); got != 4 {
		t.Errorf("Attempts() = %d, want 4", got)
	}
	if got := flag.sets.Load(); got != 1 {
		t.Errorf("flag writes = %d, want 1", got)
	}
	if got := clk.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0 (all three timers canceled)", got)
	}

	clk.Advance(5 * time.Minute)
	if got := prober.count(); got != 4 {
		t.Errorf("probes after resolve = %d, want 4", got)
	}
	if !equalEvents(rec.list(), []Event{EventReady}) {
		t.Errorf("events = %v, want [ready]", rec.list())
	}
}

func TestGate_AttemptExhaustion(t *testing.T) {
	prober := &scriptedProber{}
	flag := &countingFlag{}

	g, clk, rec := newTestGate(prober, flag)
	g.Start(context.Background())
	defer g.Stop()

	maxAttempts := DefaultConfig().MaxAttempts
	clk.Advance(10 * time.Minute)

	if got := prober.count(); got != maxAttempts {
		t.Errorf("probes = %d, want %d", got, maxAttempts)
	}
	if got := g.Phase(); got != PhaseUnreachable {
		t.Errorf("phase = %s, want unreachable", got)
	}
	if got := flag.sets.Load(); got != 0 {
		t.Errorf("flag writes = %d, want 0", got)
	}
	if got := clk.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}

	want := []Event{EventSlowStart, EventHardFail, EventExhausted}
	if !equalEvents(rec.list(), want) {
		t.Errorf("events = %v, want %v", rec.list(), want)
	}

	clk.Advance(time.Hour)
	if got := prober.count(); got != maxAttempts {
		t.Errorf("probes after exhaustion = %d, want %d", got, maxAttempts)
	}
}

func TestGate_SignalsDoNotStopProbing(t *testing.T) {
	// Probes run at 0, 2, 4, ... seconds; the 56th probe (t=110s) succeeds.
	prober := &scriptedProber{succeedOn: 56}

	g, clk, rec := newTestGate(prober, &countingFlag{})
	g.Start(context.Background())
	defer g.Stop()

	clk.Advance(21 * time.Second)
	if !equalEvents(rec.list(), []Event{EventSlowStart}) {
		t.Fatalf("events = %v, want [slow_start]", rec.list())
	}
	if g.Phase() != PhaseChecking {
		t.Errorf("phase = %s, want checking", g.Phase())
	}
	if !g.Status().SlowStart {
		t.Error("Status().SlowStart = false")
	}

	clk.Advance(85 * time.Second) // t=106s
	if g.Phase() != PhaseUnreachable {
		t.Fatalf("phase = %s, want unreachable", g.Phase())
	}

	clk.Advance(4 * time.Second) // t=110s
	if g.Phase() != PhaseReady {
		t.Fatalf("phase = %s, want ready", g.Phase())
	}

	want := []Event{EventSlowStart, EventHardFail, EventReady}
	if !equalEvents(rec.list(), want) {
		t.Errorf("events = %v, want %v", rec.list(), want)
	}
	if got := clk.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestGate_ManualRetry(t *testing.T) {
	prober := &scriptedProber{}
	flag := &countingFlag{}

	g, clk, _ := newTestGate(prober, flag)

	if g.Retry() {
		t.Error("Retry() before Start should be a no-op")
	}

	g.Start(context.Background())
	defer g.Stop()

	if g.Retry() {
		t.Error("Retry() while checking should be a no-op")
	}

	clk.Advance(10 * time.Minute)
	if g.Phase() != PhaseUnreachable {
		t.Fatalf("phase = %s, want unreachable", g.Phase())
	}

	prober.mu.Lock()
	prober.succeedOn = prober.calls + 2
	prober.mu.Unlock()

	if !g.Retry() {
		t.Fatal("Retry() from unreachable = false, want true")
	}
	if g.Phase() != PhaseChecking || g.Attempts() != 0 {
		t.Fatalf("after Retry: phase = %s, attempts = %d", g.Phase(), g.Attempts())
	}

	clk.Advance(2 * time.Second)

	if g.Phase() != PhaseReady {
		t.Errorf("phase = %s, want ready", g.Phase())
	}
	if g.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", g.Attempts())
	}
	if flag.sets.Load() != 1 {
		t.Errorf("flag writes = %d, want 1", flag.sets.Load())
	}
}

func TestGate_StopCancelsTimers(t *testing.T) {
	prober := &scriptedProber{}

	g, clk, _ := newTestGate(prober, &countingFlag{})
	g.Start(context.Background())

	clk.Advance(0)
	if got := clk.Pending(); got != 3 {
		t.Fatalf("Pending() = %d, want 3 (probe, slow start, hard fail)", got)
	}

	g.Stop()
	g.Stop()

	if got := clk.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}

	clk.Advance(time.Hour)
	if got := prober.count(); got != 1 {
		t.Errorf("probes = %d, want 1", got)
	}

	phase, err := g.Wait(context.Background())
	if !errors.Is(err, ErrStopped) || phase != PhaseChecking {
		t.Errorf("Wait() = %s, %v; want checking, ErrStopped", phase, err)
	}
}

func TestGate_FlagReadErrorProbes(t *testing.T) {
	prober := &scriptedProber{succeedOn: 1}
	flag := &countingFlag{readErr: errors.New("redis down")}

	g, clk, _ := newTestGate(prober, flag)
	g.Start(context.Background())
	defer g.Stop()

	clk.Advance(0)

	if g.Phase() != PhaseReady {
		t.Errorf("phase = %s, want ready", g.Phase())
	}
	if prober.count() != 1 {
		t.Errorf("probes = %d, want 1", prober.count())
	}
}

func TestGate_StartTwice(t *testing.T) {
	prober := &scriptedProber{}

	g, clk, _ := newTestGate(prober, &countingFlag{})
	g.Start(context.Background())
	g.Start(context.Background())
	defer g.Stop()

	clk.Advance(0)
	if got := prober.count(); got != 1 {
		t.Errorf("probes = %d, want 1", got)
	}
}

func TestGate_WaitContextDone(t *testing.T) {
	g, _, _ := newTestGate(&scriptedProber{}, &countingFlag{})
	g.Start(context.Background())
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestGate_ProbesNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32

	prober := ProberFunc(func(ctx context.Context) error {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		calls.Add(1)

		for {
			old := maxInFlight.Load()
			if current <= old || maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}

		// Slower than the probe interval.
		time.Sleep(15 * time.Millisecond)
		return errColdStart
	})

	cfg := Config{
		ProbeInterval:  time.Millisecond,
		MaxAttempts:    5,
		ProbeTimeout:   time.Second,
		SlowStartAfter: time.Hour,
		HardFailAfter:  time.Hour,
	}
	g := New(cfg, prober, nil)
	g.Start(context.Background())
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	phase, err := g.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if phase != PhaseUnreachable {
		t.Errorf("phase = %s, want unreachable", phase)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("probes = %d, want 5", got)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("maxInFlight = %d, want 1", got)
	}
}

func TestGate_RealClockSuccess(t *testing.T) {
	var calls atomic.Int32
	prober := ProberFunc(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errColdStart
		}
		return nil
	})

	cfg := DefaultConfig()
	cfg.ProbeInterval = 5 * time.Millisecond

	flag := &MemoryFlag{}
	g := New(cfg, prober, flag)
	g.Start(context.Background())
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	phase, err := g.Wait(ctx)
	if err != nil || phase != PhaseReady {
		t.Fatalf("Wait() = %s, %v; want ready, nil", phase, err)
	}
	if set, _ := flag.IsSet(ctx); !set {
		t.Error("flag not persisted")
	}

	// A later mount of the same session skips probing.
	g2 := New(cfg, ProberFunc(func(context.Context) error {
		t.Error("probe issued despite persisted flag")
		return nil
	}), flag)
	g2.Start(context.Background())
	defer g2.Stop()

	if g2.Phase() != PhaseReady {
		t.Errorf("second gate phase = %s, want ready", g2.Phase())
	}
}

// stallingPinger fails fast until call stallOn, which blocks until its
// context is done. Calls after stallOn succeed.
type stallingPinger struct {
	stallOn  int
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	stalled  chan struct{}
	released chan error
}

func (p *stallingPinger) Ping(ctx context.Context) error {
	n := int(p.calls.Add(1))
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	if cur > p.maxSeen.Load() {
		p.maxSeen.Store(cur)
	}

	switch {
	case n < p.stallOn:
		return errColdStart
	case n == p.stallOn:
		close(p.stalled)
		<-ctx.Done()
		p.released <- ctx.Err()
		return ctx.Err()
	default:
		return nil
	}
}

func TestGate_RetryCancelsSupersededAttempt(t *testing.T) {
	// Probes run every 2s; hard fail fires at 105s, so the 54th attempt
	// (t=106s) is in flight while the gate is unreachable.
	prober := &stallingPinger{
		stallOn:  54,
		stalled:  make(chan struct{}),
		released: make(chan error, 1),
	}

	g, clk, rec := newTestGate(prober, &countingFlag{})
	g.Start(context.Background())
	defer g.Stop()

	advanced := make(chan struct{})
	go func() {
		clk.Advance(106 * time.Second)
		close(advanced)
	}()

	select {
	case <-prober.stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt 54 never started")
	}
	if g.Phase() != PhaseUnreachable {
		t.Fatalf("phase = %s, want unreachable", g.Phase())
	}

	if !g.Retry() {
		t.Fatal("Retry() during hard fail = false, want true")
	}

	select {
	case err := <-prober.released:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("superseded attempt ctx err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded attempt was not cancelled")
	}

	select {
	case <-advanced:
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not return")
	}

	if g.Phase() != PhaseReady {
		t.Errorf("phase = %s, want ready", g.Phase())
	}
	if got := prober.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent attempts = %d, want 1", got)
	}
	want := []Event{EventSlowStart, EventHardFail, EventReady}
	if !equalEvents(rec.list(), want) {
		t.Errorf("events = %v, want %v", rec.list(), want)
	}
}

func TestGate_ResolveCancelsRunContext(t *testing.T) {
	prober := &scriptedProber{succeedOn: 1}

	g, clk, _ := newTestGate(prober, &countingFlag{})
	g.Start(context.Background())
	defer g.Stop()

	g.mu.Lock()
	runCtx := g.runCtx
	g.mu.Unlock()

	clk.Advance(time.Second)
	if g.Phase() != PhaseReady {
		t.Fatalf("phase = %s, want ready", g.Phase())
	}
	if runCtx.Err() == nil {
		t.Error("run context still live after resolve")
	}
}
