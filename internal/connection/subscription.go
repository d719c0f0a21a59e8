package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/datapulse-live/internal/clock"
	"github.com/rickgao/datapulse-live/internal/visibility"
)

// Subscription maintains the live status channel for one workspace view.
//
// Start and Stop are the only lifecycle mutators. A second Start while
// connecting or open is a no-op, and Stop is idempotent and terminal.
type Subscription struct {
	cfg         Config
	workspaceID string
	dialer      Dialer
	page        *visibility.Page
	onStatus    StatusFunc
	clock       clock.Clock
	logger      *slog.Logger
	newInstance func() string

	mu         sync.Mutex
	state      State
	stopped    bool
	gen        uint64 // Bumped whenever the current transport or dial is abandoned
	transport  Transport
	cancelDial context.CancelFunc
	retryCount int
	lastError  string

	heartbeatTimer  clock.Timer
	heartbeatSeq    uint64
	lastHeartbeatAt time.Time
	reconnectTimer  clock.Timer
	reconnectSeq    uint64

	listenerID visibility.ListenerID
	listening  bool
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithClock sets the clock used for heartbeat and reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(s *Subscription) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscription) {
		s.logger = logger
	}
}

// WithInstanceID sets the generator for the per-dial client instance id.
func WithInstanceID(fn func() string) Option {
	return func(s *Subscription) {
		s.newInstance = fn
	}
}

// NewSubscription creates an idle subscription for workspaceID. onStatus
// may be nil; use Observers to fan out to several listeners.
func NewSubscription(cfg Config, workspaceID string, dialer Dialer, page *visibility.Page, onStatus StatusFunc, opts ...Option) *Subscription {
	s := &Subscription{
		cfg:         cfg,
		workspaceID: workspaceID,
		dialer:      dialer,
		page:        page,
		onStatus:    onStatus,
		clock:       clock.Real(),
		logger:      slog.Default(),
		newInstance: uuid.NewString,
		state:       StateIdle,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("workspace_id", workspaceID)

	return s
}

// WorkspaceID returns the workspace this subscription is bound to.
func (s *Subscription) WorkspaceID() string {
	return s.workspaceID
}

// State returns the current connection state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryCount returns the number of scheduled reconnects since the last
// successful open.
func (s *Subscription) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// LastError returns the most recent job failure reason, cleared by the
// next job_complete.
func (s *Subscription) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Snapshot returns the current state for reporting.
func (s *Subscription) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		WorkspaceID:     s.workspaceID,
		State:           s.state,
		RetryCount:      s.retryCount,
		LastError:       s.lastError,
		LastHeartbeatAt: s.lastHeartbeatAt,
	}
}

// Start begins connecting. It is a no-op while connecting or open, and
// after Stop.
func (s *Subscription) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Debug("start ignored, subscription stopped")
		return
	}
	if s.state == StateConnecting || s.state == StateOpen {
		s.logger.Debug("start ignored, transport already live", "state", s.state)
		return
	}

	if !s.listening {
		s.listenerID = s.page.AddListener(s.handleVisibility)
		s.listening = true
	}

	s.connectLocked()
}

// Stop closes the transport with a normal-closure code, clears every
// pending timer and removes the visibility listener. Safe to call more
// than once and in any state.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	prev := s.state
	s.state = StateClosing
	s.gen++

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.stopHeartbeatLocked()
	s.stopReconnectLocked()
	if s.listening {
		s.page.RemoveListener(s.listenerID)
		s.listening = false
	}

	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t != nil {
		if err := t.Close(CloseNormalClosure, "unsubscribe"); err != nil {
			s.logger.Debug("close transport", "error", err)
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Info("subscription stopped", "previous_state", prev)
}

// connectLocked starts a dial. Caller holds s.mu.
func (s *Subscription) connectLocked() {
	s.stopReconnectLocked()

	s.gen++
	gen := s.gen

	url, err := Endpoint(s.cfg.BaseURL, s.workspaceID, s.newInstance())
	if err != nil {
		s.logger.Error("invalid channel endpoint", "error", err)
		s.state = StateClosed
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if s.cfg.DialTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancelDial = cancel
	s.state = StateConnecting

	handlers := TransportHandlers{
		OnMessage: func(data []byte, receivedAt time.Time) {
			s.handleMessage(gen, data, receivedAt)
		},
		OnClose: func(code int, err error) {
			s.handleClose(gen, code, err)
		},
	}

	s.logger.Debug("connecting", "url", url, "retry_count", s.retryCount)

	go s.dial(ctx, cancel, gen, url, handlers)
}

// dial runs the handshake off the caller's goroutine.
func (s *Subscription) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, url string, h TransportHandlers) {
	defer cancel()

	t, err := s.dialer.Dial(ctx, url, h)

	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		if t != nil {
			t.Close(CloseNormalClosure, "superseded")
		}
		return
	}
	s.cancelDial = nil

	if err != nil {
		s.logger.Warn("channel connect failed",
			"error", err,
			"retry_count", s.retryCount,
		)
		s.closedLocked(CloseAbnormalClosure)
		s.mu.Unlock()
		return
	}

	s.transport = t
	s.state = StateOpen
	s.retryCount = 0
	if s.page.Visible() {
		s.startHeartbeatLocked()
	}
	s.mu.Unlock()

	s.logger.Info("channel open")
}

// handleClose processes a transport error or remote close.
func (s *Subscription) handleClose(gen uint64, code int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.stopped {
		return
	}

	s.logger.Warn("channel closed", "code", code, "error", err)
	s.closedLocked(code)
}

// closedLocked moves to closed and schedules a reconnect unless the close
// was a normal closure or the page is hidden. Caller holds s.mu.
func (s *Subscription) closedLocked(code int) {
	s.stopHeartbeatLocked()
	s.transport = nil
	s.gen++
	s.state = StateClosed

	if code == CloseNormalClosure {
		s.logger.Info("channel closed normally, not reconnecting")
		return
	}
	if !s.page.Visible() {
		s.logger.Debug("page hidden, reconnect deferred until visible")
		return
	}

	s.scheduleReconnectLocked()
}

func (s *Subscription) scheduleReconnectLocked() {
	if s.reconnectTimer != nil {
		return
	}
	s.reconnectSeq++
	seq := s.reconnectSeq
	s.reconnectTimer = s.clock.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.reconnect(seq)
	})
}

func (s *Subscription) stopReconnectLocked() {
	if s.reconnectTimer == nil {
		return
	}
	s.reconnectTimer.Stop()
	s.reconnectTimer = nil
	s.reconnectSeq++
}

// reconnect fires after the fixed reconnect delay.
func (s *Subscription) reconnect(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.reconnectSeq {
		return
	}
	s.reconnectTimer = nil

	if s.stopped || s.state != StateClosed {
		return
	}
	if !s.page.Visible() {
		s.logger.Debug("page hidden, reconnect deferred until visible")
		return
	}

	s.retryCount++
	s.logger.Info("attempting reconnection", "retry_count", s.retryCount)
	s.connectLocked()
}

func (s *Subscription) startHeartbeatLocked() {
	if s.heartbeatTimer != nil {
		return
	}
	s.heartbeatSeq++
	seq := s.heartbeatSeq
	s.heartbeatTimer = s.clock.AfterFunc(s.cfg.HeartbeatInterval, func() {
		s.heartbeat(seq)
	})
}

func (s *Subscription) stopHeartbeatLocked() {
	if s.heartbeatTimer == nil {
		return
	}
	s.heartbeatTimer.Stop()
	s.heartbeatTimer = nil
	s.heartbeatSeq++
}

// heartbeat sends a ping and re-arms itself while open and visible.
// Pong replies are not tracked; the transport's close is the only
// liveness signal.
func (s *Subscription) heartbeat(seq uint64) {
	s.mu.Lock()
	if seq != s.heartbeatSeq {
		s.mu.Unlock()
		return
	}
	s.heartbeatTimer = nil

	if s.stopped || s.state != StateOpen || s.transport == nil || !s.page.Visible() {
		s.mu.Unlock()
		return
	}

	t := s.transport
	s.lastHeartbeatAt = s.clock.Now()
	s.startHeartbeatLocked()
	s.mu.Unlock()

	if err := t.Send([]byte(PingFrame)); err != nil {
		s.logger.Debug("failed to send ping", "error", err)
	}
}

// handleVisibility reacts to page visibility changes.
func (s *Subscription) handleVisibility(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if !visible {
		s.stopHeartbeatLocked()
		s.stopReconnectLocked()
		return
	}

	switch s.state {
	case StateOpen:
		s.startHeartbeatLocked()
	case StateClosed:
		s.logger.Info("page visible, reconnecting now")
		s.connectLocked()
	}
}

// handleMessage processes one inbound text frame. Malformed frames are
// logged and dropped; they never affect connection state.
func (s *Subscription) handleMessage(gen uint64, data []byte, receivedAt time.Time) {
	if string(data) == PongFrame {
		return
	}

	var ev JobStatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("discarding malformed frame", "error", err, "size", len(data))
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}

	status := JobStatus{
		WorkspaceID: s.workspaceID,
		ReceivedAt:  receivedAt,
	}

	switch ev.Type {
	case EventJobComplete:
		s.lastError = ""
		status.Status = StatusComplete
	case EventJobError:
		s.lastError = ev.Error
		status.Status = StatusFailed
		status.Error = ev.Error
	default:
		s.mu.Unlock()
		s.logger.Debug("ignoring frame", "type", ev.Type)
		return
	}
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(status)
	}
}
