// Package visibility models the page-global visibility signal that
// subscriptions use to suspend heartbeats and to reconnect when the user
// returns to a view.
//
// Each subscriber registers its own listener and removes exactly that
// listener on teardown; there is no shared handler mutated by several
// owners.
package visibility

import (
	"log/slog"
	"sync"
)

// Listener is invoked with the new visibility after every change.
type Listener func(visible bool)

// ListenerID identifies a registered listener.
type ListenerID uint64

// Page is a process-wide visibility source.
type Page struct {
	logger *slog.Logger

	mu        sync.Mutex
	visible   bool
	nextID    ListenerID
	listeners map[ListenerID]Listener
}

// NewPage creates a Page with the given initial visibility.
func NewPage(visible bool, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{
		logger:    logger,
		visible:   visible,
		listeners: make(map[ListenerID]Listener),
	}
}

// Visible reports the current visibility.
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// AddListener registers l and returns its id.
func (p *Page) AddListener(l Listener) ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.listeners[p.nextID] = l
	return p.nextID
}

// RemoveListener unregisters the listener with the given id. It reports
// whether a listener was removed.
func (p *Page) RemoveListener(id ListenerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[id]; !ok {
		return false
	}
	delete(p.listeners, id)
	return true
}

// ListenerCount returns the number of registered listeners.
func (p *Page) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// SetVisible updates the visibility and notifies every listener if it
// changed. Listeners run on the caller's goroutine, outside the lock.
func (p *Page) SetVisible(visible bool) {
	p.mu.Lock()
	if p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	snapshot := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		snapshot = append(snapshot, l)
	}
	p.mu.Unlock()

	p.logger.Debug("visibility changed",
		"visible", visible,
		"listeners", len(snapshot),
	)

	for _, l := range snapshot {
		l(visible)
	}
}
