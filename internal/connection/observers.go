package connection

import "sync"

// Observers fans a single subscription callback out to several listeners.
// Pass Observers.Notify as the subscription's StatusFunc.
type Observers struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []observer
}

type observer struct {
	id uint64
	fn StatusFunc
}

// NewObservers creates an empty observer list.
func NewObservers() *Observers {
	return &Observers{}
}

// Add registers fn and returns a function that removes it.
func (o *Observers) Add(fn StatusFunc) (remove func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.entries = append(o.entries, observer{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.entries {
			if e.id == id {
				o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered listeners.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// Notify delivers s to every listener in registration order.
func (o *Observers) Notify(s JobStatus) {
	o.mu.RLock()
	entries := make([]observer, len(o.entries))
	copy(entries, o.entries)
	o.mu.RUnlock()

	for _, e := range entries {
		e.fn(s)
	}
}
