// Package eventbus implements the synchronous in-process listener registry
// used for local events that never touch a transport.
package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// Listener receives a locally emitted event together with its data value.
type Listener func(event string, data any)

type entry struct {
	id uint64
	// ptr identifies the callback for Off. Closures get distinct pointers,
	// a named function registered twice shares one.
	ptr uintptr
	fn  Listener
}

// Bus dispatches local events to listeners synchronously, in registration
// order. A panicking listener is recovered and logged so the remaining
// listeners still run.
type Bus struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[string][]entry
	logger    loggingpkg.ServiceLogger
}

// New returns an empty Bus.
func New(logger loggingpkg.ServiceLogger) *Bus {
	if logger == nil {
		panic("sockflow: event bus logger cannot be nil")
	}
	return &Bus{
		listeners: make(map[string][]entry),
		logger:    logger,
	}
}

// On appends fn to the listener list for event. The same function may be
// registered more than once; it will then be invoked once per registration.
// A nil fn is ignored and logged.
func (b *Bus) On(event string, fn Listener) {
	if fn == nil {
		b.logger.Error("listener registration skipped", errNilListener, loggingpkg.LogFields{"event": event})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.listeners[event] = append(b.listeners[event], entry{
		id:  b.seq,
		ptr: reflect.ValueOf(fn).Pointer(),
		fn:  fn,
	})
}

// Off removes the first listener registered for event whose function pointer
// matches fn. Removing an unknown listener is a no-op.
func (b *Bus) Off(event string, fn Listener) {
	if fn == nil {
		return
	}
	ptr := reflect.ValueOf(fn).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[event]
	for i, e := range entries {
		if e.ptr == ptr {
			b.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			if len(b.listeners[event]) == 0 {
				delete(b.listeners, event)
			}
			return
		}
	}
}

// Emit invokes every listener registered for event, synchronously and in
// registration order. Listeners removed by an earlier listener of the same
// emission are skipped.
func (b *Bus) Emit(event string, data any) {
	b.mu.RLock()
	snapshot := make([]entry, len(b.listeners[event]))
	copy(snapshot, b.listeners[event])
	b.mu.RUnlock()

	for _, e := range snapshot {
		if !b.alive(event, e.id) {
			continue
		}
		b.safeInvoke(e, event, data)
	}
}

// ListenerCount reports how many listeners are currently registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

func (b *Bus) alive(event string, id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.listeners[event] {
		if e.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) safeInvoke(e entry, event string, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
				"event": event,
			})
		}
	}()
	e.fn(event, data)
}

var errNilListener = fmt.Errorf("sockflow: listener function is required")
