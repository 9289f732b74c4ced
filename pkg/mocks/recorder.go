package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/events"
)

// Recorder is an eventbus.Emitter that keeps every notification it receives.
type Recorder struct {
	mu            sync.Mutex
	notifications []events.Notification
}

func (r *Recorder) Emit(_ context.Context, notification events.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications = append(r.notifications, notification)
}

// All returns the recorded notifications in emission order.
func (r *Recorder) All() []events.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Notification(nil), r.notifications...)
}

// Types returns the recorded notification kinds in emission order.
func (r *Recorder) Types() []events.EventType {
	all := r.All()
	out := make([]events.EventType, len(all))

	for i, n := range all {
		out[i] = n.GetType()
	}

	return out
}

// OfType returns the recorded notifications of one kind.
func (r *Recorder) OfType(kind events.EventType) []events.Notification {
	var out []events.Notification

	for _, n := range r.All() {
		if n.GetType() == kind {
			out = append(out, n)
		}
	}

	return out
}

// WaitFor polls until at least count notifications of kind were recorded or the timeout expires.
func (r *Recorder) WaitFor(kind events.EventType, count int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if len(r.OfType(kind)) >= count {
			return true
		}

		time.Sleep(5 * time.Millisecond)
	}

	return len(r.OfType(kind)) >= count
}
