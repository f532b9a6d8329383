package util

import (
	"context"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Notifier
// --------------------------------------------------------------------------

// Notifier broadcasts "something changed" to any number of waiters.
// Every call to Notify closes the current channel and installs a fresh one,
// so a waiter that grabbed the channel before the change is always woken up.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier creates a new notifier
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Changed returns a channel that is closed on the next call to Notify
func (n *Notifier) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Notify wakes up all current waiters
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// WaitUntil blocks until cond returns true, the context is done or forever otherwise.
// The condition is re-evaluated on every notification and at least every fallback interval.
// onWait (may be nil) is called each time the caller is about to block.
func (n *Notifier) WaitUntil(ctx context.Context, fallback time.Duration, cond func() bool, onWait func()) error {
	timer := time.NewTimer(fallback)
	defer timer.Stop()

	for {
		if cond() {
			return nil
		}

		// grab the channel before re-checking, so no notification is lost in between
		changed := n.Changed()
		if cond() {
			return nil
		}

		if onWait != nil {
			onWait()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(fallback)

		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
