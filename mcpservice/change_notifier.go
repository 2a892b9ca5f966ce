package mcpservice

import (
	"context"
	"sync"
)

// ChangeSubscriber hands out change signals until ctx is cancelled.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context) <-chan struct{}
}

// ChangeNotifier fans a change signal out to subscribers. The zero value is
// ready to use.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

// Notify signals every subscriber without blocking. Signals coalesce: a
// subscriber with one pending gets no second.
func (n *ChangeNotifier) Notify(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers a channel with capacity one. It is closed when ctx ends
// or the notifier is closed.
func (n *ChangeNotifier) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	if n.subs == nil {
		n.subs = map[chan struct{}]struct{}{}
	}
	n.subs[ch] = struct{}{}
	context.AfterFunc(ctx, func() { n.drop(ch) })
	return ch
}

func (n *ChangeNotifier) drop(ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[ch]; ok {
		delete(n.subs, ch)
		close(ch)
	}
}

// Close ends every subscription. Later subscriptions start closed.
func (n *ChangeNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}

// Len reports the number of live subscriptions.
func (n *ChangeNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
