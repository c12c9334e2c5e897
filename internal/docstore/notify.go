// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"sync"
)

// LocalNotifier fans out change signals to listeners in this process.
type LocalNotifier struct {
	mu        sync.RWMutex
	listeners map[string]map[chan struct{}]struct{}
}

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every listener of the collection. Never blocks: a listener
// that already has a pending signal keeps just the one.
func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.listeners[collection] {
		signal(ch)
	}
	return nil
}

// Broadcast signals every listener of every collection.
func (n *LocalNotifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, set := range n.listeners {
		for ch := range set {
			signal(ch)
		}
	}
}

// Listen registers a listener until ctx ends.
func (n *LocalNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	set, ok := n.listeners[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.listeners[collection] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners[collection], ch)
		if len(n.listeners[collection]) == 0 {
			delete(n.listeners, collection)
		}
		n.mu.Unlock()
		// Publish holds the read lock while sending, so closing after
		// removal under the write lock cannot race a send.
		close(ch)
	}()

	return ch, nil
}

// Listeners returns how many listeners are registered for a collection.
func (n *LocalNotifier) Listeners(collection string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[collection])
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
