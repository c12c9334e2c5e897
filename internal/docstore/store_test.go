// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

const waitFor = 2 * time.Second

func newTestStore() (*Store, *MemoryBackend, *LocalNotifier) {
	b := NewMemoryBackend()
	n := NewLocalNotifier()
	return New(b, n), b, n
}

// next waits for one event or fails the test.
func next(t *testing.T, sub *Subscription) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for subscription event")
		return Event{}, false
	}
}

// nextSnapshot skips coalesced intermediate snapshots until pred holds.
func nextSnapshot(t *testing.T, sub *Subscription, pred func(*Snapshot) bool) *Snapshot {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatal("subscription ended early")
			}
			if ev.Err != nil {
				t.Fatalf("unexpected error event: %v", ev.Err)
			}
			if pred(ev.Snapshot) {
				return ev.Snapshot
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	doc, err := s.Set(ctx, "posts", "p1", map[string]any{"name": "Hello"}, true)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if doc.ID != "p1" || doc.Data["name"] != "Hello" {
		t.Errorf("Set returned %+v", doc)
	}

	got, err := s.Get(ctx, "posts", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Data["name"] != "Hello" {
		t.Errorf("Get name = %v", got.Data["name"])
	}

	if err := s.Delete(ctx, "posts", "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "posts", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if _, err := s.Get(ctx, "posts", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get empty id err = %v", err)
	}
}

func TestStoreRejectsInvalidNames(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	if _, err := s.Set(ctx, "Bad Name", "x", nil, false); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Set err = %v, want ErrInvalidQuery", err)
	}
	if _, err := s.Set(ctx, "posts", "", nil, false); err == nil {
		t.Error("Set with empty id should fail")
	}
	q := Query{Collection: "posts", Where: []Filter{Eq("data->>'x'", "1")}}
	if _, err := s.Fetch(ctx, q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Fetch err = %v, want ErrInvalidQuery", err)
	}
	if _, err := s.Subscribe(ctx, q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Subscribe err = %v, want ErrInvalidQuery", err)
	}
}

func TestSnapshotVersion(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	s.Set(ctx, "categories", "c1", map[string]any{"name": "Go"}, false)
	a, _ := s.Fetch(ctx, Collection("categories"))
	b, _ := s.Fetch(ctx, Collection("categories"))
	if a.Version != b.Version {
		t.Errorf("identical reads have different versions: %d vs %d", a.Version, b.Version)
	}

	s.Set(ctx, "categories", "c1", map[string]any{"name": "Golang"}, false)
	c, _ := s.Fetch(ctx, Collection("categories"))
	if c.Version == a.Version {
		t.Error("version unchanged after write")
	}

	empty, _ := s.Fetch(ctx, Collection("authors"))
	if empty.Docs == nil || len(empty.Docs) != 0 {
		t.Errorf("empty snapshot docs = %#v", empty.Docs)
	}
}

func TestSubscribeDeliversInitialAndUpdates(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	s.Set(ctx, "posts", "p1", map[string]any{"name": "First"}, false)

	sub, err := s.Subscribe(ctx, Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	ev, ok := next(t, sub)
	if !ok || ev.Err != nil {
		t.Fatalf("initial event = %+v, ok=%v", ev, ok)
	}
	if len(ev.Snapshot.Docs) != 1 || ev.Snapshot.Docs[0].ID != "p1" {
		t.Fatalf("initial snapshot = %+v", ev.Snapshot.Docs)
	}

	s.Set(ctx, "posts", "p2", map[string]any{"name": "Second"}, false)
	snap := nextSnapshot(t, sub, func(s *Snapshot) bool { return len(s.Docs) == 2 })
	if snap.Docs[0].ID != "p1" || snap.Docs[1].ID != "p2" {
		t.Errorf("order = %s, %s", snap.Docs[0].ID, snap.Docs[1].ID)
	}

	s.Delete(ctx, "posts", "p1")
	nextSnapshot(t, sub, func(s *Snapshot) bool {
		return len(s.Docs) == 1 && s.Docs[0].ID == "p2"
	})
}

func TestSubscribeEmptyCollection(t *testing.T) {
	s, _, _ := newTestStore()

	sub, err := s.Subscribe(context.Background(), Collection("categories"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	ev, _ := next(t, sub)
	if ev.Err != nil || ev.Snapshot == nil || len(ev.Snapshot.Docs) != 0 {
		t.Errorf("event = %+v, want empty snapshot", ev)
	}
}

func TestSubscribeIgnoresOtherCollections(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	next(t, sub)

	s.Set(ctx, "authors", "a1", map[string]any{"name": "Ada"}, false)

	select {
	case ev := <-sub.Events():
		t.Errorf("unexpected event for unrelated write: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeErrorEndsSubscription(t *testing.T) {
	s, b, _ := newTestStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	next(t, sub)

	boom := errors.New("permission denied")
	b.mu.Lock()
	b.FailWith = boom
	b.mu.Unlock()

	// The write fails, so notify directly to force a refetch.
	s.notifier.Publish(ctx, "posts")

	ev, ok := next(t, sub)
	if !ok || !errors.Is(ev.Err, boom) {
		t.Fatalf("event = %+v ok=%v, want error", ev, ok)
	}
	if _, ok := next(t, sub); ok {
		t.Error("subscription still open after error event")
	}
}

func TestSubscribeInitialError(t *testing.T) {
	s, b, _ := newTestStore()
	b.FailWith = errors.New("unavailable")

	sub, err := s.Subscribe(context.Background(), Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	ev, ok := next(t, sub)
	if !ok || ev.Err == nil {
		t.Fatalf("event = %+v, want error", ev)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	s, _, n := newTestStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	next(t, sub)

	s.Set(ctx, "posts", "p1", map[string]any{"name": "x"}, false)
	sub.Close()
	sub.Close()

	// Nothing buffered survives Close, and the channel is closed.
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Errorf("event after Close: %+v", ev)
		}
	default:
		t.Error("events channel not closed after Close")
	}

	deadline := time.Now().Add(waitFor)
	for n.Listeners("posts") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener not released after Close")
		}
		time.Sleep(time.Millisecond)
	}

	// Writes after Close do not panic or deliver.
	s.Set(ctx, "posts", "p2", map[string]any{"name": "y"}, false)
}

func TestSubscribeContextCancel(t *testing.T) {
	s, _, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.Subscribe(ctx, Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	next(t, sub)
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("event after cancel")
		}
	case <-time.After(waitFor):
		t.Fatal("subscription not ended by context cancel")
	}
	sub.Close()
}

// closingNotifier hands out a change channel that closes on demand.
type closingNotifier struct {
	ch chan struct{}
}

func (c *closingNotifier) Publish(context.Context, string) error { return nil }

func (c *closingNotifier) Listen(context.Context, string) (<-chan struct{}, error) {
	return c.ch, nil
}

func TestSubscribeNotifierClosed(t *testing.T) {
	n := &closingNotifier{ch: make(chan struct{})}
	s := New(NewMemoryBackend(), n)

	sub, err := s.Subscribe(context.Background(), Collection("posts"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	next(t, sub)

	close(n.ch)
	ev, ok := next(t, sub)
	if !ok || !errors.Is(ev.Err, ErrNotifierClosed) {
		t.Errorf("event = %+v, want ErrNotifierClosed", ev)
	}
}

func TestSubscribeFilteredQuery(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	s.Set(ctx, "posts", "p1", map[string]any{"categoryId": "go"}, false)
	s.Set(ctx, "posts", "p2", map[string]any{"categoryId": "rust"}, false)

	sub, err := s.Subscribe(ctx, Query{Collection: "posts", Where: []Filter{Eq("categoryId", "go")}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	ev, _ := next(t, sub)
	if len(ev.Snapshot.Docs) != 1 || ev.Snapshot.Docs[0].ID != "p1" {
		t.Errorf("filtered snapshot = %+v", ev.Snapshot.Docs)
	}
}

func TestQueryKey(t *testing.T) {
	q := Query{Collection: "posts", Where: []Filter{Eq("categoryId", "go"), IsNull("authorId")}, Limit: 15}
	if got, want := q.Key(), "posts|categoryId=go|authorId=null|limit=15"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}
