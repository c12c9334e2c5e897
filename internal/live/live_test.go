// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"devblog/internal/docstore"
	"devblog/internal/models"
)

func snapshot(docs ...docstore.Document) *docstore.Snapshot {
	// Fetch through a throwaway store so Version is computed the real way.
	b := docstore.NewMemoryBackend()
	for _, d := range docs {
		b.Import(context.Background(), "posts", []docstore.Document{d})
	}
	s := docstore.New(b, docstore.NewLocalNotifier())
	snap, _ := s.Fetch(context.Background(), docstore.Collection("posts"))
	return snap
}

func doc(id, name string) docstore.Document {
	return docstore.Document{ID: id, Data: map[string]any{"name": name}}
}

func TestApplyFullReplace(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)

	if st := c.State(); !st.Loading || st.Data != nil {
		t.Fatalf("initial state = %+v, want loading", st)
	}

	if !c.Apply(docstore.Event{Snapshot: snapshot(doc("p1", "One"), doc("p2", "Two"))}) {
		t.Fatal("first snapshot not applied")
	}
	st := c.State()
	if st.Loading || st.Err != nil || len(st.Data) != 2 {
		t.Fatalf("state = %+v", st)
	}

	c.Apply(docstore.Event{Snapshot: snapshot(doc("p3", "Three"))})
	st = c.State()
	if len(st.Data) != 1 || st.Data[0].ID != "p3" {
		t.Errorf("data = %+v, want only p3", st.Data)
	}
}

func TestApplyReplayIsNoop(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)
	snap := snapshot(doc("p1", "One"))

	c.Apply(docstore.Event{Snapshot: snap})
	<-c.Changes()
	before := c.State()

	if c.Apply(docstore.Event{Snapshot: snap}) {
		t.Error("replayed snapshot reported a change")
	}
	select {
	case <-c.Changes():
		t.Error("replayed snapshot signalled a change")
	default:
	}
	after := c.State()
	if after.Version != before.Version || len(after.Data) != 1 || after.Loading {
		t.Errorf("state changed on replay: %+v -> %+v", before, after)
	}
}

func TestStatusSeqCountsChanges(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)
	snap := snapshot(doc("p1", "One"))

	c.Apply(docstore.Event{Snapshot: snap})
	first := c.Status()
	c.Apply(docstore.Event{Snapshot: snap})
	if got := c.Status(); got.Seq != first.Seq {
		t.Errorf("replay moved Seq %d -> %d", first.Seq, got.Seq)
	}

	// Error then the same snapshot again: the version matches but the
	// state went through a change in between.
	c.Apply(docstore.Event{Err: errors.New("offline")})
	c.Apply(docstore.Event{Snapshot: snap})
	got := c.Status()
	if got.Version != first.Version {
		t.Fatalf("Version = %d, want %d", got.Version, first.Version)
	}
	if got.Seq != first.Seq+2 {
		t.Errorf("Seq = %d, want %d", got.Seq, first.Seq+2)
	}
}

func TestApplyEmptySnapshotEndsLoading(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)
	c.Apply(docstore.Event{Snapshot: snapshot()})

	st := c.State()
	if st.Loading {
		t.Error("still loading after empty snapshot")
	}
	if len(st.Data) != 0 {
		t.Errorf("data = %+v", st.Data)
	}
}

func TestApplyErrorClearsData(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)
	c.Apply(docstore.Event{Snapshot: snapshot(doc("p1", "One"))})

	boom := errors.New("permission denied")
	c.Apply(docstore.Event{Err: boom})

	st := c.State()
	if !errors.Is(st.Err, boom) {
		t.Errorf("Err = %v, want %v", st.Err, boom)
	}
	if st.Data != nil || st.Loading {
		t.Errorf("state after error = %+v, want no data and not loading", st)
	}
}

func TestApplyAfterCloseDiscarded(t *testing.T) {
	c := newCollection[models.Post](docstore.Collection("posts"), nil)
	c.Apply(docstore.Event{Snapshot: snapshot(doc("p1", "One"))})
	c.Close()
	c.Close()

	if c.Apply(docstore.Event{Snapshot: snapshot(doc("p2", "Two"))}) {
		t.Error("late snapshot applied after Close")
	}
	if st := c.State(); len(st.Data) != 1 || st.Data[0].ID != "p1" {
		t.Errorf("state mutated after Close: %+v", st)
	}
}

func TestWatchFollowsStore(t *testing.T) {
	s := docstore.New(docstore.NewMemoryBackend(), docstore.NewLocalNotifier())
	ctx := context.Background()
	s.Set(ctx, "categories", "c1", map[string]any{"name": "AI"}, false)

	c, err := Watch[models.Category](ctx, s, docstore.Collection("categories"), nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer c.Close()

	waitState(t, c, func(st State[models.Category]) bool { return !st.Loading && len(st.Data) == 1 })

	s.Set(ctx, "categories", "c2", map[string]any{"name": "Go"}, false)
	st := waitState(t, c, func(st State[models.Category]) bool { return len(st.Data) == 2 })
	if st.Data[0].Name != "AI" || st.Data[1].Name != "Go" {
		t.Errorf("data = %+v", st.Data)
	}
}

func TestWatchInvalidQuery(t *testing.T) {
	s := docstore.New(docstore.NewMemoryBackend(), docstore.NewLocalNotifier())
	if _, err := Watch[models.Post](context.Background(), s, docstore.Collection("Bad"), nil); err == nil {
		t.Error("expected error for invalid collection")
	}
}

func TestCloseClosesChanges(t *testing.T) {
	s := docstore.New(docstore.NewMemoryBackend(), docstore.NewLocalNotifier())
	c, err := Watch[models.Post](context.Background(), s, docstore.Collection("posts"), nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	c.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.Changes():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Changes not closed after Close")
		}
	}
}

func waitState[T any](t *testing.T, c *Collection[T], pred func(State[T]) bool) State[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if st := c.State(); pred(st) {
			return st
		}
		select {
		case <-c.Changes():
		case <-deadline:
			t.Fatalf("timed out; last state %+v", c.State())
		}
	}
}
