package stores

import (
	"context"
	"testing"
	"time"
)

func TestNotifier_OnlyMatchingManga(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := n.Watch(ctx, 1)
	b := n.Watch(ctx, 2)

	n.Notify(Change{Kind: ChangeManga, MangaID: 1})

	select {
	case c := <-a:
		if c.MangaID != 1 {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher 1 did not receive change")
	}

	select {
	case c := <-b:
		t.Errorf("watcher 2 received unrelated change %+v", c)
	default:
	}
}

func TestNotifier_DoesNotBlockOnSlowWatcher(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = n.Watch(ctx, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < watchBuffer*4; i++ {
			n.Notify(Change{Kind: ChangeManga, MangaID: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a watcher that never reads")
	}
}

func TestNotifier_CancelUnregisters(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	ch := n.Watch(ctx, 1)

	if n.Count() != 1 {
		t.Fatalf("expected 1 watcher, got %d", n.Count())
	}
	cancel()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if n.Count() != 0 {
		t.Errorf("expected 0 watchers, got %d", n.Count())
	}
}
