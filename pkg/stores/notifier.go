package stores

import (
	"context"
	"sync"
)

// watchBuffer bounds the notifications queued per watcher. A change is a hint
// to re-read, so dropping one while others are still queued loses nothing.
const watchBuffer = 16

// Notifier fans out store changes to in-process watchers keyed by manga id.
type Notifier struct {
	mu       sync.Mutex
	watchers map[int64]map[chan Change]struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{watchers: make(map[int64]map[chan Change]struct{})}
}

// Watch registers a watcher for mangaID. The returned channel is closed when
// ctx is done.
func (n *Notifier) Watch(ctx context.Context, mangaID int64) <-chan Change {
	ch := make(chan Change, watchBuffer)

	n.mu.Lock()
	set, ok := n.watchers[mangaID]
	if !ok {
		set = make(map[chan Change]struct{})
		n.watchers[mangaID] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(set, ch)
		if len(set) == 0 {
			delete(n.watchers, mangaID)
		}
		close(ch)
	}()

	return ch
}

// Notify delivers c to every watcher of c.MangaID without blocking.
func (n *Notifier) Notify(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.watchers[c.MangaID] {
		select {
		case ch <- c:
		default:
		}
	}
}

// Count returns the number of registered watchers.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, set := range n.watchers {
		total += len(set)
	}
	return total
}
