package state

import "sync"

// Subscription is one observer's view of an engine's snapshots.
//
// Its mailbox holds a single snapshot: when the observer falls behind, older
// undelivered snapshots are replaced by newer ones. Snapshots are never
// delivered out of order.
type Subscription[S any] struct {
	ch chan S

	mu        sync.Mutex
	delivered bool
	lastSeq   uint64
	closed    bool
	err       error
	detach    func()
}

func newSubscription[S any]() *Subscription[S] {
	return &Subscription[S]{ch: make(chan S, 1)}
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription[S]) C() <-chan S {
	return s.ch
}

// Err returns why the subscription ended: ErrDisposed, ErrClosed or the
// engine's fatal error. It returns nil while the subscription is open.
func (s *Subscription[S]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription[S]) Close() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	s.terminate(ErrClosed)
}

// offer replaces any pending snapshot with state unless a snapshot with the
// same or a newer sequence number was already offered.
func (s *Subscription[S]) offer(state S, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (s.delivered && seq <= s.lastSeq) {
		return
	}
	s.delivered = true
	s.lastSeq = seq

	select {
	case <-s.ch:
	default:
	}
	s.ch <- state
}

func (s *Subscription[S]) terminate(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = cause
	close(s.ch)
}
