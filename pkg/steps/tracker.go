package steps

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Update is a single observed step of an operation.
type Update struct {
	OperationID string
	Step        InstallStep
	Err         error
	At          time.Time
}

// Tracker holds the progress of one operation. It is safe for concurrent use,
// but only the component driving the operation should call Advance or Fail.
type Tracker struct {
	id string

	mu        sync.Mutex
	step      InstallStep
	err       error
	updatedAt time.Time
	watchers  map[chan Update]struct{}
}

// NewTracker creates a tracker in StepPending. An empty id is replaced by a
// random UUID.
func NewTracker(id string) *Tracker {
	if id == "" {
		id = uuid.New().String()
	}
	return &Tracker{
		id:        id,
		step:      StepPending,
		updatedAt: time.Now(),
		watchers:  make(map[chan Update]struct{}),
	}
}

// ID returns the operation identifier.
func (t *Tracker) ID() string {
	return t.id
}

// Step returns the current step.
func (t *Tracker) Step() InstallStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step
}

// Err returns the failure cause once the tracker reached StepError.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// IsCompleted reports whether the tracker reached a terminal step.
func (t *Tracker) IsCompleted() bool {
	return t.Step().IsCompleted()
}

// Advance moves the tracker to next. Only single forward steps and moves to
// StepError are accepted.
func (t *Tracker) Advance(next InstallStep) error {
	return t.transition(next, nil)
}

// Fail moves the tracker to StepError, recording cause.
func (t *Tracker) Fail(cause error) error {
	return t.transition(StepError, cause)
}

func (t *Tracker) transition(next InstallStep, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.step.IsCompleted() {
		return &TransitionError{OperationID: t.id, From: t.step, To: next, Err: ErrTerminal}
	}
	if err := next.Validate(); err != nil {
		return &TransitionError{OperationID: t.id, From: t.step, To: next, Err: err}
	}
	if !t.step.CanTransition(next) {
		return &TransitionError{OperationID: t.id, From: t.step, To: next}
	}

	t.step = next
	t.err = cause
	t.updatedAt = time.Now()

	u := t.snapshotLocked()
	for ch := range t.watchers {
		// Each watcher has room for every remaining step, so this never blocks.
		ch <- u
		if next.IsCompleted() {
			close(ch)
			delete(t.watchers, ch)
		}
	}
	return nil
}

func (t *Tracker) snapshotLocked() Update {
	return Update{OperationID: t.id, Step: t.step, Err: t.err, At: t.updatedAt}
}

// Updates returns a channel that first receives the current step and then
// every later one. It is closed after the terminal step or when ctx is done.
func (t *Tracker) Updates(ctx context.Context) <-chan Update {
	// Pending, Downloading, Installing, terminal: at most four updates ever.
	ch := make(chan Update, 4)

	t.mu.Lock()
	ch <- t.snapshotLocked()
	if t.step.IsCompleted() {
		t.mu.Unlock()
		close(ch)
		return ch
	}
	t.watchers[ch] = struct{}{}
	t.mu.Unlock()

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.unwatch(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (t *Tracker) unwatch(ch chan Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.watchers[ch]; ok {
		delete(t.watchers, ch)
		close(ch)
	}
}
