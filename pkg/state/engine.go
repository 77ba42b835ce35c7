package state

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mangasync/mangasync/pkg/telemetry"
)

// Reducer folds one intent into the current state and returns the next
// state. It must not mutate its input.
type Reducer[S, E any] func(state S, intent E) S

// Emitter pushes an intent into the engine. It returns false once the engine
// has stopped accepting intents.
type Emitter[E any] func(intent E) bool

// Source produces intents until ctx is cancelled. Returning nil ends the
// source without affecting the engine; returning any other error while the
// engine is active fails it.
type Source[E any] func(ctx context.Context, emit Emitter[E]) error

type namedSource[E any] struct {
	name string
	run  Source[E]
}

// Phase is the lifecycle phase of an Engine.
type Phase int

const (
	PhaseConstructed Phase = iota
	PhaseActive
	PhaseDisposed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseConstructed:
		return "constructed"
	case PhaseActive:
		return "active"
	case PhaseDisposed:
		return "disposed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseDisposed || p == PhaseFailed
}

// Engine merges intents from several sources, reduces them serially into
// immutable snapshots and publishes every snapshot to its subscribers.
type Engine[S, E any] struct {
	id      string
	name    string
	reduce  Reducer[S, E]
	sources []namedSource[E]
	effects []Effect[S]

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
	tracer  *telemetry.Tracer

	queue *queue[E]
	done  chan struct{}

	mu        sync.Mutex
	phase     Phase
	latest    S
	seq       uint64
	subs      map[*Subscription[S]]struct{}
	runners   []*effectRunner[S]
	cancel    context.CancelFunc
	err       error
	startedAt time.Time
}

// New creates an engine in the Constructed phase holding initial.
func New[S, E any](initial S, reduce Reducer[S, E], opts ...Option[S, E]) *Engine[S, E] {
	e := &Engine[S, E]{
		id:     uuid.New().String(),
		name:   "state",
		reduce: reduce,
		latest: initial,
		queue:  newQueue[E](),
		done:   make(chan struct{}),
		subs:   make(map[*Subscription[S]]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = telemetry.NewNopLogger()
	}
	if e.tracer == nil {
		e.tracer = telemetry.NewNopTracer()
	}
	e.logger = e.logger.NewComponentLogger("state").
		WithEngineID(e.id).
		WithField("engine", e.name)

	return e
}

// ID returns the engine instance id.
func (e *Engine[S, E]) ID() string {
	return e.id
}

// Name returns the engine name.
func (e *Engine[S, E]) Name() string {
	return e.name
}

// Phase returns the current lifecycle phase.
func (e *Engine[S, E]) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Start launches sources, the reducer and effect workers. The engine is
// disposed when ctx is cancelled.
func (e *Engine[S, E]) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.phase {
	case PhaseActive:
		e.mu.Unlock()
		return ErrAlreadyStarted
	case PhaseDisposed, PhaseFailed:
		e.mu.Unlock()
		return ErrDisposed
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.phase = PhaseActive
	e.startedAt = time.Now()

	for _, eff := range e.effects {
		r := newEffectRunner(e, eff)
		e.runners = append(e.runners, r)
		go r.run(runCtx)
	}
	latest, seq := e.latest, e.seq
	runners := e.runners
	e.mu.Unlock()

	e.metrics.EngineStarted()
	_ = e.events.PublishEngineStarted(e.id, e.name)
	e.logger.Debugf("engine started with %d sources and %d effects", len(e.sources), len(e.effects))

	// Effects see the initial state too.
	for _, r := range runners {
		r.offer(latest, seq)
	}

	go e.reduceLoop(runCtx)

	group, groupCtx := errgroup.WithContext(runCtx)
	emit := Emitter[E](func(intent E) bool {
		if groupCtx.Err() != nil {
			return false
		}
		return e.queue.Enqueue(intent)
	})
	for _, src := range e.sources {
		group.Go(func() error {
			err := src.run(groupCtx, emit)
			if err == nil || runCtx.Err() != nil {
				return nil
			}
			serr := &SourceError{Source: src.name, Err: err}
			e.terminate(serr)
			return serr
		})
	}
	go func() {
		_ = group.Wait()
	}()

	go func() {
		<-runCtx.Done()
		e.terminate(ErrDisposed)
	}()

	return nil
}

func (e *Engine[S, E]) reduceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-e.queue.Wait():
			if !ok {
				return
			}
		}

		for ctx.Err() == nil {
			intent, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			if !e.apply(intent) {
				return
			}
		}
	}
}

// apply reduces one intent and publishes the result. It returns false when
// the engine is no longer active.
func (e *Engine[S, E]) apply(intent E) bool {
	e.mu.Lock()
	if e.phase != PhaseActive {
		e.mu.Unlock()
		return false
	}
	current, seq := e.latest, e.seq
	e.mu.Unlock()

	next, err := e.safeReduce(current, intent, seq+1)
	if err != nil {
		e.terminate(err)
		return false
	}

	e.mu.Lock()
	if e.phase != PhaseActive {
		e.mu.Unlock()
		return false
	}
	e.seq++
	e.latest = next
	seq = e.seq
	subs := make([]*Subscription[S], 0, len(e.subs))
	for sub := range e.subs {
		subs = append(subs, sub)
	}
	runners := e.runners
	e.mu.Unlock()

	e.metrics.RecordReduction(e.name)

	for _, sub := range subs {
		sub.offer(next, seq)
	}
	for _, r := range runners {
		r.offer(next, seq)
	}
	return true
}

func (e *Engine[S, E]) safeReduce(current S, intent E, seq uint64) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ReduceError{Seq: seq, Cause: r}
		}
	}()
	return e.reduce(current, intent), nil
}

// Subscribe returns a subscription that first receives the latest snapshot
// and then every later one. Subscribing to a terminated engine returns an
// already closed subscription.
func (e *Engine[S, E]) Subscribe() *Subscription[S] {
	sub := newSubscription[S]()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.IsTerminal() {
		sub.terminate(e.err)
		return sub
	}

	sub.detach = func() { e.unsubscribe(sub) }
	sub.offer(e.latest, e.seq)
	e.subs[sub] = struct{}{}
	e.metrics.AddSubscribers(1)
	return sub
}

func (e *Engine[S, E]) unsubscribe(sub *Subscription[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[sub]; ok {
		delete(e.subs, sub)
		e.metrics.AddSubscribers(-1)
	}
}

// States returns an iterator over snapshots. Each range statement opens its
// own subscription, so the sequence can be iterated more than once.
// Iteration stops when ctx is done or the engine terminates.
func (e *Engine[S, E]) States(ctx context.Context) iter.Seq[S] {
	return func(yield func(S) bool) {
		sub := e.Subscribe()
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sub.C():
				if !ok || !yield(s) {
					return
				}
			}
		}
	}
}

// Latest returns the current snapshot and its sequence number. The initial
// state has sequence 0.
func (e *Engine[S, E]) Latest() (S, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.seq
}

// Dispose stops the engine: it cancels sources and effects, drops queued
// intents and closes every subscription. It does not wait for in-flight
// work. Calling it more than once is a no-op.
func (e *Engine[S, E]) Dispose() {
	e.terminate(ErrDisposed)
}

// Done is closed once the engine reaches a terminal phase.
func (e *Engine[S, E]) Done() <-chan struct{} {
	return e.done
}

// Err returns nil while the engine runs, ErrDisposed after Dispose and the
// fatal error after a failure.
func (e *Engine[S, E]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine[S, E]) terminate(cause error) {
	e.mu.Lock()
	if e.phase.IsTerminal() {
		e.mu.Unlock()
		return
	}
	wasActive := e.phase == PhaseActive
	if errors.Is(cause, ErrDisposed) {
		e.phase = PhaseDisposed
	} else {
		e.phase = PhaseFailed
	}
	e.err = cause
	subs := e.subs
	e.subs = make(map[*Subscription[S]]struct{})
	cancel := e.cancel
	startedAt := e.startedAt
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.queue.Close()
	for sub := range subs {
		sub.terminate(cause)
	}
	e.metrics.AddSubscribers(-len(subs))
	close(e.done)

	if !wasActive {
		return
	}
	e.metrics.EngineStopped()
	if errors.Is(cause, ErrDisposed) {
		_ = e.events.PublishEngineStopped(e.id, e.name, time.Since(startedAt))
		e.logger.Debug("engine disposed")
		return
	}
	e.metrics.RecordError("engine")
	_ = e.events.PublishEngineFailed(e.id, e.name, cause.Error())
	e.logger.WithError(cause).Error("engine failed")
}
