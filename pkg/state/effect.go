package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/mangasync/mangasync/pkg/optional"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// Policy decides when an effect runs for a keyed snapshot.
type Policy int

const (
	// OnChange runs whenever the key differs from the key of the last run.
	OnChange Policy = iota
	// Once runs at most once per distinct key for the engine's lifetime.
	Once
)

func (p Policy) String() string {
	switch p {
	case OnChange:
		return "on_change"
	case Once:
		return "once"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Effect is a best-effort task triggered by published snapshots. Its
// failures are logged, counted and published as events; they never reach
// subscribers and never stop the engine.
type Effect[S any] struct {
	Name string

	// Key selects the value the policy compares. Snapshots mapped to None
	// are skipped. A nil Key treats every snapshot as the same key.
	Key func(S) optional.Value[string]

	Policy Policy

	Run func(ctx context.Context, state S) error
}

func (eff Effect[S]) key(state S) (string, bool) {
	if eff.Key == nil {
		return "", true
	}
	return eff.Key(state).Get()
}

// effectRunner owns one effect's mailbox and worker goroutine. Runs of one
// effect are serial; different effects run concurrently.
type effectRunner[S any] struct {
	effect   Effect[S]
	engineID string
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
	tracer   *telemetry.Tracer

	mu      sync.Mutex
	lastSeq uint64
	offered bool
	mailbox chan S

	seen    map[string]struct{}
	lastKey string
	hasLast bool
}

func newEffectRunner[S, E any](e *Engine[S, E], eff Effect[S]) *effectRunner[S] {
	return &effectRunner[S]{
		effect:   eff,
		engineID: e.id,
		logger:   e.logger.WithField("effect", eff.Name),
		metrics:  e.metrics,
		events:   e.events,
		tracer:   e.tracer,
		mailbox:  make(chan S, 1),
		seen:     make(map[string]struct{}),
	}
}

// offer never blocks the reducer: a pending snapshot is replaced.
func (r *effectRunner[S]) offer(state S, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.offered && seq <= r.lastSeq {
		return
	}
	r.offered = true
	r.lastSeq = seq

	select {
	case <-r.mailbox:
	default:
	}
	r.mailbox <- state
}

func (r *effectRunner[S]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-r.mailbox:
			if ctx.Err() != nil {
				return
			}
			if r.admit(state) {
				r.execute(ctx, state)
			}
		}
	}
}

// admit applies the policy and records the key as handled.
func (r *effectRunner[S]) admit(state S) bool {
	key, ok := r.effect.key(state)
	if !ok {
		return false
	}

	switch r.effect.Policy {
	case Once:
		if _, done := r.seen[key]; done {
			return false
		}
		r.seen[key] = struct{}{}
	default:
		if r.hasLast && r.lastKey == key {
			return false
		}
		r.lastKey = key
		r.hasLast = true
	}
	return true
}

func (r *effectRunner[S]) execute(ctx context.Context, state S) {
	spanCtx, span := r.tracer.StartEffectSpan(ctx, r.engineID, r.effect.Name)
	defer span.End()

	timer := telemetry.NewTimer()
	err := r.safeRun(spanCtx, state)

	// Results after disposal are dropped.
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		telemetry.RecordError(span, err)
		r.metrics.RecordEffectRun(r.effect.Name, "error", timer.Duration())
		_ = r.events.PublishEffectFailed(r.engineID, r.effect.Name, err.Error())
		r.logger.WithError(err).Warn("effect failed")
		return
	}

	telemetry.RecordSuccess(span)
	r.metrics.RecordEffectRun(r.effect.Name, "ok", timer.Duration())
}

func (r *effectRunner[S]) safeRun(ctx context.Context, state S) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("effect %s panicked: %v", r.effect.Name, rec)
		}
	}()
	return r.effect.Run(ctx, state)
}
