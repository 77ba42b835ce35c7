package state

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/telemetry"
)

// appendReducer folds string intents into a log of everything seen.
func appendReducer(state []string, intent string) []string {
	next := slices.Clone(state)
	return append(next, intent)
}

// chanSource forwards intents from ch until ctx is done or ch closes.
func chanSource(ch <-chan string) Source[string] {
	return func(ctx context.Context, emit Emitter[string]) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				emit(v)
			}
		}
	}
}

func waitSeq[S, E any](t *testing.T, e *Engine[S, E], seq uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, got := e.Latest()
		return got >= seq
	}, 2*time.Second, 5*time.Millisecond)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func waitClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *eventRecorder) record(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func newTestTelemetry(t *testing.T) (*telemetry.Telemetry, *eventRecorder) {
	t.Helper()

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	require.NoError(t, err)

	rec := &eventRecorder{}
	events.Subscribe(rec.record, nil)

	return &telemetry.Telemetry{
		Logger:  telemetry.NewNopLogger(),
		Tracer:  telemetry.NewNopTracer(),
		Metrics: metrics,
		Events:  events,
		Config:  telemetry.DefaultConfig(),
	}, rec
}

// metricValue sums every sample of a counter or gauge family whose labels
// include all of want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			labels := make(map[string]string)
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}
