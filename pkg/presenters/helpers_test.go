package presenters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/state"
	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// fakeSource is an in-memory engine.Source whose chapter listing can fail.
type fakeSource struct {
	id int64

	mu          sync.Mutex
	details     map[string]stores.MangaInfo
	chapters    map[string][]stores.ChapterInfo
	chaptersErr error
}

func newFakeSource(id int64) *fakeSource {
	return &fakeSource{
		id:       id,
		details:  make(map[string]stores.MangaInfo),
		chapters: make(map[string][]stores.ChapterInfo),
	}
}

func (s *fakeSource) ID() int64    { return s.id }
func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) FetchMangaDetails(ctx context.Context, manga stores.MangaInfo) (stores.MangaInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.details[manga.Key]
	if !ok {
		return stores.MangaInfo{}, errors.New("unknown manga")
	}
	return info, nil
}

func (s *fakeSource) FetchChapterList(ctx context.Context, manga stores.MangaInfo) ([]stores.ChapterInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chaptersErr != nil {
		return nil, s.chaptersErr
	}
	return append([]stores.ChapterInfo(nil), s.chapters[manga.Key]...), nil
}

func (s *fakeSource) setChaptersErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chaptersErr = err
}

// fakeRevisions hands out a channel the test pushes revisions into.
type fakeRevisions struct {
	ch chan int
}

func (f *fakeRevisions) Watch(ctx context.Context) (<-chan int, error) {
	return f.ch, nil
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

func (r *eventRecorder) ofType(eventType string) []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
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

// waitState polls the engine until its latest snapshot satisfies cond.
func waitState[S, E any](t *testing.T, e *state.Engine[S, E], cond func(S) bool) S {
	t.Helper()
	var last S
	require.Eventually(t, func() bool {
		last, _ = e.Latest()
		return cond(last)
	}, 3*time.Second, 5*time.Millisecond)
	return last
}
