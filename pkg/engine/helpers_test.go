package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// fakeSource is an in-memory Source with switchable failures.
type fakeSource struct {
	id   int64
	name string

	mu           sync.Mutex
	details      map[string]stores.MangaInfo
	chapters     map[string][]stores.ChapterInfo
	detailsErr   error
	chaptersErr  error
	detailCalls  int
	chapterCalls int
}

func newFakeSource(id int64) *fakeSource {
	return &fakeSource{
		id:       id,
		name:     "fake",
		details:  make(map[string]stores.MangaInfo),
		chapters: make(map[string][]stores.ChapterInfo),
	}
}

func (s *fakeSource) ID() int64    { return s.id }
func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) FetchMangaDetails(ctx context.Context, manga stores.MangaInfo) (stores.MangaInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	if s.detailsErr != nil {
		return stores.MangaInfo{}, s.detailsErr
	}
	info, ok := s.details[manga.Key]
	if !ok {
		return stores.MangaInfo{}, errors.New("unknown manga")
	}
	return info, nil
}

func (s *fakeSource) FetchChapterList(ctx context.Context, manga stores.MangaInfo) ([]stores.ChapterInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapterCalls++
	if s.chaptersErr != nil {
		return nil, s.chaptersErr
	}
	return append([]stores.ChapterInfo(nil), s.chapters[manga.Key]...), nil
}

// eventRecorder captures published telemetry events.
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

// newTestTelemetry returns telemetry with live metrics and synchronous events.
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

// setupSQLiteStore creates a migrated SQLite store in a temp directory.
func setupSQLiteStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "engine.db"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}
