package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

func TestGetOrAdd_CreatesOnMiss(t *testing.T) {
	store := stores.NewMemoryStore()
	tel, rec := newTestTelemetry(t)
	g := NewGetOrAddMangaFromSource(store, WithTelemetry(tel))

	m, err := g.Interact(context.Background(), stores.MangaInfo{Key: "m1", Title: "One"}, 7)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, int64(7), m.SourceID)
	assert.Equal(t, "One", m.Title)

	assert.Eventually(t, func() bool {
		return len(rec.ofType(telemetry.EventTypeMangaCreated)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrAdd_ReturnsExistingUnchanged(t *testing.T) {
	store := stores.NewMemoryStore()
	g := NewGetOrAddMangaFromSource(store)
	ctx := context.Background()

	first, err := g.Interact(ctx, stores.MangaInfo{Key: "m1", Title: "Original"}, 7)
	require.NoError(t, err)

	second, err := g.Interact(ctx, stores.MangaInfo{Key: "m1", Title: "Changed upstream"}, 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Original", second.Title, "get-or-create must not overwrite")
}

func TestGetOrAdd_ConcurrentSameKey(t *testing.T) {
	backends := map[string]func(t *testing.T) MangaRepository{
		"memory": func(*testing.T) MangaRepository { return stores.NewMemoryStore() },
		"sqlite": func(t *testing.T) MangaRepository { return setupSQLiteStore(t) },
	}

	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			g := NewGetOrAddMangaFromSource(newRepo(t))
			info := stores.MangaInfo{Key: "m1", Title: "One"}

			const callers = 16
			ids := make([]int64, callers)
			errs := make([]error, callers)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					m, err := g.Interact(context.Background(), info, 7)
					errs[i] = err
					if err == nil {
						ids[i] = m.ID
					}
				}(i)
			}
			close(start)
			wg.Wait()

			for i := 0; i < callers; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i], "caller %d got a different identity", i)
			}
		})
	}
}

// racingRepo simulates losing a create race: the first lookup misses, the
// create conflicts, and later lookups see the winner.
type racingRepo struct {
	MangaRepository
	winner    *stores.Manga
	lookups   int
	retryErr  error
	createErr error
}

func (r *racingRepo) FindMangaByKey(ctx context.Context, key string, sourceID int64) (*stores.Manga, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, stores.ErrNotFound
	}
	if r.retryErr != nil {
		return nil, r.retryErr
	}
	return r.winner, nil
}

func (r *racingRepo) CreateManga(ctx context.Context, manga *stores.Manga) (*stores.Manga, error) {
	return nil, r.createErr
}

func TestGetOrAdd_RetriesLookupOnceAfterConflict(t *testing.T) {
	repo := &racingRepo{
		winner:    &stores.Manga{ID: 42, SourceID: 7, Key: "m1"},
		createErr: stores.ErrConflict,
	}
	tel, _ := newTestTelemetry(t)
	g := NewGetOrAddMangaFromSource(repo, WithTelemetry(tel))

	m, err := g.Interact(context.Background(), stores.MangaInfo{Key: "m1"}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.ID)
	assert.Equal(t, 2, repo.lookups)
}

func TestGetOrAdd_ConflictSurfacedWhenRetryMisses(t *testing.T) {
	repo := &racingRepo{createErr: stores.ErrConflict, retryErr: stores.ErrNotFound}
	g := NewGetOrAddMangaFromSource(repo)

	_, err := g.Interact(context.Background(), stores.MangaInfo{Key: "m1"}, 7)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 2, repo.lookups, "lookup must be retried exactly once")
}

func TestGetOrAdd_StorageFailures(t *testing.T) {
	boom := errors.New("database is locked")

	t.Run("lookup", func(t *testing.T) {
		store := stores.NewMemoryStore()
		store.InjectFault(func(op string) error {
			if op == "FindMangaByKey" {
				return boom
			}
			return nil
		})
		_, err := NewGetOrAddMangaFromSource(store).Interact(context.Background(), stores.MangaInfo{Key: "m1"}, 7)
		assert.True(t, IsStorage(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("create", func(t *testing.T) {
		repo := &racingRepo{createErr: boom}
		_, err := NewGetOrAddMangaFromSource(repo).Interact(context.Background(), stores.MangaInfo{Key: "m1"}, 7)
		assert.True(t, IsStorage(err))
		assert.Equal(t, 1, repo.lookups)
	})

	t.Run("retry", func(t *testing.T) {
		repo := &racingRepo{createErr: stores.ErrConflict, retryErr: boom}
		_, err := NewGetOrAddMangaFromSource(repo).Interact(context.Background(), stores.MangaInfo{Key: "m1"}, 7)
		assert.True(t, IsStorage(err))
		assert.ErrorIs(t, err, boom)
	})
}

func TestGetOrAdd_RecordsOutcomeMetrics(t *testing.T) {
	store := stores.NewMemoryStore()
	tel, _ := newTestTelemetry(t)
	g := NewGetOrAddMangaFromSource(store, WithTelemetry(tel))
	ctx := context.Background()

	_, err := g.Interact(ctx, stores.MangaInfo{Key: "m1"}, 7)
	require.NoError(t, err)
	_, err = g.Interact(ctx, stores.MangaInfo{Key: "m1"}, 7)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, tel.Metrics.Registry(), "test_upserts_total", "created"))
	assert.Equal(t, 1.0, counterValue(t, tel.Metrics.Registry(), "test_upserts_total", "found"))
}

// counterValue reads a single-label counter from a registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
