package presenters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/state"
	"github.com/mangasync/mangasync/pkg/stores"
)

func TestReduceManga_UpdateReplacesHeader(t *testing.T) {
	initial := MangaViewState{}
	require.Nil(t, initial.Header)

	e1 := stores.Manga{ID: 1, Key: "m1", Title: "First"}
	s1 := ReduceManga(initial, MangaUpdate{Manga: e1})
	require.NotNil(t, s1.Header)
	assert.Equal(t, e1, s1.Header.Manga)

	e1b := stores.Manga{ID: 1, Key: "m1", Title: "First (revised)", Author: "someone"}
	s2 := ReduceManga(s1, MangaUpdate{Manga: e1b})
	assert.Equal(t, e1b, s2.Header.Manga)

	// Earlier snapshots are untouched.
	assert.Nil(t, initial.Header)
	assert.Equal(t, "First", s1.Header.Manga.Title)
	assert.NotSame(t, s1.Header, s2.Header)
}

func TestReduceManga_ChaptersAndRevision(t *testing.T) {
	s := ReduceManga(MangaViewState{}, ChaptersUpdate{Chapters: []stores.Chapter{{Key: "c1"}}})
	s = ReduceManga(s, SourceChanged{Revision: 3})

	assert.Len(t, s.Chapters, 1)
	assert.Equal(t, 3, s.SourceRevision)
	assert.Nil(t, s.Header)
}

type mangaFixture struct {
	store  *stores.MemoryStore
	source *fakeSource
	reg    *engine.SourceRegistry
	manga  *stores.Manga
}

func newMangaFixture(t *testing.T) *mangaFixture {
	t.Helper()
	ctx := context.Background()

	store := stores.NewMemoryStore()
	source := newFakeSource(7)
	source.details["m1"] = stores.MangaInfo{Key: "m1", Title: "One", Author: "A. Author", Status: stores.StatusOngoing}
	source.chapters["m1"] = []stores.ChapterInfo{
		{Key: "c2", Name: "Chapter 2"},
		{Key: "c1", Name: "Chapter 1"},
	}
	reg, err := engine.NewSourceRegistry(source)
	require.NoError(t, err)

	manga, err := store.CreateManga(ctx, &stores.Manga{SourceID: 7, Key: "m1", Title: "One"})
	require.NoError(t, err)

	return &mangaFixture{store: store, source: source, reg: reg, manga: manga}
}

func TestMangaPresenter_InitializesAndSyncs(t *testing.T) {
	f := newMangaFixture(t)
	tel, rec := newTestTelemetry(t)

	p := NewMangaPresenter(f.manga.ID, f.store, f.reg, WithTelemetry(tel))
	require.NoError(t, p.Start(context.Background()))
	defer p.Dispose()

	s := waitState(t, p.Engine, func(s MangaViewState) bool {
		return s.Header != nil && s.Header.Manga.Initialized && len(s.Chapters) == 2
	})
	assert.Equal(t, "A. Author", s.Header.Manga.Author)
	assert.Equal(t, "c2", s.Chapters[0].Key)
	assert.Equal(t, "c1", s.Chapters[1].Key)
	assert.Equal(t, f.manga.ID, p.MangaID())

	assert.Eventually(t, func() bool {
		return len(rec.ofType("manga.initialized")) == 1 && len(rec.ofType("chapters.synced")) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.ofType("effect.failed"))
}

func TestMangaPresenter_MissingMangaIsSkipped(t *testing.T) {
	store := stores.NewMemoryStore()
	reg, err := engine.NewSourceRegistry(newFakeSource(7))
	require.NoError(t, err)

	// MemoryStore ids start at 1.
	p := NewMangaPresenter(1, store, reg)
	sub := p.Subscribe()
	defer sub.Close()
	require.NoError(t, p.Start(context.Background()))
	defer p.Dispose()

	first := <-sub.C()
	assert.Nil(t, first.Header)

	// The missing row and the empty chapter list may arrive; neither sets a header.
	time.Sleep(30 * time.Millisecond)
	s, _ := p.Latest()
	assert.Nil(t, s.Header)

	_, err = store.CreateManga(context.Background(), &stores.Manga{SourceID: 7, Key: "late", Title: "Late", Initialized: true})
	require.NoError(t, err)

	s = waitState(t, p.Engine, func(s MangaViewState) bool { return s.Header != nil })
	assert.Equal(t, "Late", s.Header.Manga.Title)
}

func TestMangaPresenter_SyncFailureKeepsStreamAlive(t *testing.T) {
	f := newMangaFixture(t)
	tel, rec := newTestTelemetry(t)
	f.source.setChaptersErr(errors.New("connection refused"))
	revisions := &fakeRevisions{ch: make(chan int)}

	p := NewMangaPresenter(f.manga.ID, f.store, f.reg, WithTelemetry(tel), WithRevisions(revisions))
	require.NoError(t, p.Start(context.Background()))
	defer p.Dispose()

	require.Eventually(t, func() bool {
		return len(rec.ofType("effect.failed")) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// The main stream keeps folding: initialization still lands.
	s := waitState(t, p.Engine, func(s MangaViewState) bool {
		return s.Header != nil && s.Header.Manga.Initialized
	})
	assert.Empty(t, s.Chapters)
	assert.NoError(t, p.Err())
	assert.Equal(t, state.PhaseActive, p.Phase())

	// A new catalogue revision retries the sync.
	f.source.setChaptersErr(nil)
	revisions.ch <- 1

	s = waitState(t, p.Engine, func(s MangaViewState) bool { return len(s.Chapters) == 2 })
	assert.Equal(t, 1, s.SourceRevision)
}

func TestMangaPresenter_StorageFailureIsFatal(t *testing.T) {
	f := newMangaFixture(t)
	f.store.InjectFault(func(op string) error {
		if op == "GetManga" {
			return errors.New("disk I/O error")
		}
		return nil
	})

	p := NewMangaPresenter(f.manga.ID, f.store, f.reg)
	sub := p.Subscribe()
	require.NoError(t, p.Start(context.Background()))

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("presenter did not fail")
	}

	for range sub.C() {
	}
	assert.True(t, engine.IsStorage(sub.Err()))
	assert.Equal(t, state.PhaseFailed, p.Phase())
}

func TestMangaPresenter_DisposeStopsEmissions(t *testing.T) {
	f := newMangaFixture(t)
	ctx := context.Background()

	p := NewMangaPresenter(f.manga.ID, f.store, f.reg)
	require.NoError(t, p.Start(ctx))
	waitState(t, p.Engine, func(s MangaViewState) bool {
		return s.Header != nil && s.Header.Manga.Initialized && len(s.Chapters) == 2
	})

	sub := p.Subscribe()
	p.Dispose()
	p.Dispose()

	for range sub.C() {
	}
	assert.ErrorIs(t, sub.Err(), state.ErrDisposed)
	before, seq := p.Latest()

	updated := before.Header.Manga
	updated.Title = "After dispose"
	require.NoError(t, f.store.UpdateManga(ctx, &updated))

	time.Sleep(30 * time.Millisecond)
	after, afterSeq := p.Latest()
	assert.Equal(t, seq, afterSeq)
	assert.NotEqual(t, "After dispose", after.Header.Manga.Title)
}

func TestMangaPresenter_RowUpdateResyncsAfterFailure(t *testing.T) {
	f := newMangaFixture(t)
	tel, rec := newTestTelemetry(t)
	f.source.setChaptersErr(errors.New("connection refused"))
	ctx := context.Background()

	p := NewMangaPresenter(f.manga.ID, f.store, f.reg, WithTelemetry(tel))
	require.NoError(t, p.Start(ctx))
	defer p.Dispose()

	s := waitState(t, p.Engine, func(s MangaViewState) bool {
		return s.Header != nil && s.Header.Manga.Initialized
	})
	require.Eventually(t, func() bool {
		return len(rec.ofType("effect.failed")) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Chapters)

	// No catalogue revision: the row update alone triggers the retry.
	f.source.setChaptersErr(nil)
	renamed := s.Header.Manga
	renamed.Title = "One (renamed)"
	require.NoError(t, f.store.UpdateManga(ctx, &renamed))

	s = waitState(t, p.Engine, func(s MangaViewState) bool {
		return s.Header.Manga.Title == "One (renamed)" && len(s.Chapters) == 2
	})
	assert.Equal(t, 0, s.SourceRevision)
}

func TestSyncKey(t *testing.T) {
	assert.False(t, syncKey(MangaViewState{}).IsPresent())

	m := stores.Manga{ID: 4, Key: "m4", Title: "Four"}
	base := MangaViewState{Header: &MangaHeader{Manga: m}}
	key, ok := syncKey(base).Get()
	require.True(t, ok)

	same := MangaViewState{Header: &MangaHeader{Manga: m}, Chapters: []stores.Chapter{{Key: "c1"}}}
	assert.Equal(t, key, syncKey(same).OrElse(""), "chapters do not change the key")

	changed := m
	changed.Initialized = true
	changed.LastInit = time.Unix(1700000000, 0)
	assert.NotEqual(t, key, syncKey(MangaViewState{Header: &MangaHeader{Manga: changed}}).OrElse(""))

	revised := base
	revised.SourceRevision = 2
	assert.NotEqual(t, key, syncKey(revised).OrElse(""))
}
