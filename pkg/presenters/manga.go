package presenters

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/optional"
	"github.com/mangasync/mangasync/pkg/state"
	"github.com/mangasync/mangasync/pkg/stores"
)

// MangaHeader is the top of the manga screen.
type MangaHeader struct {
	Manga stores.Manga `json:"manga"`
}

// MangaViewState is an immutable snapshot of one manga and its chapters.
type MangaViewState struct {
	Header         *MangaHeader     `json:"header"`
	Chapters       []stores.Chapter `json:"chapters"`
	SourceRevision int              `json:"source_revision"`
}

// MangaChange is an intent folded into a MangaViewState.
type MangaChange interface {
	isMangaChange()
}

// MangaUpdate carries a new version of the manga row.
type MangaUpdate struct {
	Manga stores.Manga
}

// ChaptersUpdate carries the stored chapter list in source order.
type ChaptersUpdate struct {
	Chapters []stores.Chapter
}

// SourceChanged reports a new catalogue revision of the manga's source.
type SourceChanged struct {
	Revision int
}

func (MangaUpdate) isMangaChange()    {}
func (ChaptersUpdate) isMangaChange() {}
func (SourceChanged) isMangaChange()  {}

// ReduceManga folds change into s. A MangaUpdate replaces the header as a
// whole.
func ReduceManga(s MangaViewState, change MangaChange) MangaViewState {
	switch c := change.(type) {
	case MangaUpdate:
		s.Header = &MangaHeader{Manga: c.Manga}
	case ChaptersUpdate:
		s.Chapters = c.Chapters
	case SourceChanged:
		s.SourceRevision = c.Revision
	}
	return s
}

// MangaStore is the storage a MangaPresenter reads and writes.
type MangaStore interface {
	engine.MangaRepository
	engine.ChapterRepository
}

// MangaPresenter projects one manga, its chapters and its source revision
// into MangaViewStates. It initializes the manga once and keeps its chapters
// in sync with the source.
type MangaPresenter struct {
	*state.Engine[MangaViewState, MangaChange]

	mangaID     int64
	sources     engine.SourceManager
	opts        options
	subscribe   *engine.SubscribeManga
	chapters    *engine.SubscribeChapters
	initializer *engine.MangaInitializer
	syncer      *engine.SyncChaptersFromSource
}

type mangaOption = state.Option[MangaViewState, MangaChange]

// NewMangaPresenter builds a presenter for mangaID. Call Start to begin and
// Dispose to tear everything down.
func NewMangaPresenter(mangaID int64, store MangaStore, sources engine.SourceManager, opts ...Option) *MangaPresenter {
	o := newOptions(opts)
	interactorOpts := []engine.Option{engine.WithTelemetry(o.tel)}

	p := &MangaPresenter{
		mangaID:     mangaID,
		sources:     sources,
		opts:        o,
		subscribe:   engine.NewSubscribeManga(store, interactorOpts...),
		chapters:    engine.NewSubscribeChapters(store),
		initializer: engine.NewMangaInitializer(store, sources, interactorOpts...),
		syncer:      engine.NewSyncChaptersFromSource(store, interactorOpts...),
	}

	engineOpts := []mangaOption{
		state.WithName[MangaViewState, MangaChange]("manga"),
		state.WithTelemetry[MangaViewState, MangaChange](o.tel),
		state.WithSource[MangaViewState, MangaChange]("manga", p.mangaSource),
		state.WithSource[MangaViewState, MangaChange]("chapters", p.chapterSource),
		state.WithEffect[MangaViewState, MangaChange](state.Effect[MangaViewState]{
			Name:   "initialize-manga",
			Key:    mangaKey,
			Policy: state.Once,
			Run:    p.initialize,
		}),
		state.WithEffect[MangaViewState, MangaChange](state.Effect[MangaViewState]{
			Name:   "sync-chapters",
			Key:    syncKey,
			Policy: state.OnChange,
			Run:    p.syncChapters,
		}),
	}
	if o.revisions != nil {
		engineOpts = append(engineOpts,
			state.WithSource[MangaViewState, MangaChange]("catalog", p.revisionSource))
	}

	p.Engine = state.New[MangaViewState, MangaChange](MangaViewState{}, ReduceManga, engineOpts...)
	return p
}

// MangaID returns the id of the presented manga.
func (p *MangaPresenter) MangaID() int64 {
	return p.mangaID
}

// mangaSource emits the manga row whenever it changes. A missing row is
// skipped rather than folded into the state.
func (p *MangaPresenter) mangaSource(ctx context.Context, emit state.Emitter[MangaChange]) error {
	values := make(chan optional.Value[stores.Manga])
	errc := make(chan error, 1)

	go func() {
		defer close(values)
		errc <- p.subscribe.Run(ctx, p.mangaID, func(v optional.Value[stores.Manga]) {
			select {
			case values <- v:
			case <-ctx.Done():
			}
		})
	}()

	for m := range optional.FilterPresent(ctx.Done(), values) {
		emit(MangaUpdate{Manga: m})
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (p *MangaPresenter) chapterSource(ctx context.Context, emit state.Emitter[MangaChange]) error {
	return p.chapters.Run(ctx, p.mangaID, func(chapters []*stores.Chapter) {
		list := make([]stores.Chapter, len(chapters))
		for i, c := range chapters {
			list[i] = *c
		}
		emit(ChaptersUpdate{Chapters: list})
	})
}

func (p *MangaPresenter) revisionSource(ctx context.Context, emit state.Emitter[MangaChange]) error {
	revisions, err := p.opts.revisions.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch source catalogue: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case rev, ok := <-revisions:
			if !ok {
				return nil
			}
			emit(SourceChanged{Revision: rev})
		}
	}
}

func mangaKey(s MangaViewState) optional.Value[string] {
	if s.Header == nil {
		return optional.None[string]()
	}
	return optional.Some(strconv.FormatInt(s.Header.Manga.ID, 10))
}

// syncKey changes whenever the stored manga row or the source catalogue
// changes. Chapter syncs never write the manga row.
func syncKey(s MangaViewState) optional.Value[string] {
	if s.Header == nil {
		return optional.None[string]()
	}
	m := s.Header.Manga
	return optional.Some(fmt.Sprintf("%d@%d#%016x", m.ID, s.SourceRevision, mangaDigest(m)))
}

// mangaDigest hashes every stored column of m.
func mangaDigest(m stores.Manga) uint64 {
	d := xxhash.New()
	for _, field := range []string{m.Key, m.Title, m.Artist, m.Author, m.Description, m.Cover} {
		_, _ = d.WriteString(field)
		_, _ = d.Write([]byte{0})
	}
	for _, genre := range m.Genres {
		_, _ = d.WriteString(genre)
		_, _ = d.Write([]byte{1})
	}
	_, _ = fmt.Fprintf(d, "%d|%d|%t|%t|%d|%d|%d", m.SourceID, m.Status, m.Favorite, m.Initialized,
		m.LastUpdate.UnixNano(), m.LastInit.UnixNano(), m.DateAdded.UnixNano())
	return d.Sum64()
}

func (p *MangaPresenter) initialize(ctx context.Context, s MangaViewState) error {
	manga := s.Header.Manga
	_, _, err := p.initializer.Interact(ctx, &manga)
	return err
}

func (p *MangaPresenter) syncChapters(ctx context.Context, s MangaViewState) error {
	manga := s.Header.Manga
	entity := fmt.Sprintf("manga %d", manga.ID)

	source, ok := p.sources.Get(manga.SourceID)
	if !ok {
		return engine.NewTransportError(fmt.Sprintf("source %d is not available", manga.SourceID), nil).
			WithEntity(entity)
	}

	var remote []stores.ChapterInfo
	err := p.opts.tel.RecordSourceOperation(ctx, source.Name(), "fetch_chapter_list", func(ctx context.Context) error {
		var ferr error
		remote, ferr = source.FetchChapterList(ctx, stores.MangaInfo{Key: manga.Key})
		return ferr
	})
	if err != nil {
		return engine.NewTransportError("failed to fetch chapter list", err).
			WithEntity(entity).
			WithOperation("fetch_chapter_list")
	}

	_, err = p.syncer.Interact(ctx, remote, &manga)
	return err
}
