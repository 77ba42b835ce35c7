package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mangasync/mangasync/pkg/stores"
)

// MangaRepository is the part of the store the manga interactors use.
type MangaRepository interface {
	FindMangaByKey(ctx context.Context, key string, sourceID int64) (*stores.Manga, error)
	GetManga(ctx context.Context, id int64) (*stores.Manga, error)
	CreateManga(ctx context.Context, manga *stores.Manga) (*stores.Manga, error)
	SaveMangaDetails(ctx context.Context, id int64, details stores.MangaInfo, initializedAt time.Time) (*stores.Manga, error)
	Watch(ctx context.Context, mangaID int64) <-chan stores.Change
}

// CategoryRepository is the part of the store DeleteCategory uses.
type CategoryRepository interface {
	DeleteCategory(ctx context.Context, id int64) error
}

// ChapterRepository is the part of the store chapter reconciliation uses.
type ChapterRepository interface {
	ListChapters(ctx context.Context, mangaID int64) ([]*stores.Chapter, error)
	ApplyChapterChanges(ctx context.Context, mangaID int64, diff stores.ChapterDiff) error
	Watch(ctx context.Context, mangaID int64) <-chan stores.Change
}

// Source is a remote catalogue that mangas and chapter listings come from.
type Source interface {
	// ID returns the stable numeric id stored on every manga from this source.
	ID() int64

	// Name returns a human-readable source name.
	Name() string

	// FetchMangaDetails returns the full remote record for a manga.
	FetchMangaDetails(ctx context.Context, manga stores.MangaInfo) (stores.MangaInfo, error)

	// FetchChapterList returns the chapters of a manga in source order.
	FetchChapterList(ctx context.Context, manga stores.MangaInfo) ([]stores.ChapterInfo, error)
}

// SourceManager resolves sources by id.
type SourceManager interface {
	Get(id int64) (Source, bool)
}

// SourceRegistry is an in-memory SourceManager.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[int64]Source
}

// NewSourceRegistry creates a registry holding the given sources.
func NewSourceRegistry(sources ...Source) (*SourceRegistry, error) {
	r := &SourceRegistry{sources: make(map[int64]Source)}
	for _, s := range sources {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. Registering a second source with the same id fails.
func (r *SourceRegistry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sources[s.ID()]; ok {
		return NewConflictError("source already registered", nil).
			WithEntity(fmt.Sprintf("source %d (%s)", s.ID(), existing.Name()))
	}
	r.sources[s.ID()] = s
	return nil
}

// Get returns the source with the given id.
func (r *SourceRegistry) Get(id int64) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// List returns all registered sources ordered by id.
func (r *SourceRegistry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
