package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same uniqueness and not-found
// semantics as SQLiteStore. It is intended for tests, examples and the CLI's
// dry runs.
type MemoryStore struct {
	mu         sync.RWMutex
	mangas     map[int64]*Manga
	mangaKeys  map[mangaKey]int64
	categories map[int64]*Category
	chapters   map[int64]map[int64]*Chapter
	nextID     int64
	notifier   *Notifier
	fault      func(op string) error
}

type mangaKey struct {
	sourceID int64
	key      string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mangas:     make(map[int64]*Manga),
		mangaKeys:  make(map[mangaKey]int64),
		categories: make(map[int64]*Category),
		chapters:   make(map[int64]map[int64]*Chapter),
		notifier:   NewNotifier(),
	}
}

func (s *MemoryStore) Init(context.Context) error    { return nil }
func (s *MemoryStore) Close() error                  { return nil }
func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Watch(ctx context.Context, mangaID int64) <-chan Change {
	return s.notifier.Watch(ctx, mangaID)
}

// InjectFault installs fn to be consulted before every operation. A non-nil
// result is returned instead of running the operation. Pass nil to clear.
func (s *MemoryStore) InjectFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	fault := s.fault
	s.mu.RUnlock()
	if fault != nil {
		return fault(op)
	}
	return nil
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneManga(m *Manga) *Manga {
	out := *m
	out.Genres = append([]string(nil), m.Genres...)
	return &out
}

func (s *MemoryStore) FindMangaByKey(ctx context.Context, key string, sourceID int64) (*Manga, error) {
	if err := s.check(ctx, "FindMangaByKey"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.mangaKeys[mangaKey{sourceID: sourceID, key: key}]
	if !ok {
		return nil, fmt.Errorf("manga %q (source %d): %w", key, sourceID, ErrNotFound)
	}
	return cloneManga(s.mangas[id]), nil
}

func (s *MemoryStore) GetManga(ctx context.Context, id int64) (*Manga, error) {
	if err := s.check(ctx, "GetManga"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mangas[id]
	if !ok {
		return nil, fmt.Errorf("manga %d: %w", id, ErrNotFound)
	}
	return cloneManga(m), nil
}

func (s *MemoryStore) CreateManga(ctx context.Context, manga *Manga) (*Manga, error) {
	if err := s.check(ctx, "CreateManga"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	k := mangaKey{sourceID: manga.SourceID, key: manga.Key}
	if _, exists := s.mangaKeys[k]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("manga %q (source %d): %w", manga.Key, manga.SourceID, ErrConflict)
	}

	created := cloneManga(manga)
	created.ID = s.id()
	if created.DateAdded.IsZero() {
		created.DateAdded = time.Now()
	}
	s.mangas[created.ID] = created
	s.mangaKeys[k] = created.ID
	s.mu.Unlock()

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: created.ID})
	return cloneManga(created), nil
}

func (s *MemoryStore) UpdateManga(ctx context.Context, manga *Manga) error {
	if err := s.check(ctx, "UpdateManga"); err != nil {
		return err
	}
	s.mu.Lock()
	existing, ok := s.mangas[manga.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("manga %d: %w", manga.ID, ErrNotFound)
	}

	// Identity columns are immutable.
	updated := cloneManga(manga)
	updated.SourceID = existing.SourceID
	updated.Key = existing.Key
	updated.DateAdded = existing.DateAdded
	s.mangas[manga.ID] = updated
	s.mu.Unlock()

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: manga.ID})
	return nil
}

func (s *MemoryStore) SaveMangaDetails(ctx context.Context, id int64, details MangaInfo, initializedAt time.Time) (*Manga, error) {
	if err := s.check(ctx, "SaveMangaDetails"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	existing, ok := s.mangas[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("manga %d: %w", id, ErrNotFound)
	}

	updated := cloneManga(existing)
	updated.ApplyDetails(details)
	updated.Initialized = true
	updated.LastInit = initializedAt
	s.mangas[id] = updated
	out := cloneManga(updated)
	s.mu.Unlock()

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: id})
	return out, nil
}

func (s *MemoryStore) ListMangas(ctx context.Context, limit, offset int) ([]*Manga, error) {
	if err := s.check(ctx, "ListMangas"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.mangas))
	for id := range s.mangas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []*Manga{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, cloneManga(s.mangas[ids[i]]))
	}
	return out, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, category *Category) (*Category, error) {
	if err := s.check(ctx, "CreateCategory"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.Name == category.Name {
			return nil, fmt.Errorf("category %q: %w", category.Name, ErrConflict)
		}
	}
	created := *category
	created.ID = s.id()
	s.categories[created.ID] = &created

	out := created
	return &out, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]*Category, error) {
	if err := s.check(ctx, "ListCategories"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.check(ctx, "DeleteCategory"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) ListChapters(ctx context.Context, mangaID int64) ([]*Chapter, error) {
	if err := s.check(ctx, "ListChapters"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Chapter, 0, len(s.chapters[mangaID]))
	for _, c := range s.chapters[mangaID] {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceOrder != out[j].SourceOrder {
			return out[i].SourceOrder < out[j].SourceOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ApplyChapterChanges(ctx context.Context, mangaID int64, diff ChapterDiff) error {
	if err := s.check(ctx, "ApplyChapterChanges"); err != nil {
		return err
	}
	if diff.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.mangas[mangaID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("manga %d: %w", mangaID, ErrNotFound)
	}

	// Validate before mutating so the diff applies all-or-nothing.
	current := s.chapters[mangaID]
	keys := make(map[string]int64, len(current))
	for id, c := range current {
		keys[c.Key] = id
	}
	for _, c := range diff.Deleted {
		delete(keys, current[c.ID].keyOrEmpty())
	}
	for _, c := range diff.Added {
		if _, dup := keys[c.Key]; dup {
			s.mu.Unlock()
			return fmt.Errorf("insert chapter %q: %w", c.Key, ErrConflict)
		}
		keys[c.Key] = 0
	}

	if current == nil {
		current = make(map[int64]*Chapter)
		s.chapters[mangaID] = current
	}
	for _, c := range diff.Deleted {
		delete(current, c.ID)
	}
	for _, c := range diff.Updated {
		if existing, ok := current[c.ID]; ok {
			existing.Name = c.Name
			existing.Number = c.Number
			existing.Scanlator = c.Scanlator
			existing.DateUpload = c.DateUpload
			existing.SourceOrder = c.SourceOrder
		}
	}
	for _, c := range diff.Added {
		c.ID = s.id()
		c.MangaID = mangaID
		cp := *c
		current[c.ID] = &cp
	}
	s.mu.Unlock()

	s.notifier.Notify(Change{Kind: ChangeChapters, MangaID: mangaID})
	return nil
}

func (c *Chapter) keyOrEmpty() string {
	if c == nil {
		return ""
	}
	return c.Key
}
