package stores

import (
	"context"
	"time"
)

// Manga status values as reported by sources.
const (
	StatusUnknown   = 0
	StatusOngoing   = 1
	StatusCompleted = 2
	StatusLicensed  = 3
)

// MangaInfo is a manga as described by a remote source, before it has a
// local identity.
type MangaInfo struct {
	Key         string   `json:"key" yaml:"key"`
	Title       string   `json:"title" yaml:"title"`
	Artist      string   `json:"artist,omitempty" yaml:"artist"`
	Author      string   `json:"author,omitempty" yaml:"author"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Cover       string   `json:"cover,omitempty" yaml:"cover"`
	Genres      []string `json:"genres,omitempty" yaml:"genres"`
	Status      int      `json:"status" yaml:"status"`
}

// ChapterInfo is a chapter as listed by a remote source.
type ChapterInfo struct {
	Key        string    `json:"key" yaml:"key"`
	Name       string    `json:"name" yaml:"name"`
	Number     float64   `json:"number" yaml:"number"`
	Scanlator  string    `json:"scanlator,omitempty" yaml:"scanlator"`
	DateUpload time.Time `json:"date_upload" yaml:"date_upload"`
}

// Manga is a locally persisted manga. Until saved its identity is
// (SourceID, Key); afterwards it is ID.
type Manga struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Cover       string    `json:"cover,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Status      int       `json:"status"`
	Favorite    bool      `json:"favorite"`
	Initialized bool      `json:"initialized"`
	LastUpdate  time.Time `json:"last_update"`
	LastInit    time.Time `json:"last_init"`
	DateAdded   time.Time `json:"date_added"`
}

// Info returns the remote-side view of the manga.
func (m *Manga) Info() MangaInfo {
	return MangaInfo{
		Key:         m.Key,
		Title:       m.Title,
		Artist:      m.Artist,
		Author:      m.Author,
		Description: m.Description,
		Cover:       m.Cover,
		Genres:      append([]string(nil), m.Genres...),
		Status:      m.Status,
	}
}

// ApplyDetails copies the fields a source reported onto m. Empty remote
// values leave the local ones in place.
func (m *Manga) ApplyDetails(info MangaInfo) {
	if info.Title != "" {
		m.Title = info.Title
	}
	if info.Artist != "" {
		m.Artist = info.Artist
	}
	if info.Author != "" {
		m.Author = info.Author
	}
	if info.Description != "" {
		m.Description = info.Description
	}
	if info.Cover != "" {
		m.Cover = info.Cover
	}
	if len(info.Genres) > 0 {
		m.Genres = append([]string(nil), info.Genres...)
	}
	m.Status = info.Status
}

// NewMangaFromInfo builds an unsaved manga from a remote record.
func NewMangaFromInfo(info MangaInfo, sourceID int64) *Manga {
	return &Manga{
		SourceID:    sourceID,
		Key:         info.Key,
		Title:       info.Title,
		Artist:      info.Artist,
		Author:      info.Author,
		Description: info.Description,
		Cover:       info.Cover,
		Genres:      append([]string(nil), info.Genres...),
		Status:      info.Status,
	}
}

// Category is a user-defined library category.
type Category struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Order          int    `json:"order"`
	UpdateInterval int    `json:"update_interval"`
}

// Chapter is a locally persisted chapter of a manga.
type Chapter struct {
	ID          int64     `json:"id"`
	MangaID     int64     `json:"manga_id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Number      float64   `json:"number"`
	Scanlator   string    `json:"scanlator,omitempty"`
	DateUpload  time.Time `json:"date_upload"`
	DateFetch   time.Time `json:"date_fetch"`
	SourceOrder int       `json:"source_order"`
	Read        bool      `json:"read"`
}

// ChapterDiff is a set of chapter changes applied in a single transaction.
type ChapterDiff struct {
	Added   []*Chapter `json:"added,omitempty"`
	Updated []*Chapter `json:"updated,omitempty"`
	Deleted []*Chapter `json:"deleted,omitempty"`
}

// IsEmpty reports whether the diff changes nothing.
func (d ChapterDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Deleted) == 0
}

// ChangeKind identifies what a store write touched.
type ChangeKind string

const (
	ChangeManga    ChangeKind = "manga"
	ChangeChapters ChangeKind = "chapters"
)

// Change is an in-process notification emitted after a successful write.
type Change struct {
	Kind    ChangeKind
	MangaID int64
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Manga operations
	FindMangaByKey(ctx context.Context, key string, sourceID int64) (*Manga, error)
	GetManga(ctx context.Context, id int64) (*Manga, error)
	CreateManga(ctx context.Context, manga *Manga) (*Manga, error)
	UpdateManga(ctx context.Context, manga *Manga) error
	SaveMangaDetails(ctx context.Context, id int64, details MangaInfo, initializedAt time.Time) (*Manga, error)
	ListMangas(ctx context.Context, limit, offset int) ([]*Manga, error)

	// Category operations
	CreateCategory(ctx context.Context, category *Category) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	// Chapter operations
	ListChapters(ctx context.Context, mangaID int64) ([]*Chapter, error)
	ApplyChapterChanges(ctx context.Context, mangaID int64, diff ChapterDiff) error

	// Watch streams changes touching the given manga until ctx is done.
	Watch(ctx context.Context, mangaID int64) <-chan Change

	// Utility
	HealthCheck(ctx context.Context) error
}
