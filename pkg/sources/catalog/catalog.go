package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

var _ engine.Source = (*Catalog)(nil)

// File is the on-disk catalogue format.
type File struct {
	Source SourceInfo `yaml:"source"`
	Mangas []Entry    `yaml:"mangas"`
}

// SourceInfo identifies the source a catalogue describes.
type SourceInfo struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// Entry is one manga with its chapter listing, newest first.
type Entry struct {
	stores.MangaInfo `yaml:",inline"`
	Chapters         []stores.ChapterInfo `yaml:"chapters"`
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithDebounce sets how long Watch waits for a burst of file events to settle
// before reporting a revision.
func WithDebounce(d time.Duration) Option {
	return func(c *Catalog) {
		c.debounce = d
	}
}

// Catalog is a read-only manga source backed by a YAML file. The file is
// re-read on every fetch, so edits take effect without a restart.
type Catalog struct {
	path     string
	id       int64
	name     string
	logger   *telemetry.Logger
	debounce time.Duration

	mu       sync.Mutex
	revision int
}

// Open loads the catalogue at path to learn its source id and name.
func Open(path string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		path:     path,
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = telemetry.NewNopLogger()
	}
	c.logger = c.logger.NewComponentLogger("catalog").WithField("path", path)

	f, err := c.load()
	if err != nil {
		return nil, err
	}
	if f.Source.ID == 0 {
		return nil, engine.NewTransportError("catalogue has no source id", nil).WithEntity(path)
	}

	c.id = f.Source.ID
	c.name = f.Source.Name
	if c.name == "" {
		c.name = fmt.Sprintf("catalog-%d", c.id)
	}
	c.logger = c.logger.WithSource(c.id, c.name)
	return c, nil
}

// ID returns the source id declared by the catalogue.
func (c *Catalog) ID() int64 {
	return c.id
}

// Name returns the source name declared by the catalogue.
func (c *Catalog) Name() string {
	return c.name
}

// Path returns the catalogue file path.
func (c *Catalog) Path() string {
	return c.path
}

func (c *Catalog) load() (*File, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, engine.NewTransportError("failed to read catalogue", err).WithEntity(c.path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, engine.NewTransportError("failed to parse catalogue", err).WithEntity(c.path)
	}

	seen := make(map[string]struct{}, len(f.Mangas))
	for _, m := range f.Mangas {
		if m.Key == "" {
			return nil, engine.NewTransportError("catalogue entry without key", nil).WithEntity(c.path)
		}
		if _, dup := seen[m.Key]; dup {
			return nil, engine.NewTransportError("duplicate catalogue key", errors.New(m.Key)).WithEntity(c.path)
		}
		seen[m.Key] = struct{}{}
	}
	return &f, nil
}

func (c *Catalog) lookup(ctx context.Context, key, operation string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.load()
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			ee.WithOperation(operation)
		}
		return nil, err
	}
	for i := range f.Mangas {
		if f.Mangas[i].Key == key {
			return &f.Mangas[i], nil
		}
	}
	return nil, engine.NewTransportError("unknown manga key", nil).
		WithEntity(key).
		WithOperation(operation)
}

// Mangas lists every manga in the catalogue.
func (c *Catalog) Mangas(ctx context.Context) ([]stores.MangaInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]stores.MangaInfo, len(f.Mangas))
	for i, m := range f.Mangas {
		out[i] = m.MangaInfo
	}
	return out, nil
}

// FetchMangaDetails returns the catalogue record for manga.Key.
func (c *Catalog) FetchMangaDetails(ctx context.Context, manga stores.MangaInfo) (stores.MangaInfo, error) {
	e, err := c.lookup(ctx, manga.Key, "fetch_manga_details")
	if err != nil {
		return stores.MangaInfo{}, err
	}
	return e.MangaInfo, nil
}

// FetchChapterList returns the chapters listed for manga.Key.
func (c *Catalog) FetchChapterList(ctx context.Context, manga stores.MangaInfo) ([]stores.ChapterInfo, error) {
	e, err := c.lookup(ctx, manga.Key, "fetch_chapter_list")
	if err != nil {
		return nil, err
	}
	return append([]stores.ChapterInfo(nil), e.Chapters...), nil
}
