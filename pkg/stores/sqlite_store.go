package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	cfg      Config
	notifier *Notifier
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Every connection to ":memory:" opens its own database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	return &SQLiteStore{
		cfg:      cfg,
		notifier: NewNotifier(),
	}, nil
}

// dsn builds the modernc connection string with per-connection pragmas.
func (s *SQLiteStore) dsn() string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds(),
	)
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Watch streams changes touching mangaID until ctx is done.
func (s *SQLiteStore) Watch(ctx context.Context, mangaID int64) <-chan Change {
	return s.notifier.Watch(ctx, mangaID)
}

const mangaColumns = `id, source_id, key, title, artist, author, description, cover, genres,
	status, favorite, initialized, last_update, last_init, date_added`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManga(row rowScanner) (*Manga, error) {
	var (
		m                              Manga
		genres                         string
		lastUpdate, lastInit, dateAdded int64
	)
	if err := row.Scan(
		&m.ID, &m.SourceID, &m.Key, &m.Title, &m.Artist, &m.Author, &m.Description, &m.Cover,
		&genres, &m.Status, &m.Favorite, &m.Initialized, &lastUpdate, &lastInit, &dateAdded,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(genres), &m.Genres); err != nil {
		return nil, fmt.Errorf("decode genres for manga %d: %w", m.ID, err)
	}
	m.LastUpdate = fromMillis(lastUpdate)
	m.LastInit = fromMillis(lastInit)
	m.DateAdded = fromMillis(dateAdded)
	return &m, nil
}

// FindMangaByKey retrieves the manga persisted for (key, sourceID).
func (s *SQLiteStore) FindMangaByKey(ctx context.Context, key string, sourceID int64) (*Manga, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mangaColumns+` FROM manga WHERE source_id = ? AND key = ?`, sourceID, key)

	m, err := scanManga(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manga %q (source %d): %w", key, sourceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find manga: %w", err)
	}
	return m, nil
}

// GetManga retrieves a manga by local id.
func (s *SQLiteStore) GetManga(ctx context.Context, id int64) (*Manga, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mangaColumns+` FROM manga WHERE id = ?`, id)

	m, err := scanManga(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manga %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manga: %w", err)
	}
	return m, nil
}

// CreateManga persists a new manga and returns it with its assigned id.
// A second manga for the same (source id, key) yields ErrConflict.
func (s *SQLiteStore) CreateManga(ctx context.Context, manga *Manga) (*Manga, error) {
	genres, err := encodeGenres(manga.Genres)
	if err != nil {
		return nil, err
	}

	created := *manga
	if created.DateAdded.IsZero() {
		created.DateAdded = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO manga (source_id, key, title, artist, author, description, cover, genres,
			status, favorite, initialized, last_update, last_init, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		created.SourceID, created.Key, created.Title, created.Artist, created.Author,
		created.Description, created.Cover, genres, created.Status, created.Favorite,
		created.Initialized, toMillis(created.LastUpdate), toMillis(created.LastInit),
		toMillis(created.DateAdded),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create manga %q: %w", manga.Key, classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get manga id: %w", err)
	}
	created.ID = id

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: id})
	return &created, nil
}

// UpdateManga overwrites the mutable fields of an existing manga.
func (s *SQLiteStore) UpdateManga(ctx context.Context, manga *Manga) error {
	genres, err := encodeGenres(manga.Genres)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE manga
		SET title = ?, artist = ?, author = ?, description = ?, cover = ?, genres = ?,
			status = ?, favorite = ?, initialized = ?, last_update = ?, last_init = ?
		WHERE id = ?
	`,
		manga.Title, manga.Artist, manga.Author, manga.Description, manga.Cover, genres,
		manga.Status, manga.Favorite, manga.Initialized, toMillis(manga.LastUpdate),
		toMillis(manga.LastInit), manga.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update manga: %w", classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("manga %d: %w", manga.ID, ErrNotFound)
	}

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: manga.ID})
	return nil
}

// SaveMangaDetails merges source details into the stored row and marks it
// initialized. Only the detail columns, initialized and last_init are
// written, so concurrent changes to other columns survive.
func (s *SQLiteStore) SaveMangaDetails(ctx context.Context, id int64, details MangaInfo, initializedAt time.Time) (*Manga, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	m, err := scanManga(tx.QueryRowContext(ctx, `SELECT `+mangaColumns+` FROM manga WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manga %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manga: %w", err)
	}

	m.ApplyDetails(details)
	m.Initialized = true
	m.LastInit = initializedAt

	genres, err := encodeGenres(m.Genres)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE manga
		SET title = ?, artist = ?, author = ?, description = ?, cover = ?, genres = ?,
			status = ?, initialized = 1, last_init = ?
		WHERE id = ?
	`,
		m.Title, m.Artist, m.Author, m.Description, m.Cover, genres, m.Status,
		toMillis(m.LastInit), id,
	); err != nil {
		return nil, fmt.Errorf("failed to save manga details: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(Change{Kind: ChangeManga, MangaID: id})
	return m, nil
}

// ListMangas lists mangas with pagination
func (s *SQLiteStore) ListMangas(ctx context.Context, limit, offset int) ([]*Manga, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mangaColumns+` FROM manga ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list mangas: %w", err)
	}
	defer rows.Close()

	mangas := []*Manga{}
	for rows.Next() {
		m, err := scanManga(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manga: %w", err)
		}
		mangas = append(mangas, m)
	}
	return mangas, rows.Err()
}

// CreateCategory creates a new category
func (s *SQLiteStore) CreateCategory(ctx context.Context, category *Category) (*Category, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO category (name, sort_order, update_interval) VALUES (?, ?, ?)`,
		category.Name, category.Order, category.UpdateInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to create category %q: %w", category.Name, classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category id: %w", err)
	}

	created := *category
	created.ID = id
	return &created, nil
}

// ListCategories lists all categories in display order
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sort_order, update_interval FROM category ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*Category{}
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.UpdateInterval); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory deletes a category. ErrNotFound is returned when no row matched.
func (s *SQLiteStore) DeleteCategory(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM category WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListChapters lists the chapters of a manga in source order
func (s *SQLiteStore) ListChapters(ctx context.Context, mangaID int64) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manga_id, key, name, number, scanlator, date_upload, date_fetch, source_order, read
		FROM chapter
		WHERE manga_id = ?
		ORDER BY source_order ASC, id ASC
	`, mangaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	chapters := []*Chapter{}
	for rows.Next() {
		var (
			c                     Chapter
			dateUpload, dateFetch int64
		)
		if err := rows.Scan(
			&c.ID, &c.MangaID, &c.Key, &c.Name, &c.Number, &c.Scanlator,
			&dateUpload, &dateFetch, &c.SourceOrder, &c.Read,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		c.DateUpload = fromMillis(dateUpload)
		c.DateFetch = fromMillis(dateFetch)
		chapters = append(chapters, &c)
	}
	return chapters, rows.Err()
}

// ApplyChapterChanges applies a chapter diff for a manga in one transaction.
// Added chapters receive their new ids in place.
func (s *SQLiteStore) ApplyChapterChanges(ctx context.Context, mangaID int64, diff ChapterDiff) error {
	if diff.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, c := range diff.Deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chapter WHERE id = ? AND manga_id = ?`, c.ID, mangaID); err != nil {
			return fmt.Errorf("delete chapter %q: %w", c.Key, err)
		}
	}

	for _, c := range diff.Updated {
		if _, err := tx.ExecContext(ctx, `
			UPDATE chapter
			SET name = ?, number = ?, scanlator = ?, date_upload = ?, source_order = ?
			WHERE id = ? AND manga_id = ?
		`, c.Name, c.Number, c.Scanlator, toMillis(c.DateUpload), c.SourceOrder, c.ID, mangaID); err != nil {
			return fmt.Errorf("update chapter %q: %w", c.Key, classify(err))
		}
	}

	for _, c := range diff.Added {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO chapter (manga_id, key, name, number, scanlator, date_upload, date_fetch, source_order, read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, mangaID, c.Key, c.Name, c.Number, c.Scanlator, toMillis(c.DateUpload),
			toMillis(c.DateFetch), c.SourceOrder, c.Read)
		if err != nil {
			return fmt.Errorf("insert chapter %q: %w", c.Key, classify(err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get chapter id: %w", err)
		}
		c.ID = id
		c.MangaID = mangaID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.Notify(Change{Kind: ChangeChapters, MangaID: mangaID})
	return nil
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// classify maps driver constraint violations onto ErrConflict.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func encodeGenres(genres []string) (string, error) {
	if genres == nil {
		genres = []string{}
	}
	b, err := json.Marshal(genres)
	if err != nil {
		return "", fmt.Errorf("encode genres: %w", err)
	}
	return string(b), nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
