package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("FindMangaByKey miss", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindMangaByKey(context.Background(), "missing", 1)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateManga assigns identity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateManga(ctx, NewMangaFromInfo(MangaInfo{
			Key: "m1", Title: "One", Genres: []string{"action"},
		}, 7))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if m.ID == 0 {
			t.Fatal("expected a local id to be assigned")
		}
		if m.DateAdded.IsZero() {
			t.Error("expected DateAdded to be set")
		}

		found, err := s.FindMangaByKey(ctx, "m1", 7)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.ID != m.ID || found.Title != "One" {
			t.Errorf("expected %d/One, got %d/%s", m.ID, found.ID, found.Title)
		}
		if len(found.Genres) != 1 || found.Genres[0] != "action" {
			t.Errorf("unexpected genres: %v", found.Genres)
		}

		// Same key on another source is a different manga.
		other, err := s.CreateManga(ctx, &Manga{SourceID: 8, Key: "m1"})
		if err != nil {
			t.Fatalf("create on other source: %v", err)
		}
		if other.ID == m.ID {
			t.Error("expected distinct ids across sources")
		}
	})

	t.Run("CreateManga duplicate key conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("UpdateManga", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1", Title: "Old"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		m.Title = "New"
		m.Initialized = true
		m.LastInit = time.Now()
		if err := s.UpdateManga(ctx, m); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := s.GetManga(ctx, m.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "New" || !got.Initialized {
			t.Errorf("update not persisted: %+v", got)
		}

		err = s.UpdateManga(ctx, &Manga{ID: 9999})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown id, got %v", err)
		}
	})

	t.Run("SaveMangaDetails", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		stale, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1", Title: "Old", Author: "Kept"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// A concurrent writer favorites the manga after stale was read.
		fav := *stale
		fav.Favorite = true
		if err := s.UpdateManga(ctx, &fav); err != nil {
			t.Fatalf("update: %v", err)
		}

		at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		got, err := s.SaveMangaDetails(ctx, stale.ID, MangaInfo{Title: "New", Genres: []string{"drama"}, Status: StatusCompleted}, at)
		if err != nil {
			t.Fatalf("save details: %v", err)
		}
		if !got.Favorite {
			t.Errorf("favorite lost by returned row: %+v", got)
		}

		stored, err := s.GetManga(ctx, stale.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !stored.Favorite || !stored.Initialized || !stored.LastInit.Equal(at) {
			t.Errorf("unexpected row after save: %+v", stored)
		}
		if stored.Title != "New" || stored.Author != "Kept" || stored.Status != StatusCompleted {
			t.Errorf("details not merged: %+v", stored)
		}
		if len(stored.Genres) != 1 || stored.Genres[0] != "drama" {
			t.Errorf("genres not saved: %v", stored.Genres)
		}

		if _, err := s.SaveMangaDetails(ctx, 9999, MangaInfo{}, at); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown id, got %v", err)
		}
	})

	t.Run("DeleteCategory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c, err := s.CreateCategory(ctx, &Category{Name: "Reading", Order: 1})
		if err != nil {
			t.Fatalf("create category: %v", err)
		}
		if _, err := s.CreateCategory(ctx, &Category{Name: "Reading"}); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate name, got %v", err)
		}

		if err := s.DeleteCategory(ctx, c.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.DeleteCategory(ctx, c.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}

		cats, err := s.ListCategories(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(cats) != 0 {
			t.Errorf("expected no categories, got %d", len(cats))
		}
	})

	t.Run("ApplyChapterChanges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		added := []*Chapter{
			{Key: "c2", Name: "Chapter 2", Number: 2, SourceOrder: 0},
			{Key: "c1", Name: "Chapter 1", Number: 1, SourceOrder: 1},
		}
		if err := s.ApplyChapterChanges(ctx, m.ID, ChapterDiff{Added: added}); err != nil {
			t.Fatalf("apply add: %v", err)
		}
		for _, c := range added {
			if c.ID == 0 {
				t.Errorf("expected id assigned to %s", c.Key)
			}
		}

		chapters, err := s.ListChapters(ctx, m.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(chapters) != 2 || chapters[0].Key != "c2" || chapters[1].Key != "c1" {
			t.Fatalf("unexpected chapters: %+v", chapters)
		}

		renamed := *chapters[1]
		renamed.Name = "Chapter 1 (v2)"
		err = s.ApplyChapterChanges(ctx, m.ID, ChapterDiff{
			Updated: []*Chapter{&renamed},
			Deleted: []*Chapter{chapters[0]},
		})
		if err != nil {
			t.Fatalf("apply update/delete: %v", err)
		}

		chapters, err = s.ListChapters(ctx, m.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(chapters) != 1 || chapters[0].Name != "Chapter 1 (v2)" {
			t.Fatalf("unexpected chapters after update: %+v", chapters)
		}

		err = s.ApplyChapterChanges(ctx, m.ID, ChapterDiff{Added: []*Chapter{{Key: "c1"}}})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate chapter key, got %v", err)
		}
	})

	t.Run("Watch receives writes", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m, err := s.CreateManga(ctx, &Manga{SourceID: 7, Key: "m1"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		changes := s.Watch(ctx, m.ID)

		m.Title = "Updated"
		if err := s.UpdateManga(ctx, m); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := s.ApplyChapterChanges(ctx, m.ID, ChapterDiff{Added: []*Chapter{{Key: "c1"}}}); err != nil {
			t.Fatalf("apply: %v", err)
		}

		want := []ChangeKind{ChangeManga, ChangeChapters}
		for _, kind := range want {
			select {
			case c := <-changes:
				if c.Kind != kind || c.MangaID != m.ID {
					t.Errorf("expected %s for %d, got %+v", kind, m.ID, c)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for %s change", kind)
			}
		}

		cancel()
		select {
		case _, ok := <-changes:
			if ok {
				t.Error("expected no further changes after cancel")
			}
		case <-time.After(time.Second):
			t.Fatal("watch channel not closed after cancel")
		}
	})
}
