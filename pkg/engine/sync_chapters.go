package engine

import (
	"context"
	"fmt"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// SyncChaptersFromSource reconciles a remote chapter listing with the chapters
// stored for a manga.
type SyncChaptersFromSource struct {
	repo ChapterRepository
	opts options
}

// NewSyncChaptersFromSource creates the interactor.
func NewSyncChaptersFromSource(repo ChapterRepository, opts ...Option) *SyncChaptersFromSource {
	return &SyncChaptersFromSource{repo: repo, opts: newOptions(opts)}
}

// Interact diffs remote against the stored chapters by key and applies the
// result in one store transaction. Remote order becomes SourceOrder. An empty
// listing is rejected as a TransportError so a source glitch cannot wipe the
// local list.
func (s *SyncChaptersFromSource) Interact(ctx context.Context, remote []stores.ChapterInfo, manga *stores.Manga) (diff stores.ChapterDiff, err error) {
	tel := s.opts.tel
	ic := tel.StartOperation(ctx, "sync_chapters", telemetry.AttrMangaID.Int64(manga.ID))
	defer func() { ic.End(err) }()
	ctx = ic.Ctx

	entity := fmt.Sprintf("manga %d", manga.ID)

	if len(remote) == 0 {
		err = NewTransportError("source returned no chapters", nil).WithEntity(entity)
		tel.Metrics.RecordError(string(ErrorClassTransport))
		return stores.ChapterDiff{}, err
	}

	local, err := s.repo.ListChapters(ctx, manga.ID)
	if err != nil {
		err = NewStorageError("failed to list chapters", err).WithEntity(entity)
		tel.Metrics.RecordError(string(ErrorClassStorage))
		return stores.ChapterDiff{}, err
	}

	diff = diffChapters(local, remote, manga.ID, s.opts.now())
	if diff.IsEmpty() {
		return diff, nil
	}

	if err = s.repo.ApplyChapterChanges(ctx, manga.ID, diff); err != nil {
		err = Classify("failed to apply chapter changes", err)
		tel.Metrics.RecordError(string(ClassOf(err)))
		return stores.ChapterDiff{}, err
	}

	tel.Metrics.RecordChapterChanges(len(diff.Added), len(diff.Updated), len(diff.Deleted))
	_ = tel.Events.PublishChaptersSynced(manga.ID, len(diff.Added), len(diff.Updated), len(diff.Deleted))
	ic.Logger.WithMangaID(manga.ID).Debugf("chapters synced: +%d ~%d -%d",
		len(diff.Added), len(diff.Updated), len(diff.Deleted))
	return diff, nil
}
