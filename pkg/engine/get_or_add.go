package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// GetOrAddMangaFromSource returns the canonical local copy of a remote manga,
// creating it on first sight. Existing records are never overwritten.
type GetOrAddMangaFromSource struct {
	repo MangaRepository
	opts options
}

// NewGetOrAddMangaFromSource creates the interactor.
func NewGetOrAddMangaFromSource(repo MangaRepository, opts ...Option) *GetOrAddMangaFromSource {
	return &GetOrAddMangaFromSource{repo: repo, opts: newOptions(opts)}
}

// Interact looks the manga up by (info.Key, sourceID) and creates it when
// missing. A uniqueness conflict on create means a concurrent caller won the
// race; the lookup is retried once and the winner's record returned.
func (g *GetOrAddMangaFromSource) Interact(ctx context.Context, info stores.MangaInfo, sourceID int64) (manga *stores.Manga, err error) {
	tel := g.opts.tel
	ic := tel.StartOperation(ctx, "get_or_add_manga",
		telemetry.AttrMangaKey.String(info.Key),
		telemetry.AttrSourceID.Int64(sourceID),
	)
	defer func() { ic.End(err) }()
	ctx = ic.Ctx

	entity := fmt.Sprintf("manga %d/%s", sourceID, info.Key)

	manga, err = g.repo.FindMangaByKey(ctx, info.Key, sourceID)
	switch {
	case err == nil:
		tel.Metrics.RecordUpsert("found")
		return manga, nil
	case !errors.Is(err, stores.ErrNotFound):
		return nil, g.fail(NewStorageError("failed to look up manga", err).WithEntity(entity).WithOperation("find"))
	}

	manga, err = g.repo.CreateManga(ctx, stores.NewMangaFromInfo(info, sourceID))
	switch {
	case err == nil:
		tel.Metrics.RecordUpsert("created")
		_ = tel.Events.PublishMangaCreated(manga.ID, sourceID, info.Key)
		ic.Logger.WithMangaID(manga.ID).Debug("manga created")
		return manga, nil
	case !errors.Is(err, stores.ErrConflict):
		return nil, g.fail(NewStorageError("failed to create manga", err).WithEntity(entity).WithOperation("create"))
	}

	ic.Logger.Debug("create conflicted, retrying lookup")
	manga, err = g.repo.FindMangaByKey(ctx, info.Key, sourceID)
	switch {
	case err == nil:
		tel.Metrics.RecordUpsert("retried")
		return manga, nil
	case errors.Is(err, stores.ErrNotFound):
		return nil, g.fail(NewConflictError("manga missing after create conflict", err).WithEntity(entity).WithOperation("find"))
	default:
		return nil, g.fail(NewStorageError("failed to look up manga after conflict", err).WithEntity(entity).WithOperation("find"))
	}
}

func (g *GetOrAddMangaFromSource) fail(err *EngineError) error {
	g.opts.tel.Metrics.RecordUpsert("failed")
	g.opts.tel.Metrics.RecordError(string(err.Class))
	return err
}
