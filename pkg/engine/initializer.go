package engine

import (
	"context"
	"fmt"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// MangaInitializer brings a freshly discovered manga to a usable state by
// fetching its full details from the source it came from.
type MangaInitializer struct {
	repo    MangaRepository
	sources SourceManager
	opts    options
}

// NewMangaInitializer creates the interactor.
func NewMangaInitializer(repo MangaRepository, sources SourceManager, opts ...Option) *MangaInitializer {
	return &MangaInitializer{repo: repo, sources: sources, opts: newOptions(opts)}
}

// Interact fetches details for an uninitialized manga, stores them and marks
// the manga initialized. An already initialized manga is returned unchanged
// with changed == false. Source failures are TransportErrors.
func (mi *MangaInitializer) Interact(ctx context.Context, manga *stores.Manga) (result *stores.Manga, changed bool, err error) {
	if manga.Initialized {
		return manga, false, nil
	}

	tel := mi.opts.tel
	ic := tel.StartOperation(ctx, "initialize_manga",
		telemetry.AttrMangaID.Int64(manga.ID),
		telemetry.AttrSourceID.Int64(manga.SourceID),
	)
	defer func() { ic.End(err) }()
	ctx = ic.Ctx

	entity := fmt.Sprintf("manga %d", manga.ID)

	source, ok := mi.sources.Get(manga.SourceID)
	if !ok {
		err = NewTransportError(fmt.Sprintf("source %d is not available", manga.SourceID), nil).WithEntity(entity)
		tel.Metrics.RecordError(string(ErrorClassTransport))
		return nil, false, err
	}

	var details stores.MangaInfo
	err = tel.RecordSourceOperation(ctx, source.Name(), "fetch_manga_details", func(ctx context.Context) error {
		var ferr error
		details, ferr = source.FetchMangaDetails(ctx, manga.Info())
		return ferr
	})
	if err != nil {
		tel.Metrics.RecordError(string(ErrorClassTransport))
		return nil, false, NewTransportError("failed to fetch manga details", err).
			WithEntity(entity).
			WithOperation("fetch_manga_details")
	}

	updated, err := mi.repo.SaveMangaDetails(ctx, manga.ID, details, mi.opts.now())
	if err != nil {
		err = Classify("failed to store manga details", err)
		tel.Metrics.RecordError(string(ClassOf(err)))
		return nil, false, err
	}

	_ = tel.Events.PublishMangaInitialized(updated.ID)
	ic.Logger.WithMangaID(updated.ID).Debug("manga initialized")
	return updated, true, nil
}
