package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mangasync/mangasync/pkg/optional"
	"github.com/mangasync/mangasync/pkg/stores"
)

// SubscribeManga streams the current row of a manga and every later version.
type SubscribeManga struct {
	repo MangaRepository
	opts options
}

// NewSubscribeManga creates the interactor.
func NewSubscribeManga(repo MangaRepository, opts ...Option) *SubscribeManga {
	return &SubscribeManga{repo: repo, opts: newOptions(opts)}
}

// Run calls emit with the current row, then again after every store change
// touching it, until ctx is done. A missing row is emitted as None. Run
// returns nil on cancellation and a StorageError if a read fails.
func (s *SubscribeManga) Run(ctx context.Context, id int64, emit func(optional.Value[stores.Manga])) error {
	// Watch before the first read so no write slips between them.
	changes := s.repo.Watch(ctx, id)

	read := func() error {
		m, err := s.repo.GetManga(ctx, id)
		switch {
		case err == nil:
			emit(optional.Of(m))
		case errors.Is(err, stores.ErrNotFound):
			emit(optional.None[stores.Manga]())
		default:
			return NewStorageError("failed to read manga", err).WithEntity(fmt.Sprintf("manga %d", id))
		}
		return nil
	}

	return watchLoop(ctx, changes, stores.ChangeManga, read)
}

// Interact is the channel form of Run. The channel closes when ctx is done
// or a read fails; failures are logged.
func (s *SubscribeManga) Interact(ctx context.Context, id int64) <-chan optional.Value[stores.Manga] {
	out := make(chan optional.Value[stores.Manga], 1)
	go func() {
		defer close(out)
		err := s.Run(ctx, id, func(v optional.Value[stores.Manga]) {
			select {
			case out <- v:
			case <-ctx.Done():
			}
		})
		if err != nil {
			s.opts.tel.Logger.WithError(err).WithMangaID(id).Error("manga subscription ended")
		}
	}()
	return out
}

// SubscribeChapters streams the chapter list of a manga in source order.
type SubscribeChapters struct {
	repo ChapterRepository
}

// NewSubscribeChapters creates the interactor.
func NewSubscribeChapters(repo ChapterRepository) *SubscribeChapters {
	return &SubscribeChapters{repo: repo}
}

// Run calls emit with the current chapters and again after every chapter
// change, until ctx is done.
func (s *SubscribeChapters) Run(ctx context.Context, mangaID int64, emit func([]*stores.Chapter)) error {
	changes := s.repo.Watch(ctx, mangaID)

	read := func() error {
		chapters, err := s.repo.ListChapters(ctx, mangaID)
		if err != nil {
			return NewStorageError("failed to list chapters", err).WithEntity(fmt.Sprintf("manga %d", mangaID))
		}
		emit(chapters)
		return nil
	}

	return watchLoop(ctx, changes, stores.ChangeChapters, read)
}

// watchLoop runs read once, then once per change of the given kind.
func watchLoop(ctx context.Context, changes <-chan stores.Change, kind stores.ChangeKind, read func() error) error {
	if err := read(); err != nil {
		return ignoreCanceled(ctx, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Kind != kind {
				continue
			}
			if err := read(); err != nil {
				return ignoreCanceled(ctx, err)
			}
		}
	}
}

// ignoreCanceled drops errors caused by ctx ending mid-read.
func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
