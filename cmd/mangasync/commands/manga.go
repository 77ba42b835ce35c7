package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/stores"
)

func newAddCommand() *cobra.Command {
	var syncNow bool

	cmd := &cobra.Command{
		Use:   "add <key>",
		Short: "Add a manga from the source catalogue",
		Long: `Look up a manga in the source catalogue and add it to the library.

Adding is get-or-create: if the manga is already in the library the existing
record is returned unchanged.`,
		Example: `  # Add a manga
  mangasync add one-piece

  # Add, fetch details and sync chapters in one go
  mangasync add one-piece --sync`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.openCatalog()
			if err != nil {
				return err
			}

			var info stores.MangaInfo
			err = a.tel.RecordSourceOperation(ctx, cat.Name(), "fetch_manga_details", func(ctx context.Context) error {
				var ferr error
				info, ferr = cat.FetchMangaDetails(ctx, stores.MangaInfo{Key: args[0]})
				return ferr
			})
			if err != nil {
				return err
			}

			opts := []engine.Option{engine.WithTelemetry(a.tel)}
			manga, err := engine.NewGetOrAddMangaFromSource(a.store, opts...).Interact(ctx, info, cat.ID())
			if err != nil {
				return err
			}

			var diff stores.ChapterDiff
			if syncNow {
				registry, err := engine.NewSourceRegistry(cat)
				if err != nil {
					return err
				}
				if manga, _, err = engine.NewMangaInitializer(a.store, registry, opts...).Interact(ctx, manga); err != nil {
					return err
				}
				chapters, err := cat.FetchChapterList(ctx, manga.Info())
				if err != nil {
					return err
				}
				if diff, err = engine.NewSyncChaptersFromSource(a.store, opts...).Interact(ctx, chapters, manga); err != nil {
					return err
				}
			}

			return a.print(manga, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s (id %d, source %d)\n", manga.Title, manga.ID, manga.SourceID)
				if syncNow {
					fmt.Fprintf(w, "  chapters: +%d ~%d -%d\n", len(diff.Added), len(diff.Updated), len(diff.Deleted))
				}
			})
		},
	}

	cmd.Flags().BoolVar(&syncNow, "sync", false, "initialize the manga and sync its chapters")

	return cmd
}

func newListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mangas in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			mangas, err := a.store.ListMangas(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			return a.print(mangas, func(w io.Writer) {
				if len(mangas) == 0 {
					fmt.Fprintln(w, "No mangas in the library")
					return
				}
				for _, m := range mangas {
					state := "pending"
					if m.Initialized {
						state = "initialized"
					}
					fmt.Fprintf(w, "%5d  %-40s  %s\n", m.ID, m.Title, state)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of mangas")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of mangas to skip")

	return cmd
}
