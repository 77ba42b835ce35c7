package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/presenters"
	"github.com/mangasync/mangasync/pkg/state"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var serveMetrics bool

	cmd := &cobra.Command{
		Use:   "watch <manga-id>",
		Short: "Stream the view state of a manga",
		Long: `Run the manga presenter and print every view state as a JSON line until
interrupted.

While watching, the manga is initialized from its source once and its chapters
are reconciled with the source listing. When catalogue watching is enabled,
every change to the catalogue file triggers a new chapter sync. Failures of
these background tasks are logged and never stop the stream.`,
		Example: `  # Watch manga 1
  mangasync watch 1

  # Watch and expose Prometheus metrics
  mangasync watch 1 --metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mangaID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid manga id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if serveMetrics {
				if err := a.tel.StartMetricsServer(); err != nil {
					return err
				}
			}

			cat, err := a.openCatalog()
			if err != nil {
				return err
			}
			registry, err := engine.NewSourceRegistry(cat)
			if err != nil {
				return err
			}

			opts := []presenters.Option{presenters.WithTelemetry(a.tel)}
			if a.cfg.Catalog.Watch {
				opts = append(opts, presenters.WithRevisions(cat))
			}

			a.tel.Events.Subscribe(func(e telemetry.Event) {
				log.Info().
					Int64("manga_id", e.MangaID).
					Str("event", e.Type).
					Interface("data", e.Data).
					Msg(e.Message)
			}, telemetry.FilterByMangaID(mangaID))

			p := presenters.NewMangaPresenter(mangaID, a.store, registry, opts...)
			if err := p.Start(ctx); err != nil {
				return err
			}
			defer p.Dispose()

			log.Info().Int64("manga_id", mangaID).Str("engine_id", p.ID()).Msg("Watching manga")

			enc := json.NewEncoder(a.out)
			if !jsonOutput {
				enc.SetIndent("", "  ")
			}
			for s := range p.States(ctx) {
				if err := enc.Encode(s); err != nil {
					return err
				}
			}

			if err := p.Err(); err != nil && !errors.Is(err, state.ErrDisposed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&serveMetrics, "metrics", false, "serve Prometheus metrics while watching")

	return cmd
}
