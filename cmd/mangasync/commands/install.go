package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mangasync/mangasync/pkg/presenters"
	"github.com/mangasync/mangasync/pkg/steps"
)

func newInstallCommand() *cobra.Command {
	var fail []string

	cmd := &cobra.Command{
		Use:   "install <pkg>...",
		Short: "Install extensions (simulated)",
		Long: `Run a simulated install of one or more extension packages and show their
progress.

Each package moves through pending, downloading, installing and installed.
Packages named with --fail stop with an error after downloading. Nothing is
written to disk; the command exercises step tracking end to end.`,
		Example: `  # Install two extensions
  mangasync install ext.mangadex ext.mangaplus

  # Simulate a failed download
  mangasync install ext.mangadex --fail ext.mangadex`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			trackers := make(map[string]*steps.Tracker, len(args))
			for _, pkg := range args {
				trackers[pkg] = steps.NewTracker("")
			}

			p := presenters.NewInstallPresenter(trackers, presenters.WithTelemetry(a.tel))
			if err := p.Start(ctx); err != nil {
				return err
			}
			defer p.Dispose()

			g, gctx := errgroup.WithContext(ctx)
			for pkg, tracker := range trackers {
				g.Go(func() error {
					return simulateInstall(gctx, tracker, a.cfg.Install.StepDelay, slices.Contains(fail, pkg))
				})
			}

			final, err := printInstallProgress(ctx, p, a.out, len(trackers))
			if err != nil {
				return err
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if len(final.Failures) > 0 {
				return fmt.Errorf("%d of %d installs failed", len(final.Failures), len(trackers))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fail, "fail", nil, "packages whose install should fail")

	return cmd
}

// simulateInstall drives a tracker through the install steps.
func simulateInstall(ctx context.Context, tracker *steps.Tracker, delay time.Duration, fail bool) error {
	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			return nil
		}
	}

	if err := tracker.Advance(steps.StepDownloading); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return tracker.Fail(err)
	}
	if fail {
		return tracker.Fail(errors.New("simulated download failure"))
	}
	if err := tracker.Advance(steps.StepInstalling); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return tracker.Fail(err)
	}
	return tracker.Advance(steps.StepInstalled)
}

// printInstallProgress prints states until every package is finished and
// returns the last one.
func printInstallProgress(ctx context.Context, p *presenters.InstallPresenter, w io.Writer, total int) (presenters.InstallViewState, error) {
	var last presenters.InstallViewState
	enc := json.NewEncoder(w)

	for s := range p.States(ctx) {
		last = s
		if jsonOutput {
			if err := enc.Encode(s); err != nil {
				return last, err
			}
		} else {
			for _, pkg := range s.Packages() {
				fmt.Fprintf(w, "%-30s %s", pkg, s.Steps[pkg])
				if reason, failed := s.Failures[pkg]; failed {
					fmt.Fprintf(w, " (%s)", reason)
				}
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w)
		}
		if finished(s, total) {
			return last, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return last, err
	}
	return last, p.Err()
}

func finished(s presenters.InstallViewState, total int) bool {
	if len(s.Steps) < total {
		return false
	}
	for _, step := range s.Steps {
		if !step.IsCompleted() {
			return false
		}
	}
	return true
}
