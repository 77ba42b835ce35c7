package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mangasync/mangasync/pkg/engine"
	"github.com/mangasync/mangasync/pkg/stores"
)

func newCategoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage library categories",
	}

	cmd.AddCommand(newCategoryAddCommand())
	cmd.AddCommand(newCategoryListCommand())
	cmd.AddCommand(newCategoryDeleteCommand())

	return cmd
}

func newCategoryAddCommand() *cobra.Command {
	var (
		order          int
		updateInterval int
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			category, err := a.store.CreateCategory(cmd.Context(), &stores.Category{
				Name:           args[0],
				Order:          order,
				UpdateInterval: updateInterval,
			})
			if err != nil {
				return engine.Classify("failed to create category", err)
			}

			return a.print(category, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Category %q created (id %d)\n", category.Name, category.ID)
			})
		},
	}

	cmd.Flags().IntVar(&order, "order", 0, "sort position")
	cmd.Flags().IntVar(&updateInterval, "update-interval", 0, "library update interval in hours, 0 to disable")

	return cmd
}

func newCategoryListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.store.ListCategories(cmd.Context())
			if err != nil {
				return err
			}

			return a.print(categories, func(w io.Writer) {
				for _, c := range categories {
					fmt.Fprintf(w, "%5d  %-30s  order=%d\n", c.ID, c.Name, c.Order)
				}
			})
		},
	}
}

func newCategoryDeleteCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category",
		Long: `Delete a category by id.

Deleting is fire-and-forget: a missing category and storage failures are
logged, not reported. Use --strict to fail on storage errors; a missing
category still counts as deleted.`,
		Example: `  # Delete category 3
  mangasync category delete 3

  # Delete and report storage failures
  mangasync category delete 3 --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid category id %q: %w", args[0], err)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			del := engine.NewDeleteCategory(a.store, engine.WithTelemetry(a.tel))
			if strict {
				if err := del.InteractStrict(cmd.Context(), id); err != nil {
					return err
				}
			} else {
				del.Interact(cmd.Context(), id)
			}

			return a.print(map[string]int64{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Category %d deleted\n", id)
			})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "report storage failures")

	return cmd
}
