// Package cache implements the cache maintenance commands.
package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/regcount/cmd/common"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

// Command returns the cache command tree.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the document cache",
	}
	cmd.AddCommand(clearCommand())
	return cmd
}

func clearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached document and word count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}
			defer deps.Close()

			if !deps.Cache.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "cache is disabled, nothing to clear")
				return nil
			}
			if err := deps.Cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			deps.Logger.Info("cache cleared", logger.String("backend", deps.Config.Cache.Backend))
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s cache\n", deps.Config.Cache.Backend)
			return nil
		},
	}
}
