package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stacklok/reelsync/internal/app"
	"github.com/stacklok/reelsync/internal/app/storage"
)

var unfreezeCmd = &cobra.Command{
	Use:   "unfreeze <tmdb_id>...",
	Short: "Make frozen movies eligible for refresh again",
	Long: `Clear the frozen flag and the unchanged-cycle counter of the given movies so
the next collect run evaluates them against the refresh schedule again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUnfreeze,
}

func init() {
	unfreezeCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
}

func runUnfreeze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	v, err := newViper("unfreeze", cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v.GetString("config"))
	if err != nil {
		return err
	}

	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create storage factory: %w", err)
	}
	defer factory.Cleanup()

	n, err := app.Unfreeze(ctx, factory, ids)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unfroze %d of %d movie(s)\n", n, len(ids))
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid TMDB id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
