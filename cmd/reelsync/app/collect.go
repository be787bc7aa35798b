package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/utils/ptr"

	"github.com/stacklok/reelsync/internal/app"
	"github.com/stacklok/reelsync/internal/collector"
	"github.com/stacklok/reelsync/internal/config"
	"github.com/stacklok/reelsync/internal/movie"
)

const defaultShutdownTimeout = 10 * time.Second

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one discovery and refresh cycle",
	Long: `Discover movies on TMDB for the configured release years, then refresh every
movie that is due on at least one enabled source and freeze the ones that have
stopped changing.

Flags override the collection section of the configuration file. Every flag can
also be set through REELSYNC_COLLECT_<FLAG>, e.g. REELSYNC_COLLECT_START_YEAR.`,
	RunE: runCollect,
}

func init() {
	addCollectFlags(collectCmd.Flags())
}

func addCollectFlags(f *pflag.FlagSet) {
	f.String("config", "", "Path to configuration file (YAML format, required)")
	f.Int("start-year", 0, "Oldest release year to discover")
	f.Int("end-year", 0, "Newest release year to discover")
	f.Int("max-pages", 0, "Maximum discovery pages per year (0 = no cap)")
	f.Int("min-votes", 0, "Minimum TMDB vote count for discovery")
	f.Int("limit", 0, "Maximum number of movies to refresh")
	f.Bool("skip-discovery", false, "Only refresh movies already stored")
	f.Bool("no-tmdb", false, "Do not refresh from TMDB")
	f.Bool("no-omdb", false, "Do not refresh from OMDB")
	f.Bool("box-office", false, "Also refresh box-office figures")
	f.Bool("freeze-sweep", false, "Evaluate every old movie for freezing, not only refreshed ones")
	f.String("format", formatText, "Output format (text or json)")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	v, err := newViper("collect", cmd.Flags())
	if err != nil {
		return err
	}

	format := v.GetString("format")
	if format != formatText && format != formatJSON {
		return fmt.Errorf("invalid format %q: must be %s or %s", format, formatText, formatJSON)
	}

	cfg, err := loadConfig(v.GetString("config"))
	if err != nil {
		return err
	}
	applySourceFlags(v, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collectorApp, err := app.NewCollectorApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}
	defer func() {
		if err := collectorApp.Stop(defaultShutdownTimeout); err != nil {
			slog.Error("Failed to stop collector", "error", err)
		}
	}()

	opts, err := collectOptions(v, cfg, time.Now())
	if err != nil {
		return err
	}

	stats, err := collectorApp.Collect(ctx, opts)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	if err := printStats(cmd.OutOrStdout(), format, stats); err != nil {
		return err
	}
	if len(stats.AbortedSources) > 0 {
		return fmt.Errorf("sources aborted: %v", stats.AbortedSources)
	}
	return nil
}

// applySourceFlags toggles the configured sources before the clients are
// built, so a disabled source needs no credential
func applySourceFlags(v *viper.Viper, cfg *config.Config) {
	if v.GetBool("no-omdb") {
		if cfg.Sources.OMDB == nil {
			cfg.Sources.OMDB = &config.SourceConfig{}
		}
		cfg.Sources.OMDB.Enabled = ptr.To(false)
	}
	if v.GetBool("box-office") {
		if cfg.Sources.BoxOffice == nil {
			cfg.Sources.BoxOffice = &config.SourceConfig{}
		}
		cfg.Sources.BoxOffice.Enabled = ptr.To(true)
	}
}

// collectOptions derives the run options from the configuration and applies
// the flags that were set
func collectOptions(v *viper.Viper, cfg *config.Config, now time.Time) (collector.Options, error) {
	opts := app.CollectionOptions(cfg, now)

	ints := []struct {
		key    string
		target *int
	}{
		{"start-year", &opts.StartYear},
		{"end-year", &opts.EndYear},
		{"max-pages", &opts.MaxPages},
		{"min-votes", &opts.MinVoteCount},
		{"limit", &opts.RefreshLimit},
	}
	for _, i := range ints {
		if v.IsSet(i.key) {
			*i.target = v.GetInt(i.key)
		}
	}
	// a single bound implies the other one
	switch {
	case v.IsSet("start-year") && !v.IsSet("end-year") && cfg.Collection.Discovery.EndYear == 0:
		opts.EndYear = max(opts.StartYear, now.Year())
	case v.IsSet("end-year") && !v.IsSet("start-year") && cfg.Collection.Discovery.StartYear == 0:
		opts.StartYear = opts.EndYear
	}

	if v.GetBool("skip-discovery") {
		opts.Discover = false
	}
	if v.GetBool("freeze-sweep") {
		opts.FreezeSweep = true
	}

	if !v.GetBool("no-tmdb") {
		opts.Sources = append(opts.Sources, movie.SourceTMDB)
	}
	if cfg.Sources.OMDB.IsEnabled(true) {
		opts.Sources = append(opts.Sources, movie.SourceOMDB)
	}
	if cfg.Sources.BoxOffice.IsEnabled(false) {
		opts.Sources = append(opts.Sources, movie.SourceBoxOffice)
	}
	if len(opts.Sources) == 0 {
		return opts, fmt.Errorf("no sources enabled")
	}
	return opts, nil
}

func printStats(w io.Writer, format string, stats *collector.Stats) error {
	if format == formatJSON {
		output, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format stats as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
	rows := []struct {
		label string
		value int
	}{
		{"Discovered", stats.Discovered},
		{"New movies", stats.NewMovies},
		{"Candidates", stats.Candidates},
		{"TMDB updated", stats.TMDBUpdated},
		{"OMDB updated", stats.OMDBUpdated},
		{"Box office updated", stats.BoxOfficeUpdated},
		{"Changed", stats.Changed},
		{"Fully refreshed", stats.FullyRefreshed},
		{"Frozen", stats.Frozen},
		{"Not found", stats.NotFound},
		{"Skipped", stats.Skipped},
		{"Failed", stats.Failed},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-20s %d\n", r.label+":", r.value)
	}
	if len(stats.AbortedSources) > 0 {
		fmt.Fprintf(&b, "  %-20s %v\n", "Aborted sources:", stats.AbortedSources)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
