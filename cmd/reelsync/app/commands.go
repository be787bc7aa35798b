// Package app provides the command-line interface of the reelsync collector.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacklok/reelsync/internal/config"
	"github.com/stacklok/reelsync/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "reelsync",
	DisableAutoGenTag: true,
	Short:             "Movie metadata collector",
	Long: `reelsync discovers movies on TMDB and keeps their metadata from TMDB, OMDB and
box-office sources fresh, refreshing each source on a schedule driven by the
movie's age.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(unfreezeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}

		if format == formatJSON {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info as JSON: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reelsync %s (commit %s, built %s, %s, %s)\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		return nil
	},
}

const (
	formatText = "text"
	formatJSON = "json"
)

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}

// newViper returns a viper instance reading the flags of one command and the
// REELSYNC_<COMMAND>_<FLAG> environment variables
func newViper(command string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix + "_" + command)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind %s flags: %w", command, err)
	}
	return v, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
