package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"calfeed/internal/config"
	appLog "calfeed/internal/log"
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "calfeed",
	Short: "calfeed - timetable feed downloader",
	Long: `calfeed downloads the published timetable feeds, extracts every
lecture occurrence, merges the curated events and writes one JSON file per
lecture series plus an index of all series.

Files are only rewritten when their content changed, and series that
vanished from every feed are deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	// main logs the returned error.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "calfeed.yaml", "Path to config file (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
}

// loadConfig reads the config file, applies environment overrides and the
// --log-level flag, and configures the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"config_path", configPath,
		"timezone", cfg.Timezone,
		"output_dir", cfg.OutputDir,
		"ics_dir", cfg.ICSDir,
		"feeds", len(cfg.Feeds),
		"curated_dir", cfg.Curated.Dir,
		"git", cfg.Git.Enabled,
		"refresh", cfg.RefreshCron,
	)
	return cfg, nil
}
