package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	coreconfig "github.com/AzielCF/az-mediacache/core/config"
)

var (
	flagDebug  bool
	flagConfig string
	flagStore  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-mediacache",
	Short: "Local media cache with quota eviction and background rehydration",
	Long: `az-mediacache keeps chat media available locally: a bounded store with
weighted age/recency eviction, plus a rate-limited downloader that backfills
entries from their remote references.`,
	SilenceUsage:      true,
	PersistentPreRunE: initEnvConfig,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false,
		"hide or displaying log with --debug <true/false> | example: --debug=true")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"optional config file (yaml, json, toml) | example: --config=mediacache.yaml")
	rootCmd.PersistentFlags().StringVarP(&flagStore, "store", "s", "",
		"cache backend: memory, sqlite, gorm or valkey | example: --store=valkey")
}

// initEnvConfig loads configuration and applies command line overrides.
func initEnvConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := coreconfig.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debug") {
		cfg.App.Debug = flagDebug
	}
	if flagStore != "" {
		cfg.Cache.Store = flagStore
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
