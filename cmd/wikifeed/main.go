package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/wikifeed/pkg/config"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wikifeed",
	Short: "wikifeed - Wikimedia recent-change notifications",
	Long: `wikifeed follows the Wikimedia recent-change event stream and
notifies subscribers about the changes they asked for.

A subscription names one wiki (for example enwiki) and a set of event
kinds (edit, new, delete, block, ...). Every matching change is delivered
to the subscriber's webhook and logged.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
		}
		if cmd.Flags().Changed("data-dir") {
			loaded.Store.DataDir, _ = cmd.Flags().GetString("data-dir")
		}

		log.Init(log.Config{
			Level:      log.ParseLevel(strings.ToLower(loaded.Log.Level)),
			JSONOutput: loaded.Log.JSON,
			Output:     os.Stderr,
		})
		if loaded.ConfigFile != "" {
			log.Logger.Debug().Str("file", loaded.ConfigFile).Msg("Loaded configuration")
		}

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wikifeed version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Config file (default ./wikifeed.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the subscription database")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(subscriptionCmd)
}
