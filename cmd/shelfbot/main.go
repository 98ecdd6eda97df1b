package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/untoldecay/shelfbot/internal/config"
	"github.com/untoldecay/shelfbot/internal/logging"
)

var (
	configPath string
	console    bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shelfbot",
	Short: "Queue-backed file delivery worker",
	Long: `shelfbot delivers catalog files to chat users through a durable
Redis-backed job queue. The catalog mirrors a storage backend (Yandex
Disk or a local directory) into SQLite; the worker consumes download
and sync jobs, retries transient failures and audits every outcome.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log = logging.New(logging.Options{
			Level:   cfg.LogLevel,
			File:    cfg.LogFile,
			Console: console,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVar(&console, "console", false, "human-readable log output")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
