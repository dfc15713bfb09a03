package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "soilrisk",
	Short: "Foundation soil-risk lookup service",
	Long: `soilrisk geocodes US addresses, looks up the USDA soil survey under them and
classifies expansive-clay foundation risk from the plasticity index.

  serve      run the HTTP API (risk checks, location pages, lead intake, quiz)
  migrate    create or update the database schema
  ingest     geocode zips and store their soil, neighborhoods and risk tier
  locations  list, import or relate stored locations
  lookup     assess one address from the command line
  leads      list homeowner intake submissions
  status     show catalog coverage, lead volume and active alerts

Configuration comes from ./config.yaml and SOILRISK_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
