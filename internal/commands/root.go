// Package commands implements the CLI subcommands for the forecastd binary.
package commands

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	// ConfigPath names forecastd.yaml or the directory holding it.
	ConfigPath string
}

// NewRootCmd creates the forecastd command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &RootOptions{}
	root := &cobra.Command{
		Use:   "forecastd",
		Short: "Forecast orchestration and ingestion service",
		Long: `forecastd runs an external forecasting job for a ticker, ingests the
per-model result files into a store and serves the stored series, falling
back to the files themselves when the store is empty or unavailable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", ".", "path to forecastd.yaml or its directory")

	root.AddCommand(
		NewInitCmd(),
		NewServeCmd(opts),
		NewRunCmd(opts),
		NewQueryCmd(opts),
		NewHealthCmd(opts),
	)
	return root
}
