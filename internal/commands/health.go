package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/forecastd/internal/config"
	"github.com/dwsmith1983/forecastd/internal/gateway"
)

// NewHealthCmd creates the health command.
func NewHealthCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, opts.ConfigPath)
		},
	}
}

func runHealth(cmd *cobra.Command, configPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg, io.Discard, false)
	gw := gateway.Open(ctx, gateway.FromConfig(cfg.Store), config.GatewayOptions(cfg, logger))
	defer func() { _ = gw.Close(context.Background()) }()

	healthy := gw.Check(ctx)
	ok := healthy && gw.Mode() == gateway.ModeConnected
	printHealth(cmd.OutOrStdout(), string(cfg.Store.Type), gw.Backend(), gw.Mode(), ok)
	if !ok {
		return fmt.Errorf("store %s is not reachable", cfg.Store.Type)
	}
	return nil
}

func printHealth(w io.Writer, configured, backend string, mode gateway.Mode, ok bool) {
	status := color.GreenString("ok")
	if !ok {
		status = color.RedString("degraded")
	}
	fmt.Fprintf(w, "  Store:   %s (serving from %s)\n", configured, backend)
	fmt.Fprintf(w, "  Mode:    %s\n", mode)
	fmt.Fprintf(w, "  Status:  %s\n", status)
}
