package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/forecastd/internal/config"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// NewRunCmd creates the run command.
func NewRunCmd(opts *RootOptions) *cobra.Command {
	var (
		req     types.RunRequest
		models  string
		useLSTM bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "run [symbol]",
		Short: "Run the forecasting job for a symbol and ingest its results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				req.Symbol = args[0]
			}
			if models != "" {
				ms, err := types.ParseModelList(models)
				if err != nil {
					return err
				}
				req.Models = ms
			}
			if useLSTM && !req.Wants(types.ModelLSTM) {
				if len(req.Models) == 0 {
					req.Models = []types.Model{types.DefaultModel}
				}
				req.Models = append(req.Models, types.ModelLSTM)
			}
			return runForecast(cmd, opts.ConfigPath, req, asJSON)
		},
	}
	cmd.Flags().StringVarP(&req.Symbol, "symbol", "s", "", "ticker symbol")
	cmd.Flags().StringVarP(&req.Period, "period", "p", types.DefaultPeriod, "history window passed to the job")
	cmd.Flags().IntVar(&req.Horizon, "horizon", types.DefaultHorizon, "forecast horizon in days")
	cmd.Flags().StringVarP(&models, "models", "m", "", "comma-separated models (default ensemble)")
	cmd.Flags().BoolVar(&useLSTM, "use-lstm", false, "also request the lstm model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")
	return cmd
}

func runForecast(cmd *cobra.Command, configPath string, req types.RunRequest, asJSON bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg, cmd.ErrOrStderr(), false)

	// The result is printed at the end, so job output is not mirrored twice in JSON mode.
	stdout := cmd.OutOrStdout()
	if asJSON {
		stdout = io.Discard
	}
	a, err := buildApp(ctx, cfg, logger, stdout, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	res, runErr := a.orchestrator.Run(ctx, req)
	if res == nil {
		return runErr
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printRunResult(cmd.OutOrStdout(), res)
	}
	if runErr != nil {
		return runErr
	}
	if res.Status != types.RunCompleted {
		return fmt.Errorf("run %s finished %s", res.RunID, res.Status)
	}
	return nil
}

// printRunResult writes a human-readable summary of res.
func printRunResult(w io.Writer, res *types.RunResult) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w)
	_, _ = bold.Fprintf(w, "Run %s  %s %dd (%s)\n", res.RunID, res.Symbol, res.Horizon, res.Period)

	status := string(res.Status)
	switch res.Status {
	case types.RunCompleted:
		status = color.GreenString(status)
	case types.RunFailed:
		status = color.RedString(status)
	case types.RunCancelled:
		status = color.YellowString(status)
	}
	fmt.Fprintf(w, "  Status:    %s (exit %d)\n", status, res.ExitCode)
	if res.Message != "" {
		fmt.Fprintf(w, "  Message:   %s\n", res.Message)
	}

	if len(res.Imported) == 0 {
		return
	}
	models := make([]string, 0, len(res.Imported))
	for m := range res.Imported {
		models = append(models, string(m))
	}
	sort.Strings(models)

	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "  Imported:")
	for _, m := range models {
		mr := res.Imported[types.Model(m)]
		if !mr.OK() {
			fmt.Fprintf(w, "    %s %-8s %s\n", color.RedString("✗"), m, mr.Error)
			continue
		}
		fmt.Fprintf(w, "    %s %-8s matched=%d upserted=%d skipped=%d\n",
			color.GreenString("✓"), m, mr.Matched, mr.Upserted, mr.Skipped)
	}
}
