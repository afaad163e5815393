package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/forecastd/internal/config"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

const queryTimeout = 30 * time.Second

// NewQueryCmd creates the query command.
func NewQueryCmd(opts *RootOptions) *cobra.Command {
	var (
		q      query.Query
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query [symbol]",
		Short: "Print the stored forecast for a symbol and model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				q.Symbol = args[0]
			}
			return runQuery(cmd, opts.ConfigPath, q, asJSON)
		},
	}
	cmd.Flags().StringVarP(&q.Symbol, "symbol", "s", "", "ticker symbol")
	cmd.Flags().StringVarP(&q.Model, "model", "m", string(types.DefaultModel), "model name")
	cmd.Flags().IntVar(&q.Horizon, "horizon", 0, "horizon hint for the results-file fallback")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print points as JSON")
	return cmd
}

func runQuery(cmd *cobra.Command, configPath string, q query.Query, asJSON bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, config.NewLogger(cfg, cmd.ErrOrStderr(), false), io.Discard, io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	ans, err := a.resolver.GetPredictions(ctx, q)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(ans.Points)
	}
	printAnswer(cmd.OutOrStdout(), q, ans)
	return nil
}

// printAnswer writes the series as an aligned date/value table.
func printAnswer(w io.Writer, q query.Query, ans *query.Answer) {
	model := q.Model
	if model == "" {
		model = string(types.DefaultModel)
	}
	_, _ = color.New(color.Bold).Fprintf(w, "%s (%s)", q.Symbol, model)
	fmt.Fprintf(w, "  source=%s  points=%d\n", color.CyanString(string(ans.Source)), len(ans.Points))
	for _, p := range ans.Points {
		fmt.Fprintf(w, "  %s  %12.4f\n", p.Date, p.Value)
	}
}
