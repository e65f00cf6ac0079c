package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwtly10/stratsim/internal/advisor"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/mtf"
	"github.com/jwtly10/stratsim/internal/runner"
)

func confluenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confluence",
		Short: "Show the multi-timeframe confluence for the latest candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lookback, _ := cmd.Flags().GetDuration("lookback")
			asJSON, _ := cmd.Flags().GetBool("json")

			source, err := runner.NewSource(cfg.Data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, symbol := range cfg.Symbols {
				bars, err := source.FetchCandles(cmd.Context(), symbol, cfg.IntervalMinutes, time.Now().Add(-lookback))
				if err != nil {
					return err
				}
				if len(bars) == 0 {
					return fmt.Errorf("no candles for %s", symbol)
				}

				result := mtf.NewAnalyzer(symbol, cfg.IntervalMinutes, cfg.Confluence.Thresholds).Analyze(bars)
				snapshot := indicators.Compute(bars)

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(map[string]any{"symbol": symbol, "snapshot": snapshot, "confluence": result}); err != nil {
						return err
					}
					continue
				}

				fmt.Fprintf(out, "\n=== %s ===\n", symbol)
				fmt.Fprint(out, advisor.BuildContext(advisor.ContextInput{
					Symbol:     symbol,
					Bar:        bars[len(bars)-1],
					Snapshot:   snapshot,
					Confluence: &result,
				}))
				fmt.Fprintln(out)
				fmt.Fprintln(out, result.String())
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("symbol", nil, "Override the configured symbols.")
	cmd.Flags().Duration("lookback", 30*24*time.Hour, "How much history to analyse.")
	cmd.Flags().Bool("json", false, "Print JSON instead of tables.")
	return cmd
}
