package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/runner"
	"github.com/jwtly10/stratsim/internal/tradingview"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest for every configured symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			source, err := runner.NewSource(cfg.Data)
			if err != nil {
				return err
			}

			results, err := runner.New(cfg, source, progressBus()).RunAll(cmd.Context())
			if err != nil {
				return err
			}

			outDir, _ := cmd.Flags().GetString("out-dir")
			showTrades, _ := cmd.Flags().GetBool("trades")

			symbols := make([]string, 0, len(results))
			for s := range results {
				symbols = append(symbols, s)
			}
			sort.Strings(symbols)

			out := cmd.OutOrStdout()
			for _, symbol := range symbols {
				res := results[symbol]
				fmt.Fprintf(out, "\n=== %s %dm %s ===\n", symbol, res.IntervalMinutes, cfg.Strategy)
				res.Calculate().Print(out)
				if showTrades {
					res.PrintTrades(out)
				}
				if outDir != "" {
					if err := export(outDir, symbol, res); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("symbol", nil, "Override the configured symbols.")
	cmd.Flags().String("out-dir", "", "Write trades, equity curve and Pine Script markers here.")
	cmd.Flags().Bool("trades", false, "Print the trade list.")
	return cmd
}

func export(dir, symbol string, res *backtest.Results) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	files := []struct {
		name  string
		write func(f *os.File) error
	}{
		{name: symbol + "_trades.csv", write: func(f *os.File) error { return res.WriteTradesCSV(f) }},
		{name: symbol + "_equity.csv", write: func(f *os.File) error { return res.WriteEquityCSV(f) }},
		{name: symbol + "_markers.pine", write: func(f *os.File) error { return tradingview.WritePineScript(f, res.Trades) }},
	}

	for _, file := range files {
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			return err
		}
		err = file.write(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", file.name, err)
		}
	}
	return nil
}
