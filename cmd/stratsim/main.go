package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"

	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "stratsim",
	Short: "Replay trading strategies over historical candles",
	Long: `stratsim replays score based, advised and scalper strategies candle by
candle over historical data and reports trades, equity and statistics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		topics, _ := cmd.Flags().GetString("debug-topics")
		if level == "" {
			level = os.Getenv("LOG_LEVEL")
		}
		if topics == "" {
			topics = os.Getenv("DEBUG_TOPICS")
		}
		logging.Configure(level, topics)

		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadEnv(envFile)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error. Defaults to LOG_LEVEL.")
	rootCmd.PersistentFlags().String("debug-topics", "", "Comma separated debug topics (engine,exits,score,watch,mtf) or 'all'. Defaults to DEBUG_TOPICS.")
	rootCmd.PersistentFlags().String("env-file", ".env", "Env file holding API keys. Skipped when missing.")
	rootCmd.PersistentFlags().StringP("config", "c", "stratsim.yaml", "Path to the YAML run config.")

	rootCmd.AddCommand(runCmd(), confluenceCmd(), serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	symbols, _ := cmd.Flags().GetStringSlice("symbol")
	return config.LoadFor(path, symbols)
}

// progressBus logs progress events every ten percent.
func progressBus() EventBus.Bus {
	bus := EventBus.New()
	var mu sync.Mutex
	last := make(map[string]int)
	_ = bus.Subscribe(backtest.ProgressTopic, func(s backtest.ProgressSnapshot) {
		switch s.Phase {
		case backtest.PhaseRunning:
			mu.Lock()
			seen := last[s.RunID]
			last[s.RunID] = s.Percent
			mu.Unlock()
			if s.Percent/10 == seen/10 {
				return
			}
			slog.Info("Backtest progress", "run_id", s.RunID, "percent", s.Percent, "candle", s.CurrentCandle, "total", s.TotalCandles, "advisory_calls", s.AdvisoryCalls)
		case backtest.PhaseError:
			slog.Error("Backtest failed", "run_id", s.RunID, "message", s.Message)
		default:
			slog.Info(fmt.Sprintf("Backtest %s", s.Phase), "run_id", s.RunID, "message", s.Message)
		}
	})
	return bus
}
