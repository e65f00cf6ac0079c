package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/marketdata"
	"github.com/jwtly10/stratsim/internal/runner"
	"github.com/jwtly10/stratsim/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API to start and poll backtests",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			addr, _ := cmd.Flags().GetString("addr")
			cacheTTL, _ := cmd.Flags().GetDuration("candle-cache")

			cfg, err := config.LoadBase(path)
			if err != nil {
				return err
			}

			source, err := runner.NewSource(cfg.Data)
			if err != nil {
				return err
			}
			if cacheTTL > 0 {
				source = marketdata.NewCachedSource(source, cacheTTL)
			}

			ctx := cmd.Context()
			bus := progressBus()
			srv := server.New(ctx, cfg, source).WithRunnerFactory(func(c config.Config) *runner.Runner {
				return runner.New(c, source, bus)
			})

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			slog.Info("Serving backtest API", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			srv.Wait()
			return nil
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address.")
	cmd.Flags().Duration("candle-cache", 15*time.Minute, "How long fetched candles are reused between runs. Zero disables the cache.")
	return cmd
}
