package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwtly10/stratsim/internal/advisor"
	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/marketdata"
	"github.com/jwtly10/stratsim/internal/oanda"
	"github.com/jwtly10/stratsim/internal/strategy"
)

// AdvisorFactory builds the advisor for one run.
type AdvisorFactory func(cfg advisor.Config) (advisor.Advisor, error)

// NewAdvisor is the default AdvisorFactory: an HTTP client per run.
func NewAdvisor(cfg advisor.Config) (advisor.Advisor, error) {
	return advisor.NewClient(cfg)
}

// NewSource builds the configured historical price source.
func NewSource(cfg config.DataConfig) (marketdata.Source, error) {
	switch cfg.Source {
	case config.SourceCSV:
		return marketdata.NewCSVSource(cfg.Dir), nil
	case config.SourcePolygon:
		return marketdata.NewPolygonSource(cfg.PolygonAPIKey), nil
	case config.SourceOanda:
		return marketdata.NewOandaSource(oanda.NewClient(cfg.OandaAccountID, cfg.OandaAPIKey, cfg.OandaBaseURL)), nil
	}
	return nil, fmt.Errorf("%w: unknown data source %q", config.ErrInvalidConfig, cfg.Source)
}

// NewPolicy builds a fresh policy for one run.
func NewPolicy(cfg config.Config, adv advisor.Advisor) (strategy.Policy, error) {
	scorePolicy := strategy.NewScorePolicy(cfg.Score)

	switch cfg.Strategy {
	case strategy.KindScore:
		return scorePolicy, nil
	case strategy.KindAdvised:
		return strategy.NewAdvisedPolicy(scorePolicy, adv, cfg.Advisor.Model, cfg.Advisor.ConfidenceThreshold), nil
	case strategy.KindScalper:
		advised := strategy.NewAdvisedPolicy(scorePolicy, adv, cfg.Advisor.Model, cfg.Advisor.ConfidenceThreshold)
		return strategy.NewScalperPolicy(cfg.Scalper, advised), nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", config.ErrInvalidConfig, cfg.Strategy)
}

// Runner executes simulations for a config. Every run gets its own policy,
// advisor client and account, so runs share nothing.
type Runner struct {
	cfg        config.Config
	source     marketdata.Source
	bus        EventBus.Bus
	newAdvisor AdvisorFactory
}

func New(cfg config.Config, source marketdata.Source, bus EventBus.Bus) *Runner {
	return &Runner{cfg: cfg, source: source, bus: bus, newAdvisor: NewAdvisor}
}

// WithAdvisorFactory replaces how advisors are built.
func (r *Runner) WithAdvisorFactory(f AdvisorFactory) *Runner {
	r.newAdvisor = f
	return r
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

// NewProgress creates the progress tracker for a new run.
func (r *Runner) NewProgress() *backtest.Progress {
	return backtest.NewProgress(uuid.New().String(), r.bus)
}

// Run simulates one symbol. Progress may be nil.
func (r *Runner) Run(ctx context.Context, symbol string, progress *backtest.Progress) (*backtest.Results, error) {
	if progress == nil {
		progress = r.NewProgress()
	}

	results, err := r.run(ctx, symbol, progress)
	if err != nil {
		progress.Fail(err)
		slog.Error("Backtest failed", "symbol", symbol, "run_id", progress.Snapshot().RunID, "error", err)
		return nil, err
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, symbol string, progress *backtest.Progress) (*backtest.Results, error) {
	progress.SetPhase(backtest.PhaseLoading, fmt.Sprintf("fetching %s candles", symbol))

	var adv advisor.Advisor
	if r.cfg.Strategy != strategy.KindScore {
		a, err := r.newAdvisor(r.cfg.Advisor)
		if err != nil {
			return nil, fmt.Errorf("failed to create advisor: %w", err)
		}
		adv = a
	}

	policy, err := NewPolicy(r.cfg, adv)
	if err != nil {
		return nil, err
	}

	bars, err := r.source.FetchCandles(ctx, symbol, r.cfg.IntervalMinutes, r.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}

	engine := backtest.NewEngine(backtest.Config{
		Symbol:          symbol,
		IntervalMinutes: r.cfg.IntervalMinutes,
		From:            r.cfg.From,
		To:              r.cfg.To,
		StartingBalance: r.cfg.StartingBalance,
		Risk:            r.cfg.Risk,
		EquityStride:    r.cfg.EquityStride,
		Confluence:      r.cfg.Confluence.Enabled,
		Thresholds:      r.cfg.Confluence.Thresholds,
	}, bars, progress)

	return engine.Run(ctx, policy)
}

// RunAll simulates every configured symbol in parallel. The first failure
// cancels the remaining runs.
func (r *Runner) RunAll(ctx context.Context) (map[string]*backtest.Results, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	out := make(map[string]*backtest.Results, len(r.cfg.Symbols))

	for _, symbol := range r.cfg.Symbols {
		g.Go(func() error {
			res, err := r.Run(ctx, symbol, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			mu.Lock()
			out[symbol] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
