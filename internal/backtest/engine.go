package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwtly10/stratsim/internal/account"
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/mtf"
	"github.com/jwtly10/stratsim/internal/strategy"
	"github.com/jwtly10/stratsim/internal/types"
)

const DefaultEquityStride = 10

var engineLog = logging.New("engine")

type Config struct {
	Symbol          string
	IntervalMinutes int
	// From and To bound the simulated range. Zero values leave that side open.
	From            time.Time
	To              time.Time
	StartingBalance float64
	Risk            account.RiskConfig
	// EquityStride samples the equity curve every n candles. The last candle
	// is always sampled.
	EquityStride int
	// Confluence runs the multi-timeframe analyzer on every candle and hands
	// the result to the policy.
	Confluence bool
	Thresholds confluence.Thresholds
}

type Engine struct {
	cfg      Config
	bars     []types.Bar
	progress *Progress
}

func NewEngine(cfg Config, bars []types.Bar, progress *Progress) *Engine {
	if cfg.EquityStride <= 0 {
		cfg.EquityStride = DefaultEquityStride
	}
	if progress == nil {
		progress = NewProgress("", nil)
	}
	return &Engine{cfg: cfg, bars: bars, progress: progress}
}

func (e *Engine) Progress() *Progress {
	return e.progress
}

// Run simulates policy over the configured range one candle at a time. On
// any error the progress phase is set to error and no results are returned.
func (e *Engine) Run(ctx context.Context, policy strategy.Policy) (*Results, error) {
	results, err := e.run(ctx, policy)
	if err != nil {
		e.progress.Fail(err)
		return nil, err
	}
	e.progress.SetPhase(PhaseCompleted, fmt.Sprintf("completed %d candles, %d trades", results.Candles, len(results.Trades)))
	return results, nil
}

func (e *Engine) run(ctx context.Context, policy strategy.Policy) (*Results, error) {
	e.progress.SetPhase(PhaseLoading, "filtering candles")

	bars := e.filter()
	if len(bars) < MinCandles {
		return nil, &InsufficientDataError{Symbol: e.cfg.Symbol, Have: len(bars), Need: MinCandles}
	}

	if obs, ok := policy.(strategy.CallObserver); ok {
		obs.ObserveCalls(e.progress.RecordAdvisoryCall)
	}

	var analyzer *mtf.Analyzer
	if e.cfg.Confluence {
		analyzer = mtf.NewAnalyzer(e.cfg.Symbol, e.cfg.IntervalMinutes, e.cfg.Thresholds)
	}

	acc := account.NewAccount(e.cfg.StartingBalance, e.cfg.Risk)
	results := &Results{
		Symbol:          e.cfg.Symbol,
		IntervalMinutes: e.cfg.IntervalMinutes,
		From:            bars[0].Timestamp,
		To:              bars[len(bars)-1].Timestamp,
		StartingBalance: e.cfg.StartingBalance,
		Candles:         len(bars),
		EquityCurve:     []types.EquityPoint{},
		Returns:         make([]float64, 0, len(bars)),
	}

	slog.Info("Starting backtest", "symbol", e.cfg.Symbol, "interval", e.cfg.IntervalMinutes, "starting_balance", e.cfg.StartingBalance, "candles", len(bars))

	total := len(bars)
	peak := 0.0
	prevEquity := 0.0
	var watch strategy.WatchState

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest aborted at candle %d: %w", i, err)
		}

		engineLog.Debug("Processing bar", "index", i, "timestamp", bar.Timestamp, "open", bar.Open, "high", bar.High, "low", bar.Low, "close", bar.Close)

		equity := acc.Equity(bar.Close)
		if i%e.cfg.EquityStride == 0 || i == total-1 {
			results.EquityCurve = append(results.EquityCurve, types.EquityPoint{Timestamp: bar.Timestamp, Equity: equity})
		}

		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > results.MaxDrawdown {
			results.MaxDrawdown = dd
		}
		if peak > 0 {
			if pct := (peak - equity) / peak * 100; pct > results.MaxDrawdownPercent {
				results.MaxDrawdownPercent = pct
			}
		}
		results.PeakEquity = peak

		if i > 0 && prevEquity != 0 {
			results.Returns = append(results.Returns, (equity-prevEquity)/prevEquity)
		}
		prevEquity = equity

		if _, closed := acc.CheckExits(bar); closed {
			e.progress.Update(i+1, total, fmt.Sprintf("candle %d/%d", i+1, total))
			continue
		}

		prefix := bars[:i+1]
		in := strategy.Input{
			Symbol:   e.cfg.Symbol,
			Bars:     prefix,
			Index:    i,
			Position: acc.Position(),
			Snapshot: indicators.Compute(prefix),
			Watch:    watch,
		}
		if analyzer != nil {
			res := analyzer.Analyze(prefix)
			in.Confluence = &res
		}

		d, err := policy.Decide(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("policy failed at candle %d: %w", i, err)
		}
		watch = d.Watch

		if err := e.fill(acc, bar, i, d); err != nil {
			return nil, err
		}

		e.progress.Update(i+1, total, fmt.Sprintf("candle %d/%d", i+1, total))
	}

	acc.CloseAll(bars[len(bars)-1])

	results.EndingBalance = acc.Balance()
	results.Trades = acc.Trades()
	results.AdvisoryCalls = e.progress.Snapshot().AdvisoryCalls
	results.Calculate()

	slog.Info("Backtest finished", "symbol", e.cfg.Symbol, "trades", len(results.Trades), "ending_balance", results.EndingBalance, "max_drawdown", results.MaxDrawdown)
	return results, nil
}

// fill executes a decision. Fills the account refuses are logged and skipped.
func (e *Engine) fill(acc *account.Account, bar types.Bar, index int, d strategy.Decision) error {
	if !d.Action.Valid() {
		return fmt.Errorf("policy returned unknown action %q at candle %d", d.Action, index)
	}

	var err error
	switch d.Action {
	case types.HOLD:
		return nil
	case types.BUY:
		if acc.State() == account.OPEN {
			engineLog.Debug("Ignoring buy while position is open", "index", index)
			return nil
		}
		_, err = acc.Buy(bar, index, d.Reasoning)
	case types.SELL:
		if acc.State() == account.FLAT {
			engineLog.Debug("Ignoring sell while flat", "index", index)
			return nil
		}
		_, err = acc.Sell(bar, d.Reasoning)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrInsufficientBalance), errors.Is(err, account.ErrNoPosition), errors.Is(err, account.ErrPositionOpen):
		slog.Warn("Skipped fill", "action", d.Action, "index", index, "error", err)
		return nil
	default:
		return fmt.Errorf("fill at candle %d: %w", index, err)
	}
}

func (e *Engine) filter() []types.Bar {
	out := make([]types.Bar, 0, len(e.bars))
	for _, b := range e.bars {
		if !e.cfg.From.IsZero() && b.Timestamp.Before(e.cfg.From) {
			continue
		}
		if !e.cfg.To.IsZero() && b.Timestamp.After(e.cfg.To) {
			continue
		}
		out = append(out, b)
	}
	return out
}
